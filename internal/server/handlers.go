package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pesaguru/engine/internal/domain"
	"github.com/pesaguru/engine/internal/modules/advisor"
	"github.com/pesaguru/engine/internal/modules/reporting"
)

// Handlers holds the portfolio and report HTTP handlers.
type Handlers struct {
	advisor *advisor.Service
	outlook *reporting.OutlookService
	log     zerolog.Logger
}

// NewHandlers creates the portfolio handlers.
func NewHandlers(svc *advisor.Service, outlook *reporting.OutlookService, log zerolog.Logger) *Handlers {
	return &Handlers{
		advisor: svc,
		outlook: outlook,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleOptimize handles POST /api/portfolio/optimize
func (h *Handlers) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req advisor.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.advisor.GetOptimizedPortfolio(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "Optimization failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleFrontier handles POST /api/portfolio/frontier
func (h *Handlers) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		advisor.OptimizeRequest
		Points int `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	frontier, err := h.advisor.EfficientFrontier(r.Context(), req.OptimizeRequest, req.Points)
	if err != nil {
		h.writeDomainError(w, err, "Frontier generation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": frontier})
}

// HandleStressTest handles POST /api/portfolio/stress-test
func (h *Handlers) HandleStressTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Weights   map[string]float64      `json:"weights"`
		Scenarios []domain.StressScenario `json:"scenarios"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Weights) == 0 {
		http.Error(w, "weights are required", http.StatusBadRequest)
		return
	}

	impacts := h.advisor.StressTest(req.Weights, req.Scenarios)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": impacts})
}

// HandleRebalance handles POST /api/portfolio/rebalance
func (h *Handlers) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentWeights map[string]float64 `json:"current_weights"`
		TargetWeights  map[string]float64 `json:"target_weights"`
		Threshold      float64            `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.TargetWeights) == 0 {
		http.Error(w, "target_weights are required", http.StatusBadRequest)
		return
	}

	plan := h.advisor.Rebalance(req.CurrentWeights, req.TargetWeights, req.Threshold)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": plan})
}

// HandleInvestmentReport handles POST /api/reports/investment
func (h *Handlers) HandleInvestmentReport(w http.ResponseWriter, r *http.Request) {
	var req advisor.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	report, err := h.advisor.GenerateInvestmentReport(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "Report generation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": report})
}

// HandleMarketOutlook handles GET /api/market/outlook
func (h *Handlers) HandleMarketOutlook(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": h.outlook.Current()})
}

// writeDomainError maps engine errors to HTTP status codes: bad input to 422,
// upstream data failures to 502, deadline hits to 504, everything else 500.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error, msg string) {
	var (
		estErr        *domain.EstimationError
		infeasibleErr *domain.InfeasibleOptimizationError
		fetchErr      *domain.DataFetchError
		timeoutErr    *domain.OptimizationTimeoutError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &estErr), errors.As(err, &infeasibleErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &fetchErr):
		status = http.StatusBadGateway
	case errors.As(err, &timeoutErr):
		status = http.StatusGatewayTimeout
	}

	h.log.Error().Err(err).Int("status", status).Msg(msg)
	h.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
