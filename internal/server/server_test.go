package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesaguru/engine/internal/config"
	"github.com/pesaguru/engine/internal/database"
	"github.com/pesaguru/engine/internal/domain"
	"github.com/pesaguru/engine/internal/modules/advisor"
	"github.com/pesaguru/engine/internal/modules/estimation"
	"github.com/pesaguru/engine/internal/modules/optimization"
	"github.com/pesaguru/engine/internal/modules/preferences"
	"github.com/pesaguru/engine/internal/modules/rebalancing"
	"github.com/pesaguru/engine/internal/modules/reporting"
	"github.com/pesaguru/engine/internal/modules/scenarios"
)

var serverTestDrifts = map[string]float64{
	"NSE:SCOM": 0.014,
	"NSE:EQTY": 0.011,
	"KEGB:10Y": 0.008,
	"MMF:CIC":  0.005,
	"NSE20":    0.009,
}

func serverTestSeries(name string, periodMonths int) []domain.PricePoint {
	drift, ok := serverTestDrifts[name]
	if !ok {
		drift = 0.010
	}
	// Per-asset oscillation keeps the covariance matrix non-degenerate.
	h := 0
	for _, c := range name {
		h = h*31 + int(c)
	}
	freq := 0.3 + 0.15*float64(((h%11)+11)%11)
	series := make([]domain.PricePoint, periodMonths+1)
	base := time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range series {
		level := 100 * math.Pow(1+drift, float64(i)) * (1 + 0.02*math.Sin(freq*float64(i)+drift*100))
		series[i] = domain.PricePoint{
			Date:  base.AddDate(0, i, 0).Format("2006-01-02"),
			Close: level,
		}
	}
	return series
}

type stubMarket struct{}

func (stubMarket) HistoricalPrices(_ context.Context, asset string, periodMonths int, _ domain.Frequency) ([]domain.PricePoint, error) {
	if asset == "NSE:BROKE" {
		return nil, &domain.DataFetchError{Asset: asset, Err: fmt.Errorf("upstream unavailable")}
	}
	return serverTestSeries(asset, periodMonths), nil
}

type stubIndex struct{}

func (stubIndex) HistoricalIndex(_ context.Context, indexName string, periodMonths int, _ domain.Frequency) ([]domain.PricePoint, error) {
	return serverTestSeries(indexName, periodMonths), nil
}

type stubRates struct{}

func (stubRates) TBillRate(_ context.Context, _ int) (float64, error) { return 0.10, nil }
func (stubRates) CentralBankRate(_ context.Context) (float64, error)  { return 0.125, nil }

type stubCaps struct{}

func (stubCaps) MarketCap(_ context.Context, _ string) (float64, bool, error) {
	return 0, false, nil
}

type stubProfiles struct{}

func (stubProfiles) RiskProfile(_ context.Context, userID string) (*domain.UserPreferences, error) {
	return nil, fmt.Errorf("no stored profile for %q", userID)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := zerolog.Nop()
	cfg := &config.Config{
		Port:            0,
		MarketIndex:     "NSE20",
		TBillTenorDays:  91,
		MaxAllocation:   0.25,
		MinTargetReturn: 0.08,
		MonteCarloDraws: 500,
	}

	historyDB, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileStandard, Name: "history-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = historyDB.Close() })

	cacheDB, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileCache, Name: "cache-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheDB.Close() })

	riskBuilder := estimation.NewRiskModelBuilder(log)
	estimator := estimation.NewReturnsEstimator(stubRates{}, stubCaps{}, riskBuilder, cfg.TBillTenorDays, log)
	outlook := reporting.NewOutlookService(stubIndex{}, stubRates{}, nil, cfg.MarketIndex, log)
	require.NoError(t, outlook.Refresh(context.Background()))

	svc := advisor.New(
		cfg,
		stubMarket{},
		stubIndex{},
		preferences.NewAdapter(stubProfiles{}, log),
		riskBuilder,
		estimator,
		optimization.NewMVOptimizer(log),
		scenarios.NewEngine(nil, 0, log),
		rebalancing.NewService(log),
		reporting.NewReporter(outlook, scenarios.NewPrefixClassifier(scenarios.DefaultPrefixRules()), log),
		log,
	)

	srv := New(Config{
		Log:       log,
		Config:    cfg,
		Advisor:   svc,
		Outlook:   outlook,
		HistoryDB: historyDB,
		CacheDB:   cacheDB,
	})

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeData(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Empty(t, envelope.Error)
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestOptimizeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/portfolio/optimize", map[string]interface{}{
		"assets":         []string{"NSE:SCOM", "NSE:EQTY", "KEGB:10Y", "MMF:CIC"},
		"max_allocation": 0.5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result domain.OptimizationResult
	decodeData(t, resp, &result)

	var sum float64
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Equal(t, "mean_historical", result.Method)
	assert.Greater(t, result.Volatility, 0.0)
}

func TestOptimizeEndpoint_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/portfolio/optimize", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOptimizeEndpoint_UnknownMethod(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/portfolio/optimize", map[string]interface{}{
		"assets": []string{"NSE:SCOM", "NSE:EQTY", "KEGB:10Y", "MMF:CIC"},
		"method": "astrology",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestOptimizeEndpoint_UpstreamFailure(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/portfolio/optimize", map[string]interface{}{
		"assets": []string{"NSE:SCOM", "NSE:BROKE"},
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestFrontierEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/portfolio/frontier", map[string]interface{}{
		"assets":         []string{"NSE:SCOM", "NSE:EQTY", "KEGB:10Y", "MMF:CIC"},
		"max_allocation": 0.5,
		"points":         8,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var frontier optimization.Frontier
	decodeData(t, resp, &frontier)
	assert.NotEmpty(t, frontier.Returns)
	assert.Len(t, frontier.Risks, len(frontier.Returns))
}

func TestStressTestEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/portfolio/stress-test", map[string]interface{}{
		"weights": map[string]float64{"NSE:SCOM": 1.0},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var impacts []domain.ScenarioImpact
	decodeData(t, resp, &impacts)
	require.Len(t, impacts, len(scenarios.DefaultScenarios()))
	assert.Equal(t, "market_crash", impacts[0].Scenario)
}

func TestStressTestEndpoint_MissingWeights(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/portfolio/stress-test", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRebalanceEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/portfolio/rebalance", map[string]interface{}{
		"current_weights": map[string]float64{"NSE:SCOM": 0.6, "KEGB:10Y": 0.4},
		"target_weights":  map[string]float64{"NSE:SCOM": 0.4, "KEGB:10Y": 0.6},
		"threshold":       0.05,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plan domain.RebalancingPlan
	decodeData(t, resp, &plan)
	require.Len(t, plan.Actions, 2)
	assert.InDelta(t, 0.2, plan.MaxDrift, 1e-10)
}

func TestRebalanceEndpoint_MissingTarget(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/portfolio/rebalance", map[string]interface{}{
		"current_weights": map[string]float64{"NSE:SCOM": 1.0},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvestmentReportEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/reports/investment", map[string]interface{}{
		"user_id":        "user-3",
		"assets":         []string{"NSE:SCOM", "NSE:EQTY", "KEGB:10Y", "MMF:CIC"},
		"max_allocation": 0.5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report reporting.InvestmentReport
	decodeData(t, resp, &report)
	assert.Equal(t, "user-3", report.UserID)
	assert.NotEmpty(t, report.ID)
	assert.NotNil(t, report.Portfolio)
	assert.NotEmpty(t, report.Recommendations)
}

func TestMarketOutlookEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/market/outlook")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var outlook reporting.MarketOutlook
	decodeData(t, resp, &outlook)
	assert.Equal(t, reporting.TrendPositive, outlook.EquityTrend)
	assert.False(t, outlook.RefreshedAt.IsZero())
}

func TestSystemHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/system/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}
