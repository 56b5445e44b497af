package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/pesaguru/engine/internal/database"
)

// SystemHandlers serves system health and resource metrics.
type SystemHandlers struct {
	log       zerolog.Logger
	historyDB *database.DB
	cacheDB   *database.DB
	startedAt time.Time
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(log zerolog.Logger, historyDB, cacheDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		historyDB: historyDB,
		cacheDB:   cacheDB,
		startedAt: time.Now(),
	}
}

// HandleSystemHealth handles GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPercent := h.resourceUsage()

	databases := map[string]string{}
	for _, db := range []*database.DB{h.historyDB, h.cacheDB} {
		if db == nil {
			continue
		}
		status := "ok"
		if err := db.Conn().PingContext(r.Context()); err != nil {
			status = "error: " + err.Error()
		}
		databases[db.Name()] = status
	}

	healthy := true
	for _, status := range databases {
		if status != "ok" {
			healthy = false
		}
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"healthy":        healthy,
			"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
			"cpu_percent":    cpuAvg,
			"ram_percent":    ramPercent,
			"goroutines":     runtime.NumGoroutine(),
			"databases":      databases,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// resourceUsage samples CPU and RAM. Failures degrade to zeros rather than
// failing the health endpoint.
func (h *SystemHandlers) resourceUsage() (cpuAvg, ramPercent float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuAvg, 0
	}

	return cpuAvg, memStat.UsedPercent
}
