package marketdata

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetentionMonths is how much daily price history the engine keeps.
// Every estimation window is at most five years, so older rows only cost
// lookup time.
const DefaultRetentionMonths = 72

// RetentionJob prunes daily_prices rows that have aged out of every usable
// estimation window. It runs from the maintenance schedule alongside the
// calc-cache sweep.
type RetentionJob struct {
	store           *HistoryStore
	retentionMonths int
	log             zerolog.Logger
}

// NewRetentionJob creates a retention job. retentionMonths <= 0 uses the
// default.
func NewRetentionJob(store *HistoryStore, retentionMonths int, log zerolog.Logger) *RetentionJob {
	if retentionMonths <= 0 {
		retentionMonths = DefaultRetentionMonths
	}
	return &RetentionJob{
		store:           store,
		retentionMonths: retentionMonths,
		log:             log.With().Str("job", "history_retention").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *RetentionJob) Name() string {
	return "history_retention"
}

// Run deletes price rows older than the retention cutoff.
func (j *RetentionJob) Run() {
	pruned, err := j.store.PrunePricesBefore(time.Now().UTC().AddDate(0, -j.retentionMonths, 0))
	if err != nil {
		j.log.Error().Err(err).Msg("History retention run failed")
		return
	}
	if pruned > 0 {
		j.log.Info().Int64("rows_pruned", pruned).Msg("Pruned aged-out price history")
	}
}

// PrunePricesBefore removes all daily_prices rows dated strictly before the
// cutoff and returns the number of rows removed.
func (h *HistoryStore) PrunePricesBefore(cutoff time.Time) (int64, error) {
	result, err := h.db.Conn().Exec(
		`DELETE FROM daily_prices WHERE date < ?`,
		cutoff.Format("2006-01-02"),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune daily_prices: %w", err)
	}
	return result.RowsAffected()
}
