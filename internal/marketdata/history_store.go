package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesaguru/engine/internal/database"
	"github.com/pesaguru/engine/internal/domain"
)

// HistoryStore is the sqlite-backed price history adapter. It implements
// domain.MarketDataProvider and domain.IndexProvider over a local daily_prices
// table populated by the upstream data-collection service.
type HistoryStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewHistoryStore creates a history store over the given database.
func NewHistoryStore(db *database.DB, log zerolog.Logger) *HistoryStore {
	return &HistoryStore{
		db:  db,
		log: log.With().Str("component", "history_store").Logger(),
	}
}

// InitSchema creates the daily_prices table if missing.
func (h *HistoryStore) InitSchema() error {
	_, err := h.db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS daily_prices (
			asset TEXT NOT NULL,
			date  TEXT NOT NULL,
			close REAL NOT NULL,
			PRIMARY KEY (asset, date)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create daily_prices table: %w", err)
	}
	return nil
}

// SavePrices upserts a price series for an asset.
func (h *HistoryStore) SavePrices(asset string, series []domain.PricePoint) error {
	tx, err := h.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (asset, date, close) VALUES (?, ?, ?)
		ON CONFLICT(asset, date) DO UPDATE SET close = excluded.close
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare price upsert: %w", err)
	}
	defer stmt.Close()

	for _, pt := range series {
		if _, err := stmt.Exec(asset, pt.Date, pt.Close); err != nil {
			return fmt.Errorf("failed to upsert price for %s @ %s: %w", asset, pt.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prices: %w", err)
	}

	h.log.Debug().
		Str("asset", asset).
		Int("points", len(series)).
		Msg("Saved price series")
	return nil
}

// HistoricalPrices returns the stored series for an asset within the lookback
// window, downsampled to the requested frequency. An asset with no stored
// prices yields a *domain.DataFetchError.
func (h *HistoryStore) HistoricalPrices(ctx context.Context, asset string, periodMonths int, freq domain.Frequency) ([]domain.PricePoint, error) {
	if periodMonths <= 0 {
		periodMonths = 12
	}
	cutoff := time.Now().UTC().AddDate(0, -periodMonths, 0).Format("2006-01-02")

	rows, err := h.db.Conn().QueryContext(ctx, `
		SELECT date, close FROM daily_prices
		WHERE asset = ? AND date >= ?
		ORDER BY date ASC
	`, asset, cutoff)
	if err != nil {
		return nil, &domain.DataFetchError{Asset: asset, Err: err}
	}
	defer rows.Close()

	var series []domain.PricePoint
	for rows.Next() {
		var pt domain.PricePoint
		if err := rows.Scan(&pt.Date, &pt.Close); err != nil {
			return nil, &domain.DataFetchError{Asset: asset, Err: err}
		}
		series = append(series, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.DataFetchError{Asset: asset, Err: err}
	}

	if len(series) == 0 {
		return nil, &domain.DataFetchError{Asset: asset, Err: sql.ErrNoRows}
	}

	return downsample(series, freq), nil
}

// HistoricalIndex returns an index series; indices are stored in daily_prices
// under their index name.
func (h *HistoryStore) HistoricalIndex(ctx context.Context, indexName string, periodMonths int, freq domain.Frequency) ([]domain.PricePoint, error) {
	return h.HistoricalPrices(ctx, indexName, periodMonths, freq)
}

// downsample keeps the last observation per calendar bucket for the target
// frequency. Daily passes through unchanged.
func downsample(series []domain.PricePoint, freq domain.Frequency) []domain.PricePoint {
	var keyLen int
	switch freq {
	case domain.FrequencyMonthly:
		keyLen = 7 // "2006-01"
	case domain.FrequencyWeekly:
		return downsampleWeekly(series)
	default:
		return series
	}

	out := make([]domain.PricePoint, 0, len(series))
	for _, pt := range series {
		if len(pt.Date) < keyLen {
			continue
		}
		key := pt.Date[:keyLen]
		if len(out) > 0 && out[len(out)-1].Date[:keyLen] == key {
			out[len(out)-1] = pt // later observation in the same bucket wins
		} else {
			out = append(out, pt)
		}
	}
	return out
}

func downsampleWeekly(series []domain.PricePoint) []domain.PricePoint {
	out := make([]domain.PricePoint, 0, len(series))
	lastKey := ""
	for _, pt := range series {
		t, err := time.Parse("2006-01-02", pt.Date)
		if err != nil {
			continue
		}
		year, week := t.ISOWeek()
		key := fmt.Sprintf("%d-%02d", year, week)
		if len(out) > 0 && lastKey == key {
			out[len(out)-1] = pt
		} else {
			out = append(out, pt)
			lastKey = key
		}
	}
	return out
}
