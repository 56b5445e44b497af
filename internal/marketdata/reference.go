package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pesaguru/engine/internal/database"
	"github.com/pesaguru/engine/internal/domain"
)

// ReferenceStore serves the slow-moving reference data the estimators and the
// outlook need: T-bill and central bank rates, market capitalizations, FX
// rates and user risk profiles. Rows are loaded by an external ingest process;
// the engine only reads.
type ReferenceStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewReferenceStore creates a reference store on the history database.
func NewReferenceStore(db *database.DB, log zerolog.Logger) *ReferenceStore {
	return &ReferenceStore{
		db:  db,
		log: log.With().Str("component", "reference_store").Logger(),
	}
}

// InitSchema creates the reference tables if missing.
func (r *ReferenceStore) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reference_rates (
		name TEXT NOT NULL,
		tenor_days INTEGER NOT NULL DEFAULT 0,
		rate REAL NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (name, tenor_days)
	);
	CREATE TABLE IF NOT EXISTS market_caps (
		asset TEXT PRIMARY KEY,
		market_cap REAL NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	);
	CREATE TABLE IF NOT EXISTS fx_rates (
		base TEXT NOT NULL,
		quote TEXT NOT NULL,
		rate REAL NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (base, quote)
	);
	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		risk_tolerance TEXT NOT NULL,
		horizon_years INTEGER NOT NULL DEFAULT 5,
		max_allocation REAL NOT NULL DEFAULT 0.25,
		preferred_sectors TEXT NOT NULL DEFAULT '',
		excluded_sectors TEXT NOT NULL DEFAULT '',
		preferred_classes TEXT NOT NULL DEFAULT ''
	);`

	if _, err := r.db.Conn().Exec(schema); err != nil {
		return fmt.Errorf("failed to create reference schema: %w", err)
	}
	return nil
}

// TBillRate returns the Treasury bill rate for a tenor as a decimal fraction.
func (r *ReferenceStore) TBillRate(ctx context.Context, tenorDays int) (float64, error) {
	var rate float64
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT rate FROM reference_rates WHERE name = 'tbill' AND tenor_days = ?`, tenorDays,
	).Scan(&rate)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no T-bill rate stored for tenor %d days", tenorDays)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query T-bill rate: %w", err)
	}
	return rate, nil
}

// CentralBankRate returns the central bank policy rate as a decimal fraction.
func (r *ReferenceStore) CentralBankRate(ctx context.Context) (float64, error) {
	var rate float64
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT rate FROM reference_rates WHERE name = 'cbr' AND tenor_days = 0`,
	).Scan(&rate)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no central bank rate stored")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query central bank rate: %w", err)
	}
	return rate, nil
}

// MarketCap returns an asset's market capitalization. ok is false when no cap
// is stored, which the estimator treats as a neutral-weight asset.
func (r *ReferenceStore) MarketCap(ctx context.Context, asset string) (float64, bool, error) {
	var capValue float64
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT market_cap FROM market_caps WHERE asset = ?`, asset,
	).Scan(&capValue)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query market cap for %s: %w", asset, err)
	}
	return capValue, true, nil
}

// ExchangeRate returns the stored spot rate for a currency pair.
func (r *ReferenceStore) ExchangeRate(ctx context.Context, base, quote string) (float64, error) {
	var rate float64
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT rate FROM fx_rates WHERE base = ? AND quote = ?`, base, quote,
	).Scan(&rate)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no exchange rate stored for %s/%s", base, quote)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query exchange rate: %w", err)
	}
	return rate, nil
}

// RiskProfile loads a user's stored preferences. Unknown users get an error;
// the preference adapter falls back to the default profile.
func (r *ReferenceStore) RiskProfile(ctx context.Context, userID string) (*domain.UserPreferences, error) {
	var (
		tolerance        string
		horizonYears     int
		maxAllocation    float64
		preferredSectors string
		excludedSectors  string
		preferredClasses string
	)
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT risk_tolerance, horizon_years, max_allocation,
		        preferred_sectors, excluded_sectors, preferred_classes
		 FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&tolerance, &horizonYears, &maxAllocation, &preferredSectors, &excludedSectors, &preferredClasses)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no profile stored for user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile for %s: %w", userID, err)
	}

	prefs := &domain.UserPreferences{
		RiskTolerance:         domain.RiskTolerance(tolerance),
		InvestmentHorizonYrs:  horizonYears,
		MaxAllocationPerAsset: maxAllocation,
		PreferredSectors:      splitList(preferredSectors),
		ExcludedSectors:       splitList(excludedSectors),
	}
	for _, class := range splitList(preferredClasses) {
		prefs.PreferredAssetClasses = append(prefs.PreferredAssetClasses, domain.AssetClass(class))
	}
	return prefs, nil
}

// SaveProfile upserts a user profile. Used by ingest tooling and tests.
func (r *ReferenceStore) SaveProfile(userID string, prefs *domain.UserPreferences) error {
	classes := make([]string, len(prefs.PreferredAssetClasses))
	for i, class := range prefs.PreferredAssetClasses {
		classes[i] = string(class)
	}

	_, err := r.db.Conn().Exec(
		`INSERT INTO user_profiles
		 (user_id, risk_tolerance, horizon_years, max_allocation, preferred_sectors, excluded_sectors, preferred_classes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   risk_tolerance = excluded.risk_tolerance,
		   horizon_years = excluded.horizon_years,
		   max_allocation = excluded.max_allocation,
		   preferred_sectors = excluded.preferred_sectors,
		   excluded_sectors = excluded.excluded_sectors,
		   preferred_classes = excluded.preferred_classes`,
		userID, string(prefs.RiskTolerance), prefs.InvestmentHorizonYrs, prefs.MaxAllocationPerAsset,
		strings.Join(prefs.PreferredSectors, ","), strings.Join(prefs.ExcludedSectors, ","), strings.Join(classes, ","),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile for %s: %w", userID, err)
	}
	return nil
}

// SaveRate upserts a reference rate. Tenor 0 is used for non-tenored rates.
func (r *ReferenceStore) SaveRate(name string, tenorDays int, rate float64) error {
	_, err := r.db.Conn().Exec(
		`INSERT INTO reference_rates (name, tenor_days, rate, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(name, tenor_days) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at`,
		name, tenorDays, rate,
	)
	if err != nil {
		return fmt.Errorf("failed to save rate %s/%d: %w", name, tenorDays, err)
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
