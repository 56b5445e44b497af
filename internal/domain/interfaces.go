package domain

import "context"

// Frequency of a price series. Annualization factors derive from it.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// PeriodsPerYear returns the annualization factor for a frequency.
func (f Frequency) PeriodsPerYear() float64 {
	switch f {
	case FrequencyDaily:
		return 252
	case FrequencyWeekly:
		return 52
	default:
		return 12
	}
}

// MarketDataProvider supplies historical price series per asset identifier.
// Implementations wrap the per-asset-class upstream APIs (NSE stocks, CBK bond
// yields, crypto, global ETFs) or a local history store. Failures surface as
// *DataFetchError; the engine never retries.
type MarketDataProvider interface {
	HistoricalPrices(ctx context.Context, asset string, periodMonths int, freq Frequency) ([]PricePoint, error)
}

// IndexProvider supplies a market index series for CAPM beta estimation.
type IndexProvider interface {
	HistoricalIndex(ctx context.Context, indexName string, periodMonths int, freq Frequency) ([]PricePoint, error)
}

// RateProvider supplies risk-free and context rates.
type RateProvider interface {
	TBillRate(ctx context.Context, tenorDays int) (float64, error)
	CentralBankRate(ctx context.Context) (float64, error)
}

// MarketCapProvider supplies market capitalizations for the simplified
// Black-Litterman equilibrium weights. A missing cap is reported via ok=false
// and handled by the estimator as a documented neutral-weight approximation.
type MarketCapProvider interface {
	MarketCap(ctx context.Context, asset string) (cap float64, ok bool, err error)
}

// ProfileProvider supplies user preferences. A nil user ID means the caller
// wants the default profile.
type ProfileProvider interface {
	RiskProfile(ctx context.Context, userID string) (*UserPreferences, error)
}

// ExchangeRateProvider supplies spot FX rates, used only for report context.
type ExchangeRateProvider interface {
	ExchangeRate(ctx context.Context, base, quote string) (float64, error)
}
