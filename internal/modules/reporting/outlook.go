// Package reporting assembles optimizer output, stress-test results and
// market context into structured investment reports.
package reporting

import (
	"context"
	"sync"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/pesaguru/engine/internal/domain"
)

// Trend labels for the equity-market outlook.
const (
	TrendPositive = "positive"
	TrendNeutral  = "neutral"
	TrendNegative = "negative"
)

const (
	outlookLookbackMonths = 24
	outlookSMAPeriod      = 6 // months
	outlookMomPeriod      = 3 // months
)

// MarketOutlook is a point-in-time snapshot of market context. It feeds the
// sector recommendations and report commentary; nothing numerical downstream
// recomputes from it.
type MarketOutlook struct {
	EquityTrend     string    `json:"equity_trend"`
	IndexLevel      float64   `json:"index_level"`
	IndexSMA        float64   `json:"index_sma"`
	IndexMomentum   float64   `json:"index_momentum"`
	CentralBankRate float64   `json:"central_bank_rate"`
	TBillRate91D    float64   `json:"tbill_rate_91d"`
	USDKES          float64   `json:"usd_kes"`
	RefreshedAt     time.Time `json:"refreshed_at"`
}

// OutlookService maintains the current market outlook. Refresh runs at
// startup and then from the scheduled job; readers get the latest snapshot.
type OutlookService struct {
	index     domain.IndexProvider
	rates     domain.RateProvider
	fx        domain.ExchangeRateProvider
	indexName string

	mu      sync.RWMutex
	current MarketOutlook

	log zerolog.Logger
}

// NewOutlookService creates an outlook service. fx is optional.
func NewOutlookService(
	index domain.IndexProvider,
	rates domain.RateProvider,
	fx domain.ExchangeRateProvider,
	indexName string,
	log zerolog.Logger,
) *OutlookService {
	return &OutlookService{
		index:     index,
		rates:     rates,
		fx:        fx,
		indexName: indexName,
		current:   MarketOutlook{EquityTrend: TrendNeutral},
		log:       log.With().Str("component", "market_outlook").Logger(),
	}
}

// Current returns the latest snapshot.
func (o *OutlookService) Current() MarketOutlook {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Refresh rebuilds the snapshot from the index and rate providers. The equity
// trend compares the latest index level against its moving average and
// momentum: above the average with positive momentum is positive, below with
// negative momentum is negative, anything else neutral.
func (o *OutlookService) Refresh(ctx context.Context) error {
	series, err := o.index.HistoricalIndex(ctx, o.indexName, outlookLookbackMonths, domain.FrequencyMonthly)
	if err != nil {
		return err
	}

	closes := make([]float64, len(series))
	for i, pt := range series {
		closes[i] = pt.Close
	}

	outlook := MarketOutlook{
		EquityTrend: TrendNeutral,
		RefreshedAt: time.Now().UTC(),
	}

	if len(closes) > outlookSMAPeriod {
		sma := talib.Sma(closes, outlookSMAPeriod)
		mom := talib.Mom(closes, outlookMomPeriod)

		outlook.IndexLevel = closes[len(closes)-1]
		outlook.IndexSMA = sma[len(sma)-1]
		outlook.IndexMomentum = mom[len(mom)-1]

		switch {
		case outlook.IndexLevel > outlook.IndexSMA && outlook.IndexMomentum > 0:
			outlook.EquityTrend = TrendPositive
		case outlook.IndexLevel < outlook.IndexSMA && outlook.IndexMomentum < 0:
			outlook.EquityTrend = TrendNegative
		}
	}

	if o.rates != nil {
		if cbr, err := o.rates.CentralBankRate(ctx); err == nil {
			outlook.CentralBankRate = cbr
		} else {
			o.log.Warn().Err(err).Msg("Failed to fetch central bank rate for outlook")
		}
		if tbill, err := o.rates.TBillRate(ctx, 91); err == nil {
			outlook.TBillRate91D = tbill
		} else {
			o.log.Warn().Err(err).Msg("Failed to fetch T-bill rate for outlook")
		}
	}

	if o.fx != nil {
		if rate, err := o.fx.ExchangeRate(ctx, "USD", "KES"); err == nil {
			outlook.USDKES = rate
		} else {
			o.log.Warn().Err(err).Msg("Failed to fetch USD/KES rate for outlook")
		}
	}

	o.mu.Lock()
	o.current = outlook
	o.mu.Unlock()

	o.log.Info().
		Str("equity_trend", outlook.EquityTrend).
		Float64("index_level", outlook.IndexLevel).
		Msg("Refreshed market outlook")

	return nil
}
