package estimation

import (
	"context"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/pesaguru/engine/internal/domain"
	"github.com/pesaguru/engine/internal/marketdata"
	"github.com/pesaguru/engine/pkg/formulas"
)

// ReturnsEstimator calculates annualized expected returns for a panel using a
// single estimation method per run.
type ReturnsEstimator struct {
	rates          domain.RateProvider
	caps           domain.MarketCapProvider
	riskBuilder    *RiskModelBuilder
	tbillTenorDays int
	log            zerolog.Logger
}

// NewReturnsEstimator creates a new returns estimator. rates is required for
// CAPM; caps is required for Black-Litterman.
func NewReturnsEstimator(
	rates domain.RateProvider,
	caps domain.MarketCapProvider,
	riskBuilder *RiskModelBuilder,
	tbillTenorDays int,
	log zerolog.Logger,
) *ReturnsEstimator {
	return &ReturnsEstimator{
		rates:          rates,
		caps:           caps,
		riskBuilder:    riskBuilder,
		tbillTenorDays: tbillTenorDays,
		log:            log.With().Str("component", "returns").Logger(),
	}
}

// CalculateExpectedReturns computes one annualized expected return per asset.
// indexReturns must cover the panel's exact window when method is CAPM; it is
// ignored otherwise. Methods are never mixed within a run.
func (re *ReturnsEstimator) CalculateExpectedReturns(
	ctx context.Context,
	panel *marketdata.ReturnsPanel,
	method Method,
	indexReturns []float64,
) (map[string]float64, error) {
	if err := re.validatePanel(panel); err != nil {
		return nil, err
	}

	var (
		expected map[string]float64
		err      error
	)
	switch method {
	case MethodMeanHistorical:
		expected = re.meanHistorical(panel)
	case MethodCAPM:
		expected, err = re.capm(ctx, panel, indexReturns)
	case MethodBlackLitterman:
		expected, err = re.blackLitterman(ctx, panel)
	default:
		return nil, &domain.EstimationError{Reason: "unrecognized estimation method: " + string(method)}
	}
	if err != nil {
		return nil, err
	}

	re.log.Info().
		Str("method", string(method)).
		Int("num_assets", len(expected)).
		Msg("Calculated expected returns")

	return expected, nil
}

func (re *ReturnsEstimator) validatePanel(panel *marketdata.ReturnsPanel) error {
	if panel == nil || panel.NumPeriods() < 2 {
		return &domain.EstimationError{Reason: "fewer than 2 periods of overlapping data"}
	}
	for _, asset := range panel.Assets {
		if len(panel.Returns[asset]) < 2 {
			return &domain.EstimationError{Asset: asset, Reason: "fewer than 2 periods of overlapping data"}
		}
	}
	return nil
}

// meanHistorical annualizes the arithmetic mean of periodic returns. Assumes
// nothing beyond stationarity of the sample window.
func (re *ReturnsEstimator) meanHistorical(panel *marketdata.ReturnsPanel) map[string]float64 {
	periodsPerYear := panel.PeriodsPerYear()
	expected := make(map[string]float64, len(panel.Assets))
	for _, asset := range panel.Assets {
		expected[asset] = formulas.AnnualizedMeanReturn(panel.Returns[asset], periodsPerYear)
	}
	return expected
}

// capm computes risk_free + beta * (market_return - risk_free) per asset, with
// beta and the market premium estimated on the identical return window.
func (re *ReturnsEstimator) capm(
	ctx context.Context,
	panel *marketdata.ReturnsPanel,
	indexReturns []float64,
) (map[string]float64, error) {
	if re.rates == nil {
		return nil, &domain.EstimationError{Reason: "capm requires a rate provider"}
	}
	if len(indexReturns) != panel.NumPeriods() {
		return nil, &domain.EstimationError{Reason: "index returns do not match the panel window"}
	}

	riskFree, err := re.rates.TBillRate(ctx, re.tbillTenorDays)
	if err != nil {
		return nil, &domain.DataFetchError{Asset: "tbill_rate", Err: err}
	}

	indexVariance := stat.Variance(indexReturns, nil)
	if indexVariance <= 0 {
		return nil, &domain.EstimationError{Reason: "market index variance is zero over the sample window"}
	}

	marketReturn := formulas.AnnualizedMeanReturn(indexReturns, panel.PeriodsPerYear())
	premium := marketReturn - riskFree

	expected := make(map[string]float64, len(panel.Assets))
	for _, asset := range panel.Assets {
		beta := stat.Covariance(panel.Returns[asset], indexReturns, nil) / indexVariance
		expected[asset] = riskFree + beta*premium

		re.log.Debug().
			Str("asset", asset).
			Float64("beta", beta).
			Float64("expected_return", expected[asset]).
			Msg("CAPM expected return")
	}
	return expected, nil
}

// blackLitterman computes market-cap-weighted equilibrium implied returns:
// risk_aversion * Sigma * w_market. This is the equilibrium-only variant —
// no investor views. Assets lacking cap data get neutral weight 1.0 before
// normalization, a documented approximation rather than full Black-Litterman.
func (re *ReturnsEstimator) blackLitterman(
	ctx context.Context,
	panel *marketdata.ReturnsPanel,
) (map[string]float64, error) {
	if re.riskBuilder == nil {
		return nil, &domain.EstimationError{Reason: "black_litterman requires a risk model builder"}
	}

	metrics, err := re.riskBuilder.CalculateRiskMetrics(panel)
	if err != nil {
		return nil, err
	}

	// Market-cap weights with the neutral-weight fallback.
	caps := make([]float64, len(panel.Assets))
	total := 0.0
	for i, asset := range panel.Assets {
		weight := 1.0
		if re.caps != nil {
			capValue, ok, err := re.caps.MarketCap(ctx, asset)
			if err != nil {
				return nil, &domain.DataFetchError{Asset: asset, Err: err}
			}
			if ok && capValue > 0 {
				weight = capValue
			} else {
				re.log.Debug().
					Str("asset", asset).
					Msg("No market cap data, using neutral weight")
			}
		}
		caps[i] = weight
		total += weight
	}
	for i := range caps {
		caps[i] /= total
	}

	// Implied equilibrium returns: lambda * Sigma * w_market.
	expected := make(map[string]float64, len(panel.Assets))
	for i, asset := range panel.Assets {
		implied := 0.0
		for j := range panel.Assets {
			implied += metrics.Covariance[i][j] * caps[j]
		}
		expected[asset] = BlackLittermanRiskAversion * implied
	}
	return expected, nil
}
