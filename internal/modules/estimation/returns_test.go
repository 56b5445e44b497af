package estimation

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesaguru/engine/internal/domain"
)

type fakeRates struct {
	tbill float64
	cbr   float64
}

func (f *fakeRates) TBillRate(_ context.Context, _ int) (float64, error) { return f.tbill, nil }
func (f *fakeRates) CentralBankRate(_ context.Context) (float64, error)  { return f.cbr, nil }

type fakeCaps struct {
	caps map[string]float64
}

func (f *fakeCaps) MarketCap(_ context.Context, asset string) (float64, bool, error) {
	c, ok := f.caps[asset]
	return c, ok, nil
}

func newTestEstimator(rates *fakeRates, caps *fakeCaps) *ReturnsEstimator {
	return NewReturnsEstimator(rates, caps, NewRiskModelBuilder(zerolog.Nop()), 91, zerolog.Nop())
}

func TestParseMethod(t *testing.T) {
	for _, name := range []string{"mean_historical", "capm", "black_litterman"} {
		method, err := ParseMethod(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(method))
	}

	_, err := ParseMethod("arima")
	var estErr *domain.EstimationError
	require.ErrorAs(t, err, &estErr)
}

func TestCalculateExpectedReturns_MeanHistorical(t *testing.T) {
	est := newTestEstimator(&fakeRates{}, &fakeCaps{})

	panel := panelFor(map[string][]float64{
		"A": {0.01, 0.02, 0.03},
		"B": {-0.01, 0.00, 0.01},
	})

	expected, err := est.CalculateExpectedReturns(context.Background(), panel, MethodMeanHistorical, nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.02*12, expected["A"], 1e-10)
	assert.InDelta(t, 0.00*12, expected["B"], 1e-10)
}

func TestCalculateExpectedReturns_CAPMBetaOne(t *testing.T) {
	est := newTestEstimator(&fakeRates{tbill: 0.10}, &fakeCaps{})

	// Asset A tracks the index exactly: beta = 1, so its CAPM expected return
	// equals the annualized market return regardless of the risk-free rate.
	indexReturns := []float64{0.02, -0.01, 0.03, 0.01}
	panel := panelFor(map[string][]float64{
		"A": {0.02, -0.01, 0.03, 0.01},
		"B": {0.01, 0.02, -0.01, 0.02},
	})

	expected, err := est.CalculateExpectedReturns(context.Background(), panel, MethodCAPM, indexReturns)
	require.NoError(t, err)

	marketReturn := (0.02 - 0.01 + 0.03 + 0.01) / 4 * 12
	assert.InDelta(t, marketReturn, expected["A"], 1e-10)
}

func TestCalculateExpectedReturns_CAPMWindowMismatch(t *testing.T) {
	est := newTestEstimator(&fakeRates{tbill: 0.10}, &fakeCaps{})

	panel := panelFor(map[string][]float64{
		"A": {0.02, -0.01, 0.03, 0.01},
		"B": {0.01, 0.02, -0.01, 0.02},
	})

	_, err := est.CalculateExpectedReturns(context.Background(), panel, MethodCAPM, []float64{0.02, -0.01})

	var estErr *domain.EstimationError
	require.ErrorAs(t, err, &estErr)
}

func TestCalculateExpectedReturns_CAPMFlatIndex(t *testing.T) {
	est := newTestEstimator(&fakeRates{tbill: 0.10}, &fakeCaps{})

	panel := panelFor(map[string][]float64{
		"A": {0.02, -0.01, 0.03, 0.01},
		"B": {0.01, 0.02, -0.01, 0.02},
	})

	_, err := est.CalculateExpectedReturns(context.Background(), panel, MethodCAPM, []float64{0.01, 0.01, 0.01, 0.01})

	var estErr *domain.EstimationError
	require.ErrorAs(t, err, &estErr, "zero index variance must be rejected, not divided through")
}

func TestCalculateExpectedReturns_BlackLitterman(t *testing.T) {
	est := newTestEstimator(&fakeRates{}, &fakeCaps{caps: map[string]float64{
		"A": 2e12,
		"B": 1e12,
	}})

	panel := panelFor(map[string][]float64{
		"A": {0.02, -0.01, 0.03, 0.01, -0.02, 0.04},
		"B": {-0.01, 0.02, -0.02, 0.03, 0.01, -0.01},
	})

	expected, err := est.CalculateExpectedReturns(context.Background(), panel, MethodBlackLitterman, nil)
	require.NoError(t, err)
	require.Len(t, expected, 2)

	// Equilibrium implied returns are lambda * Sigma * w; with positive
	// variances and positive cap weights the dominant diagonal term keeps
	// each implied return finite and the map fully populated.
	for asset, mu := range expected {
		assert.False(t, math.IsNaN(mu), "implied return for %s must not be NaN", asset)
	}
}

func TestCalculateExpectedReturns_BlackLittermanNeutralFallback(t *testing.T) {
	// No cap data at all: every asset gets neutral weight, so the implied
	// returns match an equal-weight equilibrium.
	returns := map[string][]float64{
		"A": {0.02, -0.01, 0.03, 0.01, -0.02, 0.04},
		"B": {-0.01, 0.02, -0.02, 0.03, 0.01, -0.01},
	}

	noCaps := newTestEstimator(&fakeRates{}, &fakeCaps{})
	equalCaps := newTestEstimator(&fakeRates{}, &fakeCaps{caps: map[string]float64{"A": 5e11, "B": 5e11}})

	fromNeutral, err := noCaps.CalculateExpectedReturns(context.Background(), panelFor(returns), MethodBlackLitterman, nil)
	require.NoError(t, err)
	fromEqual, err := equalCaps.CalculateExpectedReturns(context.Background(), panelFor(returns), MethodBlackLitterman, nil)
	require.NoError(t, err)

	assert.InDelta(t, fromEqual["A"], fromNeutral["A"], 1e-10)
	assert.InDelta(t, fromEqual["B"], fromNeutral["B"], 1e-10)
}
