package scenarios

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesaguru/engine/internal/domain"
)

func TestStressTest_MarketCrashAllEquity(t *testing.T) {
	engine := NewEngine(nil, 100_000, zerolog.Nop())

	// A 100% NSE equity portfolio in a -30% equity crash loses 30,000.
	weights := map[string]float64{"NSE:SCOM": 0.6, "NSE:EQTY": 0.4}

	impacts := engine.StressTest(weights, []domain.StressScenario{DefaultScenarios()[0]})
	require.Len(t, impacts, 1)

	crash := impacts[0]
	assert.Equal(t, "market_crash", crash.Scenario)
	assert.InDelta(t, -0.30, crash.ImpactPercent, 1e-10)
	assert.InDelta(t, 100_000.0, crash.BaseValue, 1e-10)
	assert.InDelta(t, 70_000.0, crash.NewValue, 1e-6)
	assert.InDelta(t, -30_000.0, crash.ChangeAmount, 1e-6)
}

func TestStressTest_MixedPortfolio(t *testing.T) {
	engine := NewEngine(nil, 0, zerolog.Nop())

	weights := map[string]float64{
		"NSE:SCOM": 0.5, // -0.30 in a crash
		"KEGB:91D": 0.5, // +0.02 in a crash
	}

	impacts := engine.StressTest(weights, nil)
	require.Len(t, impacts, len(DefaultScenarios()))

	crash := impacts[0]
	require.Equal(t, "market_crash", crash.Scenario)
	assert.InDelta(t, 0.5*-0.30+0.5*0.02, crash.ImpactPercent, 1e-10)
}

func TestStressTest_UnknownAssetContributesZero(t *testing.T) {
	engine := NewEngine(nil, 100_000, zerolog.Nop())

	weights := map[string]float64{
		"NSE:SCOM":    0.5,
		"WEIRD:THING": 0.5,
	}

	impacts := engine.StressTest(weights, []domain.StressScenario{DefaultScenarios()[0]})
	require.Len(t, impacts, 1)
	assert.InDelta(t, 0.5*-0.30, impacts[0].ImpactPercent, 1e-10)
}

func TestStressTest_DefaultCatalog(t *testing.T) {
	engine := NewEngine(nil, 0, zerolog.Nop())

	impacts := engine.StressTest(map[string]float64{"NSE:SCOM": 1.0}, nil)
	require.Len(t, impacts, 4)

	names := make([]string, len(impacts))
	for i, impact := range impacts {
		names[i] = impact.Scenario
	}
	assert.Equal(t, []string{"market_crash", "interest_rate_hike", "ksh_depreciation", "economic_recovery"}, names)
}

func TestPrefixClassifier_FirstMatchWins(t *testing.T) {
	classify := NewPrefixClassifier([]PrefixRule{
		{Prefix: "NSE:X", Class: domain.AssetClassGovBond}, // deliberately odd, more specific
		{Prefix: "NSE:", Class: domain.AssetClassNSEStock},
	})

	assert.Equal(t, domain.AssetClassGovBond, classify("NSE:XYZ"))
	assert.Equal(t, domain.AssetClassNSEStock, classify("NSE:SCOM"))
	assert.Equal(t, domain.AssetClassUnknown, classify("LSE:VOD"))
}

func TestDefaultPrefixRules(t *testing.T) {
	classify := NewPrefixClassifier(DefaultPrefixRules())

	assert.Equal(t, domain.AssetClassNSEStock, classify("NSE:SCOM"))
	assert.Equal(t, domain.AssetClassGovBond, classify("KEGB:364D"))
	assert.Equal(t, domain.AssetClassMoneyMkt, classify("MMF:CIC"))
	assert.Equal(t, domain.AssetClassCrypto, classify("CRYPTO:BTC"))
	assert.Equal(t, domain.AssetClassGlobalETF, classify("ETF:VWO"))
	assert.Equal(t, domain.AssetClassUnknown, classify("SCOM"))
}
