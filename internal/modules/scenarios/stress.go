package scenarios

import (
	"github.com/rs/zerolog"

	"github.com/pesaguru/engine/internal/domain"
)

// DefaultBaseValue is the notional portfolio value stress impacts are applied
// to, in KES.
const DefaultBaseValue = 100_000.0

// DefaultScenarios is the static shock catalog. Impacts are fractional moves
// per asset class.
func DefaultScenarios() []domain.StressScenario {
	return []domain.StressScenario{
		{
			Name:        "market_crash",
			Description: "Broad equity sell-off with flight to government paper",
			Impacts: map[domain.AssetClass]float64{
				domain.AssetClassNSEStock:  -0.30,
				domain.AssetClassGlobalETF: -0.25,
				domain.AssetClassCrypto:    -0.45,
				domain.AssetClassGovBond:   0.02,
				domain.AssetClassMoneyMkt:  0.00,
			},
		},
		{
			Name:        "interest_rate_hike",
			Description: "CBK raises the base rate sharply; duration assets reprice",
			Impacts: map[domain.AssetClass]float64{
				domain.AssetClassNSEStock:  -0.10,
				domain.AssetClassGovBond:   -0.08,
				domain.AssetClassGlobalETF: -0.08,
				domain.AssetClassCrypto:    -0.15,
				domain.AssetClassMoneyMkt:  0.02,
			},
		},
		{
			Name:        "ksh_depreciation",
			Description: "Shilling weakens against major currencies; foreign assets gain in KES terms",
			Impacts: map[domain.AssetClass]float64{
				domain.AssetClassNSEStock:  -0.12,
				domain.AssetClassGovBond:   -0.05,
				domain.AssetClassGlobalETF: 0.08,
				domain.AssetClassCrypto:    0.10,
				domain.AssetClassMoneyMkt:  -0.02,
			},
		},
		{
			Name:        "economic_recovery",
			Description: "Growth rebound lifts risk assets across the board",
			Impacts: map[domain.AssetClass]float64{
				domain.AssetClassNSEStock:  0.20,
				domain.AssetClassGlobalETF: 0.12,
				domain.AssetClassCrypto:    0.18,
				domain.AssetClassGovBond:   0.03,
				domain.AssetClassMoneyMkt:  0.01,
			},
		},
	}
}

// Engine runs stress scenarios over weighted portfolios.
type Engine struct {
	classify  domain.Classifier
	baseValue float64
	log       zerolog.Logger
}

// NewEngine creates a stress-test engine. A nil classifier uses the default
// prefix rules; a non-positive base value uses DefaultBaseValue.
func NewEngine(classify domain.Classifier, baseValue float64, log zerolog.Logger) *Engine {
	if classify == nil {
		classify = NewPrefixClassifier(DefaultPrefixRules())
	}
	if baseValue <= 0 {
		baseValue = DefaultBaseValue
	}
	return &Engine{
		classify:  classify,
		baseValue: baseValue,
		log:       log.With().Str("component", "stress_test").Logger(),
	}
}

// StressTest applies each scenario to the portfolio. Scenario impact is the
// weight-weighted sum of per-asset impacts; assets of unknown class contribute
// zero. A nil scenario list runs the default catalog.
func (e *Engine) StressTest(weights map[string]float64, testScenarios []domain.StressScenario) []domain.ScenarioImpact {
	if testScenarios == nil {
		testScenarios = DefaultScenarios()
	}

	impacts := make([]domain.ScenarioImpact, 0, len(testScenarios))
	for _, scenario := range testScenarios {
		portfolioImpact := 0.0
		for asset, weight := range weights {
			class := e.classify(asset)
			portfolioImpact += weight * scenario.Impacts[class]
		}

		change := e.baseValue * portfolioImpact
		impacts = append(impacts, domain.ScenarioImpact{
			Scenario:      scenario.Name,
			Description:   scenario.Description,
			ImpactPercent: portfolioImpact,
			BaseValue:     e.baseValue,
			NewValue:      e.baseValue + change,
			ChangeAmount:  change,
		})

		e.log.Debug().
			Str("scenario", scenario.Name).
			Float64("impact_pct", portfolioImpact).
			Float64("change_amount", change).
			Msg("Applied stress scenario")
	}

	return impacts
}
