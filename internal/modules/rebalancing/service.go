// Package rebalancing computes allocation drift against a target portfolio
// and emits buy/sell actions above a threshold.
package rebalancing

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/pesaguru/engine/internal/domain"
)

// DefaultThreshold is the drift magnitude below which no action is emitted.
const DefaultThreshold = 0.05

// Service derives rebalancing plans from current and target weights.
type Service struct {
	log zerolog.Logger
}

// NewService creates a new rebalancing service.
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "rebalancing").Logger(),
	}
}

// Rebalance compares current weights against target weights for every asset
// present in the target. Drift is current minus target: positive drift means
// the asset is overweight and is sold; negative drift means underweight and
// is bought. Assets whose |drift| does not exceed the threshold are an
// implicit hold and are not listed.
//
// MaxDrift reports the largest |drift| across ALL assets, including those
// under the threshold, for diagnostics.
func (s *Service) Rebalance(
	currentWeights map[string]float64,
	targetWeights map[string]float64,
	threshold float64,
) *domain.RebalancingPlan {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	// Stable asset ordering keeps the action list deterministic.
	assets := make([]string, 0, len(targetWeights))
	for asset := range targetWeights {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	plan := &domain.RebalancingPlan{
		Actions:   make([]domain.RebalancingAction, 0),
		Threshold: threshold,
	}

	for _, asset := range assets {
		drift := currentWeights[asset] - targetWeights[asset]
		absDrift := math.Abs(drift)

		if absDrift > plan.MaxDrift {
			plan.MaxDrift = absDrift
		}
		// Epsilon keeps a drift that is mathematically equal to the threshold
		// on the hold side: 0.55-0.50 computes to just above 0.05.
		if absDrift <= threshold+1e-12 {
			continue
		}

		action := "buy"
		if drift > 0 {
			action = "sell"
		}
		plan.Actions = append(plan.Actions, domain.RebalancingAction{
			Asset:            asset,
			Action:           action,
			Drift:            drift,
			AdjustmentAmount: absDrift,
		})
		plan.TotalTradeAmount += absDrift
	}

	s.log.Debug().
		Int("actions", len(plan.Actions)).
		Float64("total_trade_amount", plan.TotalTradeAmount).
		Float64("max_drift", plan.MaxDrift).
		Msg("Computed rebalancing plan")

	return plan
}
