package rebalancing

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebalance_DriftAboveThreshold(t *testing.T) {
	svc := NewService(zerolog.Nop())

	current := map[string]float64{"A": 0.5, "B": 0.5}
	target := map[string]float64{"A": 0.3, "B": 0.7}

	plan := svc.Rebalance(current, target, 0.05)
	require.Len(t, plan.Actions, 2)

	sellA := plan.Actions[0]
	assert.Equal(t, "A", sellA.Asset)
	assert.Equal(t, "sell", sellA.Action)
	assert.InDelta(t, 0.2, sellA.Drift, 1e-10)
	assert.InDelta(t, 0.2, sellA.AdjustmentAmount, 1e-10)

	buyB := plan.Actions[1]
	assert.Equal(t, "B", buyB.Asset)
	assert.Equal(t, "buy", buyB.Action)
	assert.InDelta(t, -0.2, buyB.Drift, 1e-10)

	assert.InDelta(t, 0.4, plan.TotalTradeAmount, 1e-10)
	assert.InDelta(t, 0.2, plan.MaxDrift, 1e-10)
}

func TestRebalance_BelowThresholdIsHold(t *testing.T) {
	svc := NewService(zerolog.Nop())

	current := map[string]float64{"A": 0.52, "B": 0.48}
	target := map[string]float64{"A": 0.50, "B": 0.50}

	plan := svc.Rebalance(current, target, 0.05)
	assert.Empty(t, plan.Actions, "drift within threshold emits no actions")
	assert.InDelta(t, 0.02, plan.MaxDrift, 1e-10, "max drift still reports sub-threshold drift")
	assert.Equal(t, 0.0, plan.TotalTradeAmount)
}

func TestRebalance_MissingCurrentAssetIsFullBuy(t *testing.T) {
	svc := NewService(zerolog.Nop())

	// Target includes an asset not currently held: full drift, a buy.
	current := map[string]float64{"A": 1.0}
	target := map[string]float64{"A": 0.75, "B": 0.25}

	plan := svc.Rebalance(current, target, 0.05)
	require.Len(t, plan.Actions, 2)

	assert.Equal(t, "sell", plan.Actions[0].Action)
	assert.Equal(t, "B", plan.Actions[1].Asset)
	assert.Equal(t, "buy", plan.Actions[1].Action)
	assert.InDelta(t, -0.25, plan.Actions[1].Drift, 1e-10)
}

func TestRebalance_DefaultThreshold(t *testing.T) {
	svc := NewService(zerolog.Nop())

	plan := svc.Rebalance(map[string]float64{"A": 1.0}, map[string]float64{"A": 1.0}, 0)
	assert.Equal(t, DefaultThreshold, plan.Threshold)
	assert.Empty(t, plan.Actions)
}

func TestRebalance_ExactThresholdNotTraded(t *testing.T) {
	svc := NewService(zerolog.Nop())

	// Drift exactly at the threshold is a hold; only strictly greater trades.
	current := map[string]float64{"A": 0.55, "B": 0.45}
	target := map[string]float64{"A": 0.50, "B": 0.50}

	plan := svc.Rebalance(current, target, 0.05)
	assert.Empty(t, plan.Actions)
}

func TestRebalance_DeterministicOrdering(t *testing.T) {
	svc := NewService(zerolog.Nop())

	current := map[string]float64{}
	target := map[string]float64{"C": 0.3, "A": 0.3, "B": 0.4}

	plan := svc.Rebalance(current, target, 0.05)
	require.Len(t, plan.Actions, 3)
	assert.Equal(t, "A", plan.Actions[0].Asset)
	assert.Equal(t, "B", plan.Actions[1].Asset)
	assert.Equal(t, "C", plan.Actions[2].Asset)
}
