package optimization

import (
	"errors"
	"fmt"

	"github.com/pesaguru/engine/internal/domain"
)

// DefaultFrontierPoints is the default number of target returns swept.
const DefaultFrontierPoints = 20

// GenerateEfficientFrontier sweeps target returns linearly spaced between the
// minimum and maximum individual-asset expected return and solves each one.
// Infeasible targets are expected at the sweep extremes and are silently
// skipped rather than propagated; any other solver failure aborts the sweep.
func (mvo *MVOptimizer) GenerateEfficientFrontier(
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	assets []string,
	points int,
	opts Options,
) (*Frontier, error) {
	if points <= 0 {
		points = DefaultFrontierPoints
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets provided")
	}

	minReturn, maxReturn := expectedReturns[assets[0]], expectedReturns[assets[0]]
	for _, asset := range assets[1:] {
		r := expectedReturns[asset]
		if r < minReturn {
			minReturn = r
		}
		if r > maxReturn {
			maxReturn = r
		}
	}

	frontier := &Frontier{
		Risks:   make([]float64, 0, points),
		Returns: make([]float64, 0, points),
	}

	step := 0.0
	if points > 1 {
		step = (maxReturn - minReturn) / float64(points-1)
	}

	skipped := 0
	for i := 0; i < points; i++ {
		target := minReturn + step*float64(i)
		pointOpts := opts
		pointOpts.TargetReturn = &target

		result, err := mvo.Optimize(expectedReturns, covMatrix, assets, pointOpts)
		if err != nil {
			var infeasible *domain.InfeasibleOptimizationError
			if errors.As(err, &infeasible) {
				skipped++
				continue
			}
			return nil, fmt.Errorf("frontier sweep failed at target %.4f: %w", target, err)
		}

		frontier.Risks = append(frontier.Risks, result.Volatility)
		frontier.Returns = append(frontier.Returns, result.ExpectedReturn)
	}

	mvo.log.Debug().
		Int("points", len(frontier.Risks)).
		Int("skipped_infeasible", skipped).
		Msg("Generated efficient frontier")

	return frontier, nil
}
