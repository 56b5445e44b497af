package formulas

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// CalculateCVaR calculates Conditional Value at Risk (CVaR) at the specified
// confidence level. CVaR is the expected loss given that the loss exceeds the
// VaR threshold.
//
// Args:
//   - returns: Historical returns (can be negative for losses)
//   - confidence: Confidence level (e.g., 0.95 for 95%)
//
// Returns:
//   - CVaR value (negative for losses, positive for gains in tail)
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	if len(returns) == 1 {
		return returns[0]
	}

	// Sort returns in ascending order (worst first)
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// For 95% confidence we want the worst 5% of returns. The small epsilon
	// keeps the ceiling exact when n*(1-confidence) lands on an integer:
	// 1.0-0.95 is not representable and 20*0.05000...044 would otherwise
	// round a 1-element tail up to 2.
	tailProbability := 1.0 - confidence
	tailCount := int(math.Ceil(float64(len(sorted))*tailProbability - 1e-9))
	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	// CVaR is the average of returns in the tail
	tailReturns := sorted[:tailCount]
	sum := 0.0
	for _, r := range tailReturns {
		sum += r
	}

	return sum / float64(len(tailReturns))
}

// MonteCarloCVaRWithWeights estimates portfolio CVaR by simulating periodic
// portfolio returns from per-asset normal marginals with the given weights.
// The simulation seeds its own source so results are deterministic for a
// fixed seed, which keeps optimizer output reproducible in tests.
func MonteCarloCVaRWithWeights(
	covMatrix [][]float64,
	expectedReturns map[string]float64,
	weights map[string]float64,
	assets []string,
	numSimulations int,
	confidence float64,
	seed uint64,
) float64 {
	n := len(assets)
	if n == 0 || len(covMatrix) != n || numSimulations <= 0 {
		return 0.0
	}

	src := rand.NewPCG(seed, seed)
	dists := make([]distuv.Normal, n)
	for j, asset := range assets {
		stdDev := math.Sqrt(math.Max(covMatrix[j][j], 1e-10))
		dists[j] = distuv.Normal{
			Mu:    expectedReturns[asset],
			Sigma: stdDev,
			Src:   src,
		}
	}

	simulated := make([]float64, numSimulations)
	for i := 0; i < numSimulations; i++ {
		portfolioReturn := 0.0
		for j, asset := range assets {
			portfolioReturn += weights[asset] * dists[j].Rand()
		}
		simulated[i] = portfolioReturn
	}

	return CalculateCVaR(simulated, confidence)
}
