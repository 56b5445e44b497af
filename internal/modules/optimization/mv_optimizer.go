package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/pesaguru/engine/internal/domain"
)

// penaltyWeight scales the quadratic penalties enforcing the budget and
// target-return constraints inside the unconstrained solver.
const penaltyWeight = 1000.0

// MVOptimizer performs mean-variance portfolio optimization.
//
// Mathematical formulation:
//   - minimize w'Σw
//   - subject to Σw = 1 (budget) and, when a target is given, μ'w = target
//   - 0 ≤ w_i ≤ maxAllocation (no short-selling)
//
// Constraints are enforced with a penalty method; bounds by projection. The
// initial guess is always equal weights so identical inputs reproduce
// identical results.
type MVOptimizer struct {
	log zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer.
func NewMVOptimizer(log zerolog.Logger) *MVOptimizer {
	return &MVOptimizer{
		log: log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Optimize solves the constrained minimization for the given expected returns
// and annualized covariance matrix. The covariance matrix rows/columns follow
// the assets ordering. Infeasible targets fail with
// *domain.InfeasibleOptimizationError before any solver work happens.
func (mvo *MVOptimizer) Optimize(
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	assets []string,
	opts Options,
) (*Result, error) {
	n := len(assets)
	if n == 0 {
		return nil, fmt.Errorf("no assets provided")
	}
	if len(covMatrix) != n {
		return nil, fmt.Errorf("covariance matrix size %d doesn't match asset count %d", len(covMatrix), n)
	}
	for i := range covMatrix {
		if len(covMatrix[i]) != n {
			return nil, fmt.Errorf("covariance matrix row %d has size %d, expected %d", i, len(covMatrix[i]), n)
		}
	}

	maxAlloc := opts.MaxAllocation
	if maxAlloc <= 0 {
		maxAlloc = DefaultMaxAllocation
	}
	if maxAlloc > 1 {
		maxAlloc = 1
	}

	// The budget constraint is unsatisfiable when the caps cannot add to 1.
	if float64(n)*maxAlloc < 1.0-1e-9 {
		return nil, &domain.InfeasibleOptimizationError{
			TargetReturn:  0,
			MaxAttainable: float64(n) * maxAlloc,
		}
	}

	mu := make([]float64, n)
	for i, asset := range assets {
		ret, ok := expectedReturns[asset]
		if !ok {
			return nil, fmt.Errorf("missing expected return for asset %s", asset)
		}
		mu[i] = ret
	}

	if opts.TargetReturn != nil {
		minR, maxR := attainableReturnRange(mu, maxAlloc)
		if *opts.TargetReturn > maxR+1e-9 || *opts.TargetReturn < minR-1e-9 {
			return nil, &domain.InfeasibleOptimizationError{
				TargetReturn:  *opts.TargetReturn,
				MaxAttainable: maxR,
			}
		}
	}

	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}

	xFinal, err := mvo.solve(mu, sigma, maxAlloc, opts.TargetReturn)
	if err != nil {
		return nil, err
	}

	weights, err := capAndNormalize(xFinal, assets, maxAlloc)
	if err != nil {
		return nil, err
	}

	// Report metrics from the final weights so the round-trip property holds:
	// feeding the weights back into the objective reproduces the volatility.
	portfolioReturn := 0.0
	for i, asset := range assets {
		portfolioReturn += mu[i] * weights[asset]
	}
	variance := 0.0
	for i, ai := range assets {
		for j, aj := range assets {
			variance += weights[ai] * weights[aj] * covMatrix[i][j]
		}
	}
	volatility := math.Sqrt(math.Max(variance, 0))
	if volatility <= 0 {
		// Zero volatility means a degenerate covariance input; refusing is
		// better than reporting an infinite Sharpe ratio.
		return nil, fmt.Errorf("degenerate solution: portfolio volatility is zero")
	}

	result := &Result{
		Weights:        weights,
		ExpectedReturn: portfolioReturn,
		Volatility:     volatility,
		SharpeRatio:    (portfolioReturn - opts.RiskFree) / volatility,
	}

	mvo.log.Debug().
		Float64("expected_return", result.ExpectedReturn).
		Float64("volatility", result.Volatility).
		Float64("sharpe", result.SharpeRatio).
		Msg("Solved mean-variance optimization")

	return result, nil
}

// solve runs the penalty-method minimization with an equal-weight initial
// guess, trying BFGS first and falling back to Nelder-Mead.
func (mvo *MVOptimizer) solve(
	mu []float64,
	sigma *mat.Dense,
	maxAlloc float64,
	targetReturn *float64,
) ([]float64, error) {
	n := len(mu)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToBounds(x, maxAlloc)

			var variance float64
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * sigma.At(i, j)
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}

			obj := variance
			obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)

			if targetReturn != nil {
				var portfolioReturn float64
				for i := 0; i < n; i++ {
					portfolioReturn += mu[i] * xProj[i]
				}
				obj += penaltyWeight * (portfolioReturn - *targetReturn) * (portfolioReturn - *targetReturn)
			}

			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := projectToBounds(x, maxAlloc)

			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma.At(i, j) * xProj[j]
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - 1.0)
			}

			if targetReturn != nil {
				var portfolioReturn float64
				for i := 0; i < n; i++ {
					portfolioReturn += mu[i] * xProj[i]
				}
				for i := 0; i < n; i++ {
					grad[i] += 2 * penaltyWeight * (portfolioReturn - *targetReturn) * mu[i]
				}
			}
		},
	}

	// Equal weights keep the solver start reproducible across runs.
	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	successStatuses := map[optimize.Status]bool{
		optimize.Success:             true,
		optimize.GradientThreshold:   true,
		optimize.FunctionConvergence: true,
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !successStatuses[result.Status] {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		if !successStatuses[result.Status] {
			return nil, fmt.Errorf("optimization did not converge: status=%v", result.Status)
		}
	}

	return projectToBounds(result.X, maxAlloc), nil
}

// projectToBounds clamps every weight to [0, maxAlloc].
func projectToBounds(x []float64, maxAlloc float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(0, math.Min(maxAlloc, x[i]))
	}
	return proj
}

// capAndNormalize turns the raw solver output into weights that sum to 1 while
// respecting the per-asset cap, redistributing any excess over capped assets
// to the uncapped remainder.
func capAndNormalize(x []float64, assets []string, maxAlloc float64) (map[string]float64, error) {
	n := len(assets)
	weights := make([]float64, n)
	sum := 0.0
	for i := range x {
		weights[i] = math.Max(0, x[i])
		sum += weights[i]
	}
	if sum <= 0 {
		// Normalizing a zero vector is meaningless; fall back to the equal
		// allocation the solver started from.
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
	} else {
		for i := range weights {
			weights[i] /= sum
		}
	}

	// Iteratively cap and redistribute. Each pass fixes at least one asset at
	// the cap, so the loop terminates in at most n passes.
	for pass := 0; pass < n; pass++ {
		excess := 0.0
		freeTotal := 0.0
		for i := range weights {
			if weights[i] > maxAlloc {
				excess += weights[i] - maxAlloc
				weights[i] = maxAlloc
			} else if weights[i] < maxAlloc {
				freeTotal += weights[i]
			}
		}
		if excess <= 1e-12 {
			break
		}
		if freeTotal <= 0 {
			return nil, &domain.InfeasibleOptimizationError{
				TargetReturn:  0,
				MaxAttainable: float64(n) * maxAlloc,
			}
		}
		for i := range weights {
			if weights[i] < maxAlloc {
				weights[i] += excess * (weights[i] / freeTotal)
			}
		}
	}

	out := make(map[string]float64, n)
	for i, asset := range assets {
		out[asset] = weights[i]
	}
	return out, nil
}

// attainableReturnRange computes the minimum and maximum portfolio expected
// return reachable under the budget and per-asset cap, by greedily filling
// the cap from the best (resp. worst) asset down.
func attainableReturnRange(mu []float64, maxAlloc float64) (minReturn, maxReturn float64) {
	sorted := append([]float64(nil), mu...)
	sort.Float64s(sorted)

	fill := func(ordered []float64) float64 {
		budget := 1.0
		total := 0.0
		for _, r := range ordered {
			w := math.Min(maxAlloc, budget)
			total += w * r
			budget -= w
			if budget <= 1e-12 {
				break
			}
		}
		return total
	}

	minReturn = fill(sorted)

	descending := make([]float64, len(sorted))
	for i, r := range sorted {
		descending[len(sorted)-1-i] = r
	}
	maxReturn = fill(descending)
	return minReturn, maxReturn
}
