// Package optimization solves constrained mean-variance portfolio problems,
// sweeps the efficient frontier and runs Monte Carlo random-portfolio search.
package optimization

import "github.com/pesaguru/engine/internal/domain"

// Strategy is the closed set of optimization strategies. New strategies are
// added by extending this enum and its dispatch in the advisor, not by string
// comparison at call sites.
type Strategy string

const (
	StrategyMPT           Strategy = "mpt"
	StrategyMinVolatility Strategy = "min_volatility"
	StrategyMaxSharpe     Strategy = "max_sharpe"
	StrategyMonteCarlo    Strategy = "monte_carlo"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, bool) {
	switch Strategy(name) {
	case StrategyMPT, StrategyMinVolatility, StrategyMaxSharpe, StrategyMonteCarlo:
		return Strategy(name), true
	default:
		return "", false
	}
}

// DefaultMaxAllocation caps any single asset's weight when the caller does not
// supply a tighter cap. No short-selling is ever permitted.
const DefaultMaxAllocation = 0.25

// Options configures a single optimization call.
type Options struct {
	// TargetReturn pins the portfolio's expected return. Nil means the solver
	// minimizes variance subject only to the budget constraint.
	TargetReturn *float64
	// MaxAllocation is the per-asset weight cap; DefaultMaxAllocation if zero.
	MaxAllocation float64
	// RiskFree offsets the Sharpe ratio numerator. Usually zero: reported
	// Sharpe is plain return over volatility.
	RiskFree float64
}

// Result is the outcome of one constrained solve.
type Result struct {
	Weights        map[string]float64
	ExpectedReturn float64
	Volatility     float64
	SharpeRatio    float64
}

// FrontierPoint pairs risk and return for one frontier target. Points follow
// sweep order, not risk order.
type FrontierPoint struct {
	Risk   float64 `json:"risk"`
	Return float64 `json:"return"`
}

// Frontier is the efficient-frontier sweep output: parallel slices in sweep
// order with infeasible targets omitted.
type Frontier struct {
	Risks   []float64 `json:"risks"`
	Returns []float64 `json:"returns"`
}

// Sample re-exports the domain portfolio sample for package-local use.
type Sample = domain.PortfolioSample
