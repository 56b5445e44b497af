package optimization

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pesaguru/engine/internal/domain"
)

// DefaultMonteCarloDraws is the default number of random portfolios sampled.
const DefaultMonteCarloDraws = 10000

// seedStride separates per-worker random streams derived from the base seed.
const seedStride = 0x9E3779B97F4A7C15

// MonteCarloConfig configures a random-portfolio search.
type MonteCarloConfig struct {
	NumPortfolios int
	// Workers splits the draws across goroutines. Zero means GOMAXPROCS.
	Workers int
	// Seed makes the run reproducible. Production callers may use a fresh
	// seed per call; tests fix it.
	Seed     uint64
	RiskFree float64
}

// MonteCarloSimulation draws random weight vectors, each normalized to sum to
// 1 (normalized uniform draws — an accepted approximation of a Dirichlet, not
// the real thing), and records the best Sharpe and lowest-volatility
// portfolios seen. Per-asset caps are deliberately NOT enforced here: the
// random search explores more broadly than the constrained optimizer.
//
// Draws are distributed across workers, each with an independent random
// stream; the merge takes the global argmax/argmin so the result does not
// depend on scheduling order.
func (mvo *MVOptimizer) MonteCarloSimulation(
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	assets []string,
	cfg MonteCarloConfig,
) (*domain.SimulationTrace, error) {
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

	draws := cfg.NumPortfolios
	if draws <= 0 {
		draws = DefaultMonteCarloDraws
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > draws {
		workers = draws
	}

	mu := make([]float64, n)
	for i, asset := range assets {
		ret, ok := expectedReturns[asset]
		if !ok {
			return nil, fmt.Errorf("missing expected return for asset %s", asset)
		}
		mu[i] = ret
	}

	type localBest struct {
		maxSharpe Sample
		minVol    Sample
		hasSharpe bool
		hasMinVol bool
	}

	results := make([]localBest, workers)
	perWorker := draws / workers
	remainder := draws % workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		count := perWorker
		if w < remainder {
			count++
		}
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(cfg.Seed+uint64(w)*seedStride, cfg.Seed^uint64(w+1)))
			best := localBest{}
			weights := make([]float64, n)

			for d := 0; d < count; d++ {
				sum := 0.0
				for i := range weights {
					weights[i] = rng.Float64()
					sum += weights[i]
				}
				for i := range weights {
					weights[i] /= sum
				}

				ret := 0.0
				variance := 0.0
				for i := 0; i < n; i++ {
					ret += mu[i] * weights[i]
					for j := 0; j < n; j++ {
						variance += weights[i] * weights[j] * covMatrix[i][j]
					}
				}
				vol := math.Sqrt(math.Max(variance, 0))

				if !best.hasMinVol || vol < best.minVol.Volatility {
					best.minVol = makeSample(assets, weights, ret, vol, cfg.RiskFree)
					best.hasMinVol = true
				}
				if vol > 0 {
					sharpe := (ret - cfg.RiskFree) / vol
					if !best.hasSharpe || sharpe > best.maxSharpe.Sharpe {
						best.maxSharpe = makeSample(assets, weights, ret, vol, cfg.RiskFree)
						best.hasSharpe = true
					}
				}
			}

			results[w] = best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Order-independent merge: global argmax/argmin over worker bests.
	trace := &domain.SimulationTrace{NumPortfolios: draws}
	haveSharpe, haveMinVol := false, false
	for _, best := range results {
		if best.hasSharpe && (!haveSharpe || best.maxSharpe.Sharpe > trace.MaxSharpe.Sharpe) {
			trace.MaxSharpe = best.maxSharpe
			haveSharpe = true
		}
		if best.hasMinVol && (!haveMinVol || best.minVol.Volatility < trace.MinVolatility.Volatility) {
			trace.MinVolatility = best.minVol
			haveMinVol = true
		}
	}
	if !haveSharpe {
		return nil, fmt.Errorf("no portfolio with positive volatility sampled: degenerate covariance input")
	}

	mvo.log.Debug().
		Int("draws", draws).
		Int("workers", workers).
		Float64("best_sharpe", trace.MaxSharpe.Sharpe).
		Float64("min_volatility", trace.MinVolatility.Volatility).
		Msg("Completed Monte Carlo simulation")

	return trace, nil
}

func makeSample(assets []string, weights []float64, ret, vol, riskFree float64) Sample {
	keyed := make(map[string]float64, len(assets))
	for i, asset := range assets {
		keyed[asset] = weights[i]
	}
	sharpe := 0.0
	if vol > 0 {
		sharpe = (ret - riskFree) / vol
	}
	return Sample{
		Weights:    keyed,
		Return:     ret,
		Volatility: vol,
		Sharpe:     sharpe,
	}
}
