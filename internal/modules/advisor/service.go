// Package advisor orchestrates the full portfolio pipeline: preference
// resolution, data fetching, risk/return estimation, constrained optimization
// and report assembly.
package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesaguru/engine/internal/config"
	"github.com/pesaguru/engine/internal/domain"
	"github.com/pesaguru/engine/internal/marketdata"
	"github.com/pesaguru/engine/internal/modules/estimation"
	"github.com/pesaguru/engine/internal/modules/optimization"
	"github.com/pesaguru/engine/internal/modules/preferences"
	"github.com/pesaguru/engine/internal/modules/rebalancing"
	"github.com/pesaguru/engine/internal/modules/reporting"
	"github.com/pesaguru/engine/internal/modules/scenarios"
	"github.com/pesaguru/engine/pkg/formulas"
)

const (
	// DefaultPeriodMonths is the history window when the caller does not ask
	// for a specific one.
	DefaultPeriodMonths = 36

	cvarSimulations = 10000
	cvarConfidence  = 0.95
)

// OptimizeRequest describes one optimization run. Zero values fall back to
// configured defaults.
type OptimizeRequest struct {
	UserID        string           `json:"user_id"`
	Assets        []string         `json:"assets"`
	Method        string           `json:"method"`   // expected-return method
	Strategy      string           `json:"strategy"` // optimization strategy
	TargetReturn  *float64         `json:"target_return"`
	MaxAllocation float64          `json:"max_allocation"`
	PeriodMonths  int              `json:"period_months"`
	Frequency     domain.Frequency `json:"frequency"`
}

// Service wires the pipeline stages together. All collaborators are injected;
// the service holds no global state.
type Service struct {
	cfg        *config.Config
	marketData domain.MarketDataProvider
	index      domain.IndexProvider
	prefs      *preferences.Adapter
	riskModel  *estimation.RiskModelBuilder
	estimator  *estimation.ReturnsEstimator
	optimizer  *optimization.MVOptimizer
	stress     *scenarios.Engine
	rebalancer *rebalancing.Service
	reporter   *reporting.Reporter
	log        zerolog.Logger
}

// New creates the advisor service.
func New(
	cfg *config.Config,
	marketData domain.MarketDataProvider,
	index domain.IndexProvider,
	prefs *preferences.Adapter,
	riskModel *estimation.RiskModelBuilder,
	estimator *estimation.ReturnsEstimator,
	optimizer *optimization.MVOptimizer,
	stress *scenarios.Engine,
	rebalancer *rebalancing.Service,
	reporter *reporting.Reporter,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		marketData: marketData,
		index:      index,
		prefs:      prefs,
		riskModel:  riskModel,
		estimator:  estimator,
		optimizer:  optimizer,
		stress:     stress,
		rebalancer: rebalancer,
		reporter:   reporter,
		log:        log.With().Str("component", "advisor").Logger(),
	}
}

// GetOptimizedPortfolio runs the full pipeline for one request. When the
// context carries a deadline the numeric stages run in a goroutine and a
// deadline hit surfaces as *domain.OptimizationTimeoutError; the solve itself
// is never interrupted mid-iteration.
func (s *Service) GetOptimizedPortfolio(ctx context.Context, req OptimizeRequest) (*domain.OptimizationResult, error) {
	start := time.Now()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return s.optimize(ctx, req)
	}

	type outcome struct {
		result *domain.OptimizationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.optimize(ctx, req)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, &domain.OptimizationTimeoutError{Elapsed: time.Since(start)}
	}
}

func (s *Service) optimize(ctx context.Context, req OptimizeRequest) (*domain.OptimizationResult, error) {
	start := time.Now()
	prefs := s.prefs.Resolve(ctx, req.UserID)

	assets := req.Assets
	if len(assets) == 0 {
		assets = s.prefs.BuildUniverse(prefs)
	}
	if len(assets) < 2 {
		return nil, fmt.Errorf("need at least 2 assets to optimize, got %d", len(assets))
	}

	method := estimation.MethodMeanHistorical
	if req.Method != "" {
		parsed, err := estimation.ParseMethod(req.Method)
		if err != nil {
			return nil, err
		}
		method = parsed
	}

	strategy := optimization.StrategyMPT
	if req.Strategy != "" {
		parsed, ok := optimization.ParseStrategy(req.Strategy)
		if !ok {
			return nil, fmt.Errorf("unknown optimization strategy %q", req.Strategy)
		}
		strategy = parsed
	}

	freq := req.Frequency
	if freq == "" {
		freq = domain.FrequencyMonthly
	}
	periodMonths := req.PeriodMonths
	if periodMonths <= 0 {
		periodMonths = DefaultPeriodMonths
	}

	panel, err := s.buildPanel(ctx, assets, periodMonths, freq)
	if err != nil {
		return nil, err
	}

	var indexReturns []float64
	if method == estimation.MethodCAPM {
		series, err := s.index.HistoricalIndex(ctx, s.cfg.MarketIndex, periodMonths, freq)
		if err != nil {
			return nil, &domain.DataFetchError{Asset: s.cfg.MarketIndex, Err: err}
		}
		indexReturns, err = panel.AlignIndex(s.cfg.MarketIndex, series)
		if err != nil {
			return nil, err
		}
	}

	metrics, err := s.riskModel.CalculateRiskMetrics(panel)
	if err != nil {
		return nil, err
	}
	expected, err := s.estimator.CalculateExpectedReturns(ctx, panel, method, indexReturns)
	if err != nil {
		return nil, err
	}

	opts := optimization.Options{
		TargetReturn:  req.TargetReturn,
		MaxAllocation: req.MaxAllocation,
	}
	if opts.MaxAllocation <= 0 {
		opts.MaxAllocation = prefs.MaxAllocationPerAsset
	}
	if opts.MaxAllocation <= 0 {
		opts.MaxAllocation = s.cfg.MaxAllocation
	}

	result, err := s.dispatch(strategy, expected, metrics, panel.Assets, prefs, opts)
	if err != nil {
		return nil, err
	}

	result.Method = string(method)
	result.CVaR95 = formulas.MonteCarloCVaRWithWeights(
		metrics.Covariance, expected, result.Weights, panel.Assets,
		cvarSimulations, cvarConfidence, uint64(time.Now().UnixNano()),
	)

	s.log.Info().
		Str("strategy", string(strategy)).
		Str("method", string(method)).
		Int("assets", len(panel.Assets)).
		Float64("expected_return", result.ExpectedReturn).
		Float64("volatility", result.Volatility).
		Dur("elapsed", time.Since(start)).
		Msg("Optimization complete")

	return result, nil
}

func (s *Service) dispatch(
	strategy optimization.Strategy,
	expected map[string]float64,
	metrics *estimation.RiskMetrics,
	assets []string,
	prefs *domain.UserPreferences,
	opts optimization.Options,
) (*domain.OptimizationResult, error) {
	switch strategy {
	case optimization.StrategyMPT:
		if opts.TargetReturn == nil {
			target := s.prefs.Targets(prefs.RiskTolerance).MinReturn
			if target < s.cfg.MinTargetReturn {
				target = s.cfg.MinTargetReturn
			}
			opts.TargetReturn = &target
		}
		res, err := s.optimizer.Optimize(expected, metrics.Covariance, assets, opts)
		if err != nil {
			return nil, err
		}
		return fromResult(res), nil

	case optimization.StrategyMinVolatility:
		opts.TargetReturn = nil
		res, err := s.optimizer.Optimize(expected, metrics.Covariance, assets, opts)
		if err != nil {
			return nil, err
		}
		return fromResult(res), nil

	case optimization.StrategyMaxSharpe:
		res, err := s.maxSharpe(expected, metrics, assets, opts)
		if err != nil {
			return nil, err
		}
		return fromResult(res), nil

	case optimization.StrategyMonteCarlo:
		trace, err := s.optimizer.MonteCarloSimulation(expected, metrics.Covariance, assets, optimization.MonteCarloConfig{
			NumPortfolios: s.cfg.MonteCarloDraws,
			Seed:          uint64(time.Now().UnixNano()),
		})
		if err != nil {
			return nil, err
		}
		best := trace.MaxSharpe
		return &domain.OptimizationResult{
			Weights:        best.Weights,
			ExpectedReturn: best.Return,
			Volatility:     best.Volatility,
			SharpeRatio:    best.Sharpe,
			Simulation:     trace,
		}, nil

	default:
		return nil, fmt.Errorf("unknown optimization strategy %q", strategy)
	}
}

// maxSharpe sweeps target returns across the attainable range and keeps the
// constrained solve with the highest Sharpe ratio. Infeasible targets at the
// sweep edges are skipped.
func (s *Service) maxSharpe(
	expected map[string]float64,
	metrics *estimation.RiskMetrics,
	assets []string,
	opts optimization.Options,
) (*optimization.Result, error) {
	minMu, maxMu := expected[assets[0]], expected[assets[0]]
	for _, asset := range assets[1:] {
		mu := expected[asset]
		if mu < minMu {
			minMu = mu
		}
		if mu > maxMu {
			maxMu = mu
		}
	}

	const sweepPoints = 20
	var best *optimization.Result
	for i := 0; i < sweepPoints; i++ {
		target := minMu + (maxMu-minMu)*float64(i)/float64(sweepPoints-1)
		pointOpts := opts
		pointOpts.TargetReturn = &target

		res, err := s.optimizer.Optimize(expected, metrics.Covariance, assets, pointOpts)
		if err != nil {
			continue
		}
		if best == nil || res.SharpeRatio > best.SharpeRatio {
			best = res
		}
	}
	if best == nil {
		return nil, &domain.InfeasibleOptimizationError{TargetReturn: minMu, MaxAttainable: maxMu}
	}
	return best, nil
}

// EfficientFrontier builds the frontier for a request's universe and method.
func (s *Service) EfficientFrontier(ctx context.Context, req OptimizeRequest, points int) (*optimization.Frontier, error) {
	prefs := s.prefs.Resolve(ctx, req.UserID)

	assets := req.Assets
	if len(assets) == 0 {
		assets = s.prefs.BuildUniverse(prefs)
	}

	freq := req.Frequency
	if freq == "" {
		freq = domain.FrequencyMonthly
	}
	periodMonths := req.PeriodMonths
	if periodMonths <= 0 {
		periodMonths = DefaultPeriodMonths
	}

	panel, err := s.buildPanel(ctx, assets, periodMonths, freq)
	if err != nil {
		return nil, err
	}

	metrics, err := s.riskModel.CalculateRiskMetrics(panel)
	if err != nil {
		return nil, err
	}

	method := estimation.MethodMeanHistorical
	if req.Method != "" {
		parsed, err := estimation.ParseMethod(req.Method)
		if err != nil {
			return nil, err
		}
		method = parsed
	}

	var indexReturns []float64
	if method == estimation.MethodCAPM {
		series, err := s.index.HistoricalIndex(ctx, s.cfg.MarketIndex, periodMonths, freq)
		if err != nil {
			return nil, &domain.DataFetchError{Asset: s.cfg.MarketIndex, Err: err}
		}
		indexReturns, err = panel.AlignIndex(s.cfg.MarketIndex, series)
		if err != nil {
			return nil, err
		}
	}

	expected, err := s.estimator.CalculateExpectedReturns(ctx, panel, method, indexReturns)
	if err != nil {
		return nil, err
	}

	opts := optimization.Options{MaxAllocation: req.MaxAllocation}
	if opts.MaxAllocation <= 0 {
		opts.MaxAllocation = s.cfg.MaxAllocation
	}
	return s.optimizer.GenerateEfficientFrontier(expected, metrics.Covariance, panel.Assets, points, opts)
}

// StressTest applies deterministic shock scenarios to a weight allocation.
// A nil scenario list runs the default catalog.
func (s *Service) StressTest(weights map[string]float64, testScenarios []domain.StressScenario) []domain.ScenarioImpact {
	return s.stress.StressTest(weights, testScenarios)
}

// Rebalance compares current and target weights and emits trade actions for
// assets whose drift exceeds the threshold.
func (s *Service) Rebalance(current, target map[string]float64, threshold float64) *domain.RebalancingPlan {
	return s.rebalancer.Rebalance(current, target, threshold)
}

// GenerateInvestmentReport runs an optimization plus the default stress
// scenarios and assembles the client-facing report.
func (s *Service) GenerateInvestmentReport(ctx context.Context, req OptimizeRequest) (*reporting.InvestmentReport, error) {
	result, err := s.GetOptimizedPortfolio(ctx, req)
	if err != nil {
		return nil, err
	}
	impacts := s.stress.StressTest(result.Weights, nil)
	return s.reporter.GenerateInvestmentReport(req.UserID, result, impacts), nil
}

func (s *Service) buildPanel(ctx context.Context, assets []string, periodMonths int, freq domain.Frequency) (*marketdata.ReturnsPanel, error) {
	prices := make(map[string][]domain.PricePoint, len(assets))
	for _, asset := range assets {
		series, err := s.marketData.HistoricalPrices(ctx, asset, periodMonths, freq)
		if err != nil {
			return nil, err
		}
		prices[asset] = series
	}
	return marketdata.BuildPanel(prices, assets, freq)
}

func fromResult(res *optimization.Result) *domain.OptimizationResult {
	return &domain.OptimizationResult{
		Weights:        res.Weights,
		ExpectedReturn: res.ExpectedReturn,
		Volatility:     res.Volatility,
		SharpeRatio:    res.SharpeRatio,
	}
}
