package estimation

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/pesaguru/engine/internal/domain"
	"github.com/pesaguru/engine/internal/marketdata"
)

// HighCorrelationThreshold marks asset pairs reported as highly correlated.
const HighCorrelationThreshold = 0.80

// RiskMetrics holds the annualized risk outputs for a returns panel. The
// covariance and correlation matrices follow the Assets ordering.
type RiskMetrics struct {
	Assets      []string
	Volatility  map[string]float64 // annualized per-asset volatility
	Covariance  [][]float64        // annualized shrinkage covariance
	Correlation [][]float64
}

// CorrelationPair reports a highly correlated asset pair for diagnostics.
type CorrelationPair struct {
	Asset1      string  `json:"asset1"`
	Asset2      string  `json:"asset2"`
	Correlation float64 `json:"correlation"`
}

// RiskModelBuilder builds covariance matrices and risk metrics for the
// optimizer. The shrinkage estimator is deterministic for fixed input and
// produces a positive-semi-definite matrix even when the panel has fewer
// periods than assets.
type RiskModelBuilder struct {
	cache *marketdata.CalcCache // optional
	log   zerolog.Logger
}

// NewRiskModelBuilder creates a new risk model builder.
func NewRiskModelBuilder(log zerolog.Logger) *RiskModelBuilder {
	return &RiskModelBuilder{
		log: log.With().Str("component", "risk_model").Logger(),
	}
}

// SetCache enables caching of covariance results. Optional; without it every
// call computes fresh.
func (rb *RiskModelBuilder) SetCache(cache *marketdata.CalcCache) {
	rb.cache = cache
}

// CalculateRiskMetrics computes annualized volatility, the shrinkage
// covariance matrix and the correlation matrix for a panel.
func (rb *RiskModelBuilder) CalculateRiskMetrics(panel *marketdata.ReturnsPanel) (*RiskMetrics, error) {
	if panel.NumPeriods() < 2 {
		return nil, &domain.EstimationError{Reason: "need at least 2 return periods for risk metrics"}
	}

	cacheKey := ""
	if rb.cache != nil {
		cacheKey = marketdata.HashAssets(panel.Assets) + "|" + panel.Dates[0] + "|" + panel.Dates[len(panel.Dates)-1] + "|" + string(panel.Freq)
		var cached RiskMetrics
		if rb.cache.Get("risk_metrics", cacheKey, &cached) {
			rb.log.Debug().
				Int("num_assets", len(panel.Assets)).
				Msg("Using cached risk metrics")
			return &cached, nil
		}
	}

	periodsPerYear := panel.PeriodsPerYear()
	n := len(panel.Assets)

	// Sample covariance of periodic returns.
	sampleCov, err := sampleCovariance(panel.Returns, panel.Assets)
	if err != nil {
		return nil, err
	}

	// Shrinkage for conditioning, then annualize.
	shrunk := applyLedoitWolfShrinkage(sampleCov)
	ensurePositiveSemiDefinite(shrunk)

	annualCov := make([][]float64, n)
	for i := range shrunk {
		annualCov[i] = make([]float64, n)
		for j := range shrunk[i] {
			annualCov[i][j] = shrunk[i][j] * periodsPerYear
		}
	}

	volatility := make(map[string]float64, n)
	for i, asset := range panel.Assets {
		volatility[asset] = math.Sqrt(math.Max(annualCov[i][i], 0))
	}

	correlation := correlationFromCovariance(annualCov)

	metrics := &RiskMetrics{
		Assets:      append([]string(nil), panel.Assets...),
		Volatility:  volatility,
		Covariance:  annualCov,
		Correlation: correlation,
	}

	if rb.cache != nil {
		if err := rb.cache.Set("risk_metrics", cacheKey, metrics, marketdata.TTLCovariance); err != nil {
			rb.log.Warn().Err(err).Msg("Failed to cache risk metrics")
		}
	}

	rb.log.Info().
		Int("num_assets", n).
		Int("num_periods", panel.NumPeriods()).
		Msg("Calculated risk metrics with Ledoit-Wolf shrinkage")

	return metrics, nil
}

// HighCorrelations extracts asset pairs whose absolute correlation meets the
// threshold.
func (rb *RiskModelBuilder) HighCorrelations(metrics *RiskMetrics, threshold float64) []CorrelationPair {
	pairs := make([]CorrelationPair, 0)
	for i := 0; i < len(metrics.Assets); i++ {
		for j := i + 1; j < len(metrics.Assets); j++ {
			corr := metrics.Correlation[i][j]
			if math.Abs(corr) >= threshold {
				pairs = append(pairs, CorrelationPair{
					Asset1:      metrics.Assets[i],
					Asset2:      metrics.Assets[j],
					Correlation: corr,
				})
			}
		}
	}
	return pairs
}

// sampleCovariance calculates the sample covariance matrix of periodic
// returns. Element (i,j) is the covariance between assets[i] and assets[j].
func sampleCovariance(returns map[string][]float64, assets []string) ([][]float64, error) {
	var returnLength int
	for _, asset := range assets {
		ret, ok := returns[asset]
		if !ok {
			return nil, &domain.EstimationError{Asset: asset, Reason: "missing returns column"}
		}
		if returnLength == 0 {
			returnLength = len(ret)
		}
		if len(ret) != returnLength {
			return nil, &domain.EstimationError{Asset: asset, Reason: "misaligned returns column"}
		}
	}
	if returnLength < 2 {
		return nil, &domain.EstimationError{Reason: "insufficient data: need at least 2 observations"}
	}

	n := len(assets)
	covMatrix := make([][]float64, n)
	for i := range covMatrix {
		covMatrix[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov := stat.Covariance(returns[assets[i]], returns[assets[j]], nil)
			covMatrix[i][j] = cov
			covMatrix[j][i] = cov
		}
	}

	return covMatrix, nil
}

// applyLedoitWolfShrinkage blends the sample covariance toward a constant-
// correlation target with a fixed intensity to keep the estimate
// well-conditioned with short histories.
//
// Reference: Ledoit & Wolf (2004), "A well-conditioned estimator for
// large-dimensional covariance matrices".
func applyLedoitWolfShrinkage(sampleCov [][]float64) [][]float64 {
	n := len(sampleCov)
	if n == 0 {
		return sampleCov
	}

	// Shrinkage target: average variance on the diagonal, average covariance
	// off the diagonal (constant correlation model).
	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sampleCov[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sampleCov[i][j]
			}
		}
	}
	avgVar /= float64(n)
	if n > 1 {
		avgCov /= float64(n * (n - 1))
	}

	target := func(i, j int) float64 {
		if i == j {
			return avgVar
		}
		return avgCov
	}

	// Fixed intensity. The analytic Ledoit-Wolf estimate needs per-period
	// element variances that the sample covariance alone does not carry, and a
	// data-driven intensity can swamp the sample structure on short panels.
	const shrinkage = 0.2

	shrunk := make([][]float64, n)
	for i := 0; i < n; i++ {
		shrunk[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			shrunk[i][j] = (1-shrinkage)*sampleCov[i][j] + shrinkage*target(i, j)
		}
	}
	return shrunk
}

// ensurePositiveSemiDefinite clips negative eigenvalues in place so downstream
// solvers always see a valid covariance matrix, even when the panel has fewer
// periods than assets.
func ensurePositiveSemiDefinite(cov [][]float64) {
	n := len(cov)
	if n == 0 {
		return
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (cov[i][j]+cov[j][i])/2)
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return // leave the symmetrized matrix as-is
	}

	values := eig.Values(nil)
	minEig := values[0]
	for _, v := range values {
		if v < minEig {
			minEig = v
		}
	}
	if minEig >= 0 {
		// Already PSD; still write back the symmetrized values.
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				cov[i][j] = sym.At(i, j)
			}
		}
		return
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Reconstruct with clipped eigenvalues: V * max(L, 0) * V'.
	clipped := mat.NewDiagDense(n, nil)
	for i, v := range values {
		clipped.SetDiag(i, math.Max(v, 0))
	}

	var tmp, rebuilt mat.Dense
	tmp.Mul(&vectors, clipped)
	rebuilt.Mul(&tmp, vectors.T())

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cov[i][j] = (rebuilt.At(i, j) + rebuilt.At(j, i)) / 2
		}
	}
}

// correlationFromCovariance derives the correlation matrix, guarding zero
// variances.
func correlationFromCovariance(cov [][]float64) [][]float64 {
	n := len(cov)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				corr[i][j] = 1.0
				continue
			}
			denom := math.Sqrt(cov[i][i] * cov[j][j])
			if denom > 0 {
				corr[i][j] = cov[i][j] / denom
			}
		}
	}
	return corr
}
