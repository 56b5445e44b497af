// Package formulas provides pure financial math helpers shared by the engine
// modules. All functions are side-effect free.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// CalculateReturns converts a price series to periodic percentage returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedMeanReturn annualizes the arithmetic mean of periodic returns by
// the number of periods per year (12 for monthly, 252 for daily).
func AnnualizedMeanReturn(periodicReturns []float64, periodsPerYear float64) float64 {
	if len(periodicReturns) == 0 {
		return 0
	}
	return Mean(periodicReturns) * periodsPerYear
}

// AnnualizedVolatility scales the standard deviation of periodic returns by
// the square root of the number of periods per year.
func AnnualizedVolatility(periodicReturns []float64, periodsPerYear float64) float64 {
	if len(periodicReturns) < 2 {
		return 0
	}
	return StdDev(periodicReturns) * math.Sqrt(periodsPerYear)
}

// SharpeRatio computes return divided by volatility with an optional risk-free
// rate. ok is false when volatility is not strictly positive; callers must
// treat that as a degenerate case rather than dividing through to Inf.
func SharpeRatio(expectedReturn, volatility, riskFree float64) (ratio float64, ok bool) {
	if volatility <= 0 {
		return 0, false
	}
	return (expectedReturn - riskFree) / volatility, true
}

// PortfolioReturn computes mu'w for weights and expected returns keyed by asset.
func PortfolioReturn(weights, expectedReturns map[string]float64) float64 {
	total := 0.0
	for asset, w := range weights {
		total += w * expectedReturns[asset]
	}
	return total
}

// PortfolioVariance computes w'Sigma w where the covariance matrix rows/columns
// follow the order of the assets slice.
func PortfolioVariance(weights map[string]float64, covMatrix [][]float64, assets []string) float64 {
	variance := 0.0
	for i, ai := range assets {
		wi := weights[ai]
		if wi == 0 {
			continue
		}
		for j, aj := range assets {
			variance += wi * weights[aj] * covMatrix[i][j]
		}
	}
	return variance
}

// MaxDrawdown computes the maximum peak-to-trough decline of a cumulative
// growth path implied by periodic returns.
func MaxDrawdown(periodicReturns []float64) float64 {
	if len(periodicReturns) == 0 {
		return 0
	}

	value := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range periodicReturns {
		value *= 1 + r
		if value > peak {
			peak = value
		}
		dd := (peak - value) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
