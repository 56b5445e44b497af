// Package marketdata builds aligned return panels from raw price series and
// provides the local history store and calculation cache backing the engine's
// data needs.
package marketdata

import (
	"sort"

	"github.com/pesaguru/engine/internal/domain"
)

// ReturnsPanel is a time-indexed table of periodic returns, one column per
// asset. All columns share the identical date index: dates where any requested
// asset has no observation are dropped, never imputed.
type ReturnsPanel struct {
	Assets  []string             // stable ordering, matches covariance matrix layout
	Dates   []string             // shared ascending price-date index
	Returns map[string][]float64 // per-asset periodic returns, len = len(Dates)-1
	Freq    domain.Frequency
}

// NumPeriods returns the number of return observations per asset.
func (p *ReturnsPanel) NumPeriods() int {
	if len(p.Dates) < 2 {
		return 0
	}
	return len(p.Dates) - 1
}

// PeriodsPerYear returns the annualization factor for the panel's frequency.
func (p *ReturnsPanel) PeriodsPerYear() float64 {
	return p.Freq.PeriodsPerYear()
}

// BuildPanel aligns per-asset price series on their common dates and converts
// them to periodic returns. It fails with *domain.EstimationError when fewer
// than 2 overlapping return periods exist for any requested asset.
func BuildPanel(prices map[string][]domain.PricePoint, assets []string, freq domain.Frequency) (*ReturnsPanel, error) {
	if len(assets) == 0 {
		return nil, &domain.EstimationError{Reason: "no assets provided"}
	}

	// Index each asset's prices by date.
	byAsset := make(map[string]map[string]float64, len(assets))
	for _, asset := range assets {
		series, ok := prices[asset]
		if !ok || len(series) == 0 {
			return nil, &domain.EstimationError{Asset: asset, Reason: "no price history"}
		}
		dated := make(map[string]float64, len(series))
		for _, pt := range series {
			if pt.Close > 0 {
				dated[pt.Date] = pt.Close
			}
		}
		byAsset[asset] = dated
	}

	// Intersection of dates across all assets: drop, never impute.
	common := make([]string, 0)
	for date := range byAsset[assets[0]] {
		present := true
		for _, asset := range assets[1:] {
			if _, ok := byAsset[asset][date]; !ok {
				present = false
				break
			}
		}
		if present {
			common = append(common, date)
		}
	}
	sort.Strings(common)

	// Need at least 3 aligned prices for 2 overlapping return periods.
	if len(common) < 3 {
		return nil, &domain.EstimationError{
			Reason: "fewer than 2 overlapping return periods across requested assets",
		}
	}

	returns := make(map[string][]float64, len(assets))
	for _, asset := range assets {
		col := make([]float64, len(common)-1)
		for i := 1; i < len(common); i++ {
			prev := byAsset[asset][common[i-1]]
			cur := byAsset[asset][common[i]]
			col[i-1] = (cur - prev) / prev
		}
		returns[asset] = col
	}

	ordered := make([]string, len(assets))
	copy(ordered, assets)

	return &ReturnsPanel{
		Assets:  ordered,
		Dates:   common,
		Returns: returns,
		Freq:    freq,
	}, nil
}

// AlignIndex converts a market-index price series to returns on the panel's
// exact date index, so CAPM betas and the market premium are computed on
// matched periods. Fails when the index is missing any panel date.
func (p *ReturnsPanel) AlignIndex(indexName string, series []domain.PricePoint) ([]float64, error) {
	dated := make(map[string]float64, len(series))
	for _, pt := range series {
		if pt.Close > 0 {
			dated[pt.Date] = pt.Close
		}
	}

	for _, date := range p.Dates {
		if _, ok := dated[date]; !ok {
			return nil, &domain.EstimationError{
				Asset:  indexName,
				Reason: "index series does not cover the panel date " + date,
			}
		}
	}

	out := make([]float64, len(p.Dates)-1)
	for i := 1; i < len(p.Dates); i++ {
		prev := dated[p.Dates[i-1]]
		cur := dated[p.Dates[i]]
		out[i-1] = (cur - prev) / prev
	}
	return out, nil
}
