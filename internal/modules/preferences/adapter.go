// Package preferences maps user risk profiles to concrete optimization
// targets and asset universes.
package preferences

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/pesaguru/engine/internal/domain"
)

// RiskTargets pairs the minimum acceptable annual return with the maximum
// tolerated annualized volatility for a risk bucket.
type RiskTargets struct {
	MinReturn float64
	MaxRisk   float64
}

// riskTable is the fixed risk-tolerance lookup.
var riskTable = map[domain.RiskTolerance]RiskTargets{
	domain.RiskConservative: {MinReturn: 0.06, MaxRisk: 0.10},
	domain.RiskModerate:     {MinReturn: 0.10, MaxRisk: 0.18},
	domain.RiskAggressive:   {MinReturn: 0.14, MaxRisk: 0.30},
}

// sectorTickers is the static sector → NSE ticker map for the supported
// universe.
var sectorTickers = map[string][]string{
	"telecom":       {"NSE:SCOM"},
	"finance":       {"NSE:EQTY", "NSE:KCB", "NSE:COOP", "NSE:ABSA"},
	"energy":        {"NSE:KEGN", "NSE:KPLC", "NSE:TOTL"},
	"manufacturing": {"NSE:EABL", "NSE:BAT", "NSE:BAMB"},
	"agriculture":   {"NSE:KAKZ", "NSE:SASN"},
}

// classTickers maps non-equity asset classes to their representative
// instruments.
var classTickers = map[domain.AssetClass][]string{
	domain.AssetClassGovBond:   {"KEGB:91D", "KEGB:364D", "KEGB:10Y"},
	domain.AssetClassMoneyMkt:  {"MMF:CIC", "MMF:SANLAM"},
	domain.AssetClassCrypto:    {"CRYPTO:BTC", "CRYPTO:ETH"},
	domain.AssetClassGlobalETF: {"ETF:SPY", "ETF:VWO"},
}

// Adapter resolves user preferences into optimization inputs.
type Adapter struct {
	profiles domain.ProfileProvider // optional; nil always yields the default profile
	log      zerolog.Logger
}

// NewAdapter creates a preference adapter.
func NewAdapter(profiles domain.ProfileProvider, log zerolog.Logger) *Adapter {
	return &Adapter{
		profiles: profiles,
		log:      log.With().Str("component", "preferences").Logger(),
	}
}

// DefaultProfile is the hardcoded fallback used when no user identity is
// supplied or the profile source has nothing for the user.
func DefaultProfile() *domain.UserPreferences {
	return &domain.UserPreferences{
		RiskTolerance:        domain.RiskModerate,
		InvestmentHorizonYrs: 5,
		PreferredAssetClasses: []domain.AssetClass{
			domain.AssetClassNSEStock,
			domain.AssetClassGovBond,
		},
		MaxAllocationPerAsset: 0.25,
	}
}

// Targets returns the (min return, max risk) pair for a risk tolerance.
// Unknown tolerances fall back to moderate.
func (a *Adapter) Targets(tolerance domain.RiskTolerance) RiskTargets {
	if targets, ok := riskTable[tolerance]; ok {
		return targets
	}
	return riskTable[domain.RiskModerate]
}

// Resolve loads the user's preferences, falling back to the default profile
// when userID is empty or unknown.
func (a *Adapter) Resolve(ctx context.Context, userID string) *domain.UserPreferences {
	if userID == "" || a.profiles == nil {
		return DefaultProfile()
	}
	prefs, err := a.profiles.RiskProfile(ctx, userID)
	if err != nil || prefs == nil {
		a.log.Warn().
			Str("user_id", userID).
			Err(err).
			Msg("Failed to load risk profile, using default")
		return DefaultProfile()
	}
	if prefs.MaxAllocationPerAsset <= 0 {
		prefs.MaxAllocationPerAsset = DefaultProfile().MaxAllocationPerAsset
	}
	return prefs
}

// BuildUniverse maps the user's preferred sectors and asset classes to a
// concrete asset list, removing anything in an excluded sector. The result is
// sorted for stable downstream matrix ordering.
func (a *Adapter) BuildUniverse(prefs *domain.UserPreferences) []string {
	included := make(map[string]bool)

	addSector := func(sector string) {
		for _, ticker := range sectorTickers[sector] {
			included[ticker] = true
		}
	}

	if len(prefs.PreferredSectors) > 0 {
		for _, sector := range prefs.PreferredSectors {
			addSector(sector)
		}
	}

	for _, class := range prefs.PreferredAssetClasses {
		if class == domain.AssetClassNSEStock {
			// Equities enter via sectors; no preferred sectors means the
			// whole equity universe.
			if len(prefs.PreferredSectors) == 0 {
				for sector := range sectorTickers {
					addSector(sector)
				}
			}
			continue
		}
		for _, ticker := range classTickers[class] {
			included[ticker] = true
		}
	}

	for _, sector := range prefs.ExcludedSectors {
		for _, ticker := range sectorTickers[sector] {
			delete(included, ticker)
		}
	}

	universe := make([]string, 0, len(included))
	for ticker := range included {
		universe = append(universe, ticker)
	}
	sort.Strings(universe)

	a.log.Debug().
		Int("universe_size", len(universe)).
		Str("risk_tolerance", string(prefs.RiskTolerance)).
		Msg("Built asset universe")

	return universe
}

// SectorOf returns the sector for an NSE ticker, or empty when unmapped.
func SectorOf(asset string) string {
	for sector, tickers := range sectorTickers {
		for _, ticker := range tickers {
			if ticker == asset {
				return sector
			}
		}
	}
	return ""
}

// Sectors lists the known sectors in sorted order.
func Sectors() []string {
	out := make([]string, 0, len(sectorTickers))
	for sector := range sectorTickers {
		out = append(out, sector)
	}
	sort.Strings(out)
	return out
}
