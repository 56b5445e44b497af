// Package domain holds the core types shared by the portfolio engine modules.
// It is pure: no infrastructure dependencies, no logging, no database access.
package domain

// AssetClass identifies the broad bucket an asset trades in. Classes drive
// stress-scenario impact lookup and the preference adapter's universe building.
type AssetClass string

const (
	AssetClassNSEStock  AssetClass = "nse_stock"
	AssetClassGovBond   AssetClass = "gov_bond"
	AssetClassMoneyMkt  AssetClass = "money_market"
	AssetClassCrypto    AssetClass = "crypto"
	AssetClassGlobalETF AssetClass = "global_etf"
	AssetClassUnknown   AssetClass = "unknown"
)

// Classifier maps an asset identifier (e.g. "NSE:SCOM", "KEGB:91D", "CRYPTO:BTC")
// to its asset class. Injected rather than hardcoded so stress scenarios and
// tests can supply their own classification rules.
type Classifier func(asset string) AssetClass

// PricePoint is a single observation in a price series.
type PricePoint struct {
	Date  string // "2006-01-02"
	Close float64
}

// RiskTolerance is the user's risk bucket. The preference adapter maps each
// bucket to concrete return/risk targets.
type RiskTolerance string

const (
	RiskConservative RiskTolerance = "conservative"
	RiskModerate     RiskTolerance = "moderate"
	RiskAggressive   RiskTolerance = "aggressive"
)

// UserPreferences is the read-only preference input to an optimization run.
// Supplied by the profile collaborator; never mutated by the engine.
type UserPreferences struct {
	RiskTolerance         RiskTolerance
	InvestmentHorizonYrs  int
	PreferredSectors      []string
	ExcludedSectors       []string
	PreferredAssetClasses []AssetClass
	MaxAllocationPerAsset float64 // per-asset weight cap, (0, 1]
}

// OptimizationResult is the immutable outcome of a single optimization call.
// The engine does not persist results; persistence is a caller concern.
type OptimizationResult struct {
	Weights        map[string]float64 `json:"weights"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	CVaR95         float64            `json:"cvar_95"`
	Method         string             `json:"method"`

	// Simulation holds the Monte Carlo trace when the monte_carlo strategy ran.
	Simulation *SimulationTrace `json:"simulation,omitempty"`
}

// SimulationTrace summarizes a Monte Carlo random-portfolio search.
type SimulationTrace struct {
	NumPortfolios int             `json:"num_portfolios"`
	MaxSharpe     PortfolioSample `json:"max_sharpe"`
	MinVolatility PortfolioSample `json:"min_volatility"`
}

// PortfolioSample is one sampled portfolio from the Monte Carlo search.
type PortfolioSample struct {
	Weights    map[string]float64 `json:"weights"`
	Return     float64            `json:"return"`
	Volatility float64            `json:"volatility"`
	Sharpe     float64            `json:"sharpe"`
}

// StressScenario is a deterministic shock applied to asset-class buckets.
type StressScenario struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Impacts     map[AssetClass]float64 `json:"impacts"` // fractional impact, e.g. -0.30
}

// ScenarioImpact is the effect of one scenario on a weighted portfolio.
type ScenarioImpact struct {
	Scenario      string  `json:"scenario"`
	Description   string  `json:"description"`
	ImpactPercent float64 `json:"impact_percent"` // weighted fractional impact
	BaseValue     float64 `json:"base_value"`
	NewValue      float64 `json:"new_value"`
	ChangeAmount  float64 `json:"change_amount"`
}

// RebalancingAction is a single buy/sell instruction derived from drift.
// Assets under the threshold are implicitly "hold" and never emitted.
type RebalancingAction struct {
	Asset            string  `json:"asset"`
	Action           string  `json:"action"` // "buy" or "sell"
	Drift            float64 `json:"drift"`  // current - target
	AdjustmentAmount float64 `json:"adjustment_amount"`
}

// RebalancingPlan aggregates the emitted actions plus diagnostics.
type RebalancingPlan struct {
	Actions          []RebalancingAction `json:"actions"`
	TotalTradeAmount float64             `json:"total_trade_amount"`
	MaxDrift         float64             `json:"max_drift"` // max |drift| across ALL assets
	Threshold        float64             `json:"threshold"`
}
