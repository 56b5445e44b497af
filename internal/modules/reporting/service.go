package reporting

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pesaguru/engine/internal/domain"
	"github.com/pesaguru/engine/internal/modules/preferences"
)

// Allocation thresholds driving the sector recommendations.
const (
	FinanceMinAllocation   = 0.15
	SectorMaxConcentration = 0.35
	CashMinAllocation      = 0.05
)

// SectorRecommendation is one actionable observation about the allocation.
type SectorRecommendation struct {
	Sector    string `json:"sector"`
	Action    string `json:"action"` // "increase", "reduce", "hold"
	Rationale string `json:"rationale"`
}

// InvestmentReport is the full client-facing report payload.
type InvestmentReport struct {
	ID               string                     `json:"id"`
	UserID           string                     `json:"user_id,omitempty"`
	GeneratedAt      time.Time                  `json:"generated_at"`
	Portfolio        *domain.OptimizationResult `json:"portfolio"`
	SectorAllocation map[string]float64         `json:"sector_allocation"`
	StressTests      []domain.ScenarioImpact    `json:"stress_tests,omitempty"`
	Recommendations  []SectorRecommendation     `json:"recommendations"`
	MarketContext    MarketOutlook              `json:"market_context"`
}

// Reporter builds investment reports from optimizer output.
type Reporter struct {
	outlook  *OutlookService
	classify domain.Classifier
	log      zerolog.Logger
}

// NewReporter creates a reporter. classify buckets non-equity assets; nil
// defaults everything unrecognized to "other".
func NewReporter(outlook *OutlookService, classify domain.Classifier, log zerolog.Logger) *Reporter {
	return &Reporter{
		outlook:  outlook,
		classify: classify,
		log:      log.With().Str("component", "reporting").Logger(),
	}
}

// GenerateInvestmentReport assembles a report for an optimized portfolio.
// stress may be nil when no stress test ran.
func (r *Reporter) GenerateInvestmentReport(
	userID string,
	result *domain.OptimizationResult,
	stress []domain.ScenarioImpact,
) *InvestmentReport {
	sectors := r.SectorAllocation(result.Weights)

	report := &InvestmentReport{
		ID:               uuid.NewString(),
		UserID:           userID,
		GeneratedAt:      time.Now().UTC(),
		Portfolio:        result,
		SectorAllocation: sectors,
		StressTests:      stress,
		MarketContext:    r.outlook.Current(),
	}
	report.Recommendations = r.recommend(sectors, report.MarketContext)

	r.log.Info().
		Str("report_id", report.ID).
		Int("recommendations", len(report.Recommendations)).
		Msg("Generated investment report")

	return report
}

// SectorAllocation buckets portfolio weights. NSE equities map to their
// sector; other asset classes bucket under the class name.
func (r *Reporter) SectorAllocation(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for asset, w := range weights {
		bucket := preferences.SectorOf(asset)
		if bucket == "" {
			bucket = "other"
			if r.classify != nil {
				if class := r.classify(asset); class != domain.AssetClassUnknown {
					bucket = string(class)
				}
			}
		}
		out[bucket] += w
	}
	return out
}

func (r *Reporter) recommend(sectors map[string]float64, outlook MarketOutlook) []SectorRecommendation {
	var recs []SectorRecommendation

	if sectors["finance"] < FinanceMinAllocation && outlook.EquityTrend == TrendPositive {
		recs = append(recs, SectorRecommendation{
			Sector:    "finance",
			Action:    "increase",
			Rationale: "Financial sector allocation is below target while the equity market trend is positive.",
		})
	}

	names := make([]string, 0, len(sectors))
	for name := range sectors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if sectors[name] > SectorMaxConcentration {
			recs = append(recs, SectorRecommendation{
				Sector:    name,
				Action:    "reduce",
				Rationale: "Allocation exceeds the single-sector concentration ceiling.",
			})
		}
	}

	cash := sectors[string(domain.AssetClassMoneyMkt)]
	if cash < CashMinAllocation && outlook.EquityTrend == TrendNegative {
		recs = append(recs, SectorRecommendation{
			Sector:    string(domain.AssetClassMoneyMkt),
			Action:    "increase",
			Rationale: "Money market buffer is thin while the equity market trend is negative.",
		})
	}

	if len(recs) == 0 {
		recs = append(recs, SectorRecommendation{
			Sector:    "portfolio",
			Action:    "hold",
			Rationale: "Allocation is within all sector guidelines for the current market outlook.",
		})
	}

	return recs
}
