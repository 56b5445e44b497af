// Package scenarios applies deterministic shock scenarios to weighted
// portfolios to estimate stress impact.
package scenarios

import (
	"strings"

	"github.com/pesaguru/engine/internal/domain"
)

// PrefixRule binds an asset-identifier prefix to an asset class.
type PrefixRule struct {
	Prefix string
	Class  domain.AssetClass
}

// DefaultPrefixRules classify the Kenyan-market asset identifiers the engine
// works with. Rules are ordered; the FIRST matching prefix wins, which is the
// explicit tie-break when prefixes overlap.
func DefaultPrefixRules() []PrefixRule {
	return []PrefixRule{
		{Prefix: "NSE:", Class: domain.AssetClassNSEStock},
		{Prefix: "KEGB:", Class: domain.AssetClassGovBond},
		{Prefix: "MMF:", Class: domain.AssetClassMoneyMkt},
		{Prefix: "CRYPTO:", Class: domain.AssetClassCrypto},
		{Prefix: "ETF:", Class: domain.AssetClassGlobalETF},
	}
}

// NewPrefixClassifier builds a domain.Classifier from ordered prefix rules.
// Assets matching no rule classify as AssetClassUnknown and receive zero
// impact in every scenario.
func NewPrefixClassifier(rules []PrefixRule) domain.Classifier {
	return func(asset string) domain.AssetClass {
		for _, rule := range rules {
			if strings.HasPrefix(asset, rule.Prefix) {
				return rule.Class
			}
		}
		return domain.AssetClassUnknown
	}
}
