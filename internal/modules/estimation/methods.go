// Package estimation computes expected returns and risk metrics from an
// aligned returns panel.
package estimation

import "github.com/pesaguru/engine/internal/domain"

// Method is the closed set of expected-return estimation methods. Exactly one
// method is used per optimization run; estimates are never mixed across
// methods within a single run.
type Method string

const (
	MethodMeanHistorical Method = "mean_historical"
	MethodCAPM           Method = "capm"
	MethodBlackLitterman Method = "black_litterman"
)

// ParseMethod validates a method name. Unknown names fail with
// *domain.EstimationError rather than silently defaulting.
func ParseMethod(name string) (Method, error) {
	switch Method(name) {
	case MethodMeanHistorical, MethodCAPM, MethodBlackLitterman:
		return Method(name), nil
	default:
		return "", &domain.EstimationError{Reason: "unrecognized estimation method: " + name}
	}
}

// BlackLittermanRiskAversion is the fixed risk-aversion coefficient used by
// the simplified equilibrium-only Black-Litterman variant.
const BlackLittermanRiskAversion = 2.5
