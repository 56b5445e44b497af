package domain

import (
	"fmt"
	"time"
)

// EstimationError indicates the risk/return estimator could not produce an
// estimate: insufficient overlapping history, misaligned series, or an
// unrecognized estimation method.
type EstimationError struct {
	Asset  string // offending asset, empty when the failure is not asset-specific
	Reason string
}

func (e *EstimationError) Error() string {
	if e.Asset != "" {
		return fmt.Sprintf("estimation failed for %s: %s", e.Asset, e.Reason)
	}
	return fmt.Sprintf("estimation failed: %s", e.Reason)
}

// InfeasibleOptimizationError indicates no weight vector satisfies the
// constraints, typically a target return above what bounded weights can reach.
type InfeasibleOptimizationError struct {
	TargetReturn  float64
	MaxAttainable float64
}

func (e *InfeasibleOptimizationError) Error() string {
	return fmt.Sprintf("infeasible optimization: target return %.4f exceeds max attainable %.4f under bounds", e.TargetReturn, e.MaxAttainable)
}

// DataFetchError wraps a failure from the external market-data collaborator.
// The engine does not retry; retries belong to the data layer.
type DataFetchError struct {
	Asset string
	Err   error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("data fetch failed for %s: %v", e.Asset, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// OptimizationTimeoutError is returned by the bounded-time wrapper when a
// caller-imposed deadline elapses before the solve finishes. The engine itself
// defines no cancellation for in-progress optimizations.
type OptimizationTimeoutError struct {
	Elapsed time.Duration
}

func (e *OptimizationTimeoutError) Error() string {
	return fmt.Sprintf("optimization timed out after %s", e.Elapsed)
}
