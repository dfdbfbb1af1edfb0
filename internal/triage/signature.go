// Package triage deduplicates fault-triggering test cases and exports them
// as self-contained reproduction directories.
package triage

import (
	"fmt"

	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
	"github.com/henryhchchc/lsp-fuzz/internal/executor"
)

// SignatureFunc computes the dedup key for a fault. The right granularity is
// a tunable, not fixed semantics: coverage-hash groups by execution shape,
// fault-site groups by how the target died.
type SignatureFunc func(outcome executor.Outcome, cov *coverage.Map) string

// Strategy names accepted in configuration.
const (
	StrategyCoverageHash = "coverage-hash"
	StrategyFaultSite    = "fault-site"
)

// SignatureStrategy resolves a configured strategy name.
func SignatureStrategy(name string) (SignatureFunc, error) {
	switch name {
	case StrategyCoverageHash, "":
		return CoverageHashSignature, nil
	case StrategyFaultSite:
		return FaultSiteSignature, nil
	default:
		return nil, fmt.Errorf("unknown signature strategy %q", name)
	}
}

// CoverageHashSignature keys a fault by outcome kind and the bucketed hash
// of its coverage snapshot. The default strategy.
func CoverageHashSignature(outcome executor.Outcome, cov *coverage.Map) string {
	return fmt.Sprintf("%d:%016x", outcome.Kind, cov.Hash())
}

// FaultSiteSignature keys a fault by how the target died (signal for
// crashes), collapsing many paths to the same bug into one record. Coarser
// than coverage hashing.
func FaultSiteSignature(outcome executor.Outcome, _ *coverage.Map) string {
	return fmt.Sprintf("%d:signal-%d", outcome.Kind, outcome.Signal)
}
