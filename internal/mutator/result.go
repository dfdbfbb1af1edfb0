// Package mutator implements the two-stage mutation pipeline: structural and
// byte-level document mutation (stage A) followed by protocol-sequence
// mutation (stage B), with positional parameters re-clamped against the
// mutated workspace.
package mutator

// Result is the explicit outcome of one mutation operator. Operators report
// Skipped with a reason instead of failing, so operator-weight adaptation
// can observe failure rates directly and the pipeline can fall back.
type Result struct {
	Applied bool
	Reason  string // why the operator was skipped; empty when applied
}

// Applied is the success result.
func Applied() Result { return Result{Applied: true} }

// Skipped reports an inapplicable operator.
func Skipped(reason string) Result { return Result{Reason: reason} }
