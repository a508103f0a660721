package core

import "fmt"

// AssertionError marks an internal invariant violation — per spec §7 these
// are fatal bugs and unreachable given the public contracts. No entry
// point in this module recovers one, so it propagates as a panic;
// errors.RecoverAssertion converts one into an ErrInternal for a caller
// that defers it.
type AssertionError struct {
	Invariant string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("segcore: internal invariant violated: %s", e.Invariant)
}

// Assert panics with an *AssertionError if cond is false. Use only for
// invariants the public API contract already guarantees — never as a
// substitute for validating caller input.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(&AssertionError{Invariant: fmt.Sprintf(format, args...)})
	}
}
