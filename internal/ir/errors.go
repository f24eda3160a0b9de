package ir

import "fmt"

// Error kinds of the optimization core. A VerifyError after a pass is an
// internal-compiler error and halts the pipeline; a PolicyError aborts only
// the pass that received the malformed policy. Recursive call sites are not
// errors at all: the inliner skips them and logs at debug verbosity.

// VerifyError reports a structurally inconsistent function graph, pointing
// at the offending instruction where one exists.
type VerifyError struct {
	Fn    string
	Block BlockID
	Value ValueID
	Msg   string
}

func (e *VerifyError) Error() string {
	if e.Value >= 0 {
		return fmt.Sprintf("verify %s: block %d, instruction v%d: %s", e.Fn, e.Block, e.Value, e.Msg)
	}
	if e.Block >= 0 {
		return fmt.Sprintf("verify %s: block %d: %s", e.Fn, e.Block, e.Msg)
	}
	return fmt.Sprintf("verify %s: %s", e.Fn, e.Msg)
}

// PolicyError reports a malformed inlining policy directive. It is surfaced
// to the invoking tool, never to the end user of the language.
type PolicyError struct {
	Directive string
	Msg       string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy %q: %s", e.Directive, e.Msg)
}
