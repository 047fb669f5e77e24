// Package prompt defines the reviewer-facing decision channel. A Prompter is
// handed one review round at a time; it never runs concurrently with another
// prompt because the coordinator serializes all decision traffic.
package prompt

import (
	"mend/internal/diffview"
	"mend/internal/expect"
)

// View is everything a prompter may show for one candidate of one assertion.
type View struct {
	Assertion *expect.Assertion
	// Diff between the recorded expectation text and the proposed candidate.
	Diff []diffview.Line
	// Candidate index and count for the navigate controls.
	CandidateIdx   int
	CandidateCount int
	// History lists past decisions for this assertion, oldest first.
	History []string
	// Path is the call site formatted for display.
	Path string
}

// Prompter returns the reviewer's decision for one presented view.
// Non-terminal decisions (navigate) make the caller re-prompt with the
// neighboring candidate; terminal decisions end the round.
type Prompter interface {
	Prompt(view View) (expect.Decision, error)
}

// Func adapts a function to the Prompter interface.
type Func func(view View) (expect.Decision, error)

func (f Func) Prompt(view View) (expect.Decision, error) {
	return f(view)
}

// AutoAccept accepts every candidate without interaction. Used for unattended
// runs that should record everything.
func AutoAccept() Prompter {
	return Func(func(View) (expect.Decision, error) {
		return expect.DecisionAccept, nil
	})
}

// AutoReject rejects every candidate without interaction. Used for CI runs
// where a pending reconciliation must fail the build.
func AutoReject() Prompter {
	return Func(func(View) (expect.Decision, error) {
		return expect.DecisionReject, nil
	})
}

// AutoSkip defers every candidate. The suite still fails at exit, but no
// source file is touched.
func AutoSkip() Prompter {
	return Func(func(View) (expect.Decision, error) {
		return expect.DecisionSkip, nil
	})
}
