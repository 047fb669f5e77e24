package expect

import (
	"errors"
	"fmt"
)

// Decision is the reviewer's response to one presented diff.
type Decision uint8

const (
	DecisionAccept Decision = iota
	DecisionReject
	DecisionSkip
	// DecisionNext / DecisionPrev cycle among candidate patterns without
	// ending the review round.
	DecisionNext
	DecisionPrev
)

// Terminal reports whether the decision ends the review round.
func (d Decision) Terminal() bool {
	switch d {
	case DecisionAccept, DecisionReject, DecisionSkip:
		return true
	default:
		return false
	}
}

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionReject:
		return "reject"
	case DecisionSkip:
		return "skip"
	case DecisionNext:
		return "next"
	case DecisionPrev:
		return "prev"
	default:
		return fmt.Sprintf("decision(%d)", uint8(d))
	}
}

// Outcome classifies the terminal result of one reconciliation.
type Outcome uint8

const (
	// OutcomeNew: a previously unrecorded expectation was accepted.
	OutcomeNew Outcome = iota
	// OutcomeUpdated: an existing expectation was replaced.
	OutcomeUpdated
	// OutcomeSkipped: the reviewer deferred; the suite fails at exit.
	OutcomeSkipped
	// OutcomeRejected: the reviewer declined; the original comparison runs
	// unpatched and fails normally.
	OutcomeRejected
	// OutcomeFileChanged: the file diverged from the staging baseline.
	// Counted as skipped, tracked per file for the end-of-run report.
	OutcomeFileChanged
)

// Accepted reports whether the outcome materialized a new expectation.
func (o Outcome) Accepted() bool {
	return o == OutcomeNew || o == OutcomeUpdated
}

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFileChanged:
		return "file changed"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Sentinel errors carried back to the suspended worker. The worker maps them
// onto the ordinary test-failure path; see Err.
var (
	ErrSkipped     = errors.New("expectation skipped by reviewer")
	ErrRejected    = errors.New("expectation rejected by reviewer")
	ErrFileChanged = errors.New("file changed since expectation was staged")
)

// Err converts a non-accepting outcome into its sentinel error. Accepting
// outcomes return nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeSkipped:
		return ErrSkipped
	case OutcomeRejected:
		return ErrRejected
	case OutcomeFileChanged:
		return ErrFileChanged
	default:
		return nil
	}
}

// OutcomeOf is the inverse of Err for the error half of the taxonomy;
// accepted is reported separately because both OutcomeNew and OutcomeUpdated
// map to a nil error.
func OutcomeOf(err error) (Outcome, bool) {
	switch {
	case errors.Is(err, ErrSkipped):
		return OutcomeSkipped, true
	case errors.Is(err, ErrRejected):
		return OutcomeRejected, true
	case errors.Is(err, ErrFileChanged):
		return OutcomeFileChanged, true
	default:
		return 0, false
	}
}
