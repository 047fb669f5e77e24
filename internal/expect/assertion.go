package expect

import (
	"errors"
	"fmt"
)

// Stage describes why an assertion needs reconciliation.
type Stage uint8

const (
	// StageNew marks an assertion with no recorded expectation yet.
	StageNew Stage = iota
	// StageUpdate marks an assertion whose recorded expectation no longer
	// matches the captured value.
	StageUpdate
)

func (s Stage) String() string {
	switch s {
	case StageNew:
		return "new"
	case StageUpdate:
		return "update"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// GroupID identifies the logical batch an assertion belongs to. In practice
// this is the top-level test function name: assertions under the same
// top-level test are reviewed together.
type GroupID string

// GroupNone means "no group filter".
const GroupNone GroupID = ""

// Identity pins an assertion to one call site in one test.
type Identity struct {
	File  string
	Line  uint32
	Test  string
	Group GroupID
}

// Key renders a stable identity string used for history records and dedup.
func (id Identity) Key() string {
	return fmt.Sprintf("%s:%d:%s", id.File, id.Line, id.Test)
}

func (id Identity) String() string {
	return id.Key()
}

// Assertion is one reconciliation unit: a call site, the value captured
// there, and the candidate replacement expressions. Created once when the
// test expression executes, consumed exactly once by the coordinator.
// Immutable except for Regenerated, which is set after an accepting decision.
type Assertion struct {
	ID       Identity
	Stage    Stage
	Value    string   // representation of the captured value
	Recorded string   // current expectation literal, "" at StageNew
	Patterns []string // candidate replacement expressions, best first

	// Regenerated holds the accepted replacement expression. Empty until a
	// decision accepts one of the candidates.
	Regenerated string
}

// Pattern returns the candidate at idx, clamped into range. An assertion
// always carries at least one candidate by construction; callers cycle idx
// via navigate decisions.
func (a *Assertion) Pattern(idx int) string {
	if len(a.Patterns) == 0 {
		return ""
	}
	idx %= len(a.Patterns)
	if idx < 0 {
		idx += len(a.Patterns)
	}
	return a.Patterns[idx]
}

// Valid reports whether the assertion carries enough to be reconciled.
func (a *Assertion) Valid() error {
	if a.ID.File == "" {
		return errors.New("assertion has no source file")
	}
	if a.ID.Line == 0 {
		return errors.New("assertion has no source line")
	}
	if a.ID.Test == "" {
		return errors.New("assertion has no test name")
	}
	if len(a.Patterns) == 0 {
		return errors.New("assertion has no candidate patterns")
	}
	return nil
}
