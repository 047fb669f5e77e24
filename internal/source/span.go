package source

import (
	"fmt"
)

type Span struct {
	File  FileID
	Start uint32 // в байтах включительно
	End   uint32 // в байтах не включительно
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Contains reports whether off falls inside the half-open interval [Start, End).
func (s Span) Contains(off uint32) bool {
	return s.Start <= off && off < s.End
}

// Overlaps reports whether two spans on the same file intersect. Spans are
// half-open; two zero-length spans never overlap, and a zero-length span
// overlaps a non-empty one only when its position sits strictly inside it.
func (s Span) Overlaps(other Span) bool {
	if s.File != other.File {
		return false
	}
	if s.Empty() && other.Empty() {
		return false
	}
	if s.Empty() {
		return other.Contains(s.Start)
	}
	if other.Empty() {
		return s.Contains(other.Start)
	}
	return s.Start < other.End && other.Start < s.End
}
