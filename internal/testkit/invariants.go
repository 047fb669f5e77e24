package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"mend/internal/source"
)

// CheckEditSpans runs a minimal set of invariants on the spans of edits
// staged against one file:
// 1) every span is well-formed (Start <= End) and within content bounds
// 2) spans are sorted by start offset
// 3) no two spans overlap
// Point spans (Start == End) are legal: they mark pure insertions.
func CheckEditSpans(spans []source.Span, contentLen int) error {
	limit, err := safecast.Conv[uint32](contentLen)
	if err != nil {
		return fmt.Errorf("content length overflow: %w", err)
	}

	for i, sp := range spans {
		if sp.End < sp.Start {
			return fmt.Errorf("span %d is inverted: %v", i, sp)
		}
		if sp.End > limit {
			return fmt.Errorf("span %d ends beyond content: %d > %d", i, sp.End, limit)
		}
		if i == 0 {
			continue
		}
		prev := spans[i-1]
		if sp.Start < prev.Start {
			return fmt.Errorf("span %d starts before span %d: %v < %v", i, i-1, sp, prev)
		}
		if sp.Overlaps(prev) {
			return fmt.Errorf("span %d overlaps span %d: %v / %v", i, i-1, sp, prev)
		}
	}
	return nil
}
