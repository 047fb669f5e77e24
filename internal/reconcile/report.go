package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Stats are the run counters. Every consumed assertion increments exactly
// one of them.
type Stats struct {
	New      int
	Updated  int
	Skipped  int
	Rejected int
}

// Total sums all counters.
func (s Stats) Total() int {
	return s.New + s.Updated + s.Skipped + s.Rejected
}

var (
	newColor      = color.New(color.FgGreen)
	updatedColor  = color.New(color.FgCyan)
	skippedColor  = color.New(color.FgYellow)
	rejectedColor = color.New(color.FgRed)
	notSavedColor = color.New(color.FgRed, color.Bold)
)

// Summary renders the counters as "2 new, 1 updated, 3 skipped", omitting
// zero-valued categories. An all-zero run renders "no expectations reviewed".
func Summary(s Stats) string {
	parts := make([]string, 0, 4)
	if s.New > 0 {
		parts = append(parts, newColor.Sprintf("%d new", s.New))
	}
	if s.Updated > 0 {
		parts = append(parts, updatedColor.Sprintf("%d updated", s.Updated))
	}
	if s.Rejected > 0 {
		parts = append(parts, rejectedColor.Sprintf("%d rejected", s.Rejected))
	}
	if s.Skipped > 0 {
		parts = append(parts, skippedColor.Sprintf("%d skipped", s.Skipped))
	}
	if len(parts) == 0 {
		return "no expectations reviewed"
	}
	return strings.Join(parts, ", ")
}

// Report renders the end-of-run block: the summary line plus, when files
// could not be saved, the list with a retry hint.
func Report(s Stats, notSaved []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "mend: %s\n", Summary(s))
	if len(notSaved) > 0 {
		fmt.Fprintf(&b, "mend: %s\n", notSavedColor.Sprint("could not save:"))
		for _, path := range notSaved {
			fmt.Fprintf(&b, "  %s\n", path)
		}
		b.WriteString("mend: files changed during the run; re-run the tests to retry\n")
	}
	return b.String()
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
