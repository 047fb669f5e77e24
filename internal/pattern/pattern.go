// Package pattern renders captured runtime values into candidate replacement
// expressions: Go literals ready to be spliced into the expectation argument
// of a call site. Several candidate forms are produced where the value allows
// it, so the reviewer can cycle between them.
package pattern

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Render converts a captured value into its canonical textual representation,
// the one the recorded expectation is compared against.
func Render(v any) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return normalize(val)
	case []byte:
		return normalize(string(val))
	case error:
		return normalize(val.Error())
	case fmt.Stringer:
		return normalize(val.String())
	default:
		return fmt.Sprintf("%#v", val)
	}
}

// Generate produces candidate replacement expressions for a rendered value,
// best form first. At least one candidate is always returned.
func Generate(rendered string) []string {
	candidates := make([]string, 0, 2)

	if rawable(rendered) && strings.Contains(rendered, "\n") {
		// Многострочные значения читабельнее в raw-литерале.
		candidates = append(candidates, "`"+rendered+"`")
	}
	candidates = append(candidates, strconv.Quote(rendered))
	if rawable(rendered) && !strings.Contains(rendered, "\n") && rendered != "" {
		candidates = append(candidates, "`"+rendered+"`")
	}

	return dedupe(candidates)
}

// normalize brings text to NFC so visually identical strings compare equal
// regardless of how the runtime composed them.
func normalize(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// rawable reports whether s can live inside a backquoted Go literal: no
// backquotes, no carriage returns, valid UTF-8, and no control characters
// other than \n and \t.
func rawable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	if strings.ContainsAny(s, "`\r") {
		return false
	}
	for _, r := range s {
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func dedupe(candidates []string) []string {
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
