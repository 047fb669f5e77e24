// Package diffview renders a line diff between the recorded expectation text
// and the proposed replacement. The output is what the reviewer sees, so it
// favors readability over minimal edit scripts.
package diffview

import (
	"io"
	"strings"

	"github.com/fatih/color"
)

// Kind tags one diff line.
type Kind uint8

const (
	KindSame Kind = iota
	KindDelete
	KindInsert
)

// Line is one row of the rendered diff.
type Line struct {
	Kind Kind
	Text string
}

var (
	deleteColor = color.New(color.FgRed)
	insertColor = color.New(color.FgGreen)
)

// Diff computes a line-level diff between before and after using an LCS
// table. Deleted lines come before inserted ones inside a changed block.
func Diff(before, after string) []Line {
	a := splitLines(before)
	b := splitLines(after)

	// Классический LCS: таблица длин общих подпоследовательностей.
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	out := make([]Line, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			out = append(out, Line{Kind: KindSame, Text: a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, Line{Kind: KindDelete, Text: a[i]})
			i++
		default:
			out = append(out, Line{Kind: KindInsert, Text: b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		out = append(out, Line{Kind: KindDelete, Text: a[i]})
	}
	for ; j < m; j++ {
		out = append(out, Line{Kind: KindInsert, Text: b[j]})
	}
	return out
}

// Changed reports whether the diff contains any non-equal line.
func Changed(lines []Line) bool {
	for _, l := range lines {
		if l.Kind != KindSame {
			return true
		}
	}
	return false
}

// Render writes the diff in unified style, optionally colorized.
func Render(w io.Writer, lines []Line, colorize bool) {
	for _, l := range lines {
		text := prefix(l.Kind) + l.Text
		if colorize {
			switch l.Kind {
			case KindDelete:
				deleteColor.Fprintln(w, text)
				continue
			case KindInsert:
				insertColor.Fprintln(w, text)
				continue
			}
		}
		io.WriteString(w, text+"\n")
	}
}

// RenderString is Render into a string, for prompt models that own layout.
func RenderString(lines []Line) string {
	var b strings.Builder
	Render(&b, lines, false)
	return b.String()
}

func prefix(k Kind) string {
	switch k {
	case KindDelete:
		return "- "
	case KindInsert:
		return "+ "
	default:
		return "  "
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
