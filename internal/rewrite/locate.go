// Package rewrite locates the expectation argument of a reconciliation call
// site inside a Go test file and yields the byte span a replacement fragment
// must cover. It never mutates files itself; staging and commit belong to the
// patch store.
package rewrite

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"fortio.org/safecast"

	"mend/internal/source"
)

// ErrCallNotFound is returned when no matching call starts on the given line.
var ErrCallNotFound = errors.New("no expectation call found at line")

// Target describes where the expectation literal lives at a call site.
type Target struct {
	// Span covers the existing expectation argument; when inserting a new
	// argument the span is empty and sits just before the closing paren.
	Span source.Span
	// Existing is the current argument's source text, "" when inserting.
	Existing string
	// Insert is true when the call has no expectation argument yet.
	Insert bool
}

// Fragment renders the staged replacement text for a candidate expression.
// Inserted arguments need a leading comma; replacements are verbatim.
func (t Target) Fragment(candidate string) string {
	if t.Insert {
		return ", " + candidate
	}
	return candidate
}

// Locate parses file and finds the call to one of funcNames that starts on
// the given 1-based line. The expectation argument is expected at argIdx
// (0-based); a call with fewer arguments yields an insertion target at its
// closing paren.
func Locate(file *source.File, line uint32, argIdx int, funcNames ...string) (Target, error) {
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, file.Path, file.Content, parser.ParseComments)
	if err != nil {
		return Target{}, fmt.Errorf("rewrite: parse %s: %w", file.Path, err)
	}

	names := make(map[string]bool, len(funcNames))
	for _, n := range funcNames {
		names[n] = true
	}

	var call *ast.CallExpr
	ast.Inspect(parsed, func(n ast.Node) bool {
		if call != nil {
			return false
		}
		c, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if !names[calleeName(c)] {
			return true
		}
		pos := fset.Position(c.Pos())
		if uint32(pos.Line) != line {
			return true
		}
		call = c
		return false
	})
	if call == nil {
		return Target{}, fmt.Errorf("%w %d in %s", ErrCallNotFound, line, file.Path)
	}

	if len(call.Args) > argIdx {
		arg := call.Args[argIdx]
		start, err := offsetOf(fset, file, arg.Pos())
		if err != nil {
			return Target{}, err
		}
		end, err := offsetOf(fset, file, arg.End())
		if err != nil {
			return Target{}, err
		}
		return Target{
			Span:     source.Span{File: file.ID, Start: start, End: end},
			Existing: string(file.Content[start:end]),
		}, nil
	}

	// Аргумента ещё нет: вставляем перед закрывающей скобкой.
	at, err := offsetOf(fset, file, call.Rparen)
	if err != nil {
		return Target{}, err
	}
	return Target{
		Span:   source.Span{File: file.ID, Start: at, End: at},
		Insert: true,
	}, nil
}

func calleeName(c *ast.CallExpr) string {
	switch fn := c.Fun.(type) {
	case *ast.Ident:
		return fn.Name
	case *ast.SelectorExpr:
		return fn.Sel.Name
	default:
		return ""
	}
}

func offsetOf(fset *token.FileSet, file *source.File, pos token.Pos) (uint32, error) {
	off := fset.Position(pos).Offset
	if off < 0 || off > len(file.Content) {
		return 0, fmt.Errorf("rewrite: offset %d out of range for %s", off, file.Path)
	}
	out, err := safecast.Conv[uint32](off)
	if err != nil {
		return 0, fmt.Errorf("rewrite: offset overflow: %w", err)
	}
	return out, nil
}
