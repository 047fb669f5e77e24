// Package mend reconciles captured runtime values against recorded
// expectations in Go tests. A test calls Expect with the value it produced
// and the expectation literal recorded at the call site; when they diverge,
// mend stages a source edit for the call site, reviews it through the
// configured prompter, and commits all accepted edits in one pass when the
// suite finishes.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//		mend.Main(m)
//	}
//
//	func TestGreeting(t *testing.T) {
//		mend.Expect(t, greet("world"), "hello, world")
//	}
package mend

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"mend/internal/diffview"
	"mend/internal/expect"
	"mend/internal/history"
	"mend/internal/patch"
	"mend/internal/pattern"
	"mend/internal/project"
	"mend/internal/prompt"
	"mend/internal/reconcile"
	"mend/internal/source"
	"mend/internal/ui"
)

// TestingT is the subset of *testing.T the library needs.
type TestingT interface {
	Helper()
	Name() string
	Errorf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// session wires one run's coordinator, staging store and history cache.
// Constructed once per process; tests reach it through the package-level
// entry points.
type session struct {
	coord *reconcile.Coordinator
	cfg   project.Config
	hist  *history.Cache

	mu   sync.Mutex
	live map[expect.GroupID]int
	seen map[string]bool
}

var (
	sessionOnce sync.Once
	current     *session
)

// Main wraps testing.M: it runs the suite, finalizes the reconciliation run,
// and exits with the runner's status, or with the configured failure status
// when expectations were skipped or files could not be saved.
func Main(m *testing.M) {
	code := m.Run()
	status := activeSession().coord.SuiteFinished()
	if code == 0 && status != 0 {
		code = status
	}
	os.Exit(code)
}

// Expect reconciles got against the recorded expectation literal. With no
// recorded value the assertion is new and blocks until reviewed; with one, a
// mismatch fails the test unless forced reconciliation is configured.
func Expect(t TestingT, got any, recorded ...string) {
	t.Helper()
	s := activeSession()

	rendered := pattern.Render(got)
	if len(recorded) > 0 && rendered == recorded[0] {
		return
	}
	a := s.buildAssertion(t, rendered, recorded, 2)

	resolved, err := s.coord.Register(a)
	s.settle(t, resolved, err)
}

// ExpectPatch reconciles got and always blocks for a review, regardless of
// whether an expectation is already recorded. Used when the call site must be
// rewritten even on a match, e.g. after changing the rendering of a value.
func ExpectPatch(t TestingT, got any, recorded ...string) {
	t.Helper()
	s := activeSession()

	rendered := pattern.Render(got)
	a := s.buildAssertion(t, rendered, recorded, 2)

	resolved, err := s.coord.RequestPatch(a)
	s.settle(t, resolved, err)
}

// Output returns the writer the test runner's side-channel output should go
// through so prompts never interleave with it.
func Output() io.Writer {
	return activeSession().coord.Output()
}

func activeSession() *session {
	sessionOnce.Do(func() {
		current = newSession()
	})
	return current
}

func newSession() *session {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg, err := project.Resolve(wd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mend: %v (using defaults)\n", err)
	}
	if cfg.Color == "off" {
		color.NoColor = true
	}

	var hist *history.Cache
	if cfg.History {
		hist, _ = history.Open("mend") // best effort
	}

	store := patch.NewStore(source.NewFileSetWithBase(wd), prompterFor(cfg), patch.Options{
		History: hist.Labels,
	})

	s := &session{
		cfg:  cfg,
		hist: hist,
		live: make(map[expect.GroupID]int),
		seen: make(map[string]bool),
	}
	s.coord = reconcile.New(store, reconcile.Options{
		ForceUpdate: cfg.ForceUpdate,
		FailStatus:  cfg.FailStatus,
		Out:         os.Stdout,
		Record:      s.record,
	})
	return s
}

func prompterFor(cfg project.Config) prompt.Prompter {
	switch cfg.Mode {
	case project.ModeAccept:
		return prompt.AutoAccept()
	case project.ModeReject:
		return prompt.AutoReject()
	case project.ModeSkip:
		return prompt.AutoSkip()
	case project.ModeInteractive:
		return ui.NewTerminal(os.Stdin, os.Stderr)
	default:
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return ui.NewTerminal(os.Stdin, os.Stderr)
		}
		// Без терминала прогон не должен виснуть в ожидании решения.
		return prompt.AutoReject()
	}
}

func (s *session) buildAssertion(t TestingT, rendered string, recorded []string, skip int) *expect.Assertion {
	file, line := callSite(skip + 1)
	group := groupOf(t.Name())

	a := &expect.Assertion{
		ID: expect.Identity{
			File:  file,
			Line:  line,
			Test:  t.Name(),
			Group: group,
		},
		Stage:    expect.StageNew,
		Value:    rendered,
		Patterns: pattern.Generate(rendered),
	}
	if len(recorded) > 0 {
		a.Stage = expect.StageUpdate
		a.Recorded = recorded[0]
	}

	s.track(t, group)
	return a
}

// track counts live tests per group and fires GroupFinished when the last
// one's cleanup runs. The coordinator tolerates the event arriving before a
// late sibling enqueues, so the accounting here only needs to be eventual.
func (s *session) track(t TestingT, group expect.GroupID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[t.Name()] {
		return
	}
	s.seen[t.Name()] = true
	s.live[group]++
	s.coord.TestStarted(t.Name())

	t.Cleanup(func() {
		s.mu.Lock()
		s.live[group]--
		last := s.live[group] == 0
		s.mu.Unlock()
		if last {
			s.coord.GroupFinished(group)
		}
	})
}

// settle maps the coordinator's reply onto the test outcome.
func (s *session) settle(t TestingT, a *expect.Assertion, err error) {
	t.Helper()

	switch {
	case err == nil && a.Regenerated != "":
		return
	case err == nil:
		// Update-стадия без форсирования: сравниваем сами.
		t.Errorf("expectation mismatch at %s:\n%s",
			a.ID.Key(), diffview.RenderString(diffview.Diff(a.Recorded, a.Value)))
	default:
		outcome, known := expect.OutcomeOf(err)
		switch {
		case known && outcome == expect.OutcomeSkipped:
			t.Logf("expectation at %s skipped; run will be marked failed", a.ID.Key())
		case known && outcome == expect.OutcomeRejected:
			t.Errorf("expectation at %s rejected:\n%s",
				a.ID.Key(), diffview.RenderString(diffview.Diff(a.Recorded, a.Value)))
		case known && outcome == expect.OutcomeFileChanged:
			t.Errorf("%s changed on disk since review started; expectation not saved", a.ID.File)
		default:
			t.Errorf("expectation at %s could not be reconciled: %v", a.ID.Key(), err)
		}
	}
}

// record appends every terminal outcome to the decision-history cache.
func (s *session) record(a *expect.Assertion, outcome expect.Outcome) {
	if s.hist == nil {
		return
	}
	decision := "skip"
	switch {
	case outcome.Accepted():
		decision = "accept"
	case outcome == expect.OutcomeRejected:
		decision = "reject"
	}
	_ = s.hist.Append(a.ID.Key(), history.Record{
		Decision:    decision,
		PatternHash: sha256.Sum256([]byte(a.Pattern(0))),
		When:        time.Now(),
	}, s.cfg.HistoryKeep)
}

func callSite(skip int) (string, uint32) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || line <= 0 {
		return "", 0
	}
	return filepath.ToSlash(file), uint32(line)
}

// groupOf maps a test name to its review group: the top-level test function.
func groupOf(name string) expect.GroupID {
	if idx := strings.IndexByte(name, '/'); idx >= 0 {
		name = name[:idx]
	}
	return expect.GroupID(name)
}
