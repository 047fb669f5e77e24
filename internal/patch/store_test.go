package patch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mend/internal/expect"
	"mend/internal/prompt"
	"mend/internal/source"
	"mend/internal/testkit"
)

const caseFixture = `package demo

func TestOne(t *T) {
	check.Expect(t, got, "old one")
	check.Expect(t, got2)
}
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo_test.go")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func newAssertion(path string, line uint32, stage expect.Stage, patterns ...string) *expect.Assertion {
	return &expect.Assertion{
		ID:       expect.Identity{File: path, Line: line, Test: "TestOne", Group: "TestOne"},
		Stage:    stage,
		Patterns: patterns,
	}
}

func scripted(decisions ...expect.Decision) prompt.Prompter {
	i := 0
	return prompt.Func(func(prompt.View) (expect.Decision, error) {
		d := decisions[i%len(decisions)]
		i++
		return d, nil
	})
}

func TestPatchAcceptNew(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})

	a := newAssertion(path, 5, expect.StageNew, `"fresh"`)
	outcome, err := store.Patch(a, 1)
	if err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if outcome != expect.OutcomeNew {
		t.Errorf("outcome = %v, want OutcomeNew", outcome)
	}
	if a.Regenerated != `"fresh"` {
		t.Errorf("Regenerated = %q, want the accepted candidate", a.Regenerated)
	}

	buf, ok := store.Committed(filepath.ToSlash(path))
	if !ok {
		t.Fatal("expected staged content for the file")
	}
	if !strings.Contains(string(buf), `check.Expect(t, got2, "fresh")`) {
		t.Errorf("staged content missing inserted argument:\n%s", buf)
	}
}

func TestPatchAcceptUpdate(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})

	a := newAssertion(path, 4, expect.StageUpdate, "`new one`")
	a.Recorded = `"old one"`

	outcome, err := store.Patch(a, 1)
	if err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if outcome != expect.OutcomeUpdated {
		t.Errorf("outcome = %v, want OutcomeUpdated", outcome)
	}

	buf, _ := store.Committed(filepath.ToSlash(path))
	if !strings.Contains(string(buf), "check.Expect(t, got, `new one`)") {
		t.Errorf("staged content missing replacement:\n%s", buf)
	}
	if strings.Contains(string(buf), "old one") {
		t.Errorf("staged content still carries the old literal:\n%s", buf)
	}
}

func TestPatchEditsCompose(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})

	// Правка ниже по файлу первой, затем выше: дельты должны сойтись.
	if _, err := store.Patch(newAssertion(path, 5, expect.StageNew, `"second"`), 1); err != nil {
		t.Fatalf("first Patch: %v", err)
	}
	if _, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"first"`), 2); err != nil {
		t.Fatalf("second Patch: %v", err)
	}

	buf, _ := store.Committed(filepath.ToSlash(path))
	content := string(buf)
	if !strings.Contains(content, `check.Expect(t, got, "first")`) {
		t.Errorf("missing first replacement:\n%s", content)
	}
	if !strings.Contains(content, `check.Expect(t, got2, "second")`) {
		t.Errorf("missing second insertion:\n%s", content)
	}
}

func TestStagedEditSpansHoldInvariants(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})

	if _, err := store.Patch(newAssertion(path, 5, expect.StageNew, `"second"`), 1); err != nil {
		t.Fatalf("first Patch: %v", err)
	}
	if _, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"first"`), 2); err != nil {
		t.Fatalf("second Patch: %v", err)
	}

	sf := store.files[filepath.ToSlash(path)]
	if sf == nil {
		t.Fatal("no staged file")
	}
	spans := make([]source.Span, len(sf.applied))
	for i, e := range sf.applied {
		spans[i] = e.Span
	}
	if err := testkit.CheckEditSpans(spans, len(caseFixture)); err != nil {
		t.Errorf("staged edit invariants violated: %v", err)
	}
}

func TestPatchReject(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoReject(), Options{})

	outcome, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"x"`), 1)
	if outcome != expect.OutcomeRejected {
		t.Errorf("outcome = %v, want OutcomeRejected", outcome)
	}
	if !errors.Is(err, expect.ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
	if files := store.StagedFiles(); len(files) != 0 {
		t.Errorf("reject must stage nothing, got %v", files)
	}
}

func TestPatchSkip(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoSkip(), Options{})

	outcome, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"x"`), 1)
	if outcome != expect.OutcomeSkipped {
		t.Errorf("outcome = %v, want OutcomeSkipped", outcome)
	}
	if !errors.Is(err, expect.ErrSkipped) {
		t.Errorf("err = %v, want ErrSkipped", err)
	}
}

func TestPatchNavigateSelectsCandidate(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), scripted(expect.DecisionNext, expect.DecisionAccept), Options{})

	a := newAssertion(path, 4, expect.StageUpdate, `"quoted"`, "`raw`")
	if _, err := store.Patch(a, 1); err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if a.Regenerated != "`raw`" {
		t.Errorf("Regenerated = %q, want the second candidate", a.Regenerated)
	}
}

func TestPatchNavigateWrapsBackward(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), scripted(expect.DecisionPrev, expect.DecisionAccept), Options{})

	a := newAssertion(path, 4, expect.StageUpdate, `"a"`, `"b"`, `"c"`)
	if _, err := store.Patch(a, 1); err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if a.Regenerated != `"c"` {
		t.Errorf("Regenerated = %q, want wrap to last candidate", a.Regenerated)
	}
}

func TestPatchFileChangedAtStageTime(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})

	if _, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"x"`), 1); err != nil {
		t.Fatalf("first Patch: %v", err)
	}

	// Внешняя правка между двумя стейджами.
	if err := os.WriteFile(path, []byte(caseFixture+"// edited\n"), 0o644); err != nil {
		t.Fatalf("external edit: %v", err)
	}

	outcome, err := store.Patch(newAssertion(path, 5, expect.StageNew, `"y"`), 2)
	if outcome != expect.OutcomeFileChanged {
		t.Errorf("outcome = %v, want OutcomeFileChanged", outcome)
	}
	if !errors.Is(err, expect.ErrFileChanged) {
		t.Errorf("err = %v, want ErrFileChanged", err)
	}

	// Конфликт прилипает: следующая правка того же файла тоже отклоняется.
	outcome, _ = store.Patch(newAssertion(path, 4, expect.StageUpdate, `"z"`), 3)
	if outcome != expect.OutcomeFileChanged {
		t.Errorf("outcome after conflict = %v, want OutcomeFileChanged", outcome)
	}
}

func TestPatchMissingCallIsOrdinaryFailure(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})

	outcome, err := store.Patch(newAssertion(path, 2, expect.StageNew, `"x"`), 1)
	if outcome != expect.OutcomeSkipped {
		t.Errorf("outcome = %v, want OutcomeSkipped", outcome)
	}
	if err == nil || errors.Is(err, expect.ErrSkipped) {
		t.Errorf("expected an ordinary error, got %v", err)
	}
}

func TestPatchHistoryReachesPrompter(t *testing.T) {
	path := writeFixture(t, caseFixture)

	var seen []string
	prompter := prompt.Func(func(v prompt.View) (expect.Decision, error) {
		seen = v.History
		return expect.DecisionAccept, nil
	})
	store := NewStore(source.NewFileSet(), prompter, Options{
		History: func(key string) []string { return []string{"accept (2026-08-01)"} },
	})

	if _, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"x"`), 1); err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if len(seen) != 1 || seen[0] != "accept (2026-08-01)" {
		t.Errorf("prompter history = %v", seen)
	}
}

func TestPatchViewPathRelativeToBase(t *testing.T) {
	path := writeFixture(t, caseFixture)
	fs := source.NewFileSetWithBase(filepath.Dir(path))

	var seenPath string
	prompter := prompt.Func(func(v prompt.View) (expect.Decision, error) {
		seenPath = v.Path
		return expect.DecisionAccept, nil
	})
	store := NewStore(fs, prompter, Options{})

	if _, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"x"`), 1); err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if seenPath != "demo_test.go:4" {
		t.Errorf("view path = %q, want it relative to the file set base", seenPath)
	}
}

func TestPatchViewPathBasenameMode(t *testing.T) {
	path := writeFixture(t, caseFixture)

	var seenPath string
	prompter := prompt.Func(func(v prompt.View) (expect.Decision, error) {
		seenPath = v.Path
		return expect.DecisionAccept, nil
	})
	store := NewStore(source.NewFileSet(), prompter, Options{PathMode: "basename"})

	if _, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"x"`), 1); err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if seenPath != "demo_test.go:4" {
		t.Errorf("view path = %q, want basename only", seenPath)
	}
}

func TestFinalizeWritesAndIsIdempotent(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})

	if _, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"committed"`), 1); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	notSaved := store.Finalize(context.Background())
	if len(notSaved) != 0 {
		t.Fatalf("Finalize reported not-saved files: %v", notSaved)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(onDisk), `check.Expect(t, got, "committed")`) {
		t.Errorf("commit missing on disk:\n%s", onDisk)
	}

	// Повторный finalize без новых правок — Ok.
	if notSaved := store.Finalize(context.Background()); len(notSaved) != 0 {
		t.Errorf("second Finalize reported %v, want none", notSaved)
	}
}

func TestFinalizeDetectsExternalEdit(t *testing.T) {
	path := writeFixture(t, caseFixture)
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})

	if _, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"x"`), 1); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	edited := strings.Replace(string(before), "got2", "got3", 1)
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("external edit: %v", err)
	}

	notSaved := store.Finalize(context.Background())
	if len(notSaved) != 1 || notSaved[0] != filepath.ToSlash(path) {
		t.Fatalf("notSaved = %v, want [%s]", notSaved, filepath.ToSlash(path))
	}

	// Файл не перезаписан.
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(after) != edited {
		t.Error("conflicted file must not be overwritten")
	}

	// Идемпотентность: конфликт не возвращается второй раз.
	if notSaved := store.Finalize(context.Background()); len(notSaved) != 0 {
		t.Errorf("second Finalize reported %v, want none", notSaved)
	}
}

func TestFinalizePreservesCRLF(t *testing.T) {
	crlf := strings.ReplaceAll(caseFixture, "\n", "\r\n")
	path := writeFixture(t, crlf)
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})

	if _, err := store.Patch(newAssertion(path, 4, expect.StageUpdate, `"win"`), 1); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if notSaved := store.Finalize(context.Background()); len(notSaved) != 0 {
		t.Fatalf("Finalize reported not-saved files: %v", notSaved)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(onDisk), "\r\n") {
		t.Error("CRLF endings must survive the round trip")
	}
	if strings.Contains(strings.ReplaceAll(string(onDisk), "\r\n", ""), "\n") {
		t.Error("mixed line endings written")
	}
}

func TestFinalizeEmptyStore(t *testing.T) {
	store := NewStore(source.NewFileSet(), prompt.AutoAccept(), Options{})
	if notSaved := store.Finalize(context.Background()); len(notSaved) != 0 {
		t.Errorf("empty store Finalize reported %v", notSaved)
	}
}
