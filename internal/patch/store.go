// Package patch implements the staged-edit store: accepted replacements
// accumulate in memory per file and hit disk in a single finalize pass.
// A per-file baseline fingerprint is captured when staging for that file
// begins; any divergence of the on-disk content from the baseline marks the
// file conflicted and its edits are never written.
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"mend/internal/diffview"
	"mend/internal/expect"
	"mend/internal/prompt"
	"mend/internal/rewrite"
	"mend/internal/source"
)

// Status tracks a staged file through its lifecycle.
type Status uint8

const (
	StatusPending Status = iota
	StatusCommitted
	StatusConflicted
)

// TextEdit is one staged replacement in baseline coordinates.
type TextEdit struct {
	Seq     int
	Span    source.Span
	OldText string
	NewText string
}

type stagedFile struct {
	path     string
	fileID   source.FileID
	flags    source.FileFlags
	baseline source.Fingerprint
	buf      []byte // working copy, edits applied
	applied  []TextEdit
	status   Status
}

// Options configures how call sites are located and displayed.
type Options struct {
	// CallNames are the function names that mark a reconciliation call site.
	CallNames []string
	// ArgIdx is the 0-based position of the expectation argument.
	ArgIdx int
	// History, when set, supplies past decision labels for an assertion key.
	History func(key string) []string
	// PathMode selects how call-site paths are rendered in prompts:
	// "absolute", "relative", "basename" or "auto".
	PathMode string
}

func (o *Options) fill() {
	if len(o.CallNames) == 0 {
		o.CallNames = []string{"Expect", "ExpectPatch"}
	}
	if o.ArgIdx == 0 {
		o.ArgIdx = 2
	}
	if o.PathMode == "" {
		o.PathMode = "relative"
	}
}

// Store is the patch staging store. Not safe for concurrent use: the
// coordinator is its only caller and serializes access.
type Store struct {
	fs       *source.FileSet
	prompter prompt.Prompter
	opts     Options
	files    map[string]*stagedFile
}

// NewStore creates an empty staging store over the given file set.
func NewStore(fs *source.FileSet, prompter prompt.Prompter, opts Options) *Store {
	opts.fill()
	return &Store{
		fs:       fs,
		prompter: prompter,
		opts:     opts,
		files:    make(map[string]*stagedFile),
	}
}

// Patch runs one full decision round for the assertion: locate the call
// site, present candidate replacements until a terminal decision, and stage
// the accepted edit keyed by seq.
//
// The returned outcome always classifies the round; the error is the
// outcome's sentinel for non-accepting terminal decisions, or the underlying
// failure when diffing or locating broke down (classified as skipped so the
// run still accounts for the assertion).
func (s *Store) Patch(a *expect.Assertion, seq int) (expect.Outcome, error) {
	if err := a.Valid(); err != nil {
		return expect.OutcomeSkipped, fmt.Errorf("patch: %w", err)
	}

	file, ok := s.fs.GetByPath(a.ID.File)
	if !ok {
		id, err := s.fs.Load(a.ID.File)
		if err != nil {
			return expect.OutcomeSkipped, fmt.Errorf("patch: load %s: %w", a.ID.File, err)
		}
		file = s.fs.Get(id)
	}

	sf := s.files[file.Path]
	if sf != nil && sf.status == StatusConflicted {
		// Файл уже разошёлся с baseline: все последующие правки отбрасываем.
		return expect.OutcomeFileChanged, expect.ErrFileChanged
	}

	target, err := rewrite.Locate(file, a.ID.Line, s.opts.ArgIdx, s.opts.CallNames...)
	if err != nil {
		return expect.OutcomeSkipped, fmt.Errorf("patch: %w", err)
	}

	decision, candidateIdx, err := s.review(a, target, file)
	if err != nil {
		return expect.OutcomeSkipped, fmt.Errorf("patch: prompt: %w", err)
	}

	switch decision {
	case expect.DecisionReject:
		return expect.OutcomeRejected, expect.ErrRejected
	case expect.DecisionSkip:
		return expect.OutcomeSkipped, expect.ErrSkipped
	}

	// Accept: проверяем baseline перед стейджингом.
	if sf == nil {
		sf = &stagedFile{
			path:     file.Path,
			fileID:   file.ID,
			flags:    file.Flags,
			baseline: file.Hash,
			buf:      append([]byte(nil), file.Content...),
			status:   StatusPending,
		}
	}
	if file.Flags&source.FileVirtual == 0 {
		disk, err := source.DiskFingerprint(file.Path)
		if err != nil || disk != sf.baseline {
			sf.status = StatusConflicted
			s.files[file.Path] = sf
			return expect.OutcomeFileChanged, expect.ErrFileChanged
		}
	}

	candidate := a.Pattern(candidateIdx)
	edit := TextEdit{
		Seq:     seq,
		Span:    target.Span,
		OldText: target.Existing,
		NewText: target.Fragment(candidate),
	}
	if err := sf.apply(edit); err != nil {
		return expect.OutcomeSkipped, fmt.Errorf("patch: stage %s: %w", file.Path, err)
	}
	s.files[file.Path] = sf

	a.Regenerated = candidate
	if a.Stage == expect.StageNew {
		return expect.OutcomeNew, nil
	}
	return expect.OutcomeUpdated, nil
}

// review presents candidates until a terminal decision, handling navigation.
func (s *Store) review(a *expect.Assertion, target rewrite.Target, file *source.File) (expect.Decision, int, error) {
	var history []string
	if s.opts.History != nil {
		history = s.opts.History(a.ID.Key())
	}
	displayPath := file.FormatPath(s.opts.PathMode, s.fs.BaseDir())

	idx := 0
	for {
		candidate := a.Pattern(idx)
		view := prompt.View{
			Assertion:      a,
			Diff:           diffview.Diff(target.Existing, candidate),
			CandidateIdx:   ((idx % len(a.Patterns)) + len(a.Patterns)) % len(a.Patterns),
			CandidateCount: len(a.Patterns),
			History:        history,
			Path:           fmt.Sprintf("%s:%d", displayPath, a.ID.Line),
		}
		decision, err := s.prompter.Prompt(view)
		if err != nil {
			return 0, 0, err
		}
		switch decision {
		case expect.DecisionNext:
			idx++
		case expect.DecisionPrev:
			idx--
		default:
			if !decision.Terminal() {
				return 0, 0, fmt.Errorf("unknown decision %v", decision)
			}
			return decision, idx, nil
		}
	}
}

// apply splices the edit into the working buffer. Offsets are given in
// baseline coordinates and shifted by the cumulative delta of edits staged
// before them, so edits to the same file compose without clobbering.
func (sf *stagedFile) apply(edit TextEdit) error {
	for _, prev := range sf.applied {
		if prev.Span.Overlaps(edit.Span) {
			return fmt.Errorf("edit %v overlaps a previously staged edit", edit.Span)
		}
	}

	start := int(edit.Span.Start) + cumulativeDelta(sf.applied, int(edit.Span.Start))
	end := int(edit.Span.End) + cumulativeDelta(sf.applied, int(edit.Span.End))
	if start < 0 || end < start || end > len(sf.buf) {
		return fmt.Errorf("edit span out of range")
	}
	if edit.OldText != "" && string(sf.buf[start:end]) != edit.OldText {
		return fmt.Errorf("existing text does not match expected content")
	}

	suffix := append([]byte(nil), sf.buf[end:]...)
	sf.buf = append(append(sf.buf[:start], []byte(edit.NewText)...), suffix...)
	sf.applied = insertEditSorted(sf.applied, edit)
	return nil
}

// cumulativeDelta sums the length changes of staged edits fully before pos.
func cumulativeDelta(edits []TextEdit, pos int) int {
	delta := 0
	for _, e := range edits {
		eStart := int(e.Span.Start)
		if eStart > pos {
			break
		}
		eEnd := int(e.Span.End)
		if eEnd <= pos {
			delta += len(e.NewText) - (eEnd - eStart)
		}
	}
	return delta
}

func insertEditSorted(edits []TextEdit, edit TextEdit) []TextEdit {
	insertIdx := sort.Search(len(edits), func(i int) bool {
		if edits[i].Span.Start == edit.Span.Start {
			if edits[i].Span.End == edit.Span.End {
				return edits[i].Seq >= edit.Seq
			}
			return edits[i].Span.End >= edit.Span.End
		}
		return edits[i].Span.Start > edit.Span.Start
	})
	edits = append(edits, TextEdit{})
	copy(edits[insertIdx+1:], edits[insertIdx:])
	edits[insertIdx] = edit
	return edits
}

// StagedFiles returns the paths with at least one staged edit, sorted.
func (s *Store) StagedFiles() []string {
	out := make([]string, 0, len(s.files))
	for path, sf := range s.files {
		if len(sf.applied) > 0 {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// denormalize undoes the load-time normalization so untouched regions keep
// the file's original formatting conventions.
func denormalize(buf []byte, flags source.FileFlags) []byte {
	if flags&source.FileNormalizedCRLF != 0 {
		out := make([]byte, 0, len(buf)+len(buf)/16)
		for _, b := range buf {
			if b == '\n' {
				out = append(out, '\r', '\n')
			} else {
				out = append(out, b)
			}
		}
		buf = out
	}
	if flags&source.FileHadBOM != 0 {
		buf = append([]byte{0xEF, 0xBB, 0xBF}, buf...)
	}
	return buf
}

func fileMode(path string) os.FileMode {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	return mode
}

// writeAtomic writes buf next to path and renames it into place.
func writeAtomic(path string, buf []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mend-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // no-op после успешного rename
	}()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode.Perm()); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
