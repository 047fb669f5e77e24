package patch

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"mend/internal/source"
)

// Finalize commits every pending file with at least one staged edit back to
// disk. Each file is re-fingerprinted immediately before its write; files
// that diverged since staging (or whose write failed) are marked conflicted
// and returned as the not-saved set. Files commit atomically as a unit, in
// parallel across files.
//
// Finalize is idempotent: committed and conflicted files are not revisited,
// so a second call with nothing new staged returns an empty set.
func (s *Store) Finalize(ctx context.Context) []string {
	type job struct {
		path string
		sf   *stagedFile
	}
	jobs := make([]job, 0, len(s.files))
	for path, sf := range s.files {
		if sf.status != StatusPending || len(sf.applied) == 0 {
			continue
		}
		jobs = append(jobs, job{path: path, sf: sf})
	}
	if len(jobs) == 0 {
		return nil
	}

	// Индексы уникальны для каждой горутины, мьютекс не нужен.
	failed := make([]bool, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(runtime.GOMAXPROCS(0), len(jobs)))

	for i, jb := range jobs {
		i, jb := i, jb
		g.Go(func() error {
			select {
			case <-gctx.Done():
				failed[i] = true
				return nil
			default:
			}

			sf := jb.sf
			if sf.flags&source.FileVirtual != 0 {
				// Виртуальному файлу некуда коммититься.
				sf.status = StatusCommitted
				return nil
			}

			disk, err := source.DiskFingerprint(sf.path)
			if err != nil || disk != sf.baseline {
				sf.status = StatusConflicted
				failed[i] = true
				return nil
			}

			buf := denormalize(sf.buf, sf.flags)
			if err := writeAtomic(sf.path, buf, fileMode(sf.path)); err != nil {
				sf.status = StatusConflicted
				failed[i] = true
				return nil
			}
			sf.status = StatusCommitted
			return nil
		})
	}
	_ = g.Wait() // воркеры не возвращают ошибок, только флаги

	notSaved := make([]string, 0)
	for i, jb := range jobs {
		if failed[i] {
			notSaved = append(notSaved, jb.path)
		}
	}
	sort.Strings(notSaved)
	return notSaved
}

// Committed returns the file content a finalize pass wrote (or would write)
// for path. Reports false when the path has no staged edits.
func (s *Store) Committed(path string) ([]byte, bool) {
	sf, ok := s.files[path]
	if !ok || len(sf.applied) == 0 {
		return nil, false
	}
	return denormalize(sf.buf, sf.flags), true
}
