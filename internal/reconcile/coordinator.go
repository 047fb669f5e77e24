// Package reconcile implements the coordinator: the single serialization
// point for review decisions and file commits. Many test workers enqueue
// requests concurrently; exactly one decision round-trip is in flight at any
// instant, and the pending queue, active group and statistics are owned by
// the coordinator's run loop alone.
package reconcile

import (
	"context"
	"io"
	"path/filepath"
	"sync"

	"mend/internal/expect"
)

// PatchStore is the staging-store handle the coordinator drives.
// *patch.Store satisfies it.
type PatchStore interface {
	Patch(a *expect.Assertion, seq int) (expect.Outcome, error)
	Finalize(ctx context.Context) []string
}

// Options configures a coordinator for one run.
type Options struct {
	// ForceUpdate makes Register block for Update-stage assertions instead
	// of returning them unmodified.
	ForceUpdate bool
	// FailStatus is the process exit status when the run must fail.
	FailStatus int
	// Out receives the runner's output (through the gate) and the report.
	Out io.Writer
	// Record, when set, is called after every terminal outcome.
	Record func(a *expect.Assertion, outcome expect.Outcome)
}

type result struct {
	assertion *expect.Assertion
	err       error
}

// pendingRequest lives only inside the coordinator's queue.
type pendingRequest struct {
	assertion *expect.Assertion
	reply     chan result
	seq       int
}

type eventKind uint8

const (
	evTestStarted eventKind = iota
	evGroupFinished
	evSuiteFinished
)

type event struct {
	kind  eventKind
	group expect.GroupID
}

// Coordinator is constructed once per run and passed by reference to every
// collaborator; there is no ambient global state.
type Coordinator struct {
	store PatchStore
	opts  Options
	gate  *Gate

	mu      sync.Mutex
	inbox   []*pendingRequest
	events  []event
	nextSeq int

	kick     chan struct{}
	finished chan int
	runOnce  sync.Once

	// run-loop state, touched only by run()
	queue          []*pendingRequest
	activeGroup    expect.GroupID
	finishedGroups map[expect.GroupID]bool
	stats          Stats
	notSaved       map[string]bool
}

// New creates a coordinator and starts its run loop.
func New(store PatchStore, opts Options) *Coordinator {
	if opts.FailStatus <= 0 {
		opts.FailStatus = 1
	}
	c := &Coordinator{
		store:          store,
		opts:           opts,
		gate:           NewGate(opts.Out),
		kick:           make(chan struct{}, 1),
		finished:       make(chan int, 1),
		finishedGroups: make(map[expect.GroupID]bool),
		notSaved:       make(map[string]bool),
	}
	go c.run()
	return c
}

// Output returns the writer the test runner should route its output through.
func (c *Coordinator) Output() io.Writer {
	return c.gate
}

// Register submits an assertion for reconciliation. New-stage assertions
// always block until resolved; Update-stage assertions block only when
// forced reconciliation is active, and otherwise return unmodified so the
// caller runs its own comparison.
func (c *Coordinator) Register(a *expect.Assertion) (*expect.Assertion, error) {
	if a.Stage == expect.StageUpdate && !c.opts.ForceUpdate {
		return a, nil
	}
	return c.enqueue(a)
}

// RequestPatch always blocks until the assertion is materialized, regardless
// of stage.
func (c *Coordinator) RequestPatch(a *expect.Assertion) (*expect.Assertion, error) {
	return c.enqueue(a)
}

// TestStarted notifies the coordinator that a test body began. Non-blocking.
func (c *Coordinator) TestStarted(string) {
	c.notify(event{kind: evTestStarted})
}

// GroupFinished notifies the coordinator that a group's tests are done.
// Non-blocking.
func (c *Coordinator) GroupFinished(g expect.GroupID) {
	c.notify(event{kind: evGroupFinished, group: g})
}

// SuiteFinished commits the staging store, prints the report, and returns
// the process exit status the runner must use. Blocks until the run loop
// has drained. Safe to call once.
func (c *Coordinator) SuiteFinished() int {
	c.notify(event{kind: evSuiteFinished})
	return <-c.finished
}

// Stats returns a copy of the final counters. Valid after SuiteFinished.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) enqueue(a *expect.Assertion) (*expect.Assertion, error) {
	req := &pendingRequest{
		assertion: a,
		reply:     make(chan result, 1),
	}
	c.mu.Lock()
	c.nextSeq++
	req.seq = c.nextSeq
	c.inbox = append(c.inbox, req)
	c.mu.Unlock()
	c.wake()

	res := <-req.reply
	return res.assertion, res.err
}

func (c *Coordinator) notify(ev event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.wake()
}

func (c *Coordinator) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// run is the decision loop. All queue, group and statistics mutation happens
// here, which is what makes one prompt at a time a structural property
// rather than a lock discipline.
func (c *Coordinator) run() {
	for range c.kick {
		if done := c.drain(); done {
			return
		}
	}
}

func (c *Coordinator) drain() bool {
	for {
		progressed := false

		for _, ev := range c.takeEvents() {
			if ev.kind == evSuiteFinished {
				c.finish()
				return true
			}
			c.handleEvent(ev)
			progressed = true
		}

		c.ingestRequests()
		if req := c.pickEligible(); req != nil {
			c.resolve(req)
			progressed = true
		}

		if !progressed {
			return false
		}
	}
}

func (c *Coordinator) takeEvents() []event {
	c.mu.Lock()
	defer c.mu.Unlock()
	evs := c.events
	c.events = nil
	return evs
}

func (c *Coordinator) ingestRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, c.inbox...)
	c.inbox = nil
}

func (c *Coordinator) handleEvent(ev event) {
	switch ev.kind {
	case evTestStarted:
		// только повод пересканировать очередь
	case evGroupFinished:
		c.finishedGroups[ev.group] = true
		c.maybeReleaseGroup()
	}
}

// pickEligible returns the most recently enqueued request matching the
// active-group filter. Most-recent-first is a policy, not a contract; every
// queued request is still resolved exactly once.
func (c *Coordinator) pickEligible() *pendingRequest {
	c.ingestRequests()
	best := -1
	for i, req := range c.queue {
		if c.activeGroup != expect.GroupNone && req.assertion.ID.Group != c.activeGroup {
			continue
		}
		if best == -1 || req.seq > c.queue[best].seq {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	req := c.queue[best]
	c.queue = append(c.queue[:best], c.queue[best+1:]...)
	return req
}

func (c *Coordinator) resolve(req *pendingRequest) {
	// Захватываем группу до промпта, чтобы вывод раннера буферизовался
	// на всё время решения.
	if c.activeGroup == expect.GroupNone {
		c.activeGroup = req.assertion.ID.Group
		c.gate.SetBuffering(true)
	}

	outcome, err := c.store.Patch(req.assertion, req.seq)
	c.count(req.assertion, outcome)
	if c.opts.Record != nil {
		c.opts.Record(req.assertion, outcome)
	}
	req.reply <- result{assertion: req.assertion, err: err}

	c.maybeReleaseGroup()
}

func (c *Coordinator) count(a *expect.Assertion, outcome expect.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch outcome {
	case expect.OutcomeNew:
		c.stats.New++
	case expect.OutcomeUpdated:
		c.stats.Updated++
	case expect.OutcomeSkipped:
		c.stats.Skipped++
	case expect.OutcomeRejected:
		c.stats.Rejected++
	case expect.OutcomeFileChanged:
		// считается как skipped, файл дополнительно попадает в not-saved
		c.stats.Skipped++
		c.notSaved[filepath.ToSlash(filepath.Clean(a.ID.File))] = true
	}
}

// maybeReleaseGroup resets the active group once its GroupFinished event has
// arrived and nothing for it remains queued, flushing the captured output.
func (c *Coordinator) maybeReleaseGroup() {
	if c.activeGroup == expect.GroupNone {
		return
	}
	if !c.finishedGroups[c.activeGroup] {
		return
	}
	c.ingestRequests()
	for _, req := range c.queue {
		if req.assertion.ID.Group == c.activeGroup {
			return
		}
	}
	c.activeGroup = expect.GroupNone
	c.gate.SetBuffering(false)
}

// finish drains still-pending requests as skipped, commits the staging
// store, prints the report and delivers the exit status.
func (c *Coordinator) finish() {
	c.ingestRequests()
	for _, req := range c.queue {
		// Консервативно: нерешённый запрос — это отказ всего прогона.
		c.count(req.assertion, expect.OutcomeSkipped)
		req.reply <- result{assertion: req.assertion, err: expect.ErrSkipped}
	}
	c.queue = nil

	for _, path := range c.store.Finalize(context.Background()) {
		c.notSaved[path] = true
	}

	c.activeGroup = expect.GroupNone
	c.gate.SetBuffering(false)

	stats := c.Stats()
	c.gate.direct([]byte(Report(stats, sortedKeys(c.notSaved))))

	status := 0
	if len(c.notSaved) > 0 || stats.Skipped > 0 {
		status = c.opts.FailStatus
	}
	c.finished <- status
}
