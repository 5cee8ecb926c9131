// Package orchestrator implements the Runtime / Task Orchestrator (C10):
// a cooperative scheduler owning the named background loops (specs-sync,
// id-lists-sync, events-tick, dedup-ttl-reset, diagnostics-drain) and
// their coordinated, bounded shutdown (spec §4.7).
package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/statsig-io/go-server-core/internal/log"
)

// DefaultHardDeadline bounds Shutdown's wait for stragglers (spec §5:
// "A hard deadline (default 1s) detaches stragglers").
const DefaultHardDeadline = time.Second

// Task is one named background loop. Run must return promptly once ctx
// is cancelled; it is invoked on its own goroutine.
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// Orchestrator owns the cancellation signal and the errgroup.Group every
// registered Task runs under. A Task's Run never reports an error to the
// group (it always returns nil once ctx is done), so one background loop
// finishing never trips errgroup's early-cancel-on-error behavior and
// cancels its siblings prematurely — the shared ctx, cancelled only by
// Shutdown, is the sole broadcast signal, same as the teacher's own
// errgroup-based worker pools.
type Orchestrator struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	ctx    context.Context
	group  *errgroup.Group
	tasks  []string

	hardDeadline time.Duration
}

// New constructs an Orchestrator. parent is typically context.Background();
// Shutdown always derives its own cancellation from it.
func New(parent context.Context, hardDeadline time.Duration) *Orchestrator {
	if hardDeadline <= 0 {
		hardDeadline = DefaultHardDeadline
	}
	cancelCtx, cancel := context.WithCancel(parent)
	group, groupCtx := errgroup.WithContext(cancelCtx)
	return &Orchestrator{ctx: groupCtx, cancel: cancel, group: group, hardDeadline: hardDeadline}
}

// Context returns the cancellation-aware context every spawned Task (and
// any adapter it drives) should observe.
func (o *Orchestrator) Context() context.Context { return o.ctx }

// Spawn starts t under the errgroup. Safe to call before or after other
// tasks are running; not safe to call concurrently with Shutdown.
func (o *Orchestrator) Spawn(t Task) {
	o.mu.Lock()
	o.tasks = append(o.tasks, t.Name)
	o.mu.Unlock()

	o.group.Go(func() error {
		log.Debug("background task started", log.F("task", t.Name))
		t.Run(o.ctx)
		log.Debug("background task stopped", log.F("task", t.Name))
		return nil
	})
}

// Shutdown broadcasts cancellation and waits up to the configured hard
// deadline for every spawned task to return; stragglers are detached and
// logged rather than blocking the caller indefinitely (spec §5).
func (o *Orchestrator) Shutdown(timeout time.Duration) {
	if timeout <= 0 || timeout > o.hardDeadline {
		timeout = o.hardDeadline
	}
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		o.mu.Lock()
		names := append([]string(nil), o.tasks...)
		o.mu.Unlock()
		log.Warn("orchestrator shutdown deadline exceeded; stragglers detached", log.F("tasks", names))
	}
}
