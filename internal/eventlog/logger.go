package eventlog

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/statsig-io/go-server-core/internal/log"
	"github.com/statsig-io/go-server-core/internal/sdkmeta"
)

// FlushReason names why a batch was packaged and sent (spec §4.6).
type FlushReason string

const (
	ReasonScheduledMaxTime  FlushReason = "ScheduledMaxTime"
	ReasonScheduledFullBatch FlushReason = "ScheduledFullBatch"
	ReasonLimit             FlushReason = "Limit"
	ReasonManual            FlushReason = "Manual"
	ReasonShutdown          FlushReason = "Shutdown"
)

const (
	defaultTickInterval     = 1000 * time.Millisecond
	defaultFlushInterval    = 60 * time.Second
	defaultMaxBatchSize     = 500
	defaultMaxQueueSize     = 10_000
	maxLogEventRetries      = 5
	retryBackoffCap         = 60 * time.Second
	retryBackoffBase        = 100 * time.Millisecond
)

// Transport posts one batch to the log-event endpoint (spec §6: POST
// {log_event_url}/v1/log_event). The default network implementation is
// HTTPTransport (httptransport.go in this package); hosts may supply
// their own.
type Transport interface {
	Post(ctx context.Context, batch Batch) error
}

// Batch is one flush's worth of events plus retry bookkeeping.
type Batch struct {
	Events   []Event
	Attempts int
	readyAt  time.Time
}

// Metadata mirrors the statsigMetadata envelope attached to every
// posted batch (spec §4.6 payload format).
type Metadata struct {
	SDKType   string
	SDKVersion string
	SessionID string
}

func currentMetadata() Metadata {
	return Metadata{SDKType: sdkmeta.SDKType(), SDKVersion: sdkmeta.Version, SessionID: sdkmeta.SessionID()}
}

// Config tunes the Logger's batching/flush behavior (spec §6 option
// table: event_logging_flush_interval_ms, event_logging_max_queue_size).
type Config struct {
	TickInterval   time.Duration
	FlushInterval  time.Duration
	MaxBatchSize   int
	MaxQueueSize   int
	Transport      Transport
	OnError        func(error)
	EventsDroppedCounter func(n int)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.TickInterval <= 0 {
		out.TickInterval = defaultTickInterval
	}
	if out.FlushInterval <= 0 {
		out.FlushInterval = defaultFlushInterval
	}
	if out.MaxBatchSize <= 0 {
		out.MaxBatchSize = defaultMaxBatchSize
	}
	if out.MaxQueueSize <= 0 {
		out.MaxQueueSize = defaultMaxQueueSize
	}
	return out
}

// Logger is the Event Logger (C9). Enqueue is synchronous and never
// blocks on I/O; a background tick (started via Run) drives batched
// flush.
type Logger struct {
	cfg Config

	mu            sync.Mutex
	queue         []Event
	pending       []Batch // batches awaiting retry, head = next to send
	lastFlush     time.Time
	eventsDropped int64

	// kick wakes the Run goroutine for an out-of-cycle Limit flush. It
	// is buffered so Enqueue's send never blocks the caller: a pending
	// signal coalesces with one already buffered, and the signal simply
	// sits there if Run hasn't started yet.
	kick chan struct{}

	done chan struct{}
}

// New constructs a Logger. Call Run to start its background tick.
func New(cfg Config) *Logger {
	return &Logger{cfg: cfg.withDefaults(), lastFlush: time.Now(), kick: make(chan struct{}, 1)}
}

// Enqueue appends e to the queue. It never performs I/O and never
// blocks (spec §4.6: "Enqueue path is synchronous from caller's thread
// and never awaits"):
//
//   - if the queue is over MaxQueueSize after the append, the oldest
//     events are dropped right down to MaxQueueSize and eventsDropped is
//     incremented — a hard, synchronous bound, since the background
//     flush loop only ever removes up to MaxBatchSize per pass and
//     could otherwise leave the queue durably over capacity;
//   - if the queue has reached MaxQueueSize, the background tick loop
//     (started via Run) is signaled to flush immediately with reason
//     Limit, rather than flushing inline on the caller's goroutine.
func (l *Logger) Enqueue(ctx context.Context, e Event) {
	l.mu.Lock()
	l.queue = append(l.queue, e)
	over := len(l.queue) >= l.cfg.MaxQueueSize
	var dropped int
	if len(l.queue) > l.cfg.MaxQueueSize {
		dropped = len(l.queue) - l.cfg.MaxQueueSize
		l.queue = l.queue[dropped:]
		l.eventsDropped += int64(dropped)
	}
	l.mu.Unlock()

	if dropped > 0 {
		log.Warn("event queue over capacity; dropped oldest events", log.F("size", dropped))
		if l.cfg.EventsDroppedCounter != nil {
			l.cfg.EventsDroppedCounter(dropped)
		}
	}
	if over {
		l.requestFlush()
	}
}

// requestFlush wakes the Run goroutine for an immediate Limit flush
// without blocking the caller.
func (l *Logger) requestFlush() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// EventsDropped reports the running count of dropped events: those
// evicted from a full queue and those discarded after exhausting retries
// (spec §4.6).
func (l *Logger) EventsDropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eventsDropped
}

// Flush forces an immediate flush (facade's flush_events()).
func (l *Logger) Flush(ctx context.Context) {
	l.flush(ctx, ReasonManual)
}

// Run starts the background tick loop until ctx is done. Every tick
// evaluates the ScheduledMaxTime/ScheduledFullBatch triggers and
// retries any pending batches.
func (l *Logger) Run(ctx context.Context) {
	l.done = make(chan struct{})
	ticker := time.NewTicker(l.cfg.TickInterval)
	go func() {
		defer ticker.Stop()
		defer close(l.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.kick:
				l.flush(ctx, ReasonLimit)
			case <-ticker.C:
				l.tick(ctx)
			}
		}
	}()
}

func (l *Logger) tick(ctx context.Context) {
	l.mu.Lock()
	elapsed := time.Since(l.lastFlush)
	full := len(l.queue) >= l.cfg.MaxBatchSize
	l.mu.Unlock()

	switch {
	case full:
		l.flush(ctx, ReasonScheduledFullBatch)
	case elapsed >= l.cfg.FlushInterval && l.queueLen() > 0:
		l.flush(ctx, ReasonScheduledMaxTime)
	}
	l.retryPending(ctx)
}

func (l *Logger) queueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// flush packages up to MaxBatchSize events (spec §4.6) and sends them.
func (l *Logger) flush(ctx context.Context, reason FlushReason) {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.mu.Unlock()
		return
	}
	n := len(l.queue)
	if n > l.cfg.MaxBatchSize {
		n = l.cfg.MaxBatchSize
	}
	batch := Batch{Events: append([]Event(nil), l.queue[:n]...)}
	l.queue = l.queue[n:]
	l.lastFlush = time.Now()
	l.mu.Unlock()

	log.Debug("flushing event batch", log.F("reason", reason), log.F("size", n))
	l.send(ctx, batch)
}

// retryPending resends every pending batch whose backoff has elapsed,
// re-queuing the rest for a later tick. Scheduling the wait via a
// readyAt timestamp (checked on each Run tick) rather than a per-batch
// timer goroutine keeps retry bookkeeping entirely inside the mutex and
// makes Shutdown's bounded join exact — there is no detached goroutine
// racing to re-enqueue a batch after shutdown decided it was done.
func (l *Logger) retryPending(ctx context.Context) {
	l.mu.Lock()
	now := time.Now()
	var due, notYet []Batch
	for _, b := range l.pending {
		if now.After(b.readyAt) {
			due = append(due, b)
		} else {
			notYet = append(notYet, b)
		}
	}
	l.pending = notYet
	l.mu.Unlock()

	for _, b := range due {
		l.send(ctx, b)
	}
}

func (l *Logger) send(ctx context.Context, batch Batch) {
	if l.cfg.Transport == nil {
		return
	}
	err := l.cfg.Transport.Post(ctx, batch)
	if err == nil {
		return
	}

	batch.Attempts++
	if l.cfg.OnError != nil {
		l.cfg.OnError(err)
	}
	if batch.Attempts > maxLogEventRetries {
		l.mu.Lock()
		l.eventsDropped += int64(len(batch.Events))
		l.mu.Unlock()
		if l.cfg.EventsDroppedCounter != nil {
			l.cfg.EventsDroppedCounter(len(batch.Events))
		}
		log.Warn("dropping event batch after exhausting retries", log.F("size", len(batch.Events)))
		return
	}

	batch.readyAt = time.Now().Add(backoffDelay(batch.Attempts))
	l.mu.Lock()
	l.pending = append(l.pending, batch)
	l.mu.Unlock()
}

// forcePendingReady clears every pending batch's backoff wait. Exists
// for tests that want to exercise the retry-then-give-up path without
// waiting out real backoff delays.
func (l *Logger) forcePendingReady() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.pending {
		l.pending[i].readyAt = time.Time{}
	}
}

// backoffDelay implements spec §4.6's "min(60s, 2^attempts * 100ms)
// with ±20% jitter".
func backoffDelay(attempts int) time.Duration {
	base := retryBackoffBase * time.Duration(1<<uint(attempts))
	if base > retryBackoffCap {
		base = retryBackoffCap
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(base) * jitter)
}

// Shutdown drains the queue with a final flush and waits (bounded by
// ctx) for the background loop to stop (spec §4.6 "Shutdown" trigger,
// §5 "shutdown(timeout)").
func (l *Logger) Shutdown(ctx context.Context) {
	for l.queueLen() > 0 {
		l.flush(ctx, ReasonShutdown)
	}
	if l.done == nil {
		return
	}
	select {
	case <-l.done:
	case <-ctx.Done():
		log.Warn("event logger shutdown timed out; background tick detached")
	}
}
