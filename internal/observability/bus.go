// Package observability implements the Observability Bus (C11): a
// bounded single-producer-many-consumer channel carrying diagnostics,
// metrics, and emitted SDK events, plus an ObservabilityClient contract
// hosts can plug a metrics backend into (spec §4.8).
package observability

import (
	"sync"

	"github.com/statsig-io/go-server-core/internal/log"
)

// EventKind tags the variant carried on the bus (spec §4.8's
// {ObservabilityEvent, DiagnosticsEvent, ConsoleCaptureEvent, SdkEvent}).
type EventKind string

const (
	KindObservability EventKind = "ObservabilityEvent"
	KindDiagnostics   EventKind = "DiagnosticsEvent"
	KindConsoleCapture EventKind = "ConsoleCaptureEvent"
	KindSdkEvent      EventKind = "SdkEvent"
)

// Event is one message published to the bus.
type Event struct {
	Kind    EventKind
	Name    string
	Tags    map[string]string
	Value   float64
	Err     error
}

// Client is the pluggable metrics/diagnostics backend (spec §6's
// `observability_client` injected implementation). handle_event must
// not block (spec §4.8); implementations that do network I/O should
// buffer internally.
type Client interface {
	HandleEvent(e Event)
}

// NoopClient discards every event; the default when the host supplies
// none.
type NoopClient struct{}

func (NoopClient) HandleEvent(Event) {}

const capacity = 1000

// Bus is the bounded SPMC channel. Publish never blocks: on overflow the
// oldest buffered event is dropped and Dropped increments (spec §4.8).
type Bus struct {
	mu      sync.Mutex
	buf     []Event
	dropped int64
	subs    []Client
	closed  bool
}

// NewBus returns an empty Bus with the fixed capacity from spec §4.8.
func NewBus() *Bus {
	return &Bus{buf: make([]Event, 0, capacity)}
}

// Subscribe registers c to receive every future Publish. Subscribers
// run synchronously on the publisher's goroutine; per the HandleEvent
// contract they must not block.
func (b *Bus) Subscribe(c Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, c)
}

// Publish appends e to the ring buffer and fans it out to every
// subscriber. Buffering exists so a late subscriber (or a diagnostics
// drain task reading the backlog) can still observe recent history;
// fan-out to live subscribers happens immediately regardless of buffer
// state.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.buf) >= capacity {
		b.buf = b.buf[1:]
		b.dropped++
	}
	b.buf = append(b.buf, e)
	subs := append([]Client(nil), b.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn("observability subscriber panicked", log.F("recovered", r))
				}
			}()
			s.HandleEvent(e)
		}()
	}
}

// Dropped reports how many buffered events have been evicted on
// overflow.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Backlog returns a snapshot copy of the currently buffered events,
// oldest first.
func (b *Bus) Backlog() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.buf...)
}

// Close marks the bus closed; further Publish calls are no-ops. There is
// no flush — subscribers have already observed every event fanned out
// before Close was called.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
