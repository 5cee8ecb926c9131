package specs

import (
	"context"
	"sync"
	"sync/atomic"
)

// Notifier is called by the Store whenever a new Snapshot is published.
// It is kept as a plain function type (rather than importing the
// observability package directly) to avoid a dependency cycle between
// specs and observability; the Client wires the two together.
type Notifier func(event string, fields map[string]any)

// Store is the thread-safe, atomically swappable holder of the current
// Snapshot (C3). Readers call Current and evaluate against the returned
// pointer without taking any lock; writers serialize among themselves
// via writeMu so concurrent Set calls from overlapping adapters (the
// scheduled poll and a manual sync) cannot interleave their
// accept/reject decision.
type Store struct {
	ptr      atomic.Pointer[Snapshot]
	writeMu  sync.Mutex
	notify   Notifier
	initOnce sync.Once
	initCh   chan struct{}
}

// NewStore returns a Store pre-populated with an Empty, Uninitialized
// Snapshot. notify may be nil.
func NewStore(notify Notifier) *Store {
	s := &Store{notify: notify, initCh: make(chan struct{})}
	s.ptr.Store(Empty())
	return s
}

// Current returns the Snapshot currently in effect. Never blocks, never
// returns nil.
func (s *Store) Current() *Snapshot {
	return s.ptr.Load()
}

// CurrentLCUT reports the current Snapshot's LCUT and whether the store
// has ever accepted a non-Uninitialized snapshot.
func (s *Store) CurrentLCUT() (uint64, bool) {
	cur := s.Current()
	return cur.LCUT, cur.Source != SourceUninitialized
}

// GetSource reports the current Snapshot's provenance.
func (s *Store) GetSource() Source {
	return s.Current().Source
}

// Set publishes next if it is newer than (or the first, or a Bootstrap)
// snapshot currently held. It returns whether next was applied; false
// means next was nil or rejected as stale, which is not an error
// condition.
func (s *Store) Set(next *Snapshot) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.Current()
	if !s.accepts(cur, next) {
		return false
	}

	s.ptr.Store(next)
	s.initOnce.Do(func() { close(s.initCh) })

	if s.notify != nil {
		s.notify("RulesetsUpdated", map[string]any{
			"lcut":   next.LCUT,
			"source": string(next.Source),
		})
	}
	return true
}

// accepts implements the "reject older snapshots unless source ==
// Bootstrap" rule (spec §4.1).
func (s *Store) accepts(cur, next *Snapshot) bool {
	if next == nil {
		return false
	}
	if next.Source == SourceBootstrap {
		return true
	}
	if cur.Source == SourceUninitialized {
		return true
	}
	return next.LCUT >= cur.LCUT
}

// AwaitInitialized blocks until the first successful Set or until ctx is
// done, whichever happens first. Client.Initialize does not call it; it
// bounds its startup through the ctx deadline passed to Adapter.Start.
func (s *Store) AwaitInitialized(ctx context.Context) error {
	select {
	case <-s.initCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
