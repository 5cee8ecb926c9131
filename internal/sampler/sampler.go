// Package sampler implements the Exposure Sampler & Dedup component
// (C8): a TTL-windowed dedup set that collapses repeated identical
// exposures into at most one logged event per window, plus the
// sample_rate/sampling-mode decision a spec can attach to its
// exposures.
package sampler

import (
	"math/rand"
	"sync"
	"time"

	"github.com/statsig-io/go-server-core/internal/hashing"
)

// DefaultTTL is the dedup window used when the host does not override
// it (spec §4.5).
const DefaultTTL = 60 * time.Second

// Mode is a spec's sampling strategy.
type Mode string

const (
	ModeOff    Mode = ""
	ModeOn     Mode = "on"
	ModeShadow Mode = "shadow"
)

// Decision is the outcome of applying a spec's sample_rate/mode to one
// exposure, carried into the QueuedEvent's statsig_metadata.
type Decision struct {
	Sampled      bool // true: event is (or would be) logged
	ShadowLogged string // "" when mode is off; "dropped" or "logged" under ModeShadow
	SamplingRate float64
	SamplingMode Mode
}

// Sample applies rate/mode to one exposure occurrence. rnd is injected so
// tests can supply a deterministic source; production callers pass
// rand.Float64 (package-level, safe for concurrent use since Go 1.20).
func Sample(rate *float64, mode Mode, rnd func() float64) Decision {
	if rate == nil || mode == ModeOff {
		return Decision{Sampled: true}
	}
	keep := rnd() < *rate
	switch mode {
	case ModeOn:
		return Decision{Sampled: keep, SamplingRate: *rate, SamplingMode: mode}
	case ModeShadow:
		shadow := "logged"
		if !keep {
			shadow = "dropped"
		}
		return Decision{Sampled: true, ShadowLogged: shadow, SamplingRate: *rate, SamplingMode: mode}
	default:
		return Decision{Sampled: true}
	}
}

// DefaultRand is the production random source for Sample's rnd
// parameter.
func DefaultRand() float64 { return rand.Float64() }

// Dedup is a TTL hash-set keyed by exposure fingerprint (spec §4.5):
// Add reports whether this fingerprint is new since the set was last
// reset. A background task calls ResetLoop to drop the entire set
// on a fixed cadence rather than tracking a per-entry expiry, trading a
// small amount of duplicate logging right after a reset for O(1) memory
// and no per-entry bookkeeping.
type Dedup struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
}

// NewDedup returns an empty Dedup set.
func NewDedup() *Dedup {
	return &Dedup{seen: make(map[uint64]struct{})}
}

// Fingerprint computes the dedup key for a SecondaryExposure-shaped
// triple (gate, rule_id, gate_value) per spec §3: "hash(gate) ⊕
// hash(rule_id) ⊕ hash(gate_value)".
func Fingerprint(gate, ruleID, gateValue string) uint64 {
	return hashing.SHA256Prefix(gate) ^ hashing.SHA256Prefix(ruleID) ^ hashing.SHA256Prefix(gateValue)
}

// Add inserts fingerprint, returning true if it was not already present
// (i.e. the caller should log this exposure).
func (d *Dedup) Add(fingerprint uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[fingerprint]; ok {
		return false
	}
	d.seen[fingerprint] = struct{}{}
	return true
}

// Reset atomically drops every tracked fingerprint.
func (d *Dedup) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[uint64]struct{})
}

// Len reports how many fingerprints are currently tracked, mainly for
// diagnostics and tests.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// ResetLoop resets d every ttl, blocking until stop is closed or
// receives a value; the orchestrator's shutdown path ends the loop by
// closing stop. Kept dependency-free (no context import) so the orchestrator package
// can wire it through its own cancellation primitive uniformly with
// other background tasks.
func (d *Dedup) ResetLoop(ttl time.Duration, stop <-chan struct{}) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.Reset()
		}
	}
}
