package specs

import "context"

// Adapter is the capability set every Specs Adapter variant (HTTP
// polling, gRPC streaming, bootstrap, local file, data-store, or a
// failover composition of these) must implement (spec §4.2). It never
// returns parsed data directly; instead it publishes accepted snapshots
// into the Store it was constructed with.
type Adapter interface {
	// Start acquires the initial snapshot, succeeding or failing within
	// initTimeout. Implementations must return promptly on ctx
	// cancellation.
	Start(ctx context.Context) error

	// ScheduleBackgroundSync begins a periodic loop (interval chosen at
	// construction) calling ManuallySyncSpecs until ctx is done. It must
	// not block the caller; implementations start the loop on their own
	// goroutine and return.
	ScheduleBackgroundSync(ctx context.Context)

	// ManuallySyncSpecs fetches once. If the fetched lcut equals the
	// store's current lcut it is a no-op.
	ManuallySyncSpecs(ctx context.Context) error

	// Shutdown stops background loops. It does not flush any state; the
	// Store retains whatever Snapshot it last accepted.
	Shutdown(ctx context.Context) error

	// TypeName identifies the adapter variant for diagnostics.
	TypeName() string
}

// DataStore is the pluggable key/value backend contract (C14) consumed
// by the "data-store" Specs Adapter variant. ID lists do not use it.
type DataStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	SupportsPolling() bool
}

// OverrideAdapter is the local/unit-test override contract (C15)
// consulted by the Evaluator before rule evaluation. Implementations are
// expected to be cheap, synchronous, and side-effect free.
type OverrideAdapter interface {
	GateOverride(name string, unitID string) (value bool, ok bool)
	ConfigOverride(name string, unitID string) (value map[string]any, ok bool)
}
