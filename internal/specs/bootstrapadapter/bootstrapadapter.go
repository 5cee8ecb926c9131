// Package bootstrapadapter implements the bootstrap Specs Adapter
// variant: a single static payload supplied at construction time, never
// refreshed. Per spec §4.1, a Bootstrap-sourced snapshot is always
// accepted by the Store regardless of its lcut, even over a newer
// snapshot already held; a later non-bootstrap snapshot replaces it only
// if its lcut is at least the bootstrap payload's.
package bootstrapadapter

import (
	"context"
	"time"

	"github.com/statsig-io/go-server-core/internal/specs"
)

// Adapter is the bootstrap specs.Adapter implementation.
type Adapter struct {
	payload []byte
	store   *specs.Store
}

// New constructs a bootstrap adapter that will publish payload (a
// download_config_specs-shaped JSON document) into store on Start.
func New(payload []byte, store *specs.Store) *Adapter {
	return &Adapter{payload: payload, store: store}
}

func (a *Adapter) TypeName() string { return "bootstrap" }

func (a *Adapter) Start(ctx context.Context) error {
	return a.ManuallySyncSpecs(ctx)
}

// ManuallySyncSpecs re-parses and re-publishes the same static payload.
// Idempotent beyond the first call since the Store rejects a Bootstrap
// snapshot only never — it always accepts, but re-applying an identical
// payload is harmless.
func (a *Adapter) ManuallySyncSpecs(_ context.Context) error {
	result, err := specs.Parse(a.payload, specs.SourceBootstrap, uint64(time.Now().UnixMilli()))
	if err != nil {
		return err
	}
	if result.HasUpdates {
		a.store.Set(result.Snapshot)
	}
	return nil
}

// ScheduleBackgroundSync is a no-op: a bootstrap payload never changes.
func (a *Adapter) ScheduleBackgroundSync(_ context.Context) {}

// Shutdown is a no-op: there is no background loop to stop.
func (a *Adapter) Shutdown(_ context.Context) error { return nil }
