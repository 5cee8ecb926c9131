// Package datastoreadapter implements the data-store Specs Adapter
// variant (spec §4.2/EXPANSION C14): it wraps a host-supplied
// specs.DataStore and reads the cached ruleset from it instead of
// talking to the network directly. When the store reports
// SupportsPolling, the adapter schedules its own re-read loop; otherwise
// ManuallySyncSpecs is purely passive (the host is expected to call it
// after pushing new data into the store out of band).
package datastoreadapter

import (
	"context"
	"time"

	"github.com/statsig-io/go-server-core/internal/log"
	"github.com/statsig-io/go-server-core/internal/specs"
	"github.com/statsig-io/go-server-core/internal/sterr"
)

const cacheKey = "statsig.cache"

// Adapter is the data-store specs.Adapter implementation.
type Adapter struct {
	backend      specs.DataStore
	store        *specs.Store
	pollInterval time.Duration
	onError      func(error)

	done chan struct{}
}

// New constructs a data-store adapter reading cacheKey from backend into
// store.
func New(backend specs.DataStore, store *specs.Store, pollInterval time.Duration, onError func(error)) *Adapter {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Adapter{backend: backend, store: store, pollInterval: pollInterval, onError: onError}
}

func (a *Adapter) TypeName() string { return "data_store" }

func (a *Adapter) Start(ctx context.Context) error {
	if err := a.ManuallySyncSpecs(ctx); err != nil {
		a.report(err)
	}
	return nil
}

func (a *Adapter) ManuallySyncSpecs(ctx context.Context) error {
	raw, ok, err := a.backend.Get(ctx, cacheKey)
	if err != nil {
		return sterr.New(sterr.DataStoreFailure, "datastoreadapter.ManuallySyncSpecs", err, cacheKey)
	}
	if !ok {
		return nil
	}
	result, err := specs.Parse(raw, specs.SourceDataStore, uint64(time.Now().UnixMilli()))
	if err != nil {
		return err
	}
	if result.HasUpdates {
		a.store.Set(result.Snapshot)
	}
	return nil
}

func (a *Adapter) ScheduleBackgroundSync(ctx context.Context) {
	if !a.backend.SupportsPolling() {
		return
	}
	a.done = make(chan struct{})
	ticker := time.NewTicker(a.pollInterval)
	go func() {
		defer ticker.Stop()
		defer close(a.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.ManuallySyncSpecs(ctx); err != nil {
					a.report(err)
				}
			}
		}
	}()
}

func (a *Adapter) report(err error) {
	log.Warn("data store specs adapter sync failed", log.F("error", err))
	if a.onError != nil {
		a.onError(err)
	}
}

func (a *Adapter) Shutdown(ctx context.Context) error {
	if a.done == nil {
		return nil
	}
	select {
	case <-a.done:
	case <-ctx.Done():
		log.Warn("data store specs adapter shutdown timed out; background goroutine detached")
	}
	return nil
}

// MemoryStore is a trivial in-process specs.DataStore, useful for tests
// and for hosts that keep the cache in memory and push updates via Set
// directly (SupportsPolling reports false so no redundant polling loop
// is started).
type MemoryStore struct {
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{data: map[string][]byte{}} }

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *MemoryStore) SupportsPolling() bool { return false }
