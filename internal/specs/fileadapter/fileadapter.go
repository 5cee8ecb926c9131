// Package fileadapter implements the local-file Specs Adapter variant:
// cold reload of a DCS JSON document from disk whenever its mtime
// changes. Used for air-gapped deployments and for the implementer-
// specified "local file" persisted state mentioned in spec §6.
package fileadapter

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/statsig-io/go-server-core/internal/log"
	"github.com/statsig-io/go-server-core/internal/specs"
	"github.com/statsig-io/go-server-core/internal/sterr"
)

const defaultPollInterval = 1 * time.Second

// Adapter is the local-file specs.Adapter implementation.
type Adapter struct {
	path         string
	pollInterval time.Duration
	store        *specs.Store
	onError      func(error)

	mu       sync.Mutex
	lastMod  time.Time
	done     chan struct{}
	shutdown chan struct{}
}

// New constructs a file adapter that reloads path whenever its modified
// time advances.
func New(path string, store *specs.Store, onError func(error)) *Adapter {
	return &Adapter{path: path, pollInterval: defaultPollInterval, store: store, onError: onError}
}

func (a *Adapter) TypeName() string { return "local_file" }

func (a *Adapter) Start(ctx context.Context) error {
	if err := a.ManuallySyncSpecs(ctx); err != nil {
		a.report(err)
	}
	return nil
}

func (a *Adapter) ManuallySyncSpecs(_ context.Context) error {
	info, err := os.Stat(a.path)
	if err != nil {
		return sterr.New(sterr.DataStoreFailure, "fileadapter.ManuallySyncSpecs", err, a.path)
	}

	a.mu.Lock()
	unchanged := a.lastMod.Equal(info.ModTime())
	a.mu.Unlock()
	if unchanged {
		return nil
	}

	raw, err := os.ReadFile(a.path)
	if err != nil {
		return sterr.New(sterr.DataStoreFailure, "fileadapter.ManuallySyncSpecs", err, a.path)
	}

	result, err := specs.Parse(raw, specs.SourceNetwork, uint64(time.Now().UnixMilli()))
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.lastMod = info.ModTime()
	a.mu.Unlock()

	if result.HasUpdates {
		a.store.Set(result.Snapshot)
	}
	return nil
}

func (a *Adapter) ScheduleBackgroundSync(ctx context.Context) {
	a.mu.Lock()
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	ticker := time.NewTicker(a.pollInterval)
	go func() {
		defer ticker.Stop()
		defer close(done)
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
	log.Warn("file specs adapter poll failed", log.F("path", a.path), log.F("error", err))
	if a.onError != nil {
		a.onError(err)
	}
}

func (a *Adapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("file specs adapter shutdown timed out; background goroutine detached")
	}
	return nil
}
