package statsig

import (
	"context"

	"github.com/statsig-io/go-server-core/internal/eventlog"
	"github.com/statsig-io/go-server-core/internal/specs"
)

// noopSpecsAdapter backs the disable_network option: it publishes a
// single empty, NoValues-sourced snapshot and otherwise does nothing
// (spec §6: "disable_network hard-disables all outbound HTTP; adapters
// no-op").
type noopSpecsAdapter struct{ store *specs.Store }

func newNoopSpecsAdapter(store *specs.Store) *noopSpecsAdapter {
	return &noopSpecsAdapter{store: store}
}

func (a *noopSpecsAdapter) TypeName() string { return "noop" }

func (a *noopSpecsAdapter) Start(context.Context) error {
	snap := specs.Empty()
	snap.Source = specs.SourceNoValues
	a.store.Set(snap)
	return nil
}

func (a *noopSpecsAdapter) ManuallySyncSpecs(context.Context) error { return nil }
func (a *noopSpecsAdapter) ScheduleBackgroundSync(context.Context) {}
func (a *noopSpecsAdapter) Shutdown(context.Context) error         { return nil }

// noopIDListsAdapter mirrors noopSpecsAdapter for the id-list side-table.
type noopIDListsAdapter struct{}

func newNoopIDListsAdapter() *noopIDListsAdapter { return &noopIDListsAdapter{} }

func (noopIDListsAdapter) TypeName() string                          { return "noop" }
func (noopIDListsAdapter) Start(context.Context) error                { return nil }
func (noopIDListsAdapter) ManuallySyncIdLists(context.Context) error  { return nil }
func (noopIDListsAdapter) ScheduleBackgroundSync(context.Context)     {}
func (noopIDListsAdapter) Shutdown(context.Context) error             { return nil }

// noopTransport discards every batch without error, used for the event
// logger's Transport under disable_network.
type noopTransport struct{}

func (noopTransport) Post(context.Context, eventlog.Batch) error { return nil }
