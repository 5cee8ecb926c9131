package bootstrapadapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statsig-io/go-server-core/internal/specs"
)

const payload = `{"time": 42, "feature_gates": [], "dynamic_configs": [], "layer_configs": []}`

func TestStartPublishesBootstrapSnapshot(t *testing.T) {
	store := specs.NewStore(nil)
	a := New([]byte(payload), store)
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, specs.SourceBootstrap, store.GetSource())
	lcut, _ := store.CurrentLCUT()
	assert.Equal(t, uint64(42), lcut)
}

func TestBootstrapOverridesNewerNetworkSnapshot(t *testing.T) {
	store := specs.NewStore(nil)
	store.Set(&specs.Snapshot{LCUT: 9999, Source: specs.SourceNetwork})

	a := New([]byte(payload), store)
	require.NoError(t, a.ManuallySyncSpecs(context.Background()))

	assert.Equal(t, specs.SourceBootstrap, store.GetSource(), "bootstrap always applies per store accept rule")
}

func TestShutdownAndScheduleAreNoops(t *testing.T) {
	store := specs.NewStore(nil)
	a := New([]byte(payload), store)
	a.ScheduleBackgroundSync(context.Background())
	assert.NoError(t, a.Shutdown(context.Background()))
}
