package specs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreStartsUninitialized(t *testing.T) {
	s := NewStore(nil)
	assert.Equal(t, SourceUninitialized, s.GetSource())
	lcut, ok := s.CurrentLCUT()
	assert.Equal(t, uint64(0), lcut)
	assert.False(t, ok)
}

func TestSetAcceptsFirstSnapshot(t *testing.T) {
	s := NewStore(nil)
	applied := s.Set(&Snapshot{LCUT: 100, Source: SourceNetwork})
	assert.True(t, applied)
	assert.Equal(t, SourceNetwork, s.GetSource())
}

func TestSetRejectsOlderSnapshot(t *testing.T) {
	s := NewStore(nil)
	s.Set(&Snapshot{LCUT: 200, Source: SourceNetwork})
	applied := s.Set(&Snapshot{LCUT: 100, Source: SourceNetwork})
	assert.False(t, applied)
	lcut, _ := s.CurrentLCUT()
	assert.Equal(t, uint64(200), lcut)
}

func TestSetBootstrapAlwaysApplies(t *testing.T) {
	s := NewStore(nil)
	s.Set(&Snapshot{LCUT: 500, Source: SourceNetwork})
	applied := s.Set(&Snapshot{LCUT: 1, Source: SourceBootstrap})
	assert.True(t, applied, "bootstrap snapshots always apply per spec")
	lcut, _ := s.CurrentLCUT()
	assert.Equal(t, uint64(1), lcut)
}

func TestNotifyCalledOnAccept(t *testing.T) {
	var gotEvent string
	s := NewStore(func(event string, fields map[string]any) { gotEvent = event })
	s.Set(&Snapshot{LCUT: 1, Source: SourceNetwork})
	assert.Equal(t, "RulesetsUpdated", gotEvent)
}

func TestNotifyNotCalledOnReject(t *testing.T) {
	calls := 0
	s := NewStore(func(event string, fields map[string]any) { calls++ })
	s.Set(&Snapshot{LCUT: 100, Source: SourceNetwork})
	s.Set(&Snapshot{LCUT: 50, Source: SourceNetwork})
	assert.Equal(t, 1, calls)
}

func TestAwaitInitializedUnblocksOnSet(t *testing.T) {
	s := NewStore(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.AwaitInitialized(ctx) }()

	s.Set(&Snapshot{LCUT: 1, Source: SourceNetwork})

	require.NoError(t, <-done)
}

func TestAwaitInitializedRespectsContext(t *testing.T) {
	s := NewStore(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.AwaitInitialized(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
