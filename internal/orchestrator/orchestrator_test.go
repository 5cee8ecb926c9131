package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpawnRunsTaskUntilCancelled(t *testing.T) {
	o := New(context.Background(), 500*time.Millisecond)
	var ticks int32
	o.Spawn(Task{Name: "ticker", Run: func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
				atomic.AddInt32(&ticks, 1)
			}
		}
	}})

	time.Sleep(30 * time.Millisecond)
	o.Shutdown(time.Second)

	assert.Greater(t, atomic.LoadInt32(&ticks), int32(0))
}

func TestShutdownReturnsPromptlyWhenTasksCooperate(t *testing.T) {
	o := New(context.Background(), time.Second)
	o.Spawn(Task{Name: "cooperative", Run: func(ctx context.Context) {
		<-ctx.Done()
	}})

	start := time.Now()
	o.Shutdown(time.Second)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestShutdownDetachesStragglerAfterHardDeadline(t *testing.T) {
	o := New(context.Background(), 30*time.Millisecond)
	o.Spawn(Task{Name: "straggler", Run: func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(time.Second) // ignores cancellation deliberately
	}})

	start := time.Now()
	o.Shutdown(30 * time.Millisecond)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "Shutdown must not wait for a straggler past the hard deadline")
}

func TestContextIsCancelledAfterShutdown(t *testing.T) {
	o := New(context.Background(), time.Second)
	o.Shutdown(time.Second)
	select {
	case <-o.Context().Done():
	default:
		t.Fatal("expected context to be cancelled after Shutdown")
	}
}
