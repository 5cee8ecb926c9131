package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingClient struct {
	mu     sync.Mutex
	events []Event
}

func (c *collectingClient) HandleEvent(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collectingClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestPublishFansOutToSubscribers(t *testing.T) {
	b := NewBus()
	c := &collectingClient{}
	b.Subscribe(c)

	b.Publish(Event{Kind: KindSdkEvent, Name: "init"})
	b.Publish(Event{Kind: KindDiagnostics, Name: "tick"})

	assert.Equal(t, 2, c.count())
	assert.Len(t, b.Backlog(), 2)
}

func TestPublishDropsOldestOnOverflow(t *testing.T) {
	b := NewBus()
	for i := 0; i < capacity+5; i++ {
		b.Publish(Event{Kind: KindObservability, Name: "e"})
	}
	assert.Equal(t, int64(5), b.Dropped())
	assert.Len(t, b.Backlog(), capacity)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := NewBus()
	c := &collectingClient{}
	b.Subscribe(c)
	b.Close()

	b.Publish(Event{Kind: KindSdkEvent, Name: "after-close"})
	assert.Equal(t, 0, c.count())
}

func TestSubscriberPanicDoesNotCrashPublisher(t *testing.T) {
	b := NewBus()
	b.Subscribe(panicClient{})
	c := &collectingClient{}
	b.Subscribe(c)

	require.NotPanics(t, func() {
		b.Publish(Event{Kind: KindSdkEvent, Name: "x"})
	})
	assert.Equal(t, 1, c.count())
}

type panicClient struct{}

func (panicClient) HandleEvent(Event) { panic("boom") }
