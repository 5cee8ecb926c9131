package statsig

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statsig-io/go-server-core/internal/eventlog"
)

// bootstrapPayload builds a download_config_specs-shaped V1 payload with a
// single feature gate, "test_public", that passes unconditionally.
func bootstrapPayload(lcut int64) []byte {
	doc := fmt.Sprintf(`{
		"time": %d,
		"feature_gates": [
			{
				"name": "test_public",
				"type": "feature_gate",
				"salt": "salt1",
				"enabled": true,
				"defaultValue": false,
				"idType": "userID",
				"rules": [
					{
						"id": "rule_1",
						"salt": "salt1",
						"passPercentage": 100,
						"returnValue": true,
						"conditions": [{"type": "public"}]
					}
				]
			}
		],
		"dynamic_configs": [],
		"layer_configs": []
	}`, lcut)
	return []byte(doc)
}

// wireEventView mirrors eventlog's unexported wireEvent/wirePayload shapes
// just enough to assert on what an HTTPTransport actually posts.
type wireEventView struct {
	EventName string            `json:"eventName"`
	Metadata  map[string]string `json:"metadata"`
	Time      int64             `json:"time"`
}

type wirePayloadView struct {
	Events []wireEventView `json:"events"`
}

// eventCapture is an httptest handler that gunzips and decodes every
// log_event POST it receives, recording the cumulative event list.
type eventCapture struct {
	mu     sync.Mutex
	events []wireEventView
}

func (c *eventCapture) handler(w http.ResponseWriter, r *http.Request) {
	gz, err := gzip.NewReader(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(gz)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var payload wirePayloadView
	if err := json.Unmarshal(body, &payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.events = append(c.events, payload.Events...)
	c.mu.Unlock()
	w.Write([]byte(`{"success":true}`))
}

func (c *eventCapture) snapshot() []wireEventView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wireEventView(nil), c.events...)
}

// TestBootstrapThenFirstCheck covers spec scenario 1: a bootstrap payload
// with a 100%-pass public gate evaluates true, reason Bootstrap:Recognized,
// and logs exactly one gate exposure.
func TestBootstrapThenFirstCheck(t *testing.T) {
	capture := &eventCapture{}
	srv := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer srv.Close()

	c := New("secret-key",
		WithBootstrapPayload(bootstrapPayload(42)),
		WithDisableNetwork(true),
		WithEventLoggingAdapter(eventlog.NewHTTPTransport(srv.URL, "secret-key")),
	)
	defer c.Shutdown(2 * time.Second)

	require.NoError(t, c.Initialize(context.Background()))

	ok := c.CheckGate(User{UserID: "u1"}, "test_public")
	assert.True(t, ok)

	c.FlushEvents()

	events := capture.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "gate_exposure:test_public", events[0].EventName)
	assert.Equal(t, "Bootstrap:Recognized", events[0].Metadata["reason"])
}

// TestUnknownSpecReportsUnrecognized covers spec scenario 3.
func TestUnknownSpecReportsUnrecognized(t *testing.T) {
	capture := &eventCapture{}
	srv := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer srv.Close()

	c := New("secret-key",
		WithBootstrapPayload(bootstrapPayload(42)),
		WithDisableNetwork(true),
		WithEventLoggingAdapter(eventlog.NewHTTPTransport(srv.URL, "secret-key")),
	)
	defer c.Shutdown(2 * time.Second)

	require.NoError(t, c.Initialize(context.Background()))

	ok := c.CheckGate(User{UserID: "u1"}, "does_not_exist")
	assert.False(t, ok)

	c.FlushEvents()

	events := capture.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "gate_exposure:does_not_exist", events[0].EventName)
	assert.Equal(t, "Bootstrap:Unrecognized", events[0].Metadata["reason"])
}

// TestExposureDedupCollapsesRepeatedChecks covers spec scenario 4: 1,000
// identical check_gate calls within the dedup window produce exactly one
// logged event once flushed.
func TestExposureDedupCollapsesRepeatedChecks(t *testing.T) {
	capture := &eventCapture{}
	srv := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer srv.Close()

	c := New("secret-key",
		WithBootstrapPayload(bootstrapPayload(42)),
		WithDisableNetwork(true),
		WithEventLoggingAdapter(eventlog.NewHTTPTransport(srv.URL, "secret-key")),
	)
	defer c.Shutdown(2 * time.Second)

	require.NoError(t, c.Initialize(context.Background()))

	u := User{UserID: "dedup-user"}
	for i := 0; i < 1000; i++ {
		c.CheckGate(u, "test_public")
	}
	c.FlushEvents()

	events := capture.snapshot()
	assert.Len(t, events, 1)
}

// TestPollingPicksUpNewerLCUT covers spec scenario 2: a store that starts
// at lcut=100 observes lcut=200 after the next background poll.
func TestPollingPicksUpNewerLCUT(t *testing.T) {
	var requests int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		lcut := int64(100)
		if n > 1 {
			lcut = 200
		}
		w.Write(bootstrapPayload(lcut))
	}))
	defer srv.Close()

	t.Setenv("STATSIG_RUNNING_TESTS", "1")
	t.Setenv("STATSIG_TEST_OVERRIDE_SPECS_SYNC_INTERVAL_MS", "20")

	c := New("secret-key",
		WithSpecsURL(srv.URL),
		WithEventLoggingAdapter(noopTransport{}),
	)
	defer c.Shutdown(2 * time.Second)

	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, uint64(100), c.store.Current().LCUT)

	assert.Eventually(t, func() bool {
		return c.store.Current().LCUT == 200
	}, 2*time.Second, 10*time.Millisecond)
}

// TestShutdownDrainsQueuedEvents covers spec scenario 6: every event
// enqueued before shutdown is observed by the server before Shutdown
// returns.
func TestShutdownDrainsQueuedEvents(t *testing.T) {
	capture := &eventCapture{}
	srv := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer srv.Close()

	c := New("secret-key",
		WithBootstrapPayload(bootstrapPayload(42)),
		WithDisableNetwork(true),
		WithEventLoggingAdapter(eventlog.NewHTTPTransport(srv.URL, "secret-key")),
	)
	require.NoError(t, c.Initialize(context.Background()))

	const n = 10
	for i := 0; i < n; i++ {
		c.LogEvent(User{UserID: "u1"}, "custom_thing", nil, map[string]string{"i": fmt.Sprint(i)})
	}

	c.Shutdown(5 * time.Second)

	events := capture.snapshot()
	assert.Len(t, events, n)
}
