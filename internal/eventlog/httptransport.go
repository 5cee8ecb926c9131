package eventlog

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/statsig-io/go-server-core/internal/sdkmeta"
	"github.com/statsig-io/go-server-core/internal/sterr"
)

// HTTPTransport posts batches to {log_event_url}/v1/log_event, gzip
// compressing the body (spec §6: "When compressing log payloads,
// Content-Encoding: gzip").
type HTTPTransport struct {
	LogEventURL string
	SDKKey      string
	Client      *http.Client
}

// NewHTTPTransport constructs a transport with a sensible default
// per-request timeout (spec §5: "timeout_ms (default ... 3_000 for
// log-event)").
func NewHTTPTransport(logEventURL, sdkKey string) *HTTPTransport {
	return &HTTPTransport{
		LogEventURL: logEventURL,
		SDKKey:      sdkKey,
		Client:      &http.Client{Timeout: 3 * time.Second},
	}
}

type wireEvent struct {
	EventName  string            `json:"eventName"`
	Value      any               `json:"value,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	User       map[string]any    `json:"user,omitempty"`
	Time       int64             `json:"time"`
}

type wirePayload struct {
	Events          []wireEvent `json:"events"`
	StatsigMetadata Metadata    `json:"statsigMetadata"`
}

func (t *HTTPTransport) Post(ctx context.Context, batch Batch) error {
	events := make([]wireEvent, len(batch.Events))
	for i, e := range batch.Events {
		events[i] = wireEvent{
			EventName: string(e.Kind) + ":" + e.Name,
			Value:     e.Value.Raw(),
			Metadata:  e.Metadata,
			User:      e.User,
			Time:      e.TimeMillis,
		}
	}
	payload := wirePayload{Events: events, StatsigMetadata: currentMetadata()}

	body, err := json.Marshal(payload)
	if err != nil {
		return sterr.New(sterr.ParseError, "eventlog.Post", err, "marshal payload")
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(body); err != nil {
		return sterr.New(sterr.CompressionError, "eventlog.Post", err, "gzip write")
	}
	if err := gz.Close(); err != nil {
		return sterr.New(sterr.CompressionError, "eventlog.Post", err, "gzip close")
	}

	url := fmt.Sprintf("%s/log_event", t.LogEventURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return sterr.New(sterr.InvalidArgument, "eventlog.Post", err, url)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("STATSIG-API-KEY", t.SDKKey)
	req.Header.Set("STATSIG-SDK-TYPE", sdkmeta.SDKType())
	req.Header.Set("STATSIG-SDK-VERSION", sdkmeta.Version)
	req.Header.Set("STATSIG-SERVER-SESSION-ID", sdkmeta.SessionID())
	req.Header.Set("STATSIG-CLIENT-TIME", strconv.FormatInt(time.Now().UnixMilli(), 10))

	resp, err := t.Client.Do(req)
	if err != nil {
		return sterr.New(sterr.NetworkError, "eventlog.Post", err, "transport")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return sterr.New(sterr.NetworkError, "eventlog.Post", nil, fmt.Sprintf("status=%d", resp.StatusCode))
	}
	return nil
}
