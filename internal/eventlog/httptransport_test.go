package eventlog

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statsig-io/go-server-core/internal/dynamic"
)

func TestHTTPTransportPostsGzippedJSON(t *testing.T) {
	var received wirePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		assert.NotEmpty(t, r.Header.Get("STATSIG-API-KEY"))

		gz, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(gz)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))

		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "secret")
	err := tr.Post(context.Background(), Batch{Events: []Event{{Kind: KindGate, Name: "g1", Value: dynamic.New(true), TimeMillis: 123}}})
	require.NoError(t, err)

	require.Len(t, received.Events, 1)
	assert.Equal(t, "gate_exposure:g1", received.Events[0].EventName)
	assert.Equal(t, int64(123), received.Events[0].Time)
}

func TestHTTPTransportReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "secret")
	err := tr.Post(context.Background(), Batch{Events: []Event{{Kind: KindCustom, Name: "e"}}})
	assert.Error(t, err)
}
