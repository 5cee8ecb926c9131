package idlist

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManuallySyncIdListsFetchesNewList(t *testing.T) {
	var listSrv *httptest.Server
	listSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("+a\n+b\n"))
	}))
	defer listSrv.Close()

	metaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("STATSIG-API-KEY"))
		w.Write([]byte(`{"list1": {"name": "list1", "fileID": "f1", "size": 6, "creationTime": 1, "url": "` + listSrv.URL + `"}}`))
	}))
	defer metaSrv.Close()

	store := NewStore()
	a := New(Config{IDListsURL: metaSrv.URL, SDKKey: "secret"}, store, nil)

	require.NoError(t, a.ManuallySyncIdLists(context.Background()))
	assert.True(t, store.Contains("list1", "a"))
	assert.True(t, store.Contains("list1", "b"))
	meta, ok := store.Metadata("list1")
	require.True(t, ok)
	assert.Equal(t, int64(6), meta.Size)
}

func TestManuallySyncIdListsSkipsUnchangedList(t *testing.T) {
	var rangeSeen atomic.Bool
	listSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeSeen.Store(true)
		w.Write([]byte("+z\n"))
	}))
	defer listSrv.Close()

	metaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"list1": {"name": "list1", "fileID": "f1", "size": 3, "creationTime": 1, "url": "` + listSrv.URL + `"}}`))
	}))
	defer metaSrv.Close()

	store := NewStore()
	store.ApplyChangeset("list1", "+z\n", Metadata{Name: "list1", FileID: "f1", Size: 3, CreationTime: 1, URL: listSrv.URL})

	a := New(Config{IDListsURL: metaSrv.URL, SDKKey: "secret"}, store, nil)
	require.NoError(t, a.ManuallySyncIdLists(context.Background()))

	assert.False(t, rangeSeen.Load(), "unchanged list metadata should not trigger a delta fetch")
}

func TestManuallySyncIdListsAppliesDeltaSinceKnownSize(t *testing.T) {
	var gotRange string
	listSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Write([]byte("+c\n"))
	}))
	defer listSrv.Close()

	metaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"list1": {"name": "list1", "fileID": "f1", "size": 6, "creationTime": 1, "url": "` + listSrv.URL + `"}}`))
	}))
	defer metaSrv.Close()

	store := NewStore()
	store.ApplyChangeset("list1", "+a\n", Metadata{Name: "list1", FileID: "f1", Size: 3, CreationTime: 1, URL: listSrv.URL})

	a := New(Config{IDListsURL: metaSrv.URL, SDKKey: "secret"}, store, nil)
	require.NoError(t, a.ManuallySyncIdLists(context.Background()))

	assert.Equal(t, "bytes=3-", gotRange)
	assert.True(t, store.Contains("list1", "a"))
	assert.True(t, store.Contains("list1", "c"))
}

func TestManuallySyncIdListsRemovesVanishedList(t *testing.T) {
	metaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer metaSrv.Close()

	store := NewStore()
	store.ApplyChangeset("stale", "+x\n", Metadata{Name: "stale", FileID: "f0", Size: 2, CreationTime: 1})

	a := New(Config{IDListsURL: metaSrv.URL, SDKKey: "secret"}, store, nil)
	require.NoError(t, a.ManuallySyncIdLists(context.Background()))

	assert.False(t, store.Contains("stale", "x"))
	assert.Empty(t, store.Names())
}

func TestManuallySyncIdListsReportsFetchErrors(t *testing.T) {
	metaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer metaSrv.Close()

	var reported atomic.Int64
	store := NewStore()
	a := New(Config{IDListsURL: metaSrv.URL, SDKKey: "secret"}, store, func(err error) { reported.Add(1) })

	err := a.ManuallySyncIdLists(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int64(0), reported.Load(), "metadata fetch errors surface via the returned error, not onError")
}

func TestScheduleBackgroundSyncAndShutdown(t *testing.T) {
	metaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer metaSrv.Close()

	store := NewStore()
	a := New(Config{IDListsURL: metaSrv.URL, SDKKey: "secret", SyncIntervalMs: 1000}, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	a.ScheduleBackgroundSync(ctx)
	cancel()
	require.NoError(t, a.Shutdown(context.Background()))
}
