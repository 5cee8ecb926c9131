package idlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/statsig-io/go-server-core/internal/log"
	"github.com/statsig-io/go-server-core/internal/sdkmeta"
	"github.com/statsig-io/go-server-core/internal/sterr"
)

const (
	defaultSyncIntervalMs = 60_000
	minSyncIntervalMs     = 1_000
)

// Config configures the HTTP ID-List Adapter.
type Config struct {
	IDListsURL     string
	SDKKey         string
	SyncIntervalMs int
	HTTPClient     *http.Client
}

// Adapter is the HTTP ID-List Adapter implementation (C5).
type Adapter struct {
	cfg   Config
	store *Store

	client  *http.Client
	sf      singleflight.Group
	onError func(error)

	mu   sync.Mutex
	done chan struct{}
}

// New constructs an HTTP id-list adapter populating store.
func New(cfg Config, store *Store, onError func(error)) *Adapter {
	if cfg.SyncIntervalMs <= 0 {
		cfg.SyncIntervalMs = defaultSyncIntervalMs
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{cfg: cfg, store: store, client: cfg.HTTPClient, onError: onError}
}

func (a *Adapter) TypeName() string { return "http" }

func (a *Adapter) Start(ctx context.Context) error {
	if err := a.ManuallySyncIdLists(ctx); err != nil {
		a.report(err)
	}
	return nil
}

// ManuallySyncIdLists fetches the current metadata for every list, then
// fetches a delta for any list whose reported size grew (or whose
// file_id changed) since the locally stored metadata.
func (a *Adapter) ManuallySyncIdLists(ctx context.Context) error {
	_, err, _ := a.sf.Do("sync", func() (any, error) {
		return nil, a.syncOnce(ctx)
	})
	return err
}

func (a *Adapter) syncOnce(ctx context.Context) error {
	remote, err := a.fetchMetadata(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]bool)
	for _, name := range a.store.Names() {
		known[name] = true
	}

	for name, meta := range remote {
		known[name] = false
		local, ok := a.store.Metadata(name)
		if ok && local.FileID == meta.FileID && local.Size >= meta.Size {
			continue
		}
		since := int64(0)
		if ok && local.FileID == meta.FileID {
			since = local.Size
		}
		body, err := a.fetchChangeset(ctx, meta, since)
		if err != nil {
			a.report(err)
			continue
		}
		a.store.ApplyChangeset(name, body, meta)
	}

	for name, stillPresent := range known {
		if !stillPresent {
			continue
		}
		if _, ok := remote[name]; !ok {
			a.store.Remove(name)
		}
	}
	return nil
}

func (a *Adapter) fetchMetadata(ctx context.Context) (map[string]Metadata, error) {
	url := fmt.Sprintf("%s/get_id_lists", a.cfg.IDListsURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, sterr.New(sterr.InvalidArgument, "idlist.fetchMetadata", err, url)
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, sterr.New(sterr.NetworkError, "idlist.fetchMetadata", err, "transport")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, sterr.New(sterr.NetworkError, "idlist.fetchMetadata", nil, fmt.Sprintf("status=%d", resp.StatusCode))
	}

	var raw map[string]struct {
		Name         string `json:"name"`
		FileID       string `json:"fileID"`
		Size         int64  `json:"size"`
		CreationTime uint64 `json:"creationTime"`
		URL          string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, sterr.New(sterr.ParseError, "idlist.fetchMetadata", err, "decode")
	}

	out := make(map[string]Metadata, len(raw))
	for name, m := range raw {
		out[name] = Metadata{Name: name, FileID: m.FileID, Size: m.Size, CreationTime: m.CreationTime, URL: m.URL}
	}
	return out, nil
}

func (a *Adapter) fetchChangeset(ctx context.Context, meta Metadata, since int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return "", sterr.New(sterr.InvalidArgument, "idlist.fetchChangeset", err, meta.URL)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", since))
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", sterr.New(sterr.NetworkError, "idlist.fetchChangeset", err, "transport")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", sterr.New(sterr.NetworkError, "idlist.fetchChangeset", nil, fmt.Sprintf("status=%d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", sterr.New(sterr.NetworkError, "idlist.fetchChangeset", err, "body read")
	}
	return string(body), nil
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("STATSIG-API-KEY", a.cfg.SDKKey)
	req.Header.Set("STATSIG-SDK-TYPE", sdkmeta.SDKType())
	req.Header.Set("STATSIG-SDK-VERSION", sdkmeta.Version)
	req.Header.Set("STATSIG-SERVER-SESSION-ID", sdkmeta.SessionID())
}

func (a *Adapter) ScheduleBackgroundSync(ctx context.Context) {
	a.mu.Lock()
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	ticker := time.NewTicker(time.Duration(a.cfg.SyncIntervalMs) * time.Millisecond)
	go func() {
		defer ticker.Stop()
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.ManuallySyncIdLists(ctx); err != nil {
					a.report(err)
				}
			}
		}
	}()
}

func (a *Adapter) report(err error) {
	log.Warn("id list adapter sync failed", log.F("error", err))
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
		log.Warn("id list adapter shutdown timed out; background goroutine detached")
	}
	return nil
}
