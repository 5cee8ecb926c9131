// Package httpadapter implements the HTTP-polling variant of the Specs
// Adapter contract (spec §4.2): GET .../v2/download_config_specs/{sdk_key}.json[?sinceTime=lcut]
// on a timer, retried with capped exponential backoff on transport
// failure. It is the default adapter a Client constructs when no
// specs_adapter override is supplied.
package httpadapter

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/statsig-io/go-server-core/internal/log"
	"github.com/statsig-io/go-server-core/internal/sdkmeta"
	"github.com/statsig-io/go-server-core/internal/specs"
	"github.com/statsig-io/go-server-core/internal/sterr"
)

const (
	defaultSyncIntervalMs = 10_000
	minSyncIntervalMs     = 1_000
	defaultRequestTimeout = 10 * time.Second
	maxBackoff            = 60 * time.Second
	backoffBase           = 100 * time.Millisecond
	failureSurfaceWindow  = 5 * time.Minute
)

// Config configures the HTTP Specs Adapter.
type Config struct {
	SpecsURL       string // base URL, e.g. "https://statsigapi.net/v2"
	SDKKey         string
	SyncIntervalMs int
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Adapter is the HTTP-polling specs.Adapter implementation.
type Adapter struct {
	cfg     Config
	store   *specs.Store
	onError func(error)

	client       *http.Client
	sf           singleflight.Group
	errLimiter   *rate.Limiter
	failures     atomic.Int64
	shuttingDown atomic.Bool

	mu   sync.Mutex
	done chan struct{}
}

// New constructs an HTTP Specs Adapter targeting store. onError (may be
// nil) receives every fetch error, debounced by a rate limiter so a
// sustained outage reports once per failureSurfaceWindow rather than on
// every retry.
func New(cfg Config, store *specs.Store, onError func(error)) *Adapter {
	if cfg.SyncIntervalMs <= 0 {
		cfg.SyncIntervalMs = defaultSyncIntervalMs
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Adapter{
		cfg:        cfg,
		store:      store,
		onError:    onError,
		client:     cfg.HTTPClient,
		errLimiter: rate.NewLimiter(rate.Every(failureSurfaceWindow), 1),
	}
}

func (a *Adapter) TypeName() string { return "http" }

// Start performs one synchronous fetch, bounded by ctx's deadline
// (callers set this to init_timeout_ms). Fetch failure never returns an
// error from Start: the Store simply stays at its prior Source and the
// failure is reported via onError.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.ManuallySyncSpecs(ctx); err != nil {
		a.reportError(err)
	}
	return nil
}

// ManuallySyncSpecs fetches once; a response reporting no updates since
// the current lcut is a no-op.
func (a *Adapter) ManuallySyncSpecs(ctx context.Context) error {
	if a.shuttingDown.Load() {
		return sterr.New(sterr.ShutdownInProgress, "httpadapter.ManuallySyncSpecs", nil, "")
	}
	_, err, _ := a.sf.Do("sync", func() (any, error) {
		return nil, a.fetchOnce(ctx)
	})
	return err
}

func (a *Adapter) fetchOnce(ctx context.Context) error {
	lcut, _ := a.store.CurrentLCUT()
	url := fmt.Sprintf("%s/download_config_specs/%s.json?sinceTime=%d", a.cfg.SpecsURL, a.cfg.SDKKey, lcut)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sterr.New(sterr.InvalidArgument, "httpadapter.fetchOnce", err, url)
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		a.failures.Add(1)
		return sterr.New(sterr.NetworkError, "httpadapter.fetchOnce", err, "transport")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.failures.Add(1)
		return sterr.New(sterr.NetworkError, "httpadapter.fetchOnce", nil, fmt.Sprintf("status=%d", resp.StatusCode))
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			a.failures.Add(1)
			return sterr.New(sterr.CompressionError, "httpadapter.fetchOnce", err, "gzip")
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		a.failures.Add(1)
		return sterr.New(sterr.NetworkError, "httpadapter.fetchOnce", err, "body read")
	}

	result, err := specs.Parse(body, specs.SourceNetwork, uint64(time.Now().UnixMilli()))
	if err != nil {
		a.failures.Add(1)
		return err
	}
	a.failures.Store(0)

	if !result.HasUpdates {
		return nil
	}
	a.store.Set(result.Snapshot)
	return nil
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("STATSIG-API-KEY", a.cfg.SDKKey)
	req.Header.Set("STATSIG-SDK-TYPE", sdkmeta.SDKType())
	req.Header.Set("STATSIG-SDK-VERSION", sdkmeta.Version)
	req.Header.Set("STATSIG-SERVER-SESSION-ID", sdkmeta.SessionID())
	req.Header.Set("STATSIG-CLIENT-TIME", fmt.Sprintf("%d", time.Now().UnixMilli()))
	req.Header.Set("Accept-Encoding", "gzip")
}

// ScheduleBackgroundSync runs ManuallySyncSpecs on an interval timer
// until ctx is done, extending the interval with capped exponential
// backoff while fetches keep failing.
func (a *Adapter) ScheduleBackgroundSync(ctx context.Context) {
	a.mu.Lock()
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	go func() {
		defer close(done)
		for {
			delay := a.nextDelay()
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if a.shuttingDown.Load() {
				return
			}
			if err := a.ManuallySyncSpecs(ctx); err != nil {
				a.reportError(err)
			}
		}
	}()
}

func (a *Adapter) nextDelay() time.Duration {
	fails := a.failures.Load()
	if fails == 0 {
		return time.Duration(a.cfg.SyncIntervalMs) * time.Millisecond
	}
	backoff := backoffBase * time.Duration(1<<uint(min64(fails, 10)))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	jitter := time.Duration(float64(backoff) * (0.8 + 0.4*rand.Float64()))
	return jitter
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (a *Adapter) reportError(err error) {
	log.Warn("specs adapter fetch failed", log.F("error", err))
	if a.onError == nil {
		return
	}
	if a.errLimiter.Allow() {
		a.onError(err)
	}
}

// Shutdown stops the background loop, waiting up to ctx's deadline for
// it to observe the cancellation.
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.shuttingDown.Store(true)
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("specs adapter shutdown timed out; background goroutine detached")
	}
	return nil
}
