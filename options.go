package statsig

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/statsig-io/go-server-core/internal/eventlog"
	"github.com/statsig-io/go-server-core/internal/log"
	"github.com/statsig-io/go-server-core/internal/observability"
	"github.com/statsig-io/go-server-core/internal/specs"
)

const (
	defaultSpecsURL    = "https://statsigapi.net/v2"
	defaultLogEventURL = "https://statsigapi.net/v1"
	defaultIDListsURL  = "https://statsigapi.net/v1"

	defaultInitTimeout = 3 * time.Second
	minSyncIntervalMs  = 1000
)

// Options configures a Client (spec §6 configuration table). Populate it
// with Option functions passed to New; downstream components never read
// environment variables or defaults themselves, they receive an already
// resolved Options.
type Options struct {
	SpecsURL    string
	LogEventURL string
	IDListsURL  string

	SpecsSyncIntervalMs     int
	IDListsSyncIntervalMs   int
	EventLoggingFlushIntervalMs int
	EventLoggingMaxQueueSize    int
	InitTimeoutMs               int

	Environment string

	DisableNetwork          bool
	EnableIDLists           bool
	OutputLogLevel          log.Level
	WorkerThreads           int
	DisableUserAgentParsing bool
	DisableCountryLookup    bool

	SpecsAdapter        specs.Adapter
	EventLoggingAdapter eventlog.Transport
	IDListsAdapter      IDListsAdapter
	DataStore           specs.DataStore
	OverrideAdapter     specs.OverrideAdapter
	ObservabilityClient observability.Client

	BootstrapPayload []byte
}

// IDListsAdapter is the capability set the ID-List Adapter (C5) exposes
// to the facade; mirrors specs.Adapter's shape without importing
// internal/idlist from the Options type itself (the default constructed
// in client.go uses the concrete idlist.Adapter, which satisfies this).
type IDListsAdapter interface {
	Start(ctx context.Context) error
	ManuallySyncIdLists(ctx context.Context) error
	ScheduleBackgroundSync(ctx context.Context)
	Shutdown(ctx context.Context) error
	TypeName() string
}

// Option mutates an Options under construction (grounded on the
// teacher's ddtrace/tracer StartOption/config pattern: a resolved,
// immutable struct built from small named functions rather than a bag of
// exported fields mutated piecemeal).
type Option func(*Options)

func WithSpecsURL(url string) Option { return func(o *Options) { o.SpecsURL = url } }
func WithLogEventURL(url string) Option { return func(o *Options) { o.LogEventURL = url } }
func WithIDListsURL(url string) Option { return func(o *Options) { o.IDListsURL = url } }

func WithSpecsSyncIntervalMs(ms int) Option {
	return func(o *Options) { o.SpecsSyncIntervalMs = ms }
}
func WithIDListsSyncIntervalMs(ms int) Option {
	return func(o *Options) { o.IDListsSyncIntervalMs = ms }
}
func WithEventLoggingFlushIntervalMs(ms int) Option {
	return func(o *Options) { o.EventLoggingFlushIntervalMs = ms }
}
func WithEventLoggingMaxQueueSize(n int) Option {
	return func(o *Options) { o.EventLoggingMaxQueueSize = n }
}
func WithInitTimeoutMs(ms int) Option { return func(o *Options) { o.InitTimeoutMs = ms } }
func WithEnvironment(tier string) Option { return func(o *Options) { o.Environment = tier } }
func WithDisableNetwork(disable bool) Option { return func(o *Options) { o.DisableNetwork = disable } }
func WithEnableIDLists(enable bool) Option { return func(o *Options) { o.EnableIDLists = enable } }
func WithOutputLogLevel(l log.Level) Option { return func(o *Options) { o.OutputLogLevel = l } }
func WithWorkerThreads(n int) Option { return func(o *Options) { o.WorkerThreads = n } }
func WithDisableUserAgentParsing(disable bool) Option {
	return func(o *Options) { o.DisableUserAgentParsing = disable }
}
func WithDisableCountryLookup(disable bool) Option {
	return func(o *Options) { o.DisableCountryLookup = disable }
}
func WithSpecsAdapter(a specs.Adapter) Option { return func(o *Options) { o.SpecsAdapter = a } }
func WithEventLoggingAdapter(t eventlog.Transport) Option {
	return func(o *Options) { o.EventLoggingAdapter = t }
}
func WithDataStore(ds specs.DataStore) Option { return func(o *Options) { o.DataStore = ds } }
func WithOverrideAdapter(a specs.OverrideAdapter) Option {
	return func(o *Options) { o.OverrideAdapter = a }
}
func WithObservabilityClient(c observability.Client) Option {
	return func(o *Options) { o.ObservabilityClient = c }
}
func WithBootstrapPayload(payload []byte) Option {
	return func(o *Options) { o.BootstrapPayload = payload }
}

// newOptions resolves opts against defaults and STATSIG_* environment
// overrides (spec §6 "Environment variables") in one place; every
// downstream component receives the result, never raw opts.
func newOptions(opts []Option) *Options {
	o := &Options{
		SpecsURL:                    defaultSpecsURL,
		LogEventURL:                 defaultLogEventURL,
		IDListsURL:                  defaultIDListsURL,
		SpecsSyncIntervalMs:         10_000,
		IDListsSyncIntervalMs:       60_000,
		EventLoggingFlushIntervalMs: 60_000,
		EventLoggingMaxQueueSize:    10_000,
		InitTimeoutMs:               int(defaultInitTimeout / time.Millisecond),
		OutputLogLevel:              log.LevelWarn,
		WorkerThreads:               3,
	}
	for _, fn := range opts {
		fn(o)
	}

	if o.SpecsSyncIntervalMs < minSyncIntervalMs {
		o.SpecsSyncIntervalMs = minSyncIntervalMs
	}
	if o.IDListsSyncIntervalMs < minSyncIntervalMs {
		o.IDListsSyncIntervalMs = minSyncIntervalMs
	}
	applyTestOverrides(o)
	return o
}

// applyTestOverrides honors STATSIG_TEST_OVERRIDE_* (spec §6): a test
// harness can collapse every interval to something a short-lived test can
// actually observe without reaching into the Client's internals.
func applyTestOverrides(o *Options) {
	if os.Getenv("STATSIG_RUNNING_TESTS") == "" {
		return
	}
	if v, ok := intEnv("STATSIG_TEST_OVERRIDE_SPECS_SYNC_INTERVAL_MS"); ok {
		o.SpecsSyncIntervalMs = v
	}
	if v, ok := intEnv("STATSIG_TEST_OVERRIDE_ID_LISTS_SYNC_INTERVAL_MS"); ok {
		o.IDListsSyncIntervalMs = v
	}
	if v, ok := intEnv("STATSIG_TEST_OVERRIDE_EVENT_FLUSH_INTERVAL_MS"); ok {
		o.EventLoggingFlushIntervalMs = v
	}
}

func intEnv(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
