package statsig

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/statsig-io/go-server-core/internal/dynamic"
	"github.com/statsig-io/go-server-core/internal/eventlog"
	"github.com/statsig-io/go-server-core/internal/evaluator"
	"github.com/statsig-io/go-server-core/internal/gcir"
	"github.com/statsig-io/go-server-core/internal/hashing"
	"github.com/statsig-io/go-server-core/internal/idlist"
	"github.com/statsig-io/go-server-core/internal/log"
	"github.com/statsig-io/go-server-core/internal/observability"
	"github.com/statsig-io/go-server-core/internal/orchestrator"
	"github.com/statsig-io/go-server-core/internal/sampler"
	"github.com/statsig-io/go-server-core/internal/sdkmeta"
	"github.com/statsig-io/go-server-core/internal/specs"
	"github.com/statsig-io/go-server-core/internal/specs/bootstrapadapter"
	"github.com/statsig-io/go-server-core/internal/specs/datastoreadapter"
	"github.com/statsig-io/go-server-core/internal/specs/httpadapter"
	"github.com/statsig-io/go-server-core/internal/user"
)

// Client is the Facade (C12): the single entry point a host application
// holds for the lifetime of the process. Construct with New, call
// Initialize once, then call the evaluation methods freely from any
// goroutine — every read path is safe for concurrent use.
type Client struct {
	sdkKey string
	opts   *Options

	store          *specs.Store
	idLists        *idlist.Store
	specsAdapter   specs.Adapter
	idListsAdapter IDListsAdapter
	eventLogger    *eventlog.Logger
	dedup          *sampler.Dedup
	bus            *observability.Bus
	orch           *orchestrator.Orchestrator

	initOnce    sync.Once
	initErr     error
	initialized atomic.Bool
}

// New constructs a Client in Uninitialized state; it performs no I/O
// (spec §4.9: "new(sdk_key, options) → Statsig — constructs all
// collaborators in Uninitialized state").
func New(sdkKey string, opts ...Option) *Client {
	o := newOptions(opts)
	log.SetLogger(log.NewWriterLogger(os.Stderr, o.OutputLogLevel))

	bus := observability.NewBus()
	if o.ObservabilityClient != nil {
		bus.Subscribe(o.ObservabilityClient)
	}

	store := specs.NewStore(func(event string, fields map[string]any) {
		bus.Publish(observability.Event{Kind: observability.KindDiagnostics, Name: event, Tags: stringifyFields(fields)})
	})
	idLists := idlist.NewStore()
	dedup := sampler.NewDedup()

	onAdapterError := func(err error) {
		bus.Publish(observability.Event{Kind: observability.KindObservability, Name: "adapter_error", Err: err})
	}

	c := &Client{
		sdkKey:  sdkKey,
		opts:    o,
		store:   store,
		idLists: idLists,
		dedup:   dedup,
		bus:     bus,
		orch:    orchestrator.New(context.Background(), orchestrator.DefaultHardDeadline),
	}

	c.specsAdapter = buildSpecsAdapter(o, sdkKey, store, onAdapterError)
	if o.EnableIDLists {
		c.idListsAdapter = buildIDListsAdapter(o, sdkKey, idLists, onAdapterError)
	}
	c.eventLogger = eventlog.New(eventlog.Config{
		FlushInterval: time.Duration(o.EventLoggingFlushIntervalMs) * time.Millisecond,
		MaxQueueSize:  o.EventLoggingMaxQueueSize,
		Transport:     buildEventTransport(o, sdkKey),
		OnError: func(err error) {
			bus.Publish(observability.Event{Kind: observability.KindObservability, Name: "event_logger_error", Err: err})
		},
		EventsDroppedCounter: func(n int) {
			bus.Publish(observability.Event{Kind: observability.KindObservability, Name: "events_dropped", Value: float64(n)})
		},
	})
	return c
}

func buildSpecsAdapter(o *Options, sdkKey string, store *specs.Store, onError func(error)) specs.Adapter {
	switch {
	case o.SpecsAdapter != nil:
		return o.SpecsAdapter
	case len(o.BootstrapPayload) > 0:
		return bootstrapadapter.New(o.BootstrapPayload, store)
	case o.DisableNetwork:
		return newNoopSpecsAdapter(store)
	case o.DataStore != nil:
		return datastoreadapter.New(o.DataStore, store, time.Duration(o.SpecsSyncIntervalMs)*time.Millisecond, onError)
	default:
		return httpadapter.New(httpadapter.Config{SpecsURL: o.SpecsURL, SDKKey: sdkKey, SyncIntervalMs: o.SpecsSyncIntervalMs}, store, onError)
	}
}

func buildIDListsAdapter(o *Options, sdkKey string, store *idlist.Store, onError func(error)) IDListsAdapter {
	switch {
	case o.IDListsAdapter != nil:
		return o.IDListsAdapter
	case o.DisableNetwork:
		return newNoopIDListsAdapter()
	default:
		return idlist.New(idlist.Config{IDListsURL: o.IDListsURL, SDKKey: sdkKey, SyncIntervalMs: o.IDListsSyncIntervalMs}, store, onError)
	}
}

func buildEventTransport(o *Options, sdkKey string) eventlog.Transport {
	switch {
	case o.EventLoggingAdapter != nil:
		return o.EventLoggingAdapter
	case o.DisableNetwork:
		return noopTransport{}
	default:
		return eventlog.NewHTTPTransport(o.LogEventURL, sdkKey)
	}
}

func stringifyFields(fields map[string]any) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// Initialize starts the Specs Adapter, the ID-List Adapter (if enabled),
// and the Event Logger's background loop, then spawns the remaining
// cooperative background tasks under the orchestrator (spec §4.9,
// §4.7). It resolves once the Specs Adapter's first fetch succeeds or
// init_timeout_ms elapses, whichever comes first; a timed-out initial
// fetch is not itself an error — the Client proceeds in whatever source
// state the Store ended up in (Uninitialized or NoValues) and later
// background syncs may still recover it.
func (c *Client) Initialize(ctx context.Context) error {
	c.initOnce.Do(func() {
		initCtx, cancel := context.WithTimeout(ctx, time.Duration(c.opts.InitTimeoutMs)*time.Millisecond)
		defer cancel()

		if err := c.specsAdapter.Start(initCtx); err != nil {
			log.Warn("specs adapter failed to reach init_timeout_ms deadline", log.F("error", err))
		}
		c.orch.Spawn(orchestrator.Task{Name: "specs-sync", Run: c.specsAdapter.ScheduleBackgroundSync})

		if c.idListsAdapter != nil {
			if err := c.idListsAdapter.Start(initCtx); err != nil {
				log.Warn("id list adapter failed during init", log.F("error", err))
			}
			c.orch.Spawn(orchestrator.Task{Name: "id-lists-sync", Run: c.idListsAdapter.ScheduleBackgroundSync})
		}

		c.eventLogger.Run(c.orch.Context())
		c.orch.Spawn(orchestrator.Task{Name: "dedup-ttl-reset", Run: func(ctx context.Context) {
			c.dedup.ResetLoop(sampler.DefaultTTL, ctx.Done())
		}})
		c.orch.Spawn(orchestrator.Task{Name: "diagnostics-drain", Run: c.diagnosticsDrainLoop})

		c.initialized.Store(true)
	})
	return c.initErr
}

func (c *Client) diagnosticsDrainLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := c.bus.Dropped(); dropped > 0 {
				log.Warn("observability bus has dropped events", log.F("dropped", dropped))
			}
		}
	}
}

func (c *Client) evalContext() evaluator.Context {
	return evaluator.Context{Snapshot: c.store.Current(), IDLists: c.idLists, Overrides: c.opts.OverrideAdapter, SDKKey: c.sdkKey}
}

func (c *Client) newInternal(u User) *user.Internal {
	if u.StatsigEnvironment.Tier == "" && c.opts.Environment != "" {
		u.StatsigEnvironment.Tier = c.opts.Environment
	}
	in := user.NewInternal(u)
	if c.opts.DisableUserAgentParsing {
		in.DisableUAParsing()
	}
	return in
}

// CheckGate evaluates a feature gate, logging a gate_exposure unless the
// snapshot is Uninitialized or the exposure was already logged within
// the dedup window (spec §4.9).
func (c *Client) CheckGate(u User, name string) bool {
	return c.CheckGateWithOptions(u, name, EvaluationOptions{})
}

func (c *Client) CheckGateWithOptions(u User, name string, eo EvaluationOptions) bool {
	in := c.newInternal(u)
	res := evaluator.Evaluate(c.evalContext(), in, name, specs.KindFeatureGate)
	c.maybeLogExposure(eventlog.KindGate, specs.KindFeatureGate, name, res, in, eo)
	return res.BoolValue
}

// GetDynamicConfig evaluates a dynamic_config, logging a
// config_exposure.
func (c *Client) GetDynamicConfig(u User, name string) DynamicConfig {
	return c.GetDynamicConfigWithOptions(u, name, EvaluationOptions{})
}

func (c *Client) GetDynamicConfigWithOptions(u User, name string, eo EvaluationOptions) DynamicConfig {
	in := c.newInternal(u)
	res := evaluator.Evaluate(c.evalContext(), in, name, specs.KindDynamicConfig)
	c.maybeLogExposure(eventlog.KindConfig, specs.KindDynamicConfig, name, res, in, eo)
	return DynamicConfig{Name: name, Value: objectValue(res.JSONValue), RuleID: string(res.RuleID), Reason: string(res.Reason)}
}

// GetExperiment evaluates an experiment, logging an
// experiment_exposure.
func (c *Client) GetExperiment(u User, name string) Experiment {
	return c.GetExperimentWithOptions(u, name, EvaluationOptions{})
}

func (c *Client) GetExperimentWithOptions(u User, name string, eo EvaluationOptions) Experiment {
	in := c.newInternal(u)
	res := evaluator.Evaluate(c.evalContext(), in, name, specs.KindExperiment)
	c.maybeLogExposure(eventlog.KindExperiment, specs.KindExperiment, name, res, in, eo)
	return Experiment{Name: name, Value: objectValue(res.JSONValue), RuleID: string(res.RuleID), GroupName: res.GroupName, Reason: string(res.Reason)}
}

// GetLayer evaluates a layer. No exposure is logged by this call; each
// Layer.Get(key) logs its own layer_param_exposure the first time that
// key is read (spec §4.9: "per-parameter exposure is deferred until
// layer.get_<T>(key) is called").
func (c *Client) GetLayer(u User, name string) Layer {
	return c.GetLayerWithOptions(u, name, EvaluationOptions{})
}

func (c *Client) GetLayerWithOptions(u User, name string, eo EvaluationOptions) Layer {
	in := c.newInternal(u)
	res := evaluator.Evaluate(c.evalContext(), in, name, specs.KindLayer)
	return Layer{
		name:                name,
		value:               objectValue(res.JSONValue),
		ruleID:              string(res.RuleID),
		groupName:           res.GroupName,
		explicitParameters:  res.ExplicitParameters,
		allocatedExperiment: res.AllocatedExperimentName,
		reason:              string(res.Reason),
		client:              c,
		evalUser:            u,
		opts:                eo,
	}
}

func (c *Client) logLayerParamExposure(l Layer, key string, found bool) {
	if l.reason == "Uninitialized" {
		return
	}
	fp := sampler.Fingerprint(l.name, l.ruleID, key)
	if !c.dedup.Add(fp) {
		return
	}
	meta := map[string]string{
		"ruleID":              l.ruleID,
		"reason":              l.reason,
		"parameterName":       key,
		"allocatedExperiment": l.allocatedExperiment,
		"isExplicit":          strconv.FormatBool(isExplicit(l.explicitParameters, key)),
	}
	c.eventLogger.Enqueue(context.Background(), eventlog.Event{
		Kind:       eventlog.KindLayerParam,
		Name:       l.name,
		Metadata:   meta,
		User:       userWireMap(l.evalUser),
		TimeMillis: time.Now().UnixMilli(),
		DedupeKey:  fp,
	})
}

// maybeLogExposure enqueues one exposure event unless logging is
// disabled for this call, the snapshot was Uninitialized, the spec
// marked this result as non-exposing, the dedup window already saw this
// exact fingerprint, or the spec's sample_rate dropped it (spec §4.5,
// §4.9).
func (c *Client) maybeLogExposure(eventKind eventlog.Kind, specKind specs.Kind, name string, res evaluator.Result, in *user.Internal, eo EvaluationOptions) {
	if eo.DisableExposureLogging || res.DisableExposure {
		return
	}
	if res.Reason == evaluator.Reason("Uninitialized") {
		return
	}

	valStr := fmt.Sprint(res.JSONValue.Raw())
	fp := sampler.Fingerprint(name, string(res.RuleID), valStr)
	if !c.dedup.Add(fp) {
		return
	}

	decision := sampler.Decision{Sampled: true}
	if sp, ok := c.store.Current().Lookup(specKind, name); ok && sp.SampleRate != nil {
		decision = sampler.Sample(sp.SampleRate, sampler.Mode(sp.SamplingMode), sampler.DefaultRand)
	}
	if !decision.Sampled {
		return
	}

	meta := map[string]string{"ruleID": string(res.RuleID), "reason": string(res.Reason)}
	if decision.SamplingMode != "" {
		meta["samplingRate"] = strconv.FormatFloat(decision.SamplingRate, 'f', -1, 64)
		meta["samplingMode"] = string(decision.SamplingMode)
		meta["shadowLogged"] = decision.ShadowLogged
	}
	if secs := secondaryExposuresOf(res); len(secs) > 0 {
		if b, err := json.Marshal(secs); err == nil {
			meta["secondaryExposures"] = string(b)
		}
	}

	c.eventLogger.Enqueue(context.Background(), eventlog.Event{
		Kind:       eventKind,
		Name:       name,
		Value:      res.JSONValue,
		Metadata:   meta,
		User:       userWireMap(in.User()),
		TimeMillis: time.Now().UnixMilli(),
		DedupeKey:  fp,
	})
}

func objectValue(v dynamic.Value) map[string]any {
	obj, ok := v.AsObject()
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(obj))
	for k, fv := range obj {
		out[k] = fv.Raw()
	}
	return out
}

func userWireMap(u User) map[string]any {
	m := map[string]any{"userID": u.UserID}
	if len(u.CustomIDs) > 0 {
		m["customIDs"] = u.CustomIDs
	}
	return m
}

// GetClientInitializeResponse runs the GCIR Formatter (C13) against
// every spec the current snapshot knows, for handing to a client SDK's
// bootstrap (spec §4.10).
func (c *Client) GetClientInitializeResponse(u User, opts GCIROptions) InitializeResponse {
	in := c.newInternal(u)

	algo := hashing.Algorithm(opts.HashAlgorithm)
	if algo == "" {
		algo = hashing.AlgorithmSHA256
	}
	format := gcir.FormatV1Inline
	if opts.V2SecondaryExposures {
		format = gcir.FormatV2Interned
	}

	resp := gcir.Format(c.store.Current(), c.idLists, c.opts.OverrideAdapter, in, gcir.Options{
		HashAlgorithm:           algo,
		ClientSDKKey:            opts.ClientSDKKey,
		SecondaryExposureFormat: format,
		PreviousResponseHash:    opts.PreviousResponseHash,
	})
	if resp.Unchanged {
		return InitializeResponse{Unchanged: true, ResponseHash: resp.ResponseHash}
	}

	out := InitializeResponse{
		ResponseHash:      resp.ResponseHash,
		LCUT:              resp.LCUT,
		FeatureGates:      wireSpecs(resp.FeatureGates),
		DynamicConfigs:     wireSpecs(resp.DynamicConfigs),
		LayerConfigs:       wireSpecs(resp.LayerConfigs),
		InternedExposures: make(map[string]any, len(resp.InternedExposures)),
	}
	for k, v := range resp.InternedExposures {
		out.InternedExposures[k] = secondaryExposureWire(v)
	}
	return out
}

func wireSpecs(m map[string]gcir.EvaluatedSpec) map[string]any {
	out := make(map[string]any, len(m))
	for k, es := range m {
		entry := map[string]any{
			"value":      es.Value,
			"rule_id":    es.RuleID,
			"group_name": es.GroupName,
			"id_type":    es.IDType,
		}
		if es.AllocatedExperimentName != "" {
			entry["is_experiment_active"] = true
			entry["is_user_in_experiment"] = es.IsExperimentGroup
			entry["allocated_experiment_name"] = es.AllocatedExperimentName
		}
		if es.Version != 0 {
			entry["config_version"] = es.Version
		}
		if len(es.ExplicitParameters) > 0 {
			entry["explicit_parameters"] = es.ExplicitParameters
		}
		if len(es.SecondaryExposures) > 0 {
			entry["secondary_exposures"] = secondaryExposureWire(es.SecondaryExposures)
		}
		if len(es.SecondaryExposureHashes) > 0 {
			entry["secondary_exposures"] = es.SecondaryExposureHashes
		}
		if len(es.UndelegatedSecondaryExposures) > 0 {
			entry["undelegated_secondary_exposures"] = secondaryExposureWire(es.UndelegatedSecondaryExposures)
		}
		out[k] = entry
	}
	return out
}

// LogEvent records a host-supplied custom event; custom events are
// passed through without dedup or sampling (spec §3 "QueuedEvent").
func (c *Client) LogEvent(u User, name string, value any, metadata map[string]string) {
	c.eventLogger.Enqueue(context.Background(), eventlog.Event{
		Kind:       eventlog.KindCustom,
		Name:       name,
		Value:      dynamic.New(value),
		Metadata:   metadata,
		User:       userWireMap(u),
		TimeMillis: time.Now().UnixMilli(),
	})
}

// FlushEvents forces an immediate flush of any queued events.
func (c *Client) FlushEvents() {
	c.eventLogger.Flush(context.Background())
}

// Shutdown broadcasts cancellation to every background task, drains the
// event queue, and stops each adapter, bounded by timeout (spec §4.9,
// §5).
func (c *Client) Shutdown(timeout time.Duration) {
	c.orch.Shutdown(timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c.eventLogger.Shutdown(shutdownCtx)
	if err := c.specsAdapter.Shutdown(shutdownCtx); err != nil {
		log.Warn("specs adapter shutdown error", log.F("error", err))
	}
	if c.idListsAdapter != nil {
		if err := c.idListsAdapter.Shutdown(shutdownCtx); err != nil {
			log.Warn("id list adapter shutdown error", log.F("error", err))
		}
	}
	c.bus.Close()
}

// SDKType/SDKVersion/SessionID expose the process-wide SDK identity
// (AMBIENT-4) a host-language binding may want to read or override
// before constructing any Client.
func SDKType() string         { return sdkmeta.SDKType() }
func SetSDKType(t string)     { sdkmeta.SetSDKType(t) }
func SessionID() string       { return sdkmeta.SessionID() }
