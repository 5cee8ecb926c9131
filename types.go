package statsig

import (
	"github.com/statsig-io/go-server-core/internal/evaluator"
	"github.com/statsig-io/go-server-core/internal/user"
)

// User is the public caller-supplied descriptor (spec §3 "User").
type User = user.User

// StatsigEnvironment sets the environment tier attached to a User.
type StatsigEnvironment = user.StatsigEnvironment

// EvaluationOptions tunes one evaluation call (spec §4.9: "every
// evaluation path records an exposure unless disable_exposure_logging").
type EvaluationOptions struct {
	DisableExposureLogging bool
}

// DynamicConfig is the read handle returned by GetDynamicConfig.
type DynamicConfig struct {
	Name   string
	Value  map[string]any
	RuleID string
	Reason string
}

// GetValue reads key from the config's Value map, returning def when
// absent; a present value is returned whatever its type.
func (d DynamicConfig) GetValue(key string, def any) any {
	v, ok := d.Value[key]
	if !ok {
		return def
	}
	return v
}

// Experiment is the read handle returned by GetExperiment.
type Experiment struct {
	Name      string
	Value     map[string]any
	RuleID    string
	GroupName string
	Reason    string
}

func (e Experiment) GetValue(key string, def any) any {
	v, ok := e.Value[key]
	if !ok {
		return def
	}
	return v
}

// Layer is the read handle returned by GetLayer. Per-parameter exposure
// logging is deferred: constructing a Layer logs nothing; each Get call
// logs a layer_param_exposure for that one key (spec §4.9).
type Layer struct {
	name               string
	value              map[string]any
	ruleID             string
	groupName          string
	explicitParameters []string
	allocatedExperiment string
	reason             string
	client             *Client
	evalUser           User
	opts               EvaluationOptions
}

// Get reads key, recording a deferred per-parameter exposure unless the
// caller disabled exposure logging for this Layer.
func (l Layer) Get(key string, def any) any {
	v, ok := l.value[key]
	if !l.opts.DisableExposureLogging {
		l.client.logLayerParamExposure(l, key, ok)
	}
	if !ok {
		return def
	}
	return v
}

// InitializeResponse is the public form of the GCIR Formatter's output
// (spec §4.10), ready to serialize and hand to a client SDK bootstrap.
type InitializeResponse struct {
	Unchanged         bool
	ResponseHash      string
	LCUT              uint64
	FeatureGates      map[string]any
	DynamicConfigs    map[string]any
	LayerConfigs      map[string]any
	InternedExposures map[string]any // v2 only; empty under v1
}

// GCIROptions controls one GetClientInitializeResponse call (spec §4.10/§6).
type GCIROptions struct {
	HashAlgorithm        string // "djb2" | "sha256" | "none" (default "sha256")
	ClientSDKKey         string
	PreviousResponseHash string
	V2SecondaryExposures bool
}

func isExplicit(params []string, key string) bool {
	for _, p := range params {
		if p == key {
			return true
		}
	}
	return false
}

// secondaryExposureWire renders a slice of evaluator.SecondaryExposure as
// the JSON-friendly shape QueuedEvent metadata and GCIR entries both use.
func secondaryExposureWire(list []evaluator.SecondaryExposure) []map[string]string {
	out := make([]map[string]string, len(list))
	for i, se := range list {
		out[i] = map[string]string{"gate": se.Gate, "gateValue": se.GateValue, "ruleID": string(se.RuleID)}
	}
	return out
}

// secondaryExposuresOf extracts the wire-ready metadata slice from an
// evaluator.Result, used when building a QueuedEvent's user/metadata map.
func secondaryExposuresOf(r evaluator.Result) []map[string]string {
	return secondaryExposureWire(r.SecondaryExposures)
}
