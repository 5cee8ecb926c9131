// Package specs holds the ruleset data model (Spec, Rule, Condition,
// Snapshot) and the thread-safe Store (C3) that publishes snapshots to
// the rest of the engine. Acquisition — the Specs Adapter contract (C4)
// — is declared in adapter.go, and its transport variants live in the
// specs/* subpackages (httpadapter, fileadapter, bootstrapadapter,
// datastoreadapter) so that parsing/validation concerns stay separate
// from transport concerns.
package specs

import "github.com/statsig-io/go-server-core/internal/dynamic"

// Kind tags the variant a Spec belongs to.
type Kind string

const (
	KindFeatureGate   Kind = "feature_gate"
	KindDynamicConfig Kind = "dynamic_config"
	KindExperiment    Kind = "experiment"
	KindLayer         Kind = "layer"
	KindParamStore    Kind = "param_store"
	KindCMAB          Kind = "cmab"
)

// ConditionType tags the evaluation strategy a Condition uses.
type ConditionType string

const (
	ConditionPublic           ConditionType = "public"
	ConditionPassGate         ConditionType = "pass_gate"
	ConditionFailGate         ConditionType = "fail_gate"
	ConditionMultiPassGate    ConditionType = "multi_pass_gate"
	ConditionMultiFailGate    ConditionType = "multi_fail_gate"
	ConditionUserField        ConditionType = "user_field"
	ConditionEnvironmentField ConditionType = "environment_field"
	ConditionIPBased          ConditionType = "ip_based"
	ConditionUABased          ConditionType = "ua_based"
	ConditionUserBucket       ConditionType = "user_bucket"
	ConditionUnitID           ConditionType = "unit_id"
	ConditionCurrentTime      ConditionType = "current_time"
	ConditionTargetApp        ConditionType = "target_app"
	ConditionOthers           ConditionType = "others"
)

// Condition is one conjunct of a Rule's match expression.
type Condition struct {
	Type                 ConditionType
	Operator             string
	TargetValue          dynamic.Value
	Field                string
	AdditionalValues     map[string]dynamic.Value
	IDType               string
	HashedTargetValueU64 *uint64
}

// ExposableString is a rule/condition id that is safe to place directly
// into a SecondaryExposure or EvaluatorResult without further hashing.
type ExposableString string

// Rule is an ordered sequence of Conditions (all conjoined) plus the
// outcome to adopt when every condition passes and the unit falls inside
// PassPercentage.
type Rule struct {
	// ConditionRefs holds the V2 wire representation (references into a
	// snapshot-wide condition_map); Conditions holds the fully resolved
	// form the Evaluator actually walks. The adapter/parser populates
	// both; Conditions is authoritative at evaluation time.
	ConditionRefs  []string
	Conditions     []Condition
	PassPercentage float64
	ReturnValue    dynamic.Value
	ID             ExposableString
	Salt           string
	GroupName      string
	ConfigDelegate string
}

// Parameter is one entry of a param_store spec: either a static value or
// a reference into another spec's return value, resolved by the
// Evaluator/GCIR formatter at read time.
type Parameter struct {
	Type           string // "static" | "gate" | "dynamic_config" | "experiment" | "layer"
	Value          dynamic.Value
	RefName        string
	RefParamName   string
	ParamTypeHint  string
}

// Spec is a rule container tagged by Kind.
type Spec struct {
	Name                 string
	Type                 Kind
	Salt                 string
	DefaultValue         dynamic.Value
	Enabled              bool
	IDType               string
	Rules                []Rule
	TargetAppIDs         []string
	Version              int
	ExplicitParameters   []string
	ForwardAllExposures  bool
	Entity               string
	SampleRate           *float64
	SamplingMode         string // "on" | "shadow", empty = disabled
	Parameters           map[string]Parameter // only meaningful when Type == KindParamStore
}

// Source tags a Snapshot's provenance.
type Source string

const (
	SourceUninitialized Source = "Uninitialized"
	SourceNoValues      Source = "NoValues"
	SourceBootstrap     Source = "Bootstrap"
	SourceNetwork       Source = "Network"
	SourceDataStore     Source = "DataStore"
	SourceError         Source = "Error"
	SourceLoading       Source = "Loading"
)

// Snapshot is the immutable bundle of every spec known at a point in
// time (spec.md's SpecStoreData). Once published by the Store it is
// never mutated; a new Snapshot replaces it wholesale.
type Snapshot struct {
	LCUT                  uint64
	FeatureGates          map[string]*Spec
	DynamicConfigs        map[string]*Spec
	LayerConfigs          map[string]*Spec
	ParamStores           map[string]*Spec
	ConditionMap          map[string]*Condition
	AppID                 string
	HashedSDKKeysToAppIDs map[string]string
	DefaultEnvironment    string
	Source                Source
	ReceivedAt            uint64
}

// SpecsByKind returns the map for the requested Kind, or nil for an
// unknown Kind. Dynamic configs, experiments and CMAB specs all share
// the DynamicConfigs map.
func (s *Snapshot) SpecsByKind(k Kind) map[string]*Spec {
	switch k {
	case KindFeatureGate:
		return s.FeatureGates
	case KindDynamicConfig, KindCMAB:
		return s.DynamicConfigs
	case KindExperiment:
		return s.DynamicConfigs
	case KindLayer:
		return s.LayerConfigs
	case KindParamStore:
		return s.ParamStores
	default:
		return nil
	}
}

// Lookup finds name within kind's map, returning (spec, found).
func (s *Snapshot) Lookup(kind Kind, name string) (*Spec, bool) {
	m := s.SpecsByKind(kind)
	if m == nil {
		return nil, false
	}
	sp, ok := m[name]
	return sp, ok
}

// Empty returns an uninitialized, valueless Snapshot — the state before
// the first successful acquisition.
func Empty() *Snapshot {
	return &Snapshot{
		FeatureGates:          map[string]*Spec{},
		DynamicConfigs:        map[string]*Spec{},
		LayerConfigs:          map[string]*Spec{},
		ParamStores:           map[string]*Spec{},
		ConditionMap:          map[string]*Condition{},
		HashedSDKKeysToAppIDs: map[string]string{},
		Source:                SourceUninitialized,
	}
}
