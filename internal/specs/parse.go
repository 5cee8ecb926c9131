package specs

import (
	"encoding/json"
	"fmt"

	"github.com/statsig-io/go-server-core/internal/dynamic"
	"github.com/statsig-io/go-server-core/internal/sterr"
)

// wire shapes. Both the legacy V1 payload (conditions inlined on each
// rule) and the V2 payload (conditions factored into a shared
// condition_map, rules holding string refs) decode into the same Go
// structs; toRule resolves whichever form is present into a
// single Conditions slice so the Evaluator never has to care which wire
// shape it originally arrived in (Design Note §9, Open Questions).

type rawPayload struct {
	Time                  uint64                     `json:"time"`
	HasUpdates            *bool                      `json:"has_updates,omitempty"`
	FeatureGates          []rawSpec                  `json:"feature_gates"`
	DynamicConfigs        []rawSpec                  `json:"dynamic_configs"`
	LayerConfigs          []rawSpec                  `json:"layer_configs"`
	ParamStores           []rawSpec                  `json:"param_stores,omitempty"`
	ConditionMap          map[string]rawCondition    `json:"condition_map,omitempty"`
	AppID                 string                     `json:"app_id,omitempty"`
	HashedSDKKeysToAppIDs map[string]string          `json:"hashed_sdk_keys_to_app_ids,omitempty"`
	DefaultEnvironment    string                     `json:"default_environment,omitempty"`
}

type rawSpec struct {
	Name                string                  `json:"name"`
	Type                string                  `json:"type"`
	Salt                string                  `json:"salt"`
	Enabled             bool                    `json:"enabled"`
	DefaultValue        json.RawMessage         `json:"defaultValue"`
	IDType              string                  `json:"idType"`
	Rules               []rawRule               `json:"rules"`
	TargetAppIDs        []string                `json:"targetAppIDs,omitempty"`
	Version             int                     `json:"version,omitempty"`
	ExplicitParameters  []string                `json:"explicitParameters,omitempty"`
	ForwardAllExposures bool                    `json:"forwardAllExposures,omitempty"`
	Entity              string                  `json:"entity,omitempty"`
	SampleRate          *float64                `json:"sampleRate,omitempty"`
	SamplingMode        string                  `json:"samplingMode,omitempty"`
	Parameters          map[string]rawParameter `json:"parameters,omitempty"`
}

type rawRule struct {
	ID             string          `json:"id"`
	Salt           string          `json:"salt"`
	PassPercentage float64         `json:"passPercentage"`
	ReturnValue    json.RawMessage `json:"returnValue"`
	GroupName      string          `json:"groupName,omitempty"`
	ConfigDelegate string          `json:"configDelegate,omitempty"`
	Conditions     []rawCondition  `json:"conditions,omitempty"`
	ConditionRefs  []string        `json:"conditionRefs,omitempty"`
}

type rawCondition struct {
	Type                 string                     `json:"type"`
	Operator             string                     `json:"operator,omitempty"`
	TargetValue          json.RawMessage            `json:"targetValue,omitempty"`
	Field                string                     `json:"field,omitempty"`
	AdditionalValues     map[string]json.RawMessage `json:"additionalValues,omitempty"`
	IDType               string                     `json:"idType,omitempty"`
	HashedTargetValueU64 *uint64                    `json:"hashedTargetValueU64,omitempty"`
}

type rawParameter struct {
	Type          string          `json:"type"`
	Value         json.RawMessage `json:"value,omitempty"`
	RefName       string          `json:"refName,omitempty"`
	RefParamName  string          `json:"refParamName,omitempty"`
	ParamTypeHint string          `json:"paramTypeHint,omitempty"`
}

// ParseResult is what Parse returns: either a fresh Snapshot, or a
// signal that the server reported no changes since the caller's
// sinceTime (HasUpdates == false), in which case Snapshot is nil.
type ParseResult struct {
	Snapshot   *Snapshot
	HasUpdates bool
}

// Parse decodes a download_config_specs-shaped payload (V1 or V2) into a
// Snapshot tagged with source and receivedAt.
func Parse(raw []byte, source Source, receivedAt uint64) (*ParseResult, error) {
	var payload rawPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, sterr.New(sterr.ParseError, "specs.Parse", err, "invalid JSON payload")
	}
	if payload.HasUpdates != nil && !*payload.HasUpdates {
		return &ParseResult{HasUpdates: false}, nil
	}

	conditionPool := make(map[string]*Condition, len(payload.ConditionMap))
	for ref, rc := range payload.ConditionMap {
		c, err := toCondition(rc)
		if err != nil {
			return nil, sterr.New(sterr.ParseError, "specs.Parse", err, fmt.Sprintf("condition_map[%s]", ref))
		}
		conditionPool[ref] = c
	}

	snap := &Snapshot{
		LCUT:                  payload.Time,
		ConditionMap:          conditionPool,
		AppID:                 payload.AppID,
		HashedSDKKeysToAppIDs: payload.HashedSDKKeysToAppIDs,
		DefaultEnvironment:    payload.DefaultEnvironment,
		Source:                source,
		ReceivedAt:            receivedAt,
	}
	if snap.HashedSDKKeysToAppIDs == nil {
		snap.HashedSDKKeysToAppIDs = map[string]string{}
	}

	var err error
	if snap.FeatureGates, err = toSpecMap(payload.FeatureGates, conditionPool); err != nil {
		return nil, err
	}
	if snap.DynamicConfigs, err = toSpecMap(payload.DynamicConfigs, conditionPool); err != nil {
		return nil, err
	}
	if snap.LayerConfigs, err = toSpecMap(payload.LayerConfigs, conditionPool); err != nil {
		return nil, err
	}
	if snap.ParamStores, err = toSpecMap(payload.ParamStores, conditionPool); err != nil {
		return nil, err
	}

	return &ParseResult{Snapshot: snap, HasUpdates: true}, nil
}

func toSpecMap(raws []rawSpec, pool map[string]*Condition) (map[string]*Spec, error) {
	out := make(map[string]*Spec, len(raws))
	for _, rs := range raws {
		sp, err := toSpec(rs, pool)
		if err != nil {
			return nil, err
		}
		out[sp.Name] = sp
	}
	return out, nil
}

func toSpec(rs rawSpec, pool map[string]*Condition) (*Spec, error) {
	sp := &Spec{
		Name:                rs.Name,
		Type:                Kind(rs.Type),
		Salt:                rs.Salt,
		DefaultValue:        jsonValue(rs.DefaultValue),
		Enabled:             rs.Enabled,
		IDType:              rs.IDType,
		TargetAppIDs:        rs.TargetAppIDs,
		Version:             rs.Version,
		ExplicitParameters:  rs.ExplicitParameters,
		ForwardAllExposures: rs.ForwardAllExposures,
		Entity:              rs.Entity,
		SampleRate:          rs.SampleRate,
		SamplingMode:        rs.SamplingMode,
	}
	if rs.Parameters != nil {
		sp.Parameters = make(map[string]Parameter, len(rs.Parameters))
		for name, rp := range rs.Parameters {
			sp.Parameters[name] = Parameter{
				Type:          rp.Type,
				Value:         jsonValue(rp.Value),
				RefName:       rp.RefName,
				RefParamName:  rp.RefParamName,
				ParamTypeHint: rp.ParamTypeHint,
			}
		}
	}

	sp.Rules = make([]Rule, 0, len(rs.Rules))
	for _, rr := range rs.Rules {
		rule, err := toRule(rr, pool)
		if err != nil {
			return nil, sterr.New(sterr.ParseError, "specs.toSpec", err, fmt.Sprintf("spec %s", rs.Name))
		}
		sp.Rules = append(sp.Rules, rule)
	}
	return sp, nil
}

func toRule(rr rawRule, pool map[string]*Condition) (Rule, error) {
	rule := Rule{
		ConditionRefs:  rr.ConditionRefs,
		PassPercentage: rr.PassPercentage,
		ReturnValue:    jsonValue(rr.ReturnValue),
		ID:             ExposableString(rr.ID),
		Salt:           rr.Salt,
		GroupName:      rr.GroupName,
		ConfigDelegate: rr.ConfigDelegate,
	}

	switch {
	case len(rr.ConditionRefs) > 0:
		rule.Conditions = make([]Condition, 0, len(rr.ConditionRefs))
		for _, ref := range rr.ConditionRefs {
			c, ok := pool[ref]
			if !ok {
				return Rule{}, fmt.Errorf("unresolved condition ref %q", ref)
			}
			rule.Conditions = append(rule.Conditions, *c)
		}
	case len(rr.Conditions) > 0:
		rule.Conditions = make([]Condition, 0, len(rr.Conditions))
		for _, rc := range rr.Conditions {
			c, err := toCondition(rc)
			if err != nil {
				return Rule{}, err
			}
			rule.Conditions = append(rule.Conditions, *c)
		}
	default:
		rule.Conditions = nil
	}
	return rule, nil
}

func toCondition(rc rawCondition) (*Condition, error) {
	c := &Condition{
		Type:                 ConditionType(rc.Type),
		Operator:             rc.Operator,
		TargetValue:          jsonValue(rc.TargetValue),
		Field:                rc.Field,
		IDType:               rc.IDType,
		HashedTargetValueU64: rc.HashedTargetValueU64,
	}
	if rc.AdditionalValues != nil {
		c.AdditionalValues = make(map[string]dynamic.Value, len(rc.AdditionalValues))
		for k, raw := range rc.AdditionalValues {
			c.AdditionalValues[k] = jsonValue(raw)
		}
	}
	return c, nil
}

func jsonValue(raw json.RawMessage) dynamic.Value {
	if len(raw) == 0 {
		return dynamic.New(nil)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return dynamic.New(nil)
	}
	return dynamic.New(v)
}
