// Package evaluator implements the Evaluator (C6): a pure function from
// (user, spec, snapshot) to an EvaluatorResult. It never performs I/O
// and never blocks — it is the CPU-bound hot path the rest of the
// engine is built around (spec §4.4, §5).
package evaluator

import (
	"strings"
	"time"

	"github.com/statsig-io/go-server-core/internal/dynamic"
	"github.com/statsig-io/go-server-core/internal/hashing"
	"github.com/statsig-io/go-server-core/internal/idlist"
	"github.com/statsig-io/go-server-core/internal/specs"
	"github.com/statsig-io/go-server-core/internal/user"
)

// Reason is the EvaluationDetails.reason string (spec §7): "<source>:<tag>"
// where tag is one of Recognized/Unrecognized, or a standalone
// value: "Uninitialized" or "LocalOverride:Recognized".
type Reason string

// SecondaryExposure records a nested gate check performed while
// evaluating another spec (spec §3).
type SecondaryExposure struct {
	Gate      string
	GateValue string
	RuleID    specs.ExposableString
}

// Fingerprint is the dedup key for this exposure (spec §3).
func (s SecondaryExposure) Fingerprint() uint64 {
	return hashing.SHA256Prefix(s.Gate) ^ hashing.SHA256Prefix(string(s.RuleID)) ^ hashing.SHA256Prefix(s.GateValue)
}

// Result is the EvaluatorResult produced by Evaluate (spec §3).
type Result struct {
	BoolValue                  bool
	JSONValue                  dynamic.Value
	RuleID                     specs.ExposableString
	GroupName                  string
	IDType                     string
	AllocatedExperimentName    string
	SecondaryExposures         []SecondaryExposure
	UndelegatedSecondaryExposures []SecondaryExposure
	IsExperimentGroup          bool
	Version                    int
	ExplicitParameters         []string
	DisableExposure            bool
	Reason                     Reason
}

// Context bundles the read-only collaborators Evaluate needs alongside
// the (name, kind) pair: the snapshot to evaluate against, the id-list
// side-table for unit_id conditions, and an optional override adapter
// (C15) consulted before rule evaluation.
type Context struct {
	Snapshot  *specs.Snapshot
	IDLists   *idlist.Store
	Overrides specs.OverrideAdapter
	SDKKey    string
}

func defaultResult(value dynamic.Value, boolValue bool, reason Reason) Result {
	return Result{BoolValue: boolValue, JSONValue: value, Reason: reason}
}

// Evaluate runs the algorithm of spec §4.4 for one (name, kind) request
// against the given user.
func Evaluate(ctx Context, in *user.Internal, name string, kind specs.Kind) Result {
	snap := ctx.Snapshot
	if snap == nil || snap.Source == specs.SourceUninitialized {
		return defaultResult(dynamic.New(nil), false, Reason("Uninitialized"))
	}

	sp, found := snap.Lookup(kind, name)
	if !found {
		return defaultResult(dynamic.New(nil), false, Reason(string(snap.Source)+":Unrecognized"))
	}

	unitID := in.UnitID(sp.IDType)

	if ctx.Overrides != nil {
		if kind == specs.KindFeatureGate {
			if v, ok := ctx.Overrides.GateOverride(name, unitID); ok {
				return Result{BoolValue: v, JSONValue: dynamic.New(v), RuleID: "override", IDType: sp.IDType, Reason: Reason("LocalOverride:Recognized")}
			}
		} else {
			if v, ok := ctx.Overrides.ConfigOverride(name, unitID); ok {
				return Result{BoolValue: true, JSONValue: dynamic.New(v), RuleID: "override", IDType: sp.IDType, Reason: Reason("LocalOverride:Recognized")}
			}
		}
	}

	if len(sp.TargetAppIDs) > 0 {
		appID := snap.HashedSDKKeysToAppIDs[ctx.SDKKey]
		if !contains(sp.TargetAppIDs, appID) {
			return Result{BoolValue: false, JSONValue: sp.DefaultValue, RuleID: "", IDType: sp.IDType, Version: sp.Version, Reason: Reason(string(snap.Source) + ":Unrecognized")}
		}
	}

	ev := &evalCtx{snapshot: snap, idLists: ctx.IDLists, overrides: ctx.Overrides, sdkKey: ctx.SDKKey, user: in}

	for i := range sp.Rules {
		rule := &sp.Rules[i]
		if !ev.ruleConditionsPass(rule, sp) {
			continue
		}

		bucket := hashing.Bucket(rule.Salt, unitID)
		pass := float64(bucket) < rule.PassPercentage*100

		result := Result{
			RuleID:             rule.ID,
			GroupName:          rule.GroupName,
			IDType:             sp.IDType,
			Version:            sp.Version,
			ExplicitParameters: sp.ExplicitParameters,
			SecondaryExposures: append([]SecondaryExposure(nil), ev.secondaryExposures...),
			Reason:             Reason(string(snap.Source) + ":Recognized"),
		}
		result.UndelegatedSecondaryExposures = result.SecondaryExposures

		if pass {
			result.JSONValue = rule.ReturnValue
			result.BoolValue = asBool(rule.ReturnValue)
		} else {
			result.JSONValue = sp.DefaultValue
			result.BoolValue = asBool(sp.DefaultValue)
		}

		if rule.ConfigDelegate != "" {
			delegate, ok := snap.Lookup(specs.KindExperiment, rule.ConfigDelegate)
			if ok {
				delegateResult := Evaluate(ctx, in, rule.ConfigDelegate, specs.KindExperiment)
				result.AllocatedExperimentName = rule.ConfigDelegate
				result.IsExperimentGroup = delegateResult.IsExperimentGroup || len(delegate.Rules) > 0
				result.JSONValue = delegateResult.JSONValue
				result.BoolValue = delegateResult.BoolValue
				result.GroupName = delegateResult.GroupName
				result.SecondaryExposures = union(result.UndelegatedSecondaryExposures, delegateResult.SecondaryExposures)
			}
		}

		return result
	}

	return Result{
		JSONValue:          sp.DefaultValue,
		BoolValue:          asBool(sp.DefaultValue),
		RuleID:             "default",
		IDType:             sp.IDType,
		Version:            sp.Version,
		ExplicitParameters: sp.ExplicitParameters,
		SecondaryExposures: ev.secondaryExposures,
		Reason:             Reason(string(snap.Source) + ":Recognized"),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func union(a, b []SecondaryExposure) []SecondaryExposure {
	out := append([]SecondaryExposure(nil), a...)
	seen := make(map[uint64]struct{}, len(out))
	for _, e := range out {
		seen[e.Fingerprint()] = struct{}{}
	}
	for _, e := range b {
		if _, ok := seen[e.Fingerprint()]; ok {
			continue
		}
		seen[e.Fingerprint()] = struct{}{}
		out = append(out, e)
	}
	return out
}

func asBool(v dynamic.Value) bool {
	if b, ok := v.AsBool(); ok {
		return b
	}
	return false
}

// evalCtx threads the condition evaluation's recursive dependencies
// (the snapshot, id-list side-table, override adapter, and the
// secondary exposures accumulated so far within one Evaluate call) —
// the spec's "result_accumulator" argument to the pure evaluator
// function.
type evalCtx struct {
	snapshot           *specs.Snapshot
	idLists            *idlist.Store
	overrides          specs.OverrideAdapter
	sdkKey             string
	user               *user.Internal
	secondaryExposures []SecondaryExposure
}

func (e *evalCtx) ruleConditionsPass(rule *specs.Rule, sp *specs.Spec) bool {
	for i := range rule.Conditions {
		if !e.conditionPasses(&rule.Conditions[i], sp) {
			return false
		}
	}
	return true
}

func (e *evalCtx) conditionPasses(c *specs.Condition, sp *specs.Spec) bool {
	switch c.Type {
	case specs.ConditionPublic:
		return true
	case specs.ConditionPassGate, specs.ConditionFailGate:
		return e.gateCondition(c, sp, c.Type == specs.ConditionFailGate, false)
	case specs.ConditionMultiPassGate, specs.ConditionMultiFailGate:
		return e.gateCondition(c, sp, c.Type == specs.ConditionMultiFailGate, true)
	case specs.ConditionUserField:
		v, ok := e.user.Field(c.Field)
		return evalOperator(c.Operator, v, ok, c.TargetValue, c.AdditionalValues)
	case specs.ConditionEnvironmentField:
		env := e.user.Environment(e.snapshot.DefaultEnvironment)
		return evalOperator(c.Operator, dynamic.New(env), env != "", c.TargetValue, c.AdditionalValues)
	case specs.ConditionIPBased:
		v, ok := e.user.Field("ip")
		return evalOperator(c.Operator, v, ok, c.TargetValue, c.AdditionalValues)
	case specs.ConditionUABased:
		return e.uaBasedCondition(c)
	case specs.ConditionUserBucket:
		unitID := e.user.UnitID(c.IDType)
		bucket := hashing.Bucket(saltOrDefault(c), unitID)
		return evalOperator(c.Operator, dynamic.New(float64(bucket)), true, c.TargetValue, c.AdditionalValues)
	case specs.ConditionUnitID:
		unitID := e.user.UnitID(c.IDType)
		if e.idLists != nil {
			if listName, ok := c.TargetValue.AsString(); ok {
				return e.idLists.Contains(listName, unitID)
			}
		}
		return evalOperator(c.Operator, dynamic.New(unitID), true, c.TargetValue, c.AdditionalValues)
	case specs.ConditionCurrentTime:
		return timeOperator(c.Operator, nowMillis(), c.TargetValue)
	case specs.ConditionTargetApp:
		appID := e.snapshot.HashedSDKKeysToAppIDs[e.sdkKey]
		return evalOperator(c.Operator, dynamic.New(appID), true, c.TargetValue, c.AdditionalValues)
	default:
		return false
	}
}

func saltOrDefault(c *specs.Condition) string {
	if s, ok := c.TargetValue.AsString(); ok && c.Operator == "" {
		return s
	}
	return c.Field
}

func (e *evalCtx) uaBasedCondition(c *specs.Condition) bool {
	client := e.user.Agent()
	var v string
	switch strings.ToLower(c.Field) {
	case "os_name", "osname":
		if client.Os != nil {
			v = client.Os.Family
		}
	case "browser_name", "browsername":
		if client.UserAgent != nil {
			v = client.UserAgent.Family
		}
	case "browser_version", "browserversion":
		if client.UserAgent != nil {
			v = client.UserAgent.Major + "." + client.UserAgent.Minor + "." + client.UserAgent.Patch
		}
	default:
		v = ""
	}
	return evalOperator(c.Operator, dynamic.New(v), v != "", c.TargetValue, c.AdditionalValues)
}

func (e *evalCtx) gateCondition(c *specs.Condition, sp *specs.Spec, negate, multi bool) bool {
	names := []string{}
	if multi {
		if arr, ok := c.TargetValue.AsArray(); ok {
			for _, n := range arr {
				if s, ok := n.AsString(); ok {
					names = append(names, s)
				}
			}
		}
	} else if s, ok := c.TargetValue.AsString(); ok {
		names = append(names, s)
	}

	overallPass := false
	for _, name := range names {
		sub := Evaluate(Context{Snapshot: e.snapshot, IDLists: e.idLists, Overrides: e.overrides, SDKKey: e.sdkKey}, e.user, name, specs.KindFeatureGate)
		gateValue := "false"
		if sub.BoolValue {
			gateValue = "true"
		}
		own := SecondaryExposure{Gate: name, GateValue: gateValue, RuleID: sub.RuleID}
		e.secondaryExposures = union(e.secondaryExposures, append([]SecondaryExposure{own}, sub.SecondaryExposures...))
		if sub.BoolValue {
			overallPass = true
		}
	}

	if negate {
		return !overallPass
	}
	return overallPass
}

// nowMillis is a package-level var so tests can inject a deterministic
// clock for current_time conditions.
var nowMillis = func() int64 { return time.Now().UnixMilli() }
