// Package gcir implements the GCIR Formatter (C13): the bulk
// per-user evaluation of every spec in a snapshot, rendered as the JSON
// blob a client SDK bootstraps from (spec §4.10, glossary "GCIR").
package gcir

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/statsig-io/go-server-core/internal/evaluator"
	"github.com/statsig-io/go-server-core/internal/hashing"
	"github.com/statsig-io/go-server-core/internal/idlist"
	"github.com/statsig-io/go-server-core/internal/specs"
	"github.com/statsig-io/go-server-core/internal/user"
)

// SecondaryExposureFormat selects how secondary exposures are rendered
// (spec §4.10: "inlined per entry (v1) or interned into a top-level map
// keyed by hash (v2)").
type SecondaryExposureFormat string

const (
	FormatV1Inline SecondaryExposureFormat = "v1"
	FormatV2Interned SecondaryExposureFormat = "v2"
)

// Options controls one Format call (spec §4.10/§6).
type Options struct {
	HashAlgorithm          hashing.Algorithm
	ClientSDKKey           string
	IncludeKinds           []specs.Kind // empty = every kind
	SecondaryExposureFormat SecondaryExposureFormat
	PreviousResponseHash   string
}

// EvaluatedSpec is one entry of the formatted response. It carries the
// full evaluator.Result shape a client SDK needs to bootstrap
// experiment/layer allocation state (spec §3 "EvaluatorResult"), not
// just the value and rule ID.
type EvaluatedSpec struct {
	Name                          string
	RuleID                        string
	Value                         any
	GroupName                     string
	IDType                        string
	AllocatedExperimentName       string
	IsExperimentGroup             bool
	Version                       int
	ExplicitParameters            []string
	SecondaryExposures            []evaluator.SecondaryExposure // only populated under FormatV1Inline
	SecondaryExposureHashes       []string                      // only populated under FormatV2Interned
	UndelegatedSecondaryExposures []evaluator.SecondaryExposure
}

// Response is the formatted GCIR payload. Unchanged (matching
// PreviousResponseHash) returns Unchanged=true and ResponseHash with
// every other field zeroed, mirroring a 304 (spec §4.10).
type Response struct {
	Unchanged          bool
	ResponseHash       string
	LCUT               uint64
	FeatureGates       map[string]EvaluatedSpec
	DynamicConfigs     map[string]EvaluatedSpec
	LayerConfigs       map[string]EvaluatedSpec
	InternedExposures  map[string][]evaluator.SecondaryExposure // v2 only
}

// Format produces the client-initialize-response for in against snap.
func Format(snap *specs.Snapshot, idLists *idlist.Store, overrides specs.OverrideAdapter, in *user.Internal, opts Options) Response {
	resp := Response{
		LCUT:           snap.LCUT,
		FeatureGates:   map[string]EvaluatedSpec{},
		DynamicConfigs: map[string]EvaluatedSpec{},
		LayerConfigs:   map[string]EvaluatedSpec{},
	}
	interned := map[string][]evaluator.SecondaryExposure{}

	kinds := opts.IncludeKinds
	if len(kinds) == 0 {
		kinds = []specs.Kind{specs.KindFeatureGate, specs.KindDynamicConfig, specs.KindLayer}
	}

	evalCtx := evaluator.Context{Snapshot: snap, IDLists: idLists, Overrides: overrides, SDKKey: opts.ClientSDKKey}

	for _, kind := range kinds {
		m := snap.SpecsByKind(kind)
		dst := resp.destinationFor(kind)
		if m == nil || dst == nil {
			continue
		}
		for name, sp := range m {
			if !appAllowed(sp, snap, opts.ClientSDKKey) {
				continue
			}
			result := evaluator.Evaluate(evalCtx, in, name, kind)
			key := hashing.HashKey(opts.HashAlgorithm, name)

			es := EvaluatedSpec{
				Name:                          key,
				RuleID:                        string(result.RuleID),
				Value:                         result.JSONValue.Raw(),
				GroupName:                     result.GroupName,
				IDType:                        result.IDType,
				AllocatedExperimentName:       result.AllocatedExperimentName,
				IsExperimentGroup:             result.IsExperimentGroup,
				Version:                       result.Version,
				ExplicitParameters:            result.ExplicitParameters,
				UndelegatedSecondaryExposures: result.UndelegatedSecondaryExposures,
			}
			if opts.SecondaryExposureFormat == FormatV2Interned {
				es.SecondaryExposureHashes = internExposures(interned, result.SecondaryExposures)
			} else {
				es.SecondaryExposures = result.SecondaryExposures
			}
			dst[key] = es
		}
	}

	if opts.SecondaryExposureFormat == FormatV2Interned {
		resp.InternedExposures = interned
	}

	resp.ResponseHash = hash(resp)
	if opts.PreviousResponseHash != "" && opts.PreviousResponseHash == resp.ResponseHash {
		return Response{Unchanged: true, ResponseHash: resp.ResponseHash}
	}
	return resp
}

func (r *Response) destinationFor(kind specs.Kind) map[string]EvaluatedSpec {
	switch kind {
	case specs.KindFeatureGate:
		return r.FeatureGates
	case specs.KindDynamicConfig, specs.KindExperiment, specs.KindCMAB:
		return r.DynamicConfigs
	case specs.KindLayer:
		return r.LayerConfigs
	default:
		return nil
	}
}

func appAllowed(sp *specs.Spec, snap *specs.Snapshot, sdkKey string) bool {
	if len(sp.TargetAppIDs) == 0 {
		return true
	}
	appID := snap.HashedSDKKeysToAppIDs[sdkKey]
	for _, a := range sp.TargetAppIDs {
		if a == appID {
			return true
		}
	}
	return false
}

// internExposures folds exposures into pool keyed by their joint hash,
// returning the keys to reference from an EvaluatedSpec (spec §4.10 v2).
func internExposures(pool map[string][]evaluator.SecondaryExposure, exposures []evaluator.SecondaryExposure) []string {
	if len(exposures) == 0 {
		return nil
	}
	keys := make([]string, len(exposures))
	for i, e := range exposures {
		key := hashing.HashKey(hashing.AlgorithmSHA256, e.Gate+"|"+string(e.RuleID)+"|"+e.GateValue)
		if _, ok := pool[key]; !ok {
			pool[key] = []evaluator.SecondaryExposure{e}
		}
		keys[i] = key
	}
	return keys
}

// hash derives a content hash of the formatted response, used as an
// ETag-like value so PreviousResponseHash can detect a byte-identical
// resend (spec §4.10's 304-style behavior). The key material includes
// each entry's serialized value and the snapshot's LCUT, not just
// (name, ruleID): a spec update that edits a rule's return value in
// place without changing which rule ID won (e.g. a dynamic config's
// JSON payload) must still be detected as a change rather than
// reported Unchanged.
func hash(r Response) string {
	keys := make([]string, 0, len(r.FeatureGates)+len(r.DynamicConfigs)+len(r.LayerConfigs)+1)
	keys = append(keys, "lcut:"+strconv.FormatUint(r.LCUT, 10))
	for k, v := range r.FeatureGates {
		keys = append(keys, "g:"+k+":"+v.RuleID+":"+valueFingerprint(v.Value))
	}
	for k, v := range r.DynamicConfigs {
		keys = append(keys, "c:"+k+":"+v.RuleID+":"+valueFingerprint(v.Value))
	}
	for k, v := range r.LayerConfigs {
		keys = append(keys, "l:"+k+":"+v.RuleID+":"+valueFingerprint(v.Value))
	}
	sort.Strings(keys)
	return uitoa(hashing.CacheKey(keys...))
}

// valueFingerprint renders v deterministically for hashing.
// json.Marshal sorts map keys, unlike fmt.Sprint, so two calls against
// an equal map[string]any always produce identical bytes regardless of
// Go's randomized map iteration order.
func valueFingerprint(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// CacheKey produces the GCIR response-cache key `(user_fingerprint,
// options_hash, snapshot_lcut)` from spec §4.10, for callers (the
// facade) that want to memoize Format results without recomputing them.
func CacheKey(fingerprint string, opts Options, lcut uint64) uint64 {
	return hashing.CacheKey(fingerprint, string(opts.HashAlgorithm), opts.ClientSDKKey, string(opts.SecondaryExposureFormat), uitoa(lcut))
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
