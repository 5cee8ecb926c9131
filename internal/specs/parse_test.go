package specs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const v1Payload = `{
	"time": 100,
	"feature_gates": [{
		"name": "test_public",
		"type": "feature_gate",
		"salt": "salt1",
		"enabled": true,
		"defaultValue": false,
		"idType": "userID",
		"rules": [{
			"id": "rule_1",
			"salt": "salt1",
			"passPercentage": 100,
			"returnValue": true,
			"conditions": [{"type": "public", "operator": ""}]
		}]
	}],
	"dynamic_configs": [],
	"layer_configs": []
}`

const v2Payload = `{
	"time": 200,
	"condition_map": {
		"cond_abc": {"type": "public", "operator": ""}
	},
	"feature_gates": [{
		"name": "v2_gate",
		"type": "feature_gate",
		"salt": "salt2",
		"enabled": true,
		"defaultValue": false,
		"idType": "userID",
		"rules": [{
			"id": "rule_2",
			"salt": "salt2",
			"passPercentage": 100,
			"returnValue": true,
			"conditionRefs": ["cond_abc"]
		}]
	}],
	"dynamic_configs": [],
	"layer_configs": []
}`

const noUpdatesPayload = `{"has_updates": false}`

func TestParseV1InlineConditions(t *testing.T) {
	res, err := Parse([]byte(v1Payload), SourceNetwork, 123)
	require.NoError(t, err)
	require.True(t, res.HasUpdates)
	snap := res.Snapshot
	assert.Equal(t, uint64(100), snap.LCUT)

	gate, ok := snap.Lookup(KindFeatureGate, "test_public")
	require.True(t, ok)
	require.Len(t, gate.Rules, 1)
	require.Len(t, gate.Rules[0].Conditions, 1)
	assert.Equal(t, ConditionPublic, gate.Rules[0].Conditions[0].Type)
}

func TestParseV2ResolvesConditionRefs(t *testing.T) {
	res, err := Parse([]byte(v2Payload), SourceNetwork, 456)
	require.NoError(t, err)
	snap := res.Snapshot
	gate, ok := snap.Lookup(KindFeatureGate, "v2_gate")
	require.True(t, ok)
	require.Len(t, gate.Rules[0].Conditions, 1)
	assert.Equal(t, ConditionPublic, gate.Rules[0].Conditions[0].Type)
	assert.Equal(t, []string{"cond_abc"}, gate.Rules[0].ConditionRefs)
}

func TestParseNoUpdates(t *testing.T) {
	res, err := Parse([]byte(noUpdatesPayload), SourceNetwork, 1)
	require.NoError(t, err)
	assert.False(t, res.HasUpdates)
	assert.Nil(t, res.Snapshot)
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"), SourceNetwork, 1)
	assert.Error(t, err)
}

func TestParseUnresolvedConditionRefErrors(t *testing.T) {
	bad := `{"time":1,"feature_gates":[{"name":"g","type":"feature_gate","rules":[{"id":"r","conditionRefs":["missing"]}]}],"dynamic_configs":[],"layer_configs":[]}`
	_, err := Parse([]byte(bad), SourceNetwork, 1)
	assert.Error(t, err)
}
