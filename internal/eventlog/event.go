// Package eventlog implements the Event Logger (C9): a bounded,
// non-blocking enqueue path with a background flush loop that batches,
// posts, and retries with backoff (spec §4.6).
package eventlog

import "github.com/statsig-io/go-server-core/internal/dynamic"

// Kind tags a QueuedEvent's shape (spec §3).
type Kind string

const (
	KindGate       Kind = "gate_exposure"
	KindConfig     Kind = "config_exposure"
	KindExperiment Kind = "experiment_exposure"
	KindLayerParam Kind = "layer_param_exposure"
	KindCustom     Kind = "custom_event"
)

// Event is one queued StatsigEvent (spec §4.6 payload format). Metadata
// carries exposure-specific keys (ruleID, reason, samplingRate,
// shadowLogged, …) the facade attaches when it constructs the event.
type Event struct {
	Kind       Kind
	Name       string // gate/config/experiment name, or the custom event name
	Value      dynamic.Value
	Metadata   map[string]string
	User       map[string]any
	TimeMillis int64
	DedupeKey  uint64 // 0 means "not deduped" (e.g. custom events)
}
