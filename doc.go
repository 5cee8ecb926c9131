// Package statsig is the public Facade (C12): a server-side feature-flag
// and experimentation client. Construct one with New, call Initialize
// before the first evaluation, and Shutdown when the host process exits.
//
// The package wires together every internal collaborator — the Ruleset
// Store and its Specs Adapter, the ID-List Adapter, the Evaluator, the
// Exposure Sampler/Dedup, the Event Logger, the Observability Bus, and
// the Task Orchestrator — behind a small synchronous evaluation surface
// plus a background runtime the caller never touches directly.
package statsig
