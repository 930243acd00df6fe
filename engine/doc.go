// Package engine turns one generation request into a stored artifact.
//
// The Engine is the artifact-addressed execution layer underneath the flow
// builder. For every request it decides, based on the overwrite policy and
// the hash of the fully flattened prompt, whether a previously stored
// artifact can be reused. Only when the artifact is stale the model is
// called; requested tool calls are fanned out in parallel and their
// aggregate becomes the artifact.
//
// # Execution flow
//
//	┌───────────────┐   ┌──────────────────┐   ┌─────────────┐
//	│ flatten       │──▶│ staleness check  │──▶│ cache hit   │──▶ Result
//	│ prompt + hash │   │ (artifact store) │   └─────────────┘
//	└───────────────┘   └────────┬─────────┘
//	                             ▼ stale
//	                    ┌──────────────────┐   ┌─────────────┐
//	                    │ model call       │──▶│ tool fan-out│
//	                    │ (limit, metrics) │   │ (errgroup)  │
//	                    └────────┬─────────┘   └──────┬──────┘
//	                             ▼                    ▼
//	                    ┌──────────────────────────────────┐
//	                    │ validate output, persist artifact│──▶ Result
//	                    └──────────────────────────────────┘
//
// # Error handling
//
// Model failures are returned as *core.ModelCallError and nothing is
// persisted. Tool failures never abort sibling calls; they become entries of
// the tool result aggregate. Output that does not parse or validate is
// stored as returned and reported through Result.Errors so callers can
// decide to retry.
//
// # Observability
//
// Every run opens an OpenTelemetry span named "engine.run". Structured log
// events use dotted keys (engine.cache.hit, engine.model.call,
// engine.tool.executed, engine.artifact.saved) and Prometheus counters are
// recorded through an optional collector. Callbacks hook into the model and
// tool phases.
package engine
