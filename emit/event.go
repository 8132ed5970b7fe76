package emit

// Event represents an observability event emitted during pipeline execution.
//
// Events cover the things an operator cares about watching:
//   - Pass start/complete (one event per pipeline evaluation pass)
//   - Node run start/complete, including skip decisions
//   - Import transactions (accepted, rejected, broken)
//   - Hook firings (startup, shutdown, pipeline_update)
type Event struct {
	// RunID identifies the pipeline instance that emitted this event. A
	// pipeline has one RunID for its whole lifetime (not per-pass).
	RunID string

	// Pass is the sequential evaluation pass number (1-indexed). Zero for
	// pipeline-level events that are not tied to a single pass.
	Pass int

	// NodeID identifies which node emitted this event. Empty for
	// pipeline-level or import-level events.
	NodeID string

	// Msg is a short machine-matchable event name, e.g. "node_run",
	// "node_skip", "pass_complete", "import_rejected".
	Msg string

	// Meta contains additional structured data specific to this event, such
	// as "duration_ms", "error", or "reason".
	Meta map[string]interface{}
}
