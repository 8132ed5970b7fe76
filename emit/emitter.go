// Package emit provides event emission and observability for the pipeline
// runtime: node execution, pass boundaries, and import transactions.
package emit

import "context"

// Emitter receives and processes observability events from the runtime.
//
// Implementations should be non-blocking and thread-safe: the pipeline
// evaluator calls Emit from its single evaluation goroutine, but the
// importer and hook bus may call it from other goroutines concurrently.
type Emitter interface {
	// Emit sends a single observability event. It must not block the
	// caller for long and must not panic.
	Emit(event Event)

	// EmitBatch sends multiple events in one call, preserving order.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events have been delivered, or the
	// context is done. Safe to call more than once.
	Flush(ctx context.Context) error
}
