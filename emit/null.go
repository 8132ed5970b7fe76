package emit

import "context"

// NullEmitter discards all events. Useful for tests and for deployments
// that don't want observability overhead.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n NullEmitter) Emit(Event) {}

// EmitBatch discards the events.
func (n NullEmitter) EmitBatch(context.Context, []Event) error {
	return nil
}

// Flush is a no-op.
func (n NullEmitter) Flush(context.Context) error {
	return nil
}
