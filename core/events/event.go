package events

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// CaptureEmitter records every emitted event in order. Tests use it to assert
// on the exact event sequence of an operation.
type CaptureEmitter struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (c *CaptureEmitter) Emit(evt Event) {
	if c == nil {
		return
	}
	c.Events = append(c.Events, evt)
}
