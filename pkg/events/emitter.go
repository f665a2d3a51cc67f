package events

import "context"

// Buffer is the emitter channel capacity. A full buffer blocks the
// producer until the consumer catches up; events are never dropped.
const Buffer = 32

// Emitter is the bounded event channel an agent publishes through.
// One producer, one consumer.
type Emitter struct {
	ch chan Event
}

// NewEmitter creates an emitter with the standard buffer.
func NewEmitter() *Emitter {
	return &Emitter{ch: make(chan Event, Buffer)}
}

// Events returns the consumer side of the channel. It is closed by Close.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Emit publishes one event, stamping its timestamp. Blocks when the buffer
// is full; returns ctx.Err() if the context is cancelled while blocked.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	ev.Timestamp = stamp()
	select {
	case e.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEmit publishes without blocking. Used for terminal frames on an
// already-cancelled context, where a blocking Emit could never win the
// select against ctx.Done. Returns false when the buffer is full.
func (e *Emitter) TryEmit(ev Event) bool {
	ev.Timestamp = stamp()
	select {
	case e.ch <- ev:
		return true
	default:
		return false
	}
}

// Close closes the channel. Call exactly once, after the last Emit.
func (e *Emitter) Close() {
	close(e.ch)
}
