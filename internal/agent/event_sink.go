package agent

import (
	"context"

	"github.com/nexuscore/agentcore/pkg/models"
)

// EventSink receives Events as the agent loop streams a turn.
// Implementations must be safe to call from multiple goroutines and must
// not block indefinitely: a slow consumer should drop or buffer, not stall
// the loop.
type EventSink interface {
	Emit(ctx context.Context, e models.Event)
}

// ChanSink sends events to a channel with non-blocking behavior when the
// channel is full.
type ChanSink struct {
	ch chan<- models.Event
}

// NewChanSink creates a sink that sends to a channel. The channel should be
// buffered to avoid blocking.
func NewChanSink(ch chan<- models.Event) *ChanSink {
	return &ChanSink{ch: ch}
}

// Emit sends the event to the channel, dropping it if the channel is full
// or the context has been cancelled.
func (s *ChanSink) Emit(ctx context.Context, e models.Event) {
	select {
	case s.ch <- e:
	case <-ctx.Done():
	default:
	}
}

// BlockingChanSink delivers every event to its channel, waiting for the
// consumer rather than dropping. Use it when the consumer (an HTTP edge
// draining to a client) must see the complete stream; the context bounds
// how long a stalled consumer can hold the producer.
type BlockingChanSink struct {
	ch chan<- models.Event
}

// NewBlockingChanSink creates a sink that blocks until delivery.
func NewBlockingChanSink(ch chan<- models.Event) *BlockingChanSink {
	return &BlockingChanSink{ch: ch}
}

// Emit delivers the event, giving up only when ctx is cancelled.
func (s *BlockingChanSink) Emit(ctx context.Context, e models.Event) {
	select {
	case s.ch <- e:
	case <-ctx.Done():
	}
}

// MultiSink fans out events to multiple sinks. Nil sinks are filtered out.
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink creates a sink that dispatches events to multiple sinks.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	filtered := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Emit dispatches the event to all sinks.
func (s *MultiSink) Emit(ctx context.Context, e models.Event) {
	for _, sink := range s.sinks {
		sink.Emit(ctx, e)
	}
}

// CallbackSink wraps a function as an EventSink for inline event handling.
type CallbackSink struct {
	fn func(ctx context.Context, e models.Event)
}

// NewCallbackSink creates a sink that calls the provided function for each event.
func NewCallbackSink(fn func(ctx context.Context, e models.Event)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

// Emit calls the wrapped function.
func (s *CallbackSink) Emit(ctx context.Context, e models.Event) {
	if s.fn != nil {
		s.fn(ctx, e)
	}
}

// NopSink discards all events. Useful in tests or when nobody is listening.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(context.Context, models.Event) {}
