package agent

import (
	"context"
	"testing"

	"github.com/nexuscore/agentcore/pkg/models"
)

func TestChanSink_DropsWhenFull(t *testing.T) {
	ch := make(chan models.Event, 1)
	sink := NewChanSink(ch)
	ctx := context.Background()

	sink.Emit(ctx, models.NewTokenEvent("a"))
	sink.Emit(ctx, models.NewTokenEvent("b")) // channel full, should drop silently

	if len(ch) != 1 {
		t.Fatalf("channel len = %d, want 1", len(ch))
	}
}

func TestMultiSink_FansOutAndFiltersNil(t *testing.T) {
	var a, b []models.Event
	sinkA := NewCallbackSink(func(_ context.Context, e models.Event) { a = append(a, e) })
	sinkB := NewCallbackSink(func(_ context.Context, e models.Event) { b = append(b, e) })

	multi := NewMultiSink(sinkA, nil, sinkB)
	multi.Emit(context.Background(), models.NewTokenEvent("x"))

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both sinks to receive the event, got a=%d b=%d", len(a), len(b))
	}
}

func TestNopSink_DoesNothing(t *testing.T) {
	var s NopSink
	s.Emit(context.Background(), models.NewTokenEvent("x")) // must not panic
}
