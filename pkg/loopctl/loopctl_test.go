package loopctl

import (
	"context"
	"testing"

	"github.com/apirunner/scenario/pkg/model"
)

func TestRunNoLoopInvokesOnce(t *testing.T) {
	calls := 0
	_, err := Run(context.Background(), nil, func(ctx context.Context, iteration int) (any, bool, map[string]any, error) {
		calls++
		return "ok", true, nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRunUntilExitsEarly(t *testing.T) {
	loop := &model.LoopConfig{Count: 5, Until: "current.ready == true", Interval: 0.001}
	calls := 0
	_, err := Run(context.Background(), loop, func(ctx context.Context, iteration int) (any, bool, map[string]any, error) {
		calls++
		ready := iteration >= 3
		return ready, true, map[string]any{"current": map[string]any{"ready": ready}}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (exits on 3rd iteration)", calls)
	}
}

func TestRunExhaustsThenReexecutesOnce(t *testing.T) {
	loop := &model.LoopConfig{Count: 2, Interval: 0.001}
	calls := 0
	_, err := Run(context.Background(), loop, func(ctx context.Context, iteration int) (any, bool, map[string]any, error) {
		calls++
		return iteration, false, nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (2 counted attempts + 1 re-execute quirk)", calls)
	}
}

func TestRunNoUntilExitsOnSuccess(t *testing.T) {
	loop := &model.LoopConfig{Count: 5, Interval: 0.001}
	calls := 0
	_, err := Run(context.Background(), loop, func(ctx context.Context, iteration int) (any, bool, map[string]any, error) {
		calls++
		return nil, iteration == 2, nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
