package flow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_AllStepsSucceed_ExecutedInOrder(t *testing.T) {
	var order []string
	err := New(testLogger()).
		Step("first", Abort, func(ctx context.Context) error {
			order = append(order, "first")
			return nil
		}).
		Step("second", Skip, func(ctx context.Context) error {
			order = append(order, "second")
			return nil
		}).
		Run(context.Background())

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
}

func TestRun_AbortStepFails_StopsAndWrapsError(t *testing.T) {
	sentinel := errors.New("boom")
	ranAfter := false

	err := New(testLogger()).
		Step("failing", Abort, func(ctx context.Context) error {
			return sentinel
		}).
		Step("after", Abort, func(ctx context.Context) error {
			ranAfter = true
			return nil
		}).
		Run(context.Background())

	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("error chain should contain the step error: %v", err)
	}
	if !strings.Contains(err.Error(), "failing") {
		t.Errorf("error should name the step: %v", err)
	}
	if ranAfter {
		t.Error("steps after an aborting failure must not run")
	}
}

func TestRun_SkipStepFails_Continues(t *testing.T) {
	ranAfter := false

	err := New(testLogger()).
		Step("tolerated", Skip, func(ctx context.Context) error {
			return errors.New("orphan left behind")
		}).
		Step("after", Abort, func(ctx context.Context) error {
			ranAfter = true
			return nil
		}).
		Run(context.Background())

	if err != nil {
		t.Fatalf("Run should succeed past a Skip failure: %v", err)
	}
	if !ranAfter {
		t.Error("subsequent step should run after a Skip failure")
	}
}

func TestRun_NoSteps_Succeeds(t *testing.T) {
	if err := New(testLogger()).Run(context.Background()); err != nil {
		t.Errorf("empty sequence should succeed: %v", err)
	}
}
