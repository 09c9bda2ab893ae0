package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"beamline/internal/devices"
	"beamline/internal/engine"
	"beamline/internal/logging"
	"beamline/internal/scripts"
	"beamline/internal/telemetry"
	"beamline/internal/testsupport"
)

type harness struct {
	eng  *engine.Engine
	hub  *telemetry.Hub
	rack *devices.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := telemetry.NewHub(cfg.Telemetry.BufferSize)
	t.Cleanup(hub.Close)
	rack, err := devices.NewRegistry(cfg.Devices, hub, logging.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	eng := engine.New(cfg, store, rack, hub, logging.NewNop())
	return &harness{eng: eng, hub: hub, rack: rack}
}

func waitForState(t *testing.T, eng *engine.Engine, executionID string, want scripts.State) *scripts.Execution {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		exec, err := eng.Status(context.Background(), executionID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if exec.State == want {
			return exec
		}
		if exec.State.Terminal() {
			t.Fatalf("execution reached %s (%s), want %s", exec.State, exec.ErrorMessage, want)
		}
		select {
		case <-deadline:
			t.Fatalf("execution stuck in %s, want %s", exec.State, want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestUploadAssignsID(t *testing.T) {
	h := newHarness(t)
	id, err := h.eng.Upload(context.Background(), "scan.bl", "print hello\n")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id == "" {
		t.Fatal("empty script id")
	}
}

func TestUploadRejectsOversizedScript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.MaxScriptKiB = 1
	store := testsupport.MustOpenStore(t, cfg)
	hub := telemetry.NewHub(8)
	t.Cleanup(hub.Close)
	rack, err := devices.NewRegistry(cfg.Devices, hub, logging.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	eng := engine.New(cfg, store, rack, hub, logging.NewNop())

	big := "print " + strings.Repeat("x", 2048)
	_, err = eng.Upload(context.Background(), "big.bl", big)
	if !errors.Is(err, engine.ErrScriptTooLarge) {
		t.Fatalf("expected ErrScriptTooLarge, got %v", err)
	}
}

func TestUploadRejectsInvalidScript(t *testing.T) {
	h := newHarness(t)
	if _, err := h.eng.Upload(context.Background(), "bad.bl", "warp 9\n"); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := h.eng.Upload(context.Background(), "empty.bl", "  \n"); err == nil {
		t.Fatal("expected empty content error")
	}
}

func TestStartRunsToCompletion(t *testing.T) {
	h := newHarness(t)
	scriptID, err := h.eng.Upload(context.Background(), "scan.bl", "print starting\nset mock_stage position 3.5\nprint done\n")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	execID, err := h.eng.Start(context.Background(), scriptID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	exec := waitForState(t, h.eng, execID, scripts.StateCompleted)
	if exec.ErrorMessage != "" {
		t.Fatalf("completed with error message %q", exec.ErrorMessage)
	}
	if exec.EndTimeNS == 0 || exec.StartTimeNS == 0 {
		t.Fatalf("timestamps not recorded: %+v", exec)
	}
}

func TestStartUnknownScript(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.Start(context.Background(), "missing")
	if !errors.Is(err, scripts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOnlyOneExecutionAtATime(t *testing.T) {
	h := newHarness(t)
	scriptID, err := h.eng.Upload(context.Background(), "slow.bl", "sleep 30\n")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	execID, err := h.eng.Start(context.Background(), scriptID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := h.eng.Start(context.Background(), scriptID); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if err := h.eng.Stop(context.Background(), execID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	exec := waitForState(t, h.eng, execID, scripts.StateError)
	if exec.ErrorMessage != engine.StopMessage {
		t.Fatalf("error message %q, want %q", exec.ErrorMessage, engine.StopMessage)
	}
	if h.eng.ActiveExecution() != "" {
		t.Fatal("active execution should be empty after stop")
	}

	// The slot is free again once the previous execution is terminal.
	if _, err := h.eng.Start(context.Background(), scriptID); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
}

func TestFailingScriptLandsInError(t *testing.T) {
	h := newHarness(t)
	scriptID, err := h.eng.Upload(context.Background(), "bad.bl", "read mock_stage\n")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	execID, err := h.eng.Start(context.Background(), scriptID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	exec := waitForState(t, h.eng, execID, scripts.StateError)
	if !strings.Contains(exec.ErrorMessage, "not a detector") {
		t.Fatalf("error message %q", exec.ErrorMessage)
	}
}

func TestStopRejectsNonRunningExecution(t *testing.T) {
	h := newHarness(t)
	if err := h.eng.Stop(context.Background(), "ghost"); !errors.Is(err, engine.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestStatusUnknownExecution(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.Status(context.Background(), "ghost")
	if !errors.Is(err, scripts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusFeedPublishesSnapshots(t *testing.T) {
	h := newHarness(t)
	sub := h.hub.Status.Subscribe(4, nil)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.eng.StartStatusFeed(ctx)
	defer h.eng.StopStatusFeed()

	select {
	case snap := <-sub.Events():
		if snap.State != string(scripts.StateIdle) {
			t.Fatalf("state = %q, want IDLE", snap.State)
		}
		if snap.TimestampNS == 0 {
			t.Fatal("timestamp missing")
		}
		if len(snap.LiveValues) == 0 {
			t.Fatal("live values missing")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status snapshot published")
	}
}
