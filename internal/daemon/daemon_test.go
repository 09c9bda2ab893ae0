package daemon_test

import (
	"context"
	"testing"
	"time"

	"beamline/internal/daemon"
	"beamline/internal/logging"
	"beamline/internal/scripts"
	"beamline/internal/testsupport"
)

func startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := startDaemon(t)

	status := d.Status()
	if !status.Running {
		t.Fatal("daemon should report running")
	}
	if status.DeviceCount != 3 {
		t.Fatalf("device count = %d, want 3", status.DeviceCount)
	}
	if d.APIAddr() == "" {
		t.Fatal("api server should be bound")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("daemon should report stopped")
	}
	// Stop is idempotent.
	d.Stop()
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { first.Stop() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("second daemon.New: %v", err)
	}
	t.Cleanup(func() { second.Stop() })
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance acquired the lock")
	}
}

func TestDaemonResetsStaleExecutionsOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	script := testsupport.NewScript(t, store, "stale.bl", "sleep 60")
	stale := &scripts.Execution{
		ExecutionID: "stale-exec",
		ScriptID:    script.ID,
		State:       scripts.StateRunning,
		StartTimeNS: time.Now().UnixNano(),
	}
	if err := store.InsertExecution(context.Background(), stale); err != nil {
		t.Fatalf("InsertExecution: %v", err)
	}

	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	got, err := store.GetExecution(context.Background(), "stale-exec")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.State != scripts.StateError {
		t.Fatalf("stale execution in state %s, want ERROR", got.State)
	}
}

func TestDaemonStopAbortsActiveExecution(t *testing.T) {
	d := startDaemon(t)

	scriptID, err := d.UploadScript(context.Background(), "slow.bl", "sleep 60\n")
	if err != nil {
		t.Fatalf("UploadScript: %v", err)
	}
	execID, err := d.StartScript(context.Background(), scriptID)
	if err != nil {
		t.Fatalf("StartScript: %v", err)
	}

	d.Stop()

	exec, err := d.ScriptStatus(context.Background(), execID)
	if err != nil {
		t.Fatalf("ScriptStatus: %v", err)
	}
	if exec.State != scripts.StateError {
		t.Fatalf("execution in state %s after daemon stop", exec.State)
	}
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	d.RequestShutdown()
	d.RequestShutdown()
	select {
	case <-d.ShutdownRequested():
	default:
		t.Fatal("shutdown channel not closed")
	}
}
