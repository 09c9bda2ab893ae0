package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"beamline/internal/api"
	"beamline/internal/config"
	"beamline/internal/devices"
	"beamline/internal/engine"
	"beamline/internal/logging"
	"beamline/internal/scripts"
	"beamline/internal/telemetry"
)

// Daemon coordinates the acquisition runtime: device simulators, the script
// engine, the telemetry hub, and the streaming API. It enforces
// single-instance execution via a file lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *scripts.Store
	hub    *telemetry.Hub
	rack   *devices.Registry
	engine *engine.Engine
	mirror *telemetry.Mirror
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *scripts.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	hub := telemetry.NewHub(cfg.Telemetry.BufferSize)
	rack, err := devices.NewRegistry(cfg.Devices, hub, logger)
	if err != nil {
		hub.Close()
		return nil, fmt.Errorf("build device rack: %w", err)
	}
	eng := engine.New(cfg, store, rack, hub, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "beamlined.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		hub:        hub,
		rack:       rack,
		engine:     eng,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		shutdownCh: make(chan struct{}),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

func nowNS() int64 {
	return time.Now().UnixNano()
}

// Start acquires the daemon lock and brings the runtime online.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another beamline daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	reset, err := d.store.ResetRunning(d.ctx, nowNS())
	if err != nil {
		d.releaseOnStartFailure()
		return fmt.Errorf("reset stale executions: %w", err)
	}
	if reset > 0 {
		d.logger.Warn("marked stale executions as failed", logging.Int64("count", reset))
	}

	if url := strings.TrimSpace(d.cfg.Telemetry.NATSURL); url != "" {
		mirror, err := telemetry.NewMirror(url, d.cfg.Telemetry.NATSSubjectPrefix, d.hub, d.logger)
		if err != nil {
			d.releaseOnStartFailure()
			return fmt.Errorf("start telemetry mirror: %w", err)
		}
		d.mirror = mirror
		d.mirror.Start()
	}

	d.rack.Start(d.ctx)
	d.engine.StartStatusFeed(d.ctx)

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.engine.StopStatusFeed()
			d.rack.Stop()
			if d.mirror != nil {
				d.mirror.Close()
				d.mirror = nil
			}
			d.releaseOnStartFailure()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("beamline daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("devices", d.rack.Count()))
	return nil
}

func (d *Daemon) releaseOnStartFailure() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	_ = d.lock.Unlock()
}

// Stop halts the runtime and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if active := d.engine.ActiveExecution(); active != "" {
		if err := d.engine.Stop(context.Background(), active); err != nil {
			d.logger.Warn("failed to stop active execution",
				logging.String(logging.FieldExecutionID, active),
				logging.Error(err))
		}
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.engine.StopStatusFeed()
	d.rack.Stop()
	if d.mirror != nil {
		d.mirror.Close()
		d.mirror = nil
	}
	// Closing the hub ends every subscription channel, which lets in-flight
	// stream handlers finish their responses before the HTTP server shuts
	// down. Clients observe a clean end of stream.
	d.hub.Close()
	if d.api != nil {
		d.api.stop()
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("beamline daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RequestShutdown signals the process owner to exit. Safe to call multiple
// times.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownCh) })
}

// ShutdownRequested is closed when a client asked the daemon to exit.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdownCh
}

// UploadScript validates and stores a script.
func (d *Daemon) UploadScript(ctx context.Context, name, content string) (string, error) {
	return d.engine.Upload(ctx, name, content)
}

// StartScript launches an execution of an uploaded script.
func (d *Daemon) StartScript(ctx context.Context, scriptID string) (string, error) {
	return d.engine.Start(ctx, scriptID)
}

// ScriptStatus fetches the lifecycle state of an execution.
func (d *Daemon) ScriptStatus(ctx context.Context, executionID string) (*scripts.Execution, error) {
	return d.engine.Status(ctx, executionID)
}

// StopScript aborts a running execution.
func (d *Daemon) StopScript(ctx context.Context, executionID string) error {
	return d.engine.Stop(ctx, executionID)
}

// ListScripts returns all uploaded scripts, newest first.
func (d *Daemon) ListScripts(ctx context.Context) ([]*scripts.Script, error) {
	return d.store.ListScripts(ctx)
}

// APIAddr reports the bound streaming API address, empty when the API is
// disabled or not started.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.Addr()
}

// Status returns current daemon runtime information.
func (d *Daemon) Status() api.DaemonStatus {
	apiBind := d.APIAddr()
	if apiBind == "" {
		apiBind = d.cfg.Paths.APIBind
	}
	return api.DaemonStatus{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		Socket:          d.cfg.SocketPath(),
		APIBind:         apiBind,
		DBPath:          d.store.Path(),
		LockFilePath:    d.lockPath,
		ActiveExecution: d.engine.ActiveExecution(),
		DeviceCount:     d.rack.Count(),
		Subscriptions:   d.hub.Subscribers(),
	}
}
