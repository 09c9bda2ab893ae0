package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"beamline/internal/api"
	"beamline/internal/config"
	"beamline/internal/devices"
	"beamline/internal/logging"
	"beamline/internal/scripts"
	"beamline/internal/telemetry"
)

// StopMessage is the error recorded on an execution aborted by StopScript.
const StopMessage = "execution stopped"

var (
	// ErrBusy reports that an execution is already running.
	ErrBusy = errors.New("engine: an execution is already running")
	// ErrNotRunning reports a stop request for an execution that is not
	// currently running.
	ErrNotRunning = errors.New("engine: execution is not running")
	// ErrScriptTooLarge reports an upload over the configured size limit.
	ErrScriptTooLarge = errors.New("engine: script exceeds size limit")
)

// Engine owns the execution lifecycle: script uploads, the single active
// execution, and the periodic status feed.
type Engine struct {
	cfg         *config.Config
	store       *scripts.Store
	rack        *devices.Registry
	hub         *telemetry.Hub
	interpreter Interpreter
	logger      *slog.Logger

	mu      sync.Mutex
	current *running

	cancelTicker context.CancelFunc
	tickerDone   chan struct{}
}

type running struct {
	executionID string
	scriptID    string
	cancel      context.CancelFunc
	done        chan struct{}

	stopMu  sync.Mutex
	stopped bool
}

func (r *running) markStopped() {
	r.stopMu.Lock()
	r.stopped = true
	r.stopMu.Unlock()
}

func (r *running) wasStopped() bool {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()
	return r.stopped
}

func New(cfg *config.Config, store *scripts.Store, rack *devices.Registry, hub *telemetry.Hub, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		store:       store,
		rack:        rack,
		hub:         hub,
		interpreter: NewLineInterpreter(),
		logger:      logging.NewComponentLogger(logger, "engine"),
	}
}

// Upload validates and persists a script, returning its daemon-assigned id.
func (e *Engine) Upload(ctx context.Context, name, content string) (string, error) {
	if limit := e.cfg.Engine.MaxScriptKiB * 1024; limit > 0 && len(content) > limit {
		return "", fmt.Errorf("%w (%d bytes, limit %d)", ErrScriptTooLarge, len(content), limit)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("engine: script content is empty")
	}
	if err := e.interpreter.Validate(content); err != nil {
		return "", fmt.Errorf("engine: script rejected: %w", err)
	}

	script := &scripts.Script{
		ID:      uuid.New().String(),
		Name:    name,
		Content: content,
	}
	if err := e.store.SaveScript(ctx, script); err != nil {
		return "", err
	}
	e.logger.Info("script uploaded",
		logging.String(logging.FieldScriptID, script.ID),
		logging.String("name", name),
		logging.Int("bytes", len(content)))
	return script.ID, nil
}

// Start launches an execution of a previously uploaded script. Only one
// execution runs at a time.
func (e *Engine) Start(ctx context.Context, scriptID string) (string, error) {
	script, err := e.store.GetScript(ctx, scriptID)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	if e.current != nil {
		select {
		case <-e.current.done:
			e.current = nil
		default:
			active := e.current.executionID
			e.mu.Unlock()
			return "", fmt.Errorf("%w (%s)", ErrBusy, active)
		}
	}

	exec := &scripts.Execution{
		ExecutionID: uuid.New().String(),
		ScriptID:    script.ID,
		State:       scripts.StateRunning,
		StartTimeNS: time.Now().UnixNano(),
	}
	if err := e.store.InsertExecution(ctx, exec); err != nil {
		e.mu.Unlock()
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &running{
		executionID: exec.ExecutionID,
		scriptID:    script.ID,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	e.current = run
	e.mu.Unlock()

	e.logger.Info("execution started",
		logging.String(logging.FieldExecutionID, exec.ExecutionID),
		logging.String(logging.FieldScriptID, script.ID))
	go e.run(runCtx, run, script, exec)
	return exec.ExecutionID, nil
}

func (e *Engine) run(ctx context.Context, run *running, script *scripts.Script, exec *scripts.Execution) {
	defer close(run.done)
	defer run.cancel()

	printLogger := e.logger.With(logging.String(logging.FieldExecutionID, exec.ExecutionID))
	err := e.interpreter.Run(ctx, script.Content, Env{
		Devices: e.rack,
		Print:   func(text string) { printLogger.Info("script output", logging.String("text", text)) },
	})

	exec.EndTimeNS = time.Now().UnixNano()
	switch {
	case run.wasStopped():
		exec.State = scripts.StateError
		exec.ErrorMessage = StopMessage
	case err != nil:
		exec.State = scripts.StateError
		exec.ErrorMessage = err.Error()
	default:
		exec.State = scripts.StateCompleted
	}

	if updateErr := e.store.UpdateExecution(context.Background(), exec); updateErr != nil {
		e.logger.Error("failed to persist execution result",
			logging.String(logging.FieldExecutionID, exec.ExecutionID),
			logging.Error(updateErr))
	}
	if exec.State == scripts.StateCompleted {
		e.logger.Info("execution completed",
			logging.String(logging.FieldExecutionID, exec.ExecutionID))
	} else {
		e.logger.Warn("execution failed",
			logging.String(logging.FieldExecutionID, exec.ExecutionID),
			logging.String("error", exec.ErrorMessage))
	}
}

// Status fetches the current lifecycle state of an execution.
func (e *Engine) Status(ctx context.Context, executionID string) (*scripts.Execution, error) {
	return e.store.GetExecution(ctx, executionID)
}

// Stop aborts a running execution. The execution lands in ERROR with the
// stop message; stopping anything else fails with ErrNotRunning.
func (e *Engine) Stop(ctx context.Context, executionID string) error {
	e.mu.Lock()
	run := e.current
	e.mu.Unlock()

	if run == nil || run.executionID != executionID {
		return fmt.Errorf("%w: %s", ErrNotRunning, executionID)
	}
	select {
	case <-run.done:
		return fmt.Errorf("%w: %s", ErrNotRunning, executionID)
	default:
	}

	run.markStopped()
	run.cancel()
	select {
	case <-run.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.logger.Info("execution stopped",
		logging.String(logging.FieldExecutionID, executionID))
	return nil
}

// ActiveExecution reports the id of the running execution, or empty.
func (e *Engine) ActiveExecution() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	select {
	case <-e.current.done:
		return ""
	default:
		return e.current.executionID
	}
}

// StartStatusFeed begins publishing periodic status snapshots on the hub.
func (e *Engine) StartStatusFeed(ctx context.Context) {
	interval := time.Duration(e.cfg.Engine.StatusIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ctx, e.cancelTicker = context.WithCancel(ctx)
	e.tickerDone = make(chan struct{})
	go func() {
		defer close(e.tickerDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				e.hub.Status.Publish(e.snapshot(now))
			}
		}
	}()
}

// StopStatusFeed halts the status ticker and waits for it to exit.
func (e *Engine) StopStatusFeed() {
	if e.cancelTicker == nil {
		return
	}
	e.cancelTicker()
	<-e.tickerDone
}

func (e *Engine) snapshot(now time.Time) api.StatusSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	state := string(scripts.StateIdle)
	if e.ActiveExecution() != "" {
		state = string(scripts.StateRunning)
	}
	return api.StatusSnapshot{
		State:       state,
		MemoryMB:    float64(mem.HeapAlloc) / (1024 * 1024),
		LiveValues:  e.rack.LiveValues(),
		TimestampNS: now.UnixNano(),
	}
}
