package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"beamline/internal/api"
	"beamline/internal/config"
	"beamline/internal/logging"
	"beamline/internal/telemetry"
)

// apiServer serves daemon status and the five NDJSON telemetry feeds over
// HTTP. Each stream response is a sequence of JSON lines; a clean server-side
// close ends the body, a failure is preceded by a StreamError line.
type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/stream/status", authMiddleware(token, srv.handleStreamStatus))
	mux.HandleFunc("/api/stream/measurements", authMiddleware(token, srv.handleStreamMeasurements))
	mux.HandleFunc("/api/stream/frames", authMiddleware(token, srv.handleStreamFrames))
	mux.HandleFunc("/api/stream/parameters", authMiddleware(token, srv.handleStreamParameters))
	mux.HandleFunc("/api/stream/devices", authMiddleware(token, srv.handleStreamDevices))

	// No WriteTimeout: stream responses are open-ended.
	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound listen address, empty before start.
func (s *apiServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sub := s.daemon.hub.Status.Subscribe(s.daemon.hub.BufferSize(), nil)
	defer sub.Close()
	pumpEvents(s, w, r, sub.Events(), nil)
}

func (s *apiServer) handleStreamMeasurements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	instruments := querySet(r, "instrument")
	var filter func(api.MeasurementSample) bool
	if len(instruments) > 0 {
		filter = func(sample api.MeasurementSample) bool {
			_, ok := instruments[sample.Instrument]
			return ok
		}
	}
	sub := s.daemon.hub.Measurements.Subscribe(s.daemon.hub.BufferSize(), filter)
	defer sub.Close()
	pumpEvents(s, w, r, sub.Events(), nil)
}

func (s *apiServer) handleStreamFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	deviceIDs := querySet(r, "device")
	withPixels := queryBool(r, "pixel_data")
	var filter func(api.Frame) bool
	if len(deviceIDs) > 0 {
		filter = func(frame api.Frame) bool {
			_, ok := deviceIDs[frame.DeviceID]
			return ok
		}
	}
	sub := s.daemon.hub.Frames.Subscribe(s.daemon.hub.BufferSize(), filter)
	defer sub.Close()
	pumpEvents(s, w, r, sub.Events(), func(frame api.Frame) any {
		if !withPixels {
			frame.PixelData = nil
		}
		return frame
	})
}

func (s *apiServer) handleStreamParameters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	deviceIDs := querySet(r, "device")
	names := querySet(r, "name")
	var filter func(api.ParameterChange) bool
	if len(deviceIDs) > 0 || len(names) > 0 {
		filter = func(change api.ParameterChange) bool {
			if len(deviceIDs) > 0 {
				if _, ok := deviceIDs[change.DeviceID]; !ok {
					return false
				}
			}
			if len(names) > 0 {
				if _, ok := names[change.Name]; !ok {
					return false
				}
			}
			return true
		}
	}
	sub := s.daemon.hub.Parameters.Subscribe(s.daemon.hub.BufferSize(), filter)
	defer sub.Close()
	pumpEvents(s, w, r, sub.Events(), nil)
}

func (s *apiServer) handleStreamDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	deviceIDs := querySet(r, "device")
	maxRate, err := queryInt(r, "max_rate_hz")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	includeSnapshot := queryBool(r, "snapshot")

	var filter func(api.DeviceStateUpdate) bool
	if len(deviceIDs) > 0 {
		filter = func(update api.DeviceStateUpdate) bool {
			_, ok := deviceIDs[update.DeviceID]
			return ok
		}
	}

	// Subscribe before snapshotting so no delta between snapshot build and
	// subscription start is lost. The snapshot is always the first output.
	sub := s.daemon.hub.DeviceState.Subscribe(s.daemon.hub.BufferSize(), filter)
	defer sub.Close()

	flusher, ok := beginStream(w)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	enc := json.NewEncoder(w)

	if includeSnapshot {
		for _, snap := range s.daemon.rack.Snapshot(deviceIDs) {
			if err := enc.Encode(snap); err != nil {
				return
			}
		}
		flusher.Flush()
	}

	coalescer := telemetry.NewCoalescer(maxRate)
	var flushC <-chan time.Time
	if interval := coalescer.Interval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		flushC = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-flushC:
			for _, update := range coalescer.Flush(now) {
				if err := enc.Encode(update); err != nil {
					return
				}
			}
			flusher.Flush()
		case update, ok := <-sub.Events():
			if !ok {
				return
			}
			if due := coalescer.Offer(update, time.Now()); due != nil {
				if err := enc.Encode(*due); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// pumpEvents copies events from a subscription channel to the response as
// NDJSON.
// transform may replace each event before encoding; nil passes events through.
func pumpEvents[E any](s *apiServer, w http.ResponseWriter, r *http.Request, events <-chan E, transform func(E) any) {
	flusher, ok := beginStream(w)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	enc := json.NewEncoder(w)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			var payload any = event
			if transform != nil {
				payload = transform(event)
			}
			if err := enc.Encode(payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func beginStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func querySet(r *http.Request, key string) map[string]struct{} {
	values := r.URL.Query()[key]
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				set[trimmed] = struct{}{}
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func queryBool(r *http.Request, key string) bool {
	value := r.URL.Query().Get(key)
	return value == "1" || strings.EqualFold(value, "true")
}

func queryInt(r *http.Request, key string) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, value)
	}
	return parsed, nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.StreamError{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
