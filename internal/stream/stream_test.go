package stream_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"beamline/internal/api"
	"beamline/internal/stream"
)

// ndjsonHandler writes the given lines as a chunked NDJSON response and then
// returns, which ends the body cleanly.
func ndjsonHandler(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}
}

func newTestClient(t *testing.T, handler http.Handler) *stream.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := stream.NewClient(srv.URL, "")
	if err != nil {
		t.Fatalf("stream.NewClient: %v", err)
	}
	return client
}

func TestStreamEndsWithErrEnded(t *testing.T) {
	client := newTestClient(t, ndjsonHandler(
		`{"state":"IDLE","memory_mb":12.5,"timestamp_ns":1}`,
		`{"state":"RUNNING","memory_mb":13.0,"timestamp_ns":2}`,
	))

	s, err := client.StreamStatus(context.Background())
	if err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	defer s.Close()

	first, err := s.Next()
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if first.State != "IDLE" || first.MemoryMB != 12.5 {
		t.Fatalf("first event %+v", first)
	}
	if second, err := s.Next(); err != nil || second.State != "RUNNING" {
		t.Fatalf("second Next: %+v, %v", second, err)
	}

	if _, err := s.Next(); !errors.Is(err, stream.ErrEnded) {
		t.Fatalf("terminal = %v, want ErrEnded", err)
	}
	// Terminal errors are sticky.
	if _, err := s.Next(); !errors.Is(err, stream.ErrEnded) {
		t.Fatalf("repeated terminal = %v, want ErrEnded", err)
	}
}

func TestStreamErrorLineBecomesFailure(t *testing.T) {
	client := newTestClient(t, ndjsonHandler(
		`{"state":"IDLE","memory_mb":1,"timestamp_ns":1}`,
		`{"error":"hub overloaded"}`,
	))

	s, err := client.StreamStatus(context.Background())
	if err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	defer s.Close()

	if _, err := s.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	_, err = s.Next()
	var failure *stream.FailureError
	if !errors.As(err, &failure) {
		t.Fatalf("terminal %T (%v), want *FailureError", err, err)
	}
	if !strings.Contains(failure.Message, "hub overloaded") {
		t.Fatalf("failure message %q", failure.Message)
	}
	// Sticky after a failure too.
	if _, again := s.Next(); !errors.As(again, &failure) {
		t.Fatalf("repeated terminal %v", again)
	}
}

func TestStreamLocalCloseReportsErrClosed(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"state":"IDLE","memory_mb":1,"timestamp_ns":1}`)
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })

	client := newTestClient(t, handler)
	s, err := client.StreamStatus(context.Background())
	if err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	if _, err := s.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Next()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, stream.ErrClosed) {
			t.Fatalf("terminal = %v, want ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not unblock after Close")
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestStreamCloseStopsBufferedDelivery(t *testing.T) {
	// All lines arrive in one chunk so the scanner buffers them ahead of
	// the reads. Close must still win over buffered events.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w,
			`{"state":"IDLE","memory_mb":1,"timestamp_ns":1}`+"\n",
			`{"state":"RUNNING","memory_mb":2,"timestamp_ns":2}`+"\n",
			`{"state":"IDLE","memory_mb":3,"timestamp_ns":3}`+"\n")
	})

	client := newTestClient(t, handler)
	s, err := client.StreamStatus(context.Background())
	if err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	if _, err := s.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("Next after Close = %v, want ErrClosed", err)
	}
	// Sticky, like every other terminal.
	if _, err := s.Next(); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("repeated Next after Close = %v, want ErrClosed", err)
	}
}

func TestFrameCapHoldsWithBufferedFrames(t *testing.T) {
	// Two frames in one chunk: the cap must stop delivery even though the
	// second frame is already sitting in the scanner's buffer.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w,
			`{"device_id":"cam","frame_number":1,"width":2,"height":2,"pixel_format":"u8"}`+"\n",
			`{"device_id":"cam","frame_number":2,"width":2,"height":2,"pixel_format":"u8"}`+"\n")
	})

	client := newTestClient(t, handler)
	frames, err := client.StreamFrames(context.Background(), stream.FrameOptions{MaxFrames: 1})
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}
	defer frames.Close()

	frame, err := frames.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.FrameNumber != 1 {
		t.Fatalf("frame number %d, want 1", frame.FrameNumber)
	}
	if _, err := frames.Next(); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("Next past cap = %v, want ErrClosed", err)
	}
	if frames.FrameCount() != 1 {
		t.Fatalf("frame count = %d, want 1", frames.FrameCount())
	}
}

func TestFrameCallbackRunsOnPull(t *testing.T) {
	client := newTestClient(t, ndjsonHandler(
		`{"device_id":"cam","frame_number":7,"width":2,"height":2,"pixel_format":"u8"}`,
	))

	var fromCallback []uint64
	frames, err := client.StreamFrames(context.Background(), stream.FrameOptions{
		OnFrame: func(f api.Frame) { fromCallback = append(fromCallback, f.FrameNumber) },
	})
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}
	defer frames.Close()

	frame, err := frames.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// The callback fires before Next returns the frame.
	if len(fromCallback) != 1 || fromCallback[0] != frame.FrameNumber {
		t.Fatalf("callback saw %v, Next returned frame %d", fromCallback, frame.FrameNumber)
	}
}

func TestStreamAbortedConnectionReportsFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"state":"IDLE","memory_mb":1,"timestamp_ns":1}`)
		flusher.Flush()
		// Drop the connection mid-stream without a terminating chunk.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("recorder does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	})

	client := newTestClient(t, handler)
	s, err := client.StreamStatus(context.Background())
	if err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	defer s.Close()

	if _, err := s.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	_, err = s.Next()
	var failure *stream.FailureError
	if !errors.As(err, &failure) {
		t.Fatalf("terminal %T (%v), want *FailureError", err, err)
	}
}

func TestStreamSkipsBlankLines(t *testing.T) {
	client := newTestClient(t, ndjsonHandler(
		"",
		`{"device_id":"stage","name":"position","old_value":"0.0","new_value":"1.0"}`,
		"",
	))

	s, err := client.StreamParameters(context.Background(), stream.ParameterOptions{})
	if err != nil {
		t.Fatalf("StreamParameters: %v", err)
	}
	defer s.Close()

	change, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if change.DeviceID != "stage" || change.NewValue != "1.0" {
		t.Fatalf("change %+v", change)
	}
	if _, err := s.Next(); !errors.Is(err, stream.ErrEnded) {
		t.Fatalf("terminal = %v, want ErrEnded", err)
	}
}

func TestStreamMalformedEventIsFailure(t *testing.T) {
	client := newTestClient(t, ndjsonHandler(`{not json`))

	s, err := client.StreamStatus(context.Background())
	if err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	defer s.Close()

	_, err = s.Next()
	var failure *stream.FailureError
	if !errors.As(err, &failure) {
		t.Fatalf("terminal %T (%v), want *FailureError", err, err)
	}
}

func TestOpenNon200SurfacesServerMessage(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintln(w, `{"error":"authorization required"}`)
	})
	client := newTestClient(t, handler)

	_, err := client.StreamStatus(context.Background())
	if err == nil || !strings.Contains(err.Error(), "authorization required") {
		t.Fatalf("open error = %v", err)
	}
}

func TestWatchInvokesCallbackUntilEnd(t *testing.T) {
	client := newTestClient(t, ndjsonHandler(
		`{"device_id":"stage","fields":{"position":"1.0"},"is_snapshot":true}`,
		`{"device_id":"stage","fields":{"position":"2.0"}}`,
	))

	var seen []api.DeviceStateUpdate
	s, err := client.StreamDeviceState(context.Background(), stream.DeviceStateOptions{
		OnUpdate: func(u api.DeviceStateUpdate) { seen = append(seen, u) },
	})
	if err != nil {
		t.Fatalf("StreamDeviceState: %v", err)
	}
	if err := s.Watch(context.Background()); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(seen) != 2 || !seen[0].IsSnapshot || seen[1].Fields["position"] != "2.0" {
		t.Fatalf("seen %+v", seen)
	}
}

func TestNewClientRejectsEmptyBind(t *testing.T) {
	if _, err := stream.NewClient("  ", ""); err == nil {
		t.Fatal("expected error for empty bind")
	}
}
