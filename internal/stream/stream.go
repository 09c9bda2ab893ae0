package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// ErrEnded reports that the server closed the feed cleanly. No more events
// will arrive; the stream is already released.
var ErrEnded = errors.New("stream ended")

// ErrClosed reports that the stream was closed locally via Close.
var ErrClosed = errors.New("stream closed")

// FailureError reports an abnormal mid-stream break: a server-side error
// line or a dropped connection.
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("stream failed: %s", e.Message)
}

// Stream decodes one NDJSON telemetry feed. Next blocks for the next event;
// the terminal error is exactly one of ErrEnded, ErrClosed, or *FailureError.
type Stream[E any] struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	mu       sync.Mutex
	closed   bool
	terminal error
}

// maxLineBytes bounds a single event line. Full camera frames dominate line
// size; base64 pixel data for a 4 MP f32 frame stays under this.
const maxLineBytes = 32 * 1024 * 1024

func newStream[E any](body io.ReadCloser) *Stream[E] {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Stream[E]{body: body, scanner: scanner}
}

// errorProbe detects server-side failure lines without consuming event
// fields. None of the feed event types carry a top-level "error" key.
type errorProbe struct {
	Error *string `json:"error"`
}

// Next returns the next event. After a terminal error every subsequent call
// returns the same error.
func (s *Stream[E]) Next() (E, error) {
	var zero E

	s.mu.Lock()
	if s.terminal != nil {
		err := s.terminal
		s.mu.Unlock()
		return zero, err
	}
	// A closed stream must not yield buffered lines the scanner has not
	// consumed yet.
	if s.closed {
		s.terminal = ErrClosed
		s.mu.Unlock()
		return zero, ErrClosed
	}
	s.mu.Unlock()

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var probe errorProbe
		if err := json.Unmarshal(line, &probe); err == nil && probe.Error != nil {
			return zero, s.fail(&FailureError{Message: *probe.Error})
		}
		var event E
		if err := json.Unmarshal(line, &event); err != nil {
			return zero, s.fail(&FailureError{Message: fmt.Sprintf("decode event: %v", err)})
		}
		return event, nil
	}

	if err := s.scanner.Err(); err != nil {
		if s.wasClosed() || errors.Is(err, net.ErrClosed) {
			return zero, s.finish(ErrClosed)
		}
		return zero, s.fail(&FailureError{Message: err.Error()})
	}
	// EOF: either the server ended the feed or Close raced the read.
	if s.wasClosed() {
		return zero, s.finish(ErrClosed)
	}
	return zero, s.finish(ErrEnded)
}

// Close releases the stream. Pending and future Next calls return ErrClosed.
// Safe to call multiple times and concurrently with Next.
func (s *Stream[E]) Close() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if already {
		return nil
	}
	return s.body.Close()
}

func (s *Stream[E]) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream[E]) fail(err *FailureError) error {
	_ = s.body.Close()
	return s.finish(err)
}

func (s *Stream[E]) finish(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal == nil {
		s.terminal = err
	}
	return s.terminal
}
