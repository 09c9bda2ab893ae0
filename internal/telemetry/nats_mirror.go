package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"beamline/internal/logging"
)

// Mirror republishes every telemetry event to NATS subjects so external
// consumers (dashboards, recorders) can tap the feeds without holding a
// streaming connection to the daemon.
type Mirror struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
	hub    *Hub

	wg     sync.WaitGroup
	closed []func()
}

// NewMirror connects to NATS and wires one forwarder per feed. The mirror is
// optional; callers skip construction when no URL is configured.
func NewMirror(url, prefix string, hub *Hub, logger *slog.Logger) (*Mirror, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts := []nats.Option{
		nats.Name("beamlined"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", logging.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", logging.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	m := &Mirror{
		nc:     nc,
		prefix: prefix,
		logger: logging.NewComponentLogger(logger, "nats-mirror"),
		hub:    hub,
	}
	return m, nil
}

// Start launches the forwarder goroutines. They run until the hub closes or
// Close is called.
func (m *Mirror) Start() {
	forward(m, "status", m.hub.Status)
	forward(m, "measurements", m.hub.Measurements)
	forward(m, "frames", m.hub.Frames)
	forward(m, "parameters", m.hub.Parameters)
	forward(m, "devices", m.hub.DeviceState)
}

// Close stops forwarding and drains the NATS connection.
func (m *Mirror) Close() {
	for _, closeSub := range m.closed {
		closeSub()
	}
	m.wg.Wait()
	if m.nc != nil {
		_ = m.nc.Drain()
		m.nc.Close()
	}
}

func forward[E any](m *Mirror, feed string, topic *Topic[E]) {
	sub := topic.Subscribe(m.hub.BufferSize(), nil)
	m.closed = append(m.closed, sub.Close)
	subject := m.prefix + "." + feed

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for event := range sub.Events() {
			payload, err := json.Marshal(event)
			if err != nil {
				m.logger.Warn("marshal event", logging.String(logging.FieldFeed, feed), logging.Error(err))
				continue
			}
			if err := m.nc.Publish(subject, payload); err != nil {
				m.logger.Warn("publish event", logging.String(logging.FieldFeed, feed), logging.Error(err))
			}
		}
	}()
}
