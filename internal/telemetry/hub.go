package telemetry

import (
	"beamline/internal/api"
)

// Hub bundles the five telemetry topics the daemon publishes. Producers
// (engine, device simulators) publish; the streaming API and the optional
// NATS mirror subscribe.
type Hub struct {
	bufferSize int

	Status       *Topic[api.StatusSnapshot]
	Measurements *Topic[api.MeasurementSample]
	Frames       *Topic[api.Frame]
	Parameters   *Topic[api.ParameterChange]
	DeviceState  *Topic[api.DeviceStateUpdate]
}

// NewHub constructs a hub whose subscriptions buffer the given number of
// events each.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		bufferSize:   bufferSize,
		Status:       NewTopic[api.StatusSnapshot](),
		Measurements: NewTopic[api.MeasurementSample](),
		Frames:       NewTopic[api.Frame](),
		Parameters:   NewTopic[api.ParameterChange](),
		DeviceState:  NewTopic[api.DeviceStateUpdate](),
	}
}

// BufferSize reports the per-subscription buffer capacity.
func (h *Hub) BufferSize() int {
	return h.bufferSize
}

// Subscribers reports the total open subscription count across all feeds.
func (h *Hub) Subscribers() int {
	return h.Status.Subscribers() +
		h.Measurements.Subscribers() +
		h.Frames.Subscribers() +
		h.Parameters.Subscribers() +
		h.DeviceState.Subscribers()
}

// Close shuts down every topic, ending all open subscriptions cleanly.
func (h *Hub) Close() {
	h.Status.Close()
	h.Measurements.Close()
	h.Frames.Close()
	h.Parameters.Close()
	h.DeviceState.Close()
}
