package devices

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"beamline/internal/api"
	"beamline/internal/config"
	"beamline/internal/logging"
	"beamline/internal/telemetry"
)

// Registry owns every device and is the single emission point for device
// telemetry.
type Registry struct {
	logger *slog.Logger
	hub    *telemetry.Hub

	mu      sync.RWMutex
	devices map[string]*Device
	order   []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry builds the rack declared in config.
func NewRegistry(declared []config.Device, hub *telemetry.Hub, logger *slog.Logger) (*Registry, error) {
	if hub == nil {
		return nil, fmt.Errorf("devices: registry requires a telemetry hub")
	}
	reg := &Registry{
		logger:  logging.NewComponentLogger(logger, "devices"),
		hub:     hub,
		devices: make(map[string]*Device, len(declared)),
	}
	for _, cfg := range declared {
		dev, err := newDevice(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := reg.devices[dev.ID]; dup {
			return nil, fmt.Errorf("devices: duplicate id %q", dev.ID)
		}
		reg.devices[dev.ID] = dev
		reg.order = append(reg.order, dev.ID)
	}
	sort.Strings(reg.order)
	return reg, nil
}

// Start launches the simulators for devices with a configured rate.
func (r *Registry) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, id := range r.order {
		dev := r.devices[id]
		if dev.RateHz <= 0 {
			continue
		}
		switch dev.Kind {
		case KindDetector:
			r.wg.Add(1)
			go r.runDetector(ctx, dev)
		case KindCamera:
			r.wg.Add(1)
			go r.runCamera(ctx, dev)
		case KindMotor:
		}
	}
	r.logger.Info("device rack started", logging.Int("devices", len(r.devices)))
}

// Stop halts the simulators and waits for them to exit.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Get returns a device by id.
func (r *Registry) Get(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[id]
	return dev, ok
}

// Count reports the number of devices in the rack.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// IDs returns all device ids in stable order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SetParameter updates one device parameter and emits the matching
// ParameterChange and DeviceStateUpdate events.
func (r *Registry) SetParameter(id, name, value string) error {
	dev, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("devices: unknown device %q", id)
	}
	old, _ := dev.setParameter(name, value)

	r.hub.Parameters.Publish(api.ParameterChange{
		DeviceID: id,
		Name:     name,
		OldValue: old,
		NewValue: value,
		Units:    dev.Units,
	})
	r.hub.DeviceState.Publish(api.DeviceStateUpdate{
		DeviceID: id,
		Fields:   map[string]string{name: value},
	})
	r.logger.Debug("parameter set",
		logging.String(logging.FieldDevice, id),
		logging.String("name", name),
		logging.String("value", value))
	return nil
}

// Read samples a detector immediately and publishes the measurement.
func (r *Registry) Read(id string) (float64, error) {
	dev, ok := r.Get(id)
	if !ok {
		return 0, fmt.Errorf("devices: unknown device %q", id)
	}
	if dev.Kind != KindDetector {
		return 0, fmt.Errorf("devices: %s is a %s, not a detector", id, dev.Kind)
	}
	value := r.sampleDetector(dev, time.Now())
	return value, nil
}

// Trigger captures a single frame from a camera immediately.
func (r *Registry) Trigger(id string) error {
	dev, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("devices: unknown device %q", id)
	}
	if dev.Kind != KindCamera {
		return fmt.Errorf("devices: %s is a %s, not a camera", id, dev.Kind)
	}
	r.captureFrame(dev, time.Now())
	return nil
}

// Snapshot builds full-state snapshot events for the given device ids (all
// devices when ids is empty), flagged is_snapshot.
func (r *Registry) Snapshot(ids map[string]struct{}) []api.DeviceStateUpdate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []api.DeviceStateUpdate
	for _, id := range r.order {
		if len(ids) > 0 {
			if _, ok := ids[id]; !ok {
				continue
			}
		}
		out = append(out, api.DeviceStateUpdate{
			DeviceID:   id,
			Fields:     r.devices[id].stateFields(),
			IsSnapshot: true,
		})
	}
	return out
}

// LiveValues reports one scalar per device for status snapshots. Keys are
// device ids and therefore unique.
func (r *Registry) LiveValues() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.devices))
	for id, dev := range r.devices {
		if value, ok := dev.liveValue(); ok {
			out[id] = value
		}
	}
	return out
}
