package devices

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"beamline/internal/config"
	"beamline/internal/pixels"
)

// Kind is the closed set of device kinds.
type Kind int

const (
	KindMotor Kind = iota
	KindDetector
	KindCamera
)

func (k Kind) String() string {
	switch k {
	case KindMotor:
		return "motor"
	case KindDetector:
		return "detector"
	case KindCamera:
		return "camera"
	default:
		return "unknown"
	}
}

// ParseKind converts a config kind string.
func ParseKind(value string) (Kind, error) {
	switch value {
	case "motor":
		return KindMotor, nil
	case "detector":
		return KindDetector, nil
	case "camera":
		return KindCamera, nil
	default:
		return 0, fmt.Errorf("devices: unknown kind %q", value)
	}
}

// Device is one addressable instrument. All mutable state lives behind the
// mutex; telemetry emission happens in the registry, outside the lock.
type Device struct {
	ID          string
	Kind        Kind
	Units       string
	RateHz      float64
	Width       int
	Height      int
	PixelFormat pixels.Format

	mu          sync.Mutex
	params      map[string]string
	lastReading float64
	frameNumber uint64
}

func newDevice(cfg config.Device) (*Device, error) {
	kind, err := ParseKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	dev := &Device{
		ID:     cfg.ID,
		Kind:   kind,
		Units:  cfg.Units,
		RateHz: cfg.RateHz,
		Width:  cfg.Width,
		Height: cfg.Height,
		params: make(map[string]string, len(cfg.Parameters)),
	}
	if kind == KindCamera {
		format, err := pixels.ParseFormat(cfg.PixelFormat)
		if err != nil {
			return nil, err
		}
		dev.PixelFormat = format
	}
	for name, value := range cfg.Parameters {
		dev.params[name] = value
	}
	switch kind {
	case KindMotor:
		if _, ok := dev.params["position"]; !ok {
			dev.params["position"] = "0.0"
		}
	case KindDetector, KindCamera:
	}
	return dev, nil
}

// Parameter returns a parameter value.
func (d *Device) Parameter(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	value, ok := d.params[name]
	return value, ok
}

// setParameter stores value and returns the previous value.
func (d *Device) setParameter(name, value string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	old, existed := d.params[name]
	d.params[name] = value
	return old, existed
}

// stateFields returns a copy of all parameters plus derived fields, sorted
// key order not guaranteed (map).
func (d *Device) stateFields() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	fields := make(map[string]string, len(d.params)+2)
	for name, value := range d.params {
		fields[name] = value
	}
	fields["kind"] = d.Kind.String()
	if d.Units != "" {
		fields["units"] = d.Units
	}
	switch d.Kind {
	case KindDetector:
		fields["last_reading"] = strconv.FormatFloat(d.lastReading, 'g', -1, 64)
	case KindCamera:
		fields["frame_number"] = strconv.FormatUint(d.frameNumber, 10)
	case KindMotor:
	}
	return fields
}

// parameterNames returns the parameter names in stable order.
func (d *Device) parameterNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.params))
	for name := range d.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Device) nextFrameNumber() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameNumber++
	return d.frameNumber
}

func (d *Device) recordReading(value float64) {
	d.mu.Lock()
	d.lastReading = value
	d.mu.Unlock()
}

// liveValue reports the scalar a status snapshot should carry for this
// device, when it has one.
func (d *Device) liveValue() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.Kind {
	case KindMotor:
		value, err := strconv.ParseFloat(d.params["position"], 64)
		if err != nil {
			return 0, false
		}
		return value, true
	case KindDetector:
		return d.lastReading, true
	case KindCamera:
		return float64(d.frameNumber), true
	default:
		return 0, false
	}
}
