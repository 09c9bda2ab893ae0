package testsupport

import (
	"path/filepath"
	"testing"

	"beamline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.Socket = filepath.Join(base, "beamlined.sock")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Engine.StatusIntervalMS = 50

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDevices replaces the simulated rack on the test config.
func WithDevices(devices ...config.Device) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Devices = devices
	}
}

// WithBufferSize overrides the telemetry buffer size on the test config.
func WithBufferSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Telemetry.BufferSize = size
	}
}

// WithAPIToken enables bearer token auth on the streaming API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}
