package config

const (
	defaultDataDir           = "~/.local/share/beamline/data"
	defaultLogDir            = "~/.local/share/beamline/logs"
	defaultAPIBind           = "127.0.0.1:7419"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultStatusIntervalMS  = 500
	defaultMaxScriptKiB      = 512
	defaultStreamBufferSize  = 256
	defaultNATSSubjectPrefix = "beamline.telemetry"
)

// Default returns a Config populated with repository defaults, including a
// small simulated instrument rack so a fresh install streams data
// immediately.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Engine: Engine{
			StatusIntervalMS: defaultStatusIntervalMS,
			MaxScriptKiB:     defaultMaxScriptKiB,
		},
		Telemetry: Telemetry{
			BufferSize:        defaultStreamBufferSize,
			NATSSubjectPrefix: defaultNATSSubjectPrefix,
		},
		Devices: []Device{
			{ID: "mock_stage", Kind: "motor", Units: "mm", Parameters: map[string]string{"position": "0.0", "velocity": "5.0"}},
			{ID: "mock_power_meter", Kind: "detector", Units: "mW", RateHz: 10},
			{ID: "camera_0", Kind: "camera", RateHz: 5, Width: 64, Height: 48, PixelFormat: "u16_le"},
		},
	}
}
