package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"beamline/internal/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Devices) == 0 {
		t.Fatal("default config should declare a simulated rack")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, found, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("reported a config file that does not exist")
	}
	if cfg.Paths.APIBind != "127.0.0.1:7419" {
		t.Fatalf("api bind = %q", cfg.Paths.APIBind)
	}
	if cfg.Engine.MaxScriptKiB != 512 {
		t.Fatalf("max script size = %d KiB", cfg.Engine.MaxScriptKiB)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = "/tmp/beamline-test/data"
log_dir = "/tmp/beamline-test/logs"
api_bind = "127.0.0.1:9000"
api_token = "secret"

[engine]
status_interval_ms = 250

[[devices]]
id = " stage "
kind = "Motor"
units = "mm"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, found, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found || resolved != path {
		t.Fatalf("found=%v resolved=%q", found, resolved)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("api token = %q", cfg.Paths.APIToken)
	}
	if cfg.Engine.StatusIntervalMS != 250 {
		t.Fatalf("status interval = %d", cfg.Engine.StatusIntervalMS)
	}
	// File devices replace the default rack entirely.
	if len(cfg.Devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(cfg.Devices))
	}
	if cfg.Devices[0].ID != "stage" || cfg.Devices[0].Kind != "motor" {
		t.Fatalf("device not normalized: %+v", cfg.Devices[0])
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"bad kind": `
[[devices]]
id = "x"
kind = "quadrupole"
`,
		"bad pixel format": `
[[devices]]
id = "cam"
kind = "camera"
width = 16
height = 16
pixel_format = "u64_le"
`,
		"camera without dimensions": `
[[devices]]
id = "cam"
kind = "camera"
pixel_format = "u8"
`,
		"negative rate": `
[[devices]]
id = "det"
kind = "detector"
rate_hz = -1.0
`,
		"duplicate ids": `
[[devices]]
id = "a"
kind = "motor"
[[devices]]
id = "a"
kind = "motor"
`,
		"bad log level": `
[logging]
level = "verbose"
`,
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("%s: write config: %v", name, err)
		}
		if _, _, _, err := config.Load(path); err == nil {
			t.Errorf("%s: config accepted", name)
		}
	}
}

func TestSocketPathDefaultsUnderLogDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = "/var/log/beamline"
	if got := cfg.SocketPath(); got != "/var/log/beamline/beamlined.sock" {
		t.Fatalf("socket path = %q", got)
	}
	cfg.Paths.Socket = "/run/custom.sock"
	if got := cfg.SocketPath(); got != "/run/custom.sock" {
		t.Fatalf("socket path = %q", got)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, found, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("sample config not found after writing")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err := config.ExpandPath("~/beamline")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "beamline") {
		t.Fatalf("expanded to %q", got)
	}
	abs, err := config.ExpandPath("relative/dir")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if !strings.HasPrefix(abs, "/") {
		t.Fatalf("not absolute: %q", abs)
	}
}
