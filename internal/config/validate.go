package config

import (
	"errors"
	"fmt"
)

var validDeviceKinds = map[string]struct{}{
	"motor":    {},
	"detector": {},
	"camera":   {},
}

var validPixelFormats = map[string]struct{}{
	"u8":     {},
	"u16_le": {},
	"u16_be": {},
	"f32_le": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	return c.validateDevices()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.StatusIntervalMS <= 0 {
		return errors.New("engine.status_interval_ms must be positive")
	}
	if c.Engine.MaxScriptKiB <= 0 {
		return errors.New("engine.max_script_kib must be positive")
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	if c.Telemetry.BufferSize <= 0 {
		return errors.New("telemetry.buffer_size must be positive")
	}
	return nil
}

func (c *Config) validateDevices() error {
	seen := make(map[string]struct{}, len(c.Devices))
	for _, dev := range c.Devices {
		if dev.ID == "" {
			return errors.New("devices: id must be set")
		}
		if _, dup := seen[dev.ID]; dup {
			return fmt.Errorf("devices: duplicate id %q", dev.ID)
		}
		seen[dev.ID] = struct{}{}
		if _, ok := validDeviceKinds[dev.Kind]; !ok {
			return fmt.Errorf("devices: %s: unsupported kind %q", dev.ID, dev.Kind)
		}
		if dev.Kind == "camera" {
			if dev.Width <= 0 || dev.Height <= 0 {
				return fmt.Errorf("devices: %s: camera width/height must be positive", dev.ID)
			}
			if _, ok := validPixelFormats[dev.PixelFormat]; !ok {
				return fmt.Errorf("devices: %s: unsupported pixel_format %q", dev.ID, dev.PixelFormat)
			}
		}
		if dev.RateHz < 0 {
			return fmt.Errorf("devices: %s: rate_hz must not be negative", dev.ID)
		}
	}
	return nil
}
