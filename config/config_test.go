package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
Hardware:
  Sink: memory
  MaxBrightness: 200
  InitialBrightness: 50
  Channels:
    - Index: 0
      Pin: 12
      LedCount: 100
      Order: grb
    - Index: 1
      Pin: 13
      LedCount: 50
Render:
  CommandBuffer: 8
  PollWindow: 2ms
  StartupAnimation: 3
DayNight:
  Enabled: true
  DayHour: 7
  DayBrightness: 10
  NightHour: 18
  NightBrightness: 120
  Interval: 30s
Library:
  File: lib/animations.yml
Logging:
  TUI:
    Level: "DEBUG"
    Format: "text"
    File: "/tmp/lights-tui.log"
  HW:
    Level: "WARN"
    Format: "json"
    File: "/var/log/lights-hw.log"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	return file
}

func TestReadConfig(t *testing.T) {
	file := writeConfig(t, validConfig)

	cfg, err := ReadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, file, cfg.Configfile)
	assert.Equal(t, SinkMemory, cfg.Hardware.Sink)
	assert.Equal(t, 200, cfg.Hardware.MaxBrightness)
	assert.Equal(t, 50, cfg.Hardware.InitialBrightness)
	assert.Equal(t, 150, cfg.Hardware.LedsTotal())
	assert.Equal(t, "GRB", cfg.Hardware.Channels[0].Order)
	assert.Equal(t, "RGB", cfg.Hardware.Channels[1].Order, "missing order defaults to RGB")
	assert.Equal(t, 2*time.Millisecond, cfg.Render.PollWindow)
	assert.Equal(t, 3, cfg.Render.StartupAnimation)
	assert.Equal(t, "#ffffff", cfg.Render.DefaultColor, "unset values keep their default")
	assert.Equal(t, 30*time.Second, cfg.DayNight.Interval)
	assert.Equal(t, 18, cfg.DayNight.NightHour)
	assert.Equal(t, filepath.Join(filepath.Dir(file), "lib/animations.yml"), cfg.Library.File)
	assert.Equal(t, 3000, cfg.Web.Port)

	assert.Equal(t, "WARN", cfg.LogConfig().Level, "non tui sinks use the HW profile")
	cfg.Hardware.Sink = SinkTUI
	assert.Equal(t, "DEBUG", cfg.LogConfig().Level)
}

func TestReadConfig_Empty(t *testing.T) {
	cfg, err := ReadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.DayNight, cfg.DayNight)
	assert.Equal(t, def.Hardware.Channels, cfg.Hardware.Channels)
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown sink", "Hardware:\n  Sink: laser\n", "Hardware.Sink"},
		{"brightness too big", "Hardware:\n  MaxBrightness: 300\n", "must be between 1 and 255"},
		{"brightness cap zero", "Hardware:\n  MaxBrightness: 0\n", "Hardware.MaxBrightness must be between 1 and 255"},
		{"initial brightness", "Hardware:\n  InitialBrightness: 256\n", "must be between 0 and 255"},
		{"no channels", "Hardware:\n  Channels: []\n", "at least one channel"},
		{"bad order", "Hardware:\n  Channels:\n    - {Index: 0, LedCount: 3, Order: RRB}\n", "Order"},
		{"duplicate channel", "Hardware:\n  Channels:\n    - {Index: 0, LedCount: 3}\n    - {Index: 0, LedCount: 3}\n", "duplicate channel index"},
		{"empty channel", "Hardware:\n  Channels:\n    - {Index: 0, LedCount: 0}\n", "LedCount must be > 0"},
		{"unknown multiplexer", "Hardware:\n  Channels:\n    - {Index: 0, LedCount: 3, SpiMultiplex: a}\n", "SpiMultiplexGPIO"},
		{"spi led type", "Hardware:\n  Sink: spi\n  LEDType: ws2812\n", "LEDType"},
		{"hour", "DayNight:\n  NightHour: 25\n", "must be between 0 and 24"},
		{"interval", "DayNight:\n  Interval: 0s\n", "DayNight.Interval"},
		{"latitude", "DayNight:\n  UseSun: true\n  Latitude: 100\n", "Latitude"},
		{"default color", "Render:\n  DefaultColor: white\n", "Render.DefaultColor"},
		{"poll window", "Render:\n  PollWindow: 1s\n", "Render.PollWindow"},
		{"command buffer", "Render:\n  CommandBuffer: 0\n", "Render.CommandBuffer"},
		{"mqtt broker", "MQTT:\n  Enabled: true\n  Broker: \"\"\n", "MQTT.Broker"},
		{"web port", "Web:\n  Port: 70000\n", "Web.Port"},
		{"not yaml", "Hardware: [", "can't decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Hardware.MaxBrightness = -1
	cfg.DayNight.DayHour = 99
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Hardware.MaxBrightness")
	assert.Contains(t, err.Error(), "DayNight.DayHour")
}
