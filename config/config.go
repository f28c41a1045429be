package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newmanjoel/Lights/animation"
)

const CONFILE = "config.yml"

// Sink kinds understood by Hardware.Sink
const (
	SinkTUI    = "tui"
	SinkMemory = "memory"
	SinkSPI    = "spi"
	SinkWS281x = "ws281x"
)

type Config struct {
	Configfile string         `yaml:"-"`
	Hardware   HardwareConfig `yaml:"Hardware"`
	Render     RenderConfig   `yaml:"Render"`
	DayNight   DayNightConfig `yaml:"DayNight"`
	Library    LibraryConfig  `yaml:"Library"`
	Web        WebConfig      `yaml:"Web"`
	MQTT       MQTTConfig     `yaml:"MQTT"`
	Logging    LoggingConfig  `yaml:"Logging"`
}

type HardwareConfig struct {
	Sink              string                     `yaml:"Sink"`
	MaxBrightness     int                        `yaml:"MaxBrightness"`
	InitialBrightness int                        `yaml:"InitialBrightness"`
	LEDType           string                     `yaml:"LEDType"`
	SPIFrequency      int                        `yaml:"SPIFrequency"`
	Frequency         int                        `yaml:"Frequency"`
	DMA               int                        `yaml:"DMA"`
	ColorCorrection   []float64                  `yaml:"ColorCorrection,flow"`
	Channels          []ChannelConfig            `yaml:"Channels"`
	SpiMultiplexGPIO  map[string]MultiplexConfig `yaml:"SpiMultiplexGPIO"`
}

// ChannelConfig describes one physical strip attached to the sink.
type ChannelConfig struct {
	Index        int    `yaml:"Index"`
	Pin          int    `yaml:"Pin"`
	LedCount     int    `yaml:"LedCount"`
	Order        string `yaml:"Order"`
	StripType    string `yaml:"StripType"`
	Reverse      bool   `yaml:"Reverse"`
	SpiMultiplex string `yaml:"SpiMultiplex"`
}

// MultiplexConfig lists the GPIOs to pull low/high to select a chip.
type MultiplexConfig struct {
	Low  []int `yaml:"Low,flow"`
	High []int `yaml:"High,flow"`
}

type RenderConfig struct {
	CommandBuffer    int           `yaml:"CommandBuffer"`
	PollWindow       time.Duration `yaml:"PollWindow"`
	StartupAnimation int           `yaml:"StartupAnimation"`
	DefaultColor     string        `yaml:"DefaultColor"`
}

// DayNightConfig is the time of day brightness policy record. It is the
// only part of the configuration that can be changed at runtime.
type DayNightConfig struct {
	Enabled         bool          `yaml:"Enabled" json:"enabled"`
	DayHour         int           `yaml:"DayHour" json:"day_hour"`
	DayBrightness   int           `yaml:"DayBrightness" json:"day_brightness"`
	NightHour       int           `yaml:"NightHour" json:"night_hour"`
	NightBrightness int           `yaml:"NightBrightness" json:"night_brightness"`
	Interval        time.Duration `yaml:"Interval" json:"interval"`
	UseSun          bool          `yaml:"UseSun" json:"use_sun"`
	Latitude        float64       `yaml:"Latitude" json:"latitude"`
	Longitude       float64       `yaml:"Longitude" json:"longitude"`
}

type LibraryConfig struct {
	File string `yaml:"File"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"Enabled"`
	Interface string `yaml:"Interface"`
	Port      int    `yaml:"Port"`
}

type MQTTConfig struct {
	Enabled        bool          `yaml:"Enabled"`
	Broker         string        `yaml:"Broker"`
	ClientID       string        `yaml:"ClientID"`
	Username       string        `yaml:"Username"`
	Password       string        `yaml:"Password"`
	TopicPrefix    string        `yaml:"TopicPrefix"`
	ReconnectDelay time.Duration `yaml:"ReconnectDelay"`
	Timeout        time.Duration `yaml:"Timeout"`
}

type LoggingConfig struct {
	TUI LogConfig `yaml:"TUI"`
	HW  LogConfig `yaml:"HW"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// Default returns a complete configuration for a single 250 LED strip
// rendered in the terminal.
func Default() Config {
	return Config{
		Hardware: HardwareConfig{
			Sink:              SinkTUI,
			MaxBrightness:     255,
			InitialBrightness: 100,
			LEDType:           "WS2801",
			SPIFrequency:      1_000_000,
			Frequency:         800_000,
			DMA:               10,
			ColorCorrection:   []float64{1, 1, 1},
			Channels: []ChannelConfig{
				{Index: 0, Pin: 12, LedCount: 250, Order: "RGB", StripType: "BGR"},
			},
		},
		Render: RenderConfig{
			CommandBuffer: 32,
			PollWindow:    time.Millisecond,
			DefaultColor:  "#ffffff",
		},
		DayNight: DayNightConfig{
			Enabled:         true,
			DayHour:         6,
			DayBrightness:   1,
			NightHour:       15,
			NightBrightness: 100,
			Interval:        10 * time.Second,
		},
		Library: LibraryConfig{File: "animations.yml"},
		Web:     WebConfig{Enabled: true, Interface: "0.0.0.0", Port: 3000},
		MQTT: MQTTConfig{
			Broker:         "127.0.0.1:1883",
			ClientID:       "lights",
			TopicPrefix:    "command/lights",
			ReconnectDelay: 5 * time.Second,
			Timeout:        10 * time.Second,
		},
		Logging: LoggingConfig{
			TUI: LogConfig{Level: "DEBUG", Format: "text"},
			HW:  LogConfig{Level: "INFO", Format: "text"},
		},
	}
}

// ReadConfig reads cfile on top of the defaults and validates the result.
func ReadConfig(cfile string) (*Config, error) {
	conf, err := decodeFile(cfile)
	if err != nil {
		return nil, err
	}
	conf.Configfile = cfile
	conf.normalise()

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return &conf, nil
}

// decodeFile returns the file content layered over Default, without any
// normalisation, so it can be written back as it was.
func decodeFile(cfile string) (Config, error) {
	conf := Default()
	f, err := os.Open(cfile)
	if err != nil {
		return conf, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&conf); err != nil && !errors.Is(err, io.EOF) {
		return conf, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	return conf, nil
}

func (c *Config) normalise() {
	c.Hardware.Sink = strings.ToLower(c.Hardware.Sink)
	c.Hardware.LEDType = strings.ToUpper(c.Hardware.LEDType)
	for i := range c.Hardware.Channels {
		ch := &c.Hardware.Channels[i]
		if ch.Order == "" {
			ch.Order = "RGB"
		}
		ch.Order = strings.ToUpper(ch.Order)
		ch.StripType = strings.ToUpper(ch.StripType)
	}
	if c.Configfile != "" && c.Library.File != "" && !filepath.IsAbs(c.Library.File) {
		c.Library.File = filepath.Join(filepath.Dir(c.Configfile), c.Library.File)
	}
}

// LedsTotal is the sum of all channel lengths.
func (c *HardwareConfig) LedsTotal() int {
	total := 0
	for _, ch := range c.Channels {
		total += ch.LedCount
	}
	return total
}

// LogConfig picks the logging profile that belongs to the configured sink.
func (c *Config) LogConfig() LogConfig {
	if c.Hardware.Sink == SinkTUI {
		return c.Logging.TUI
	}
	return c.Logging.HW
}

func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	hw := c.Hardware
	switch hw.Sink {
	case SinkTUI, SinkMemory, SinkSPI, SinkWS281x:
	default:
		add("Hardware.Sink %q must be one of tui, memory, spi, ws281x", hw.Sink)
	}
	if hw.MaxBrightness < 1 || hw.MaxBrightness > 255 {
		add("Hardware.MaxBrightness must be between 1 and 255, got %d", hw.MaxBrightness)
	}
	checkByte(&errs, "Hardware.InitialBrightness", hw.InitialBrightness)
	if len(hw.ColorCorrection) != 3 {
		add("Hardware.ColorCorrection must have 3 elements, got %d", len(hw.ColorCorrection))
	} else {
		for i, f := range hw.ColorCorrection {
			if f < 0 {
				add("Hardware.ColorCorrection[%d] must be non-negative, got %v", i, f)
			}
		}
	}
	if hw.Sink == SinkSPI && hw.LEDType != "APA102" && hw.LEDType != "WS2801" {
		add("Hardware.LEDType %q must be APA102 or WS2801", hw.LEDType)
	}
	if len(hw.Channels) == 0 {
		add("Hardware.Channels must contain at least one channel")
	}
	seen := make(map[int]bool, len(hw.Channels))
	for i, ch := range hw.Channels {
		if seen[ch.Index] {
			add("Hardware.Channels[%d]: duplicate channel index %d", i, ch.Index)
		}
		seen[ch.Index] = true
		if ch.Index < 0 {
			add("Hardware.Channels[%d].Index must be non-negative, got %d", i, ch.Index)
		}
		if ch.LedCount <= 0 {
			add("Hardware.Channels[%d].LedCount must be > 0, got %d", i, ch.LedCount)
		}
		if _, err := (animation.RGB{}).Order(ch.Order); err != nil {
			add("Hardware.Channels[%d].Order: %v", i, err)
		}
		if ch.SpiMultiplex != "" {
			if _, ok := hw.SpiMultiplexGPIO[ch.SpiMultiplex]; !ok {
				add("Hardware.Channels[%d].SpiMultiplex %q is not defined in Hardware.SpiMultiplexGPIO", i, ch.SpiMultiplex)
			}
		}
	}

	if c.Render.CommandBuffer <= 0 {
		add("Render.CommandBuffer must be > 0, got %d", c.Render.CommandBuffer)
	}
	if c.Render.PollWindow <= 0 || c.Render.PollWindow > 100*time.Millisecond {
		add("Render.PollWindow must be between 0 and 100ms, got %v", c.Render.PollWindow)
	}
	if _, err := animation.ParseHexColor(c.Render.DefaultColor); err != nil {
		add("Render.DefaultColor: %v", err)
	}

	if err := c.DayNight.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		add("Web.Port must be between 1 and 65535, got %d", c.Web.Port)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			add("MQTT.Broker must be set when MQTT is enabled")
		}
		if c.MQTT.TopicPrefix == "" {
			add("MQTT.TopicPrefix must be set when MQTT is enabled")
		}
		if c.MQTT.ReconnectDelay <= 0 {
			add("MQTT.ReconnectDelay must be > 0, got %v", c.MQTT.ReconnectDelay)
		}
		if c.MQTT.Timeout <= 0 {
			add("MQTT.Timeout must be > 0, got %v", c.MQTT.Timeout)
		}
	}
	return errors.Join(errs...)
}

func (d DayNightConfig) Validate() error {
	var errs []error
	checkHour(&errs, "DayNight.DayHour", d.DayHour)
	checkHour(&errs, "DayNight.NightHour", d.NightHour)
	checkByte(&errs, "DayNight.DayBrightness", d.DayBrightness)
	checkByte(&errs, "DayNight.NightBrightness", d.NightBrightness)
	if d.Interval <= 0 {
		errs = append(errs, fmt.Errorf("DayNight.Interval must be > 0, got %v", d.Interval))
	}
	if d.UseSun {
		if d.Latitude < -90 || d.Latitude > 90 {
			errs = append(errs, fmt.Errorf("DayNight.Latitude must be between -90 and 90, got %v", d.Latitude))
		}
		if d.Longitude < -180 || d.Longitude > 180 {
			errs = append(errs, fmt.Errorf("DayNight.Longitude must be between -180 and 180, got %v", d.Longitude))
		}
	}
	return errors.Join(errs...)
}

func checkByte(errs *[]error, name string, v int) {
	if v < 0 || v > 255 {
		*errs = append(*errs, fmt.Errorf("%s must be between 0 and 255, got %d", name, v))
	}
}

func checkHour(errs *[]error, name string, v int) {
	if v < 0 || v > 24 {
		*errs = append(*errs, fmt.Errorf("%s must be between 0 and 24, got %d", name, v))
	}
}
