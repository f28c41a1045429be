package config

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

var (
	ErrUnknownSetting = errors.New("unknown setting")
	ErrNoPolicy       = errors.New("no day/night policy loaded")
)

// Settings that can be read and changed one at a time over HTTP.
const (
	SettingDayHour         = "day_hour"
	SettingDayBrightness   = "day_brightness"
	SettingNightHour       = "night_hour"
	SettingNightBrightness = "night_brightness"
	SettingEnabled         = "enabled"
)

var settingNames = []string{
	SettingDayHour, SettingDayBrightness, SettingNightHour, SettingNightBrightness, SettingEnabled,
}

// DayNightStore holds the day/night policy record that can be modified at
// runtime, either through the settings API or by reloading the config file.
type DayNightStore struct {
	mu     sync.RWMutex
	cfg    DayNightConfig
	loaded bool
}

func NewDayNightStore(cfg DayNightConfig) *DayNightStore {
	return &DayNightStore{cfg: cfg, loaded: true}
}

// Policy returns a copy of the current record. It fails with ErrNoPolicy when
// the store has been cleared.
func (s *DayNightStore) Policy() (DayNightConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return DayNightConfig{}, ErrNoPolicy
	}
	return s.cfg, nil
}

func (s *DayNightStore) Set(cfg DayNightConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.loaded = true
}

// Clear drops the record; readers treat this like a disabled policy.
func (s *DayNightStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = DayNightConfig{}
	s.loaded = false
}

// Setting returns the current value of a single named setting.
func (s *DayNightStore) Setting(name string) (int, error) {
	cfg, err := s.Policy()
	if err != nil {
		return 0, err
	}
	switch name {
	case SettingDayHour:
		return cfg.DayHour, nil
	case SettingDayBrightness:
		return cfg.DayBrightness, nil
	case SettingNightHour:
		return cfg.NightHour, nil
	case SettingNightBrightness:
		return cfg.NightBrightness, nil
	case SettingEnabled:
		if cfg.Enabled {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w %q, valid settings are %v", ErrUnknownSetting, name, settingNames)
}

// ChangeSetting parses value as a byte, clamps it to the range of the named
// setting and stores it. It returns the previous and the stored value.
func (s *DayNightStore) ChangeSetting(name, value string) (int, int, error) {
	parsed, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("setting %s: %q is not a number between 0 and 255", name, value)
	}
	v := int(parsed)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return 0, 0, ErrNoPolicy
	}

	var old int
	switch name {
	case SettingDayHour:
		old, v = s.cfg.DayHour, min(v, 24)
		s.cfg.DayHour = v
	case SettingDayBrightness:
		old = s.cfg.DayBrightness
		s.cfg.DayBrightness = v
	case SettingNightHour:
		old, v = s.cfg.NightHour, min(v, 24)
		s.cfg.NightHour = v
	case SettingNightBrightness:
		old = s.cfg.NightBrightness
		s.cfg.NightBrightness = v
	case SettingEnabled:
		if s.cfg.Enabled {
			old = 1
		}
		v = min(v, 1)
		s.cfg.Enabled = v != 0
	default:
		return 0, 0, fmt.Errorf("%w %q, valid settings are %v", ErrUnknownSetting, name, settingNames)
	}
	return old, v, nil
}
