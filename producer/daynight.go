package producer

import (
	"log/slog"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/config"
	"github.com/newmanjoel/Lights/controller"
	"github.com/newmanjoel/Lights/util"
)

const DefaultPolicyInterval = 10 * time.Second

// PolicySource hands out the current day/night record. An error means
// there is no record, which disables the policy for that tick.
type PolicySource interface {
	Policy() (config.DayNightConfig, error)
}

// DayNight switches the brightness between a day and a night level
// depending on the hour of the day.
type DayNight struct {
	source   PolicySource
	state    *util.Snapshot[controller.LiveState]
	cmds     chan<- animation.Command
	shutdown *util.Shutdown
	now      func() time.Time
}

func NewDayNight(source PolicySource, state *util.Snapshot[controller.LiveState], cmds chan<- animation.Command, shutdown *util.Shutdown) *DayNight {
	return &DayNight{
		source:   source,
		state:    state,
		cmds:     cmds,
		shutdown: shutdown,
		now:      time.Now,
	}
}

// Run checks the policy once per interval until shutdown. The interval is
// taken from the record on every tick.
func (d *DayNight) Run() {
	slog.Info("Day/night policy loop started")
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-d.shutdown.Done():
			slog.Info("Day/night policy loop stopped")
			return
		case <-timer.C:
			timer.Reset(d.tick())
		}
	}
}

// tick sends at most one SetBrightness and returns the time to wait until
// the next tick.
func (d *DayNight) tick() time.Duration {
	policy, err := d.source.Policy()
	if err != nil {
		slog.Debug("No day/night policy, skipping", "error", err)
		return DefaultPolicyInterval
	}
	interval := policy.Interval
	if interval <= 0 {
		interval = DefaultPolicyInterval
	}
	if !policy.Enabled {
		return interval
	}

	desired, ok := DesiredBrightness(policy, d.now())
	if !ok || desired == d.state.Load().Brightness {
		return interval
	}
	slog.Info("Day/night policy changes brightness", "brightness", desired)
	select {
	case d.cmds <- animation.SetBrightness{Level: desired}:
	case <-d.shutdown.Done():
	}
	return interval
}

// DesiredBrightness applies the policy to t. Before and at DayHour there is
// no opinion, after DayHour it is the day level, after NightHour the night
// level. The boundary hours keep the previous period's level.
func DesiredBrightness(policy config.DayNightConfig, t time.Time) (uint8, bool) {
	dayHour, nightHour := policy.DayHour, policy.NightHour
	if policy.UseSun {
		dayHour, nightHour = sunHours(policy.Latitude, policy.Longitude, t)
	}
	hour := t.Hour()
	switch {
	case hour > nightHour:
		return uint8(policy.NightBrightness), true
	case hour > dayHour:
		return uint8(policy.DayBrightness), true
	}
	return 0, false
}

// sunHours returns the local hours of today's sunrise and sunset. Polar
// day and night have no sunrise and fall back to the whole day being day.
func sunHours(latitude, longitude float64, t time.Time) (int, int) {
	rise, set := sunrise.SunriseSunset(latitude, longitude, t.Year(), t.Month(), t.Day())
	if rise.IsZero() || set.IsZero() {
		return -1, 24
	}
	return rise.In(t.Location()).Hour(), set.In(t.Location()).Hour()
}
