package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/hardware"
	"github.com/newmanjoel/Lights/util"
)

var ErrCommandsClosed = errors.New("command channel closed")

const DefaultPollWindow = time.Millisecond

type Options struct {
	// PollWindow bounds the wait for a command in every iteration.
	PollWindow time.Duration
	// MaxBrightness caps the level sent to the sink, zero means no cap.
	MaxBrightness uint8
	// Initial is shown until the first SetAnimation. Without frames a white
	// single frame animation sized to the sink is used.
	Initial animation.Animation
}

// Coordinator is the render loop. It is the only user of the sink and the
// only writer of the live state.
type Coordinator struct {
	sink     hardware.Sink
	cmds     <-chan animation.Command
	state    *util.Snapshot[LiveState]
	shutdown *util.Shutdown
	opts     Options

	working animation.Animation
	index   int
	period  time.Duration
	live    LiveState
}

func New(sink hardware.Sink, cmds <-chan animation.Command, state *util.Snapshot[LiveState], shutdown *util.Shutdown, opts Options) *Coordinator {
	if opts.PollWindow <= 0 {
		opts.PollWindow = DefaultPollWindow
	}
	if opts.MaxBrightness == 0 {
		opts.MaxBrightness = 255
	}
	c := &Coordinator{
		sink:     sink,
		cmds:     cmds,
		state:    state,
		shutdown: shutdown,
		opts:     opts,
		live:     state.Load(),
	}
	initial := opts.Initial
	if initial.Validate() != nil {
		initial = animation.Default(totalLeds(sink.Channels()))
	}
	c.working = initial
	c.period = time.Second
	c.setPeriod(initial.SpeedFPS)
	return c
}

// setPeriod switches to the frame period of fps. An unusable rate keeps
// the current period and reports false.
func (c *Coordinator) setPeriod(fps float64) bool {
	period, err := animation.FramePeriod(fps)
	if err != nil {
		slog.Warn("Keeping frame period", "period", c.period, "error", err)
		return false
	}
	c.period = period
	return true
}

func totalLeds(channels []hardware.Channel) int {
	total := 0
	for _, ch := range channels {
		total += ch.LedCount
	}
	return total
}

// Run renders until the shutdown signal is set, the command channel is
// closed or the sink fails. Only the last two return an error. The
// brightness found in the live state is applied to the sink first.
func (c *Coordinator) Run() error {
	slog.Info("Render loop started", "animation", c.working.Name, "fps", c.working.SpeedFPS, "period", c.period)
	if err := c.applyBrightness(c.live.Brightness); err != nil {
		return err
	}

	poll := time.NewTimer(c.opts.PollWindow)
	defer poll.Stop()
	sleep := time.NewTimer(c.period)
	defer sleep.Stop()

	for {
		if c.shutdown.IsSet() {
			slog.Info("Render loop stopped")
			return nil
		}

		poll.Reset(c.opts.PollWindow)
		select {
		case cmd, ok := <-c.cmds:
			if !ok {
				slog.Error("Command channel closed, stopping render loop")
				c.shutdown.Trigger()
				return ErrCommandsClosed
			}
			if err := c.apply(cmd); err != nil {
				return err
			}
		case <-poll.C:
		}

		if err := c.tick(); err != nil {
			return err
		}

		sleep.Reset(c.period)
		select {
		case <-sleep.C:
		case <-c.shutdown.Done():
		}
	}
}

// apply changes the working state for one command. Invalid commands are
// logged and dropped; only a failing sink returns an error.
func (c *Coordinator) apply(cmd animation.Command) error {
	if err := cmd.Validate(); err != nil {
		slog.Warn("Discarding invalid command", "command", cmd.String(), "error", err)
		return nil
	}
	slog.Debug("Applying command", "command", cmd.String())

	switch cmd := cmd.(type) {
	case animation.SetAnimation:
		if !c.setPeriod(cmd.Animation.SpeedFPS) {
			return nil
		}
		c.working = cmd.Animation
		c.index = 0
		c.live.AnimationID = cmd.Animation.ID
		c.live.AnimationName = cmd.Animation.Name
		c.live.FrameIndex = 0
		c.live.FrameCount = len(cmd.Animation.Frames)
		c.live.SpeedFPS = cmd.Animation.SpeedFPS
		c.state.Publish(c.live)
		slog.Info("Animation changed", "animation_id", cmd.Animation.ID, "name", cmd.Animation.Name, "fps", cmd.Animation.SpeedFPS, "frames", len(cmd.Animation.Frames))
	case animation.SetBrightness:
		return c.applyBrightness(cmd.Level)
	case animation.SetSpeed:
		if !c.setPeriod(cmd.FPS) {
			return nil
		}
		c.working.SpeedFPS = cmd.FPS
		c.live.SpeedFPS = cmd.FPS
		c.state.Publish(c.live)
		slog.Info("Speed changed", "fps", cmd.FPS, "period", c.period)
	default:
		slog.Warn("Discarding unknown command", "command", cmd.String())
	}
	return nil
}

func (c *Coordinator) applyBrightness(level uint8) error {
	applied := min(level, c.opts.MaxBrightness)
	for _, ch := range c.sink.Channels() {
		if err := c.sink.SetBrightness(ch.Index, applied); err != nil {
			return fmt.Errorf("set brightness on channel %d: %w", ch.Index, err)
		}
	}
	c.live.Brightness = level
	c.state.Publish(c.live)
	slog.Debug("Brightness changed", "brightness", level, "applied", applied)
	return nil
}

// tick renders the current frame, then advances and publishes the index.
func (c *Coordinator) tick() error {
	frame := c.working.Frames[c.index]
	offset := 0
	for _, ch := range c.sink.Channels() {
		var pixels []uint32
		if offset < len(frame.Pixels) {
			pixels = frame.Pixels[offset:min(offset+ch.LedCount, len(frame.Pixels))]
		}
		if err := c.sink.WriteFrame(ch.Index, pixels); err != nil {
			return fmt.Errorf("write frame to channel %d: %w", ch.Index, err)
		}
		offset += ch.LedCount
	}
	if err := c.sink.Render(); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	c.index = (c.index + 1) % len(c.working.Frames)
	c.live.FrameIndex = c.index
	c.state.Publish(c.live)
	return nil
}
