package animation

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TransientID marks an animation that does not come from the library.
const TransientID = -1

const (
	DefaultSpeed = 1.5
	DefaultColor = 0xFFFFFF

	// MaxFramePeriod is the longest pause between two frames. MinSpeed is
	// the frame rate that produces it.
	MaxFramePeriod = time.Hour
	MinSpeed       = float64(time.Second) / float64(MaxFramePeriod)
)

var (
	ErrNoFrames     = errors.New("animation has no frames")
	ErrInvalidSpeed = errors.New("speed must be a finite number of at least one frame per hour")
)

// Frame holds one packed 0xRRGGBB value per physical LED, in strip order.
type Frame struct {
	Pixels []uint32
}

type Animation struct {
	ID       int
	Name     string
	SpeedFPS float64
	Frames   []Frame
}

// Validate reports whether the animation may become the working animation
// of the render loop.
func (a Animation) Validate() error {
	if len(a.Frames) == 0 {
		return fmt.Errorf("animation %d (%q): %w", a.ID, a.Name, ErrNoFrames)
	}
	if err := ValidateSpeed(a.SpeedFPS); err != nil {
		return fmt.Errorf("animation %d (%q): %w", a.ID, a.Name, err)
	}
	return nil
}

func ValidateSpeed(fps float64) error {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps < MinSpeed {
		return fmt.Errorf("%w, got %v", ErrInvalidSpeed, fps)
	}
	return nil
}

// FramePeriod converts a frame rate into the pause between two frames.
// The period is truncated to whole milliseconds and lies between 1ms and
// MaxFramePeriod.
func FramePeriod(fps float64) (time.Duration, error) {
	if err := ValidateSpeed(fps); err != nil {
		return 0, err
	}
	millis := math.Floor(1000 / fps)
	millis = min(max(millis, 1), float64(MaxFramePeriod/time.Millisecond))
	return time.Duration(millis) * time.Millisecond, nil
}

// SingleColor builds a transient one-frame animation with all count pixels
// set to color.
func SingleColor(name string, color uint32, count int, fps float64) Animation {
	pixels := make([]uint32, count)
	for i := range pixels {
		pixels[i] = color & 0xFFFFFF
	}
	return Animation{
		ID:       TransientID,
		Name:     name,
		SpeedFPS: fps,
		Frames:   []Frame{{Pixels: pixels}},
	}
}

// Default is the animation shown before any command arrived.
func Default(count int) Animation {
	return SingleColor("default", DefaultColor, count, DefaultSpeed)
}

// PixelCount returns the length of the longest frame.
func (a Animation) PixelCount() int {
	n := 0
	for _, f := range a.Frames {
		n = max(n, len(f.Pixels))
	}
	return n
}
