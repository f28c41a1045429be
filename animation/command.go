package animation

import "fmt"

// Command is a control intent sent by a producer to the render loop.
type Command interface {
	commandMarker()
	Validate() error
	String() string
}

// SetBrightness changes the global brightness of every channel.
type SetBrightness struct {
	Level uint8
}

func (SetBrightness) commandMarker()   {}
func (SetBrightness) Validate() error  { return nil }
func (c SetBrightness) String() string { return fmt.Sprintf("SetBrightness(level=%d)", c.Level) }

// SetAnimation replaces the whole playback state.
type SetAnimation struct {
	Animation Animation
}

func (SetAnimation) commandMarker()    {}
func (c SetAnimation) Validate() error { return c.Animation.Validate() }
func (c SetAnimation) String() string {
	return fmt.Sprintf("SetAnimation(id=%d, name=%q, fps=%.2f, frames=%d)",
		c.Animation.ID, c.Animation.Name, c.Animation.SpeedFPS, len(c.Animation.Frames))
}

// SetSpeed changes the playback rate of the running animation only.
type SetSpeed struct {
	FPS float64
}

func (SetSpeed) commandMarker()    {}
func (c SetSpeed) Validate() error { return ValidateSpeed(c.FPS) }
func (c SetSpeed) String() string  { return fmt.Sprintf("SetSpeed(fps=%.3f)", c.FPS) }
