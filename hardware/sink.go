package hardware

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/config"
)

var ErrUnknownChannel = errors.New("unknown channel")

// Sink is the pixel output device. Only the render coordinator calls it.
type Sink interface {
	// Start opens the device. It must be called before anything else.
	Start() error
	Channels() []Channel
	// WriteFrame stages pixels for channel. Surplus pixels are ignored and
	// missing ones keep their previous value.
	WriteFrame(channel int, pixels []uint32) error
	SetBrightness(channel int, level uint8) error
	// Render pushes all staged channels to the LEDs.
	Render() error
	Close() error
}

// Channel is one physical strip.
type Channel struct {
	Index        int
	LedCount     int
	Pin          int
	Order        string
	StripType    string
	Reverse      bool
	SpiMultiplex string
}

// ChannelsFromConfig resolves the channel table in configuration order.
func ChannelsFromConfig(hw config.HardwareConfig) []Channel {
	channels := make([]Channel, 0, len(hw.Channels))
	for _, ch := range hw.Channels {
		channels = append(channels, Channel{
			Index:        ch.Index,
			LedCount:     ch.LedCount,
			Pin:          ch.Pin,
			Order:        ch.Order,
			StripType:    ch.StripType,
			Reverse:      ch.Reverse,
			SpiMultiplex: ch.SpiMultiplex,
		})
	}
	return channels
}

// New builds the sink selected by cfg.Hardware.Sink. ossignal is handed to
// the terminal simulation so that it can request a shutdown or reload;
// commands receives its keyboard controls.
func New(cfg *config.Config, ossignal chan os.Signal, commands chan<- animation.Command) (Sink, error) {
	channels := ChannelsFromConfig(cfg.Hardware)
	switch cfg.Hardware.Sink {
	case config.SinkMemory:
		return NewMemorySink(channels), nil
	case config.SinkTUI:
		return NewTUISink(channels, ossignal, commands), nil
	case config.SinkSPI:
		sink, err := NewSPISink(cfg.Hardware, channels)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case config.SinkWS281x:
		return NewWS281xSink(cfg.Hardware, channels)
	}
	return nil, fmt.Errorf("unknown sink %q", cfg.Hardware.Sink)
}

// pixelBuffer keeps the staged pixels and brightness of every channel. All
// sinks embed it and only differ in how Render transports the buffer.
type pixelBuffer struct {
	mu         sync.Mutex
	channels   []Channel
	position   map[int]int
	pixels     [][]uint32
	brightness []uint8
}

func newPixelBuffer(channels []Channel) *pixelBuffer {
	b := &pixelBuffer{
		channels:   channels,
		position:   make(map[int]int, len(channels)),
		pixels:     make([][]uint32, len(channels)),
		brightness: make([]uint8, len(channels)),
	}
	for i, ch := range channels {
		b.position[ch.Index] = i
		b.pixels[i] = make([]uint32, ch.LedCount)
		b.brightness[i] = 255
	}
	return b
}

func (b *pixelBuffer) Channels() []Channel {
	return b.channels
}

func (b *pixelBuffer) WriteFrame(channel int, pixels []uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.position[channel]
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownChannel, channel)
	}
	dst := b.pixels[pos]
	if !b.channels[pos].Reverse {
		copy(dst, pixels)
		return nil
	}
	// the strip is mounted backwards, pixel 0 is the last LED
	n := min(len(dst), len(pixels))
	for i := 0; i < n; i++ {
		dst[len(dst)-1-i] = pixels[i]
	}
	return nil
}

func (b *pixelBuffer) SetBrightness(channel int, level uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.position[channel]
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownChannel, channel)
	}
	b.brightness[pos] = level
	return nil
}

// snapshot copies the current state of all channels.
func (b *pixelBuffer) snapshot() ([][]uint32, []uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pixels := make([][]uint32, len(b.pixels))
	for i, p := range b.pixels {
		pixels[i] = append([]uint32(nil), p...)
	}
	return pixels, append([]uint8(nil), b.brightness...)
}
