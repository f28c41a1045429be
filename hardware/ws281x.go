//go:build ws281x

package hardware

import (
	"fmt"
	"log/slog"

	ws2811 "github.com/rpi-ws281x/rpi-ws281x-go"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/config"
)

var stripTypes = map[string]int{
	"RGB": ws2811.WS2811StripRGB,
	"RBG": ws2811.WS2811StripRBG,
	"GRB": ws2811.WS2811StripGRB,
	"GBR": ws2811.WS2811StripGBR,
	"BRG": ws2811.WS2811StripBRG,
	"BGR": ws2811.WS2811StripBGR,
}

// WS281xSink drives up to two WS281x strips through the PWM/DMA engine of
// the Raspberry Pi. Brightness changes are applied in software so the
// hardware brightness stays at full scale.
type WS281xSink struct {
	*pixelBuffer
	hw  config.HardwareConfig
	dev *ws2811.WS2811
}

func NewWS281xSink(hw config.HardwareConfig, channels []Channel) (Sink, error) {
	if len(channels) > 2 {
		return nil, fmt.Errorf("ws281x supports at most 2 channels, got %d", len(channels))
	}
	for _, ch := range channels {
		if ch.Index > 1 {
			return nil, fmt.Errorf("ws281x channel index must be 0 or 1, got %d", ch.Index)
		}
		if _, ok := stripTypes[ch.StripType]; !ok && ch.StripType != "" {
			return nil, fmt.Errorf("ws281x channel %d: unknown strip type %q", ch.Index, ch.StripType)
		}
	}
	return &WS281xSink{pixelBuffer: newPixelBuffer(channels), hw: hw}, nil
}

func (s *WS281xSink) Start() error {
	if !isRoot() {
		return fmt.Errorf("ws281x needs root to access /dev/mem")
	}
	opt := ws2811.DefaultOptions
	opt.Frequency = s.hw.Frequency
	opt.DmaNum = s.hw.DMA
	// DefaultOptions carries a single channel, an unused second one stays empty
	opt.Channels = []ws2811.ChannelOption{opt.Channels[0], {}}
	opt.Channels[0].LedCount = 0
	for _, ch := range s.channels {
		opt.Channels[ch.Index].GpioPin = ch.Pin
		opt.Channels[ch.Index].LedCount = ch.LedCount
		opt.Channels[ch.Index].Brightness = 255
		if st, ok := stripTypes[ch.StripType]; ok {
			opt.Channels[ch.Index].StripeType = st
		}
	}

	dev, err := ws2811.MakeWS2811(&opt)
	if err != nil {
		return fmt.Errorf("failed to create ws281x device: %w", err)
	}
	if err := dev.Init(); err != nil {
		return fmt.Errorf("failed to init ws281x device: %w", err)
	}
	s.dev = dev
	slog.Info("ws281x initialised", "channels", len(s.channels), "frequency", s.hw.Frequency, "dma", s.hw.DMA)
	return nil
}

func (s *WS281xSink) Render() error {
	if s.dev == nil {
		return ErrNotStarted
	}
	pixels, brightness := s.snapshot()
	for i, ch := range s.channels {
		leds := s.dev.Leds(ch.Index)
		n := min(len(leds), len(pixels[i]))
		for j := 0; j < n; j++ {
			leds[j] = animation.Unpack(pixels[i][j]).Scale(brightness[i]).Pack()
		}
	}
	if err := s.dev.Render(); err != nil {
		return fmt.Errorf("ws281x render: %w", err)
	}
	return s.dev.Wait()
}

func (s *WS281xSink) Close() error {
	if s.dev == nil {
		return nil
	}
	for _, ch := range s.channels {
		clear(s.dev.Leds(ch.Index))
	}
	err := s.dev.Render()
	s.dev.Fini()
	s.dev = nil
	return err
}
