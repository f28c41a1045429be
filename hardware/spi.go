package hardware

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/config"
)

// exchangeFunc selects the chip for multiplex and clocks data out on SPI.
type exchangeFunc func(multiplex string, data []byte)

// SPISink drives APA102 or WS2801 strips over the SPI bus of a Raspberry
// Pi. Several strips can share the bus through GPIO chip select lines.
type SPISink struct {
	*pixelBuffer
	hw              config.HardwareConfig
	encoder         ledEncoder
	exchange        exchangeFunc
	spiMutex        sync.Mutex
	spimultiplexcfg map[string]gpiocfg
	started         bool
}

type gpiocfg struct {
	low  []rpio.Pin
	high []rpio.Pin
}

func NewSPISink(hw config.HardwareConfig, channels []Channel) (*SPISink, error) {
	s := &SPISink{
		pixelBuffer: newPixelBuffer(channels),
		hw:          hw,
	}
	switch hw.LEDType {
	case "APA102":
		s.encoder = &apa102Encoder{correction: hw.ColorCorrection}
	case "WS2801":
		s.encoder = &ws2801Encoder{correction: hw.ColorCorrection}
	default:
		return nil, fmt.Errorf("unknown LED type: %s", hw.LEDType)
	}
	s.exchange = s.spiExchangeMultiplex
	return s, nil
}

func (s *SPISink) Start() error {
	if !isRoot() {
		slog.Warn("Not running as root, GPIO access may fail")
	}
	slog.Info("Initialise GPIO and Spi...", "frequency", s.hw.SPIFrequency, "ledtype", s.hw.LEDType)
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return fmt.Errorf("failed to begin spi: %w", err)
	}
	rpio.SpiSpeed(s.hw.SPIFrequency)

	s.spimultiplexcfg = make(map[string]gpiocfg, len(s.hw.SpiMultiplexGPIO))
	for key, cfg := range s.hw.SpiMultiplexGPIO {
		low := make([]rpio.Pin, 0, len(cfg.Low))
		high := make([]rpio.Pin, 0, len(cfg.High))
		for _, pin := range cfg.Low {
			rpiopin := rpio.Pin(pin)
			rpiopin.Output()
			low = append(low, rpiopin)
		}
		for _, pin := range cfg.High {
			rpiopin := rpio.Pin(pin)
			rpiopin.Output()
			high = append(high, rpiopin)
		}
		s.spimultiplexcfg[key] = gpiocfg{low: low, high: high}
	}
	s.started = true
	return nil
}

func (s *SPISink) Render() error {
	if !s.started {
		return ErrNotStarted
	}
	pixels, brightness := s.snapshot()
	for i, ch := range s.channels {
		data, err := s.encoder.encode(pixels[i], brightness[i], ch.Order)
		if err != nil {
			return fmt.Errorf("channel %d: %w", ch.Index, err)
		}
		s.exchange(ch.SpiMultiplex, data)
	}
	return nil
}

func (s *SPISink) Close() error {
	if !s.started {
		return nil
	}
	s.started = false
	rpio.SpiEnd(rpio.Spi0)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("error closing rpio: %w", err)
	}
	return nil
}

func (s *SPISink) spiExchangeMultiplex(index string, data []byte) {
	s.spiMutex.Lock()
	defer s.spiMutex.Unlock()

	if index != "" {
		cfg := s.spimultiplexcfg[index]
		for _, pin := range cfg.low {
			pin.Low()
		}
		for _, pin := range cfg.high {
			pin.High()
		}
		time.Sleep(100 * time.Microsecond)
	}
	rpio.SpiExchange(data)
}

type ledEncoder interface {
	encode(pixels []uint32, brightness uint8, order string) ([]byte, error)
}

func corrected(value byte, factor float64) byte {
	return byte(math.Min(float64(value)*factor, 255))
}

type ws2801Encoder struct {
	correction []float64
	buffer     []byte
}

// WS2801 has no global brightness, so the colour values are scaled.
func (e *ws2801Encoder) encode(pixels []uint32, brightness uint8, order string) ([]byte, error) {
	size := 3 * len(pixels)
	if cap(e.buffer) < size {
		e.buffer = make([]byte, size)
	}
	display := e.buffer[:size]
	for idx, p := range pixels {
		c := animation.Unpack(p).Scale(brightness)
		c = animation.RGB{
			Red:   corrected(c.Red, e.correction[0]),
			Green: corrected(c.Green, e.correction[1]),
			Blue:  corrected(c.Blue, e.correction[2]),
		}
		wire, err := c.Order(order)
		if err != nil {
			return nil, err
		}
		copy(display[3*idx:], wire[:])
	}
	return display, nil
}

type apa102Encoder struct {
	correction []float64
	buffer     []byte
}

// APA102 frames: 4 zero bytes, then per LED a 5 bit global brightness
// followed by blue, green, red, then len/16+1 bytes of 0xFF.
func (e *apa102Encoder) encode(pixels []uint32, brightness uint8, _ string) ([]byte, error) {
	frameEndLength := (len(pixels) / 16) + 1
	size := 4 + (4 * len(pixels)) + frameEndLength
	if cap(e.buffer) < size {
		e.buffer = make([]byte, size)
	}
	display := e.buffer[:size]

	copy(display[0:4], []byte{0x00, 0x00, 0x00, 0x00})
	global := (brightness >> 3) | 0xE0

	offset := 4
	for _, p := range pixels {
		c := animation.Unpack(p)
		display[offset] = global
		display[offset+1] = corrected(c.Blue, e.correction[2])
		display[offset+2] = corrected(c.Green, e.correction[1])
		display[offset+3] = corrected(c.Red, e.correction[0])
		offset += 4
	}
	for i := offset; i < size; i++ {
		display[i] = 0xFF
	}
	return display, nil
}
