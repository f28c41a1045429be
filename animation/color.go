package animation

import (
	"fmt"
	"strconv"
	"strings"
)

// RGB is an unpacked pixel value.
type RGB struct {
	Red   byte
	Green byte
	Blue  byte
}

// Unpack splits a packed 24 bit value; anything above bit 23 is ignored.
func Unpack(value uint32) RGB {
	return RGB{
		Red:   byte(value >> 16),
		Green: byte(value >> 8),
		Blue:  byte(value),
	}
}

func (c RGB) Pack() uint32 {
	return uint32(c.Red)<<16 | uint32(c.Green)<<8 | uint32(c.Blue)
}

// True if all components are zero, false otherwise
func (c RGB) IsEmpty() bool {
	return c.Red == 0 && c.Green == 0 && c.Blue == 0
}

// Scale multiplies every component with level/255.
func (c RGB) Scale(level uint8) RGB {
	if level == 255 {
		return c
	}
	return RGB{
		Red:   byte(uint16(c.Red) * uint16(level) / 255),
		Green: byte(uint16(c.Green) * uint16(level) / 255),
		Blue:  byte(uint16(c.Blue) * uint16(level) / 255),
	}
}

// Order returns the three components in the given wire order, e.g. "GRB".
func (c RGB) Order(order string) ([3]byte, error) {
	var out [3]byte
	if len(order) != 3 {
		return out, fmt.Errorf("invalid colour order %q", order)
	}
	seen := 0
	for i, ch := range strings.ToUpper(order) {
		switch ch {
		case 'R':
			out[i] = c.Red
			seen |= 1
		case 'G':
			out[i] = c.Green
			seen |= 2
		case 'B':
			out[i] = c.Blue
			seen |= 4
		default:
			return out, fmt.Errorf("invalid colour order %q", order)
		}
	}
	if seen != 7 {
		return out, fmt.Errorf("invalid colour order %q", order)
	}
	return out, nil
}

// ParseHexColor parses "#rrggbb" into a packed value.
func ParseHexColor(hex string) (uint32, error) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, fmt.Errorf("colour %q is not of the form #rrggbb", hex)
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("colour %q: %w", hex, err)
	}
	return uint32(v), nil
}
