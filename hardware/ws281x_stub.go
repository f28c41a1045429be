//go:build !ws281x

package hardware

import (
	"errors"

	"github.com/newmanjoel/Lights/config"
)

// NewWS281xSink is a placeholder for builds without the ws281x tag, which
// needs cgo and the native rpi_ws281x library.
func NewWS281xSink(config.HardwareConfig, []Channel) (Sink, error) {
	return nil, errors.New("ws281x support not compiled in, rebuild with -tags ws281x")
}
