package animation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFramePeriod(t *testing.T) {
	tests := []struct {
		fps  float64
		want time.Duration
	}{
		{1.5, 666 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{24, 41 * time.Millisecond},
		{10, 100 * time.Millisecond},
		{5000, time.Millisecond},
		{0.25, 4 * time.Second},
	}
	for _, tt := range tests {
		got, err := FramePeriod(tt.fps)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got, "fps %v", tt.fps)
	}
}

func TestFramePeriod_Invalid(t *testing.T) {
	for _, fps := range []float64{0, -1, math.NaN(), math.Inf(1), 1e-10, 1e-300, MinSpeed / 2} {
		period, err := FramePeriod(fps)
		assert.ErrorIs(t, err, ErrInvalidSpeed, "fps %v", fps)
		assert.Zero(t, period)
		assert.ErrorIs(t, SetSpeed{FPS: fps}.Validate(), ErrInvalidSpeed, "fps %v", fps)
	}
}

func TestFramePeriod_SlowestSpeed(t *testing.T) {
	period, err := FramePeriod(MinSpeed)
	assert.NoError(t, err)
	assert.Positive(t, period)
	assert.LessOrEqual(t, period, MaxFramePeriod)
	assert.GreaterOrEqual(t, period, MaxFramePeriod-time.Millisecond)
}

func TestValidate(t *testing.T) {
	a := Animation{ID: 1, Name: "empty", SpeedFPS: 24}
	assert.ErrorIs(t, a.Validate(), ErrNoFrames)

	a.Frames = []Frame{{Pixels: []uint32{1}}}
	assert.NoError(t, a.Validate())

	a.SpeedFPS = 0
	assert.ErrorIs(t, a.Validate(), ErrInvalidSpeed)
}

func TestDefault(t *testing.T) {
	a := Default(5)
	assert.Equal(t, TransientID, a.ID)
	assert.Equal(t, 1.5, a.SpeedFPS)
	assert.Len(t, a.Frames, 1)
	assert.Equal(t, []uint32{0xFFFFFF, 0xFFFFFF, 0xFFFFFF, 0xFFFFFF, 0xFFFFFF}, a.Frames[0].Pixels)
	assert.NoError(t, a.Validate())
}

func TestUnpackPack(t *testing.T) {
	c := Unpack(0x12AB34)
	assert.Equal(t, RGB{Red: 0x12, Green: 0xAB, Blue: 0x34}, c)
	assert.Equal(t, uint32(0x12AB34), c.Pack())

	// upper byte is not part of the colour
	assert.Equal(t, RGB{Red: 0xFF}, Unpack(0xABFF0000))
}

func TestScale(t *testing.T) {
	c := RGB{Red: 255, Green: 100, Blue: 0}
	assert.Equal(t, c, c.Scale(255))
	assert.Equal(t, RGB{}, c.Scale(0))
	assert.Equal(t, RGB{Red: 127, Green: 49, Blue: 0}, c.Scale(127))
}

func TestOrder(t *testing.T) {
	c := RGB{Red: 1, Green: 2, Blue: 3}

	got, err := c.Order("GRB")
	assert.NoError(t, err)
	assert.Equal(t, [3]byte{2, 1, 3}, got)

	got, err = c.Order("bgr")
	assert.NoError(t, err)
	assert.Equal(t, [3]byte{3, 2, 1}, got)

	_, err = c.Order("RRB")
	assert.Error(t, err)
	_, err = c.Order("RGBW")
	assert.Error(t, err)
}

func TestParseHexColor(t *testing.T) {
	v, err := ParseHexColor("#ff8000")
	assert.NoError(t, err)
	assert.Equal(t, uint32(0xFF8000), v)

	for _, bad := range []string{"ff8000", "#ff80", "#gg0000", ""} {
		_, err := ParseHexColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestCommandValidate(t *testing.T) {
	assert.NoError(t, SetBrightness{Level: 0}.Validate())
	assert.ErrorIs(t, SetSpeed{FPS: 0}.Validate(), ErrInvalidSpeed)
	assert.ErrorIs(t, SetSpeed{FPS: -3}.Validate(), ErrInvalidSpeed)
	assert.NoError(t, SetSpeed{FPS: 10}.Validate())
	assert.ErrorIs(t, SetAnimation{Animation: Animation{SpeedFPS: 1}}.Validate(), ErrNoFrames)
	assert.Contains(t, SetAnimation{Animation: Default(2)}.String(), "frames=1")
}
