package hardware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newmanjoel/Lights/config"
)

func twoChannels() []Channel {
	return []Channel{
		{Index: 0, LedCount: 4, Order: "RGB"},
		{Index: 1, LedCount: 3, Order: "GRB", Reverse: true},
	}
}

func TestChannelsFromConfig(t *testing.T) {
	hw := config.Default().Hardware
	hw.Channels = []config.ChannelConfig{
		{Index: 1, Pin: 13, LedCount: 10, Order: "GRB", Reverse: true, SpiMultiplex: "b"},
		{Index: 0, Pin: 12, LedCount: 5, Order: "RGB"},
	}
	channels := ChannelsFromConfig(hw)
	require.Len(t, channels, 2)
	assert.Equal(t, Channel{Index: 1, Pin: 13, LedCount: 10, Order: "GRB", Reverse: true, SpiMultiplex: "b"}, channels[0], "configuration order is kept")
	assert.Equal(t, 0, channels[1].Index)
}

func TestPixelBuffer_ZipToShorter(t *testing.T) {
	b := newPixelBuffer(twoChannels())

	require.NoError(t, b.WriteFrame(0, []uint32{1, 2, 3, 4}))
	require.NoError(t, b.WriteFrame(0, []uint32{9, 8}))
	pixels, _ := b.snapshot()
	assert.Equal(t, []uint32{9, 8, 3, 4}, pixels[0], "trailing pixels keep their previous value")

	require.NoError(t, b.WriteFrame(0, []uint32{5, 6, 7, 8, 9, 10}))
	pixels, _ = b.snapshot()
	assert.Equal(t, []uint32{5, 6, 7, 8}, pixels[0], "surplus pixels are ignored")
}

func TestPixelBuffer_Reverse(t *testing.T) {
	b := newPixelBuffer(twoChannels())

	require.NoError(t, b.WriteFrame(1, []uint32{1, 2, 3}))
	pixels, _ := b.snapshot()
	assert.Equal(t, []uint32{3, 2, 1}, pixels[1])

	require.NoError(t, b.WriteFrame(1, []uint32{7}))
	pixels, _ = b.snapshot()
	assert.Equal(t, []uint32{3, 2, 7}, pixels[1])
}

func TestPixelBuffer_UnknownChannel(t *testing.T) {
	b := newPixelBuffer(twoChannels())
	assert.True(t, errors.Is(b.WriteFrame(5, nil), ErrUnknownChannel))
	assert.True(t, errors.Is(b.SetBrightness(5, 1), ErrUnknownChannel))
}

func TestPixelBuffer_SnapshotIsACopy(t *testing.T) {
	b := newPixelBuffer(twoChannels())
	require.NoError(t, b.SetBrightness(0, 42))
	pixels, brightness := b.snapshot()
	assert.Equal(t, []uint8{42, 255}, brightness)

	pixels[0][0] = 99
	brightness[0] = 1
	again, brightnessAgain := b.snapshot()
	assert.Equal(t, uint32(0), again[0][0])
	assert.Equal(t, uint8(42), brightnessAgain[0])
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	cfg.Hardware.Sink = config.SinkMemory
	sink, err := New(&cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemorySink{}, sink)
	assert.Len(t, sink.Channels(), 1)

	cfg.Hardware.Sink = config.SinkSPI
	cfg.Hardware.LEDType = "APA102"
	sink, err = New(&cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &SPISink{}, sink)

	cfg.Hardware.LEDType = "LPD8806"
	_, err = New(&cfg, nil, nil)
	assert.Error(t, err)

	cfg.Hardware.Sink = "laser"
	_, err = New(&cfg, nil, nil)
	assert.Error(t, err)
}

func TestMemorySink(t *testing.T) {
	m := NewMemorySink(twoChannels())
	assert.ErrorIs(t, m.Render(), ErrNotStarted)

	require.NoError(t, m.Start())
	require.NoError(t, m.WriteFrame(0, []uint32{1, 2, 3, 4}))
	require.NoError(t, m.SetBrightness(1, 10))
	require.NoError(t, m.Render())

	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 2, 3, 4}, last.Pixels[0])
	assert.Equal(t, []uint8{255, 10}, last.Brightness)

	boom := errors.New("boom")
	m.SetFailure(boom)
	assert.ErrorIs(t, m.Render(), boom)
	assert.Len(t, m.Renders(), 1)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}
