package hardware

import (
	"errors"
	"sync"
)

var ErrNotStarted = errors.New("sink not started")

// Rendered is what a MemorySink saw on one Render call.
type Rendered struct {
	Pixels     [][]uint32
	Brightness []uint8
}

// MemorySink keeps every rendered frame in memory. It is used headless and
// in tests; FailRender makes the next renders return an error.
type MemorySink struct {
	*pixelBuffer
	mu         sync.Mutex
	started    bool
	closed     bool
	renders    []Rendered
	keep       int
	FailRender error
}

func NewMemorySink(channels []Channel) *MemorySink {
	return &MemorySink{pixelBuffer: newPixelBuffer(channels), keep: 1000}
}

func (m *MemorySink) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *MemorySink) Render() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrNotStarted
	}
	if m.FailRender != nil {
		return m.FailRender
	}
	pixels, brightness := m.snapshot()
	m.renders = append(m.renders, Rendered{Pixels: pixels, Brightness: brightness})
	if len(m.renders) > m.keep {
		m.renders = m.renders[len(m.renders)-m.keep:]
	}
	return nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetFailure sets the error returned by the following renders.
func (m *MemorySink) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailRender = err
}

func (m *MemorySink) Renders() []Rendered {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Rendered(nil), m.renders...)
}

// Last returns the latest render, ok is false if nothing was rendered yet.
func (m *MemorySink) Last() (Rendered, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.renders) == 0 {
		return Rendered{}, false
	}
	return m.renders[len(m.renders)-1], true
}

func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
