package hardware

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/exp/maps"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/logging"
)

const (
	fpsWindow       = 50
	brightnessStep  = 10
	speedMultiplier = 1.25
)

var keyHelp = map[string]string{
	"+/-": "brightness",
	"]/[": "speed",
	"q":   "quit",
	"r":   "reload",
}

// TUISink simulates the strips in the terminal. Every channel is shown as
// a two line bar, the keyboard controls brightness and speed through the
// command channel.
type TUISink struct {
	*pixelBuffer
	tviewapp     *tview.Application
	intro        *tview.TextView
	ledDisplay   *tview.TextView
	logView      *tview.TextView
	ossignalChan chan os.Signal
	commands     chan<- animation.Command
	speedSource  atomic.Pointer[func() float64]
	logFlushOnce sync.Once
	readyChan    chan struct{}
	drawPending  atomic.Bool
	stopped      atomic.Bool

	histMu  sync.Mutex
	history deque.Deque[time.Time]
}

func NewTUISink(channels []Channel, ossignal chan os.Signal, commands chan<- animation.Command) *TUISink {
	return &TUISink{
		pixelBuffer:  newPixelBuffer(channels),
		ossignalChan: ossignal,
		commands:     commands,
		readyChan:    make(chan struct{}),
	}
}

// SetSpeedSource tells the keyboard handler where to read the current
// animation speed from. It may be called while the terminal is running.
func (s *TUISink) SetSpeedSource(fn func() float64) {
	s.speedSource.Store(&fn)
}

// Ready is closed after the first screen draw.
func (s *TUISink) Ready() <-chan struct{} {
	return s.readyChan
}

func (s *TUISink) Start() error {
	s.tviewapp = tview.NewApplication()

	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.introText(0))
	s.intro.SetBorder(true).SetTitle(" Lights Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	s.ledDisplay = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.ledDisplay.SetBorder(true)
	s.ledDisplay.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	stripeHeight := 3*len(s.channels) + 2

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 4, 0, false).
		AddItem(s.ledDisplay, stripeHeight, 0, false).
		AddItem(s.logView, 0, 1, true)

	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			logging.SetOutput(tview.ANSIWriter(s.logView))
			close(s.readyChan)
		})
	})
	s.tviewapp.SetInputCapture(s.handleKey)

	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.signal(os.Interrupt)
		}
	}()
	return nil
}

// Render queues a redraw. At most one redraw is pending at any time so a
// fast render loop never blocks on the terminal.
func (s *TUISink) Render() error {
	if s.tviewapp == nil {
		return ErrNotStarted
	}
	s.recordRender(time.Now())
	if s.stopped.Load() || !s.drawPending.CompareAndSwap(false, true) {
		return nil
	}
	s.tviewapp.QueueUpdateDraw(func() {
		s.drawPending.Store(false)
		s.draw()
	})
	return nil
}

func (s *TUISink) Close() error {
	if s.tviewapp == nil || !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	logging.BufferOutput()
	s.tviewapp.Stop()
	return nil
}

func (s *TUISink) recordRender(t time.Time) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.history.PushBack(t)
	for s.history.Len() > fpsWindow {
		s.history.PopFront()
	}
}

// measuredFPS is the render rate over the last fpsWindow renders.
func (s *TUISink) measuredFPS() float64 {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	if s.history.Len() < 2 {
		return 0
	}
	span := s.history.Back().Sub(s.history.Front())
	if span <= 0 {
		return 0
	}
	return float64(s.history.Len()-1) / span.Seconds()
}

func (s *TUISink) introText(brightness uint8) string {
	keys := maps.Keys(keyHelp)
	slices.Sort(keys)
	help := make([]string, 0, len(keys))
	for _, k := range keys {
		help = append(help, fmt.Sprintf("[#ff0000]%s[-] %s", k, keyHelp[k]))
	}
	status := fmt.Sprintf("Brightness: [#ffff00]%-3d[white] | Measured: [#ffff00]%5.1f[white] fps", brightness, s.measuredFPS())
	return status + "\n" + strings.Join(help, " | ")
}

// draw must run on the tview goroutine.
func (s *TUISink) draw() {
	pixels, brightness := s.snapshot()
	var buf strings.Builder
	for i := range pixels {
		top, bottom := channelLines(pixels[i], brightness[i])
		buf.WriteString(" ")
		buf.WriteString(top)
		buf.WriteString("\n ")
		buf.WriteString(bottom)
		buf.WriteString("\n\n")
	}
	s.ledDisplay.SetText(buf.String())
	if len(brightness) > 0 {
		s.intro.SetText(s.introText(brightness[0]))
	}
}

var levels = []string{"▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// channelLines renders pixels as two rows of block characters. The height
// of the bar shows the brightness, the colour is the hue at full scale.
func channelLines(pixels []uint32, brightness uint8) (string, string) {
	var top, bottom strings.Builder
	for _, p := range pixels {
		c := animation.Unpack(p).Scale(brightness)
		if c.IsEmpty() {
			top.WriteString(" ")
			bottom.WriteString(" ")
			continue
		}
		value := (int(c.Red) + int(c.Green) + int(c.Blue)) / 3
		step := value * 2 * len(levels) / 256
		colorStr := scaledColor(c)
		top.WriteString(colorStr)
		bottom.WriteString(colorStr)
		if step < len(levels) {
			top.WriteString(" ")
			bottom.WriteString(levels[step])
		} else {
			top.WriteString(levels[step-len(levels)])
			bottom.WriteString(levels[len(levels)-1])
		}
		top.WriteString("[-]")
		bottom.WriteString("[-]")
	}
	return top.String(), bottom.String()
}

// scaledColor stretches c so its brightest component is 255.
func scaledColor(c animation.RGB) string {
	maxColor := max(c.Red, c.Green, c.Blue)
	if maxColor == 0 {
		return "[#000000]"
	}
	scale := func(v byte) byte {
		return byte((int(v)*255 + int(maxColor)/2) / int(maxColor))
	}
	return fmt.Sprintf("[#%02x%02x%02x]", scale(c.Red), scale(c.Green), scale(c.Blue))
}

func (s *TUISink) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlC:
		s.signal(os.Interrupt)
		return nil
	case tcell.KeyUp:
		row, col := s.logView.GetScrollOffset()
		s.logView.ScrollTo(row-1, col)
		return nil
	case tcell.KeyDown:
		row, col := s.logView.GetScrollOffset()
		s.logView.ScrollTo(row+1, col)
		return nil
	case tcell.KeyRune:
		if cmd := s.keyCommand(event.Rune()); cmd != nil {
			s.send(cmd)
			return nil
		}
		switch event.Rune() {
		case 'q', 'Q':
			s.signal(os.Interrupt)
			return nil
		case 'r', 'R':
			s.signal(syscall.SIGHUP)
			return nil
		}
	}
	return event
}

// keyCommand maps a key to the command it triggers, nil if there is none.
func (s *TUISink) keyCommand(key rune) animation.Command {
	_, brightness := s.snapshot()
	current := 255
	if len(brightness) > 0 {
		current = int(brightness[0])
	}
	switch key {
	case '+':
		return animation.SetBrightness{Level: uint8(min(current+brightnessStep, 255))}
	case '-':
		return animation.SetBrightness{Level: uint8(max(current-brightnessStep, 0))}
	case ']', '[':
		source := s.speedSource.Load()
		if source == nil {
			return nil
		}
		speed := (*source)()
		if key == ']' {
			return animation.SetSpeed{FPS: speed * speedMultiplier}
		}
		return animation.SetSpeed{FPS: speed / speedMultiplier}
	}
	return nil
}

// send must not block the terminal, a full queue drops the key press.
func (s *TUISink) send(cmd animation.Command) {
	select {
	case s.commands <- cmd:
		slog.Debug("Keyboard command", "command", cmd.String())
	default:
		slog.Warn("Command queue full, dropping key press", "command", cmd.String())
	}
}

func (s *TUISink) signal(sig os.Signal) {
	select {
	case s.ossignalChan <- sig:
	default:
	}
}
