package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/newmanjoel/Lights/animation"
	c "github.com/newmanjoel/Lights/config"
	"github.com/newmanjoel/Lights/controller"
	"github.com/newmanjoel/Lights/hardware"
	"github.com/newmanjoel/Lights/logging"
	p "github.com/newmanjoel/Lights/producer"
	"github.com/newmanjoel/Lights/server"
	"github.com/newmanjoel/Lights/store"
	u "github.com/newmanjoel/Lights/util"
)

const (
	tuiReadyTimeout = 5 * time.Second
	teardownTimeout = 5 * time.Second
)

type App struct {
	cfg      *c.Config
	ossignal chan os.Signal
	cmds     chan animation.Command
	state    *u.Snapshot[controller.LiveState]
	shutdown *u.Shutdown
	daynight *c.DayNightStore

	sink        hardware.Sink
	lib         *store.Library
	producerWg  sync.WaitGroup
	producerErr chan error
}

func NewApp(cfg *c.Config, ossignal chan os.Signal) *App {
	state := controller.NewLiveState()
	state.Update(func(s controller.LiveState) controller.LiveState {
		s.Brightness = uint8(cfg.Hardware.InitialBrightness)
		return s
	})
	return &App{
		cfg:      cfg,
		ossignal: ossignal,
		cmds:     make(chan animation.Command, cfg.Render.CommandBuffer),
		state:    state,
		shutdown: u.NewShutdown(),
		daynight: c.NewDayNightStore(cfg.DayNight),

		producerErr: make(chan error, 4),
	}
}

func main() {
	cfile := flag.String("config", c.CONFILE, "Config file to use")
	sinkFlag := flag.String("sink", "", "Override Hardware.Sink (tui, memory, spi, ws281x)")
	flag.Parse()

	cfg, err := c.ReadConfig(*cfile)
	if err == nil && *sinkFlag != "" {
		cfg.Hardware.Sink = *sinkFlag
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.Hardware.Sink == c.SinkTUI, cfg.LogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	app := NewApp(cfg, ossignal)
	err = app.Run()
	signal.Stop(ossignal)
	if err != nil {
		slog.Error("Lights stopped with an error", "error", err)
		logging.Close()
		os.Exit(1)
	}
	slog.Info("Lights stopped")
	logging.Close()
}

// Run starts all loops and blocks until shutdown. It returns the error
// that caused the shutdown, if any.
func (a *App) Run() error {
	lib, err := store.Open(a.cfg.Library.File)
	if err != nil {
		return err
	}
	a.lib = lib

	if a.sink == nil {
		if a.sink, err = hardware.New(a.cfg, a.ossignal, a.cmds); err != nil {
			return err
		}
	}
	tui, isTUI := a.sink.(*hardware.TUISink)
	if isTUI {
		tui.SetSpeedSource(func() float64 { return a.state.Load().SpeedFPS })
	}
	if err := a.sink.Start(); err != nil {
		return fmt.Errorf("starting %s sink: %w", a.cfg.Hardware.Sink, err)
	}
	if isTUI {
		select {
		case <-tui.Ready():
		case <-time.After(tuiReadyTimeout):
			slog.Warn("Terminal not ready, continuing")
		}
	}

	coordinator := controller.New(a.sink, a.cmds, a.state, a.shutdown, a.coordinatorOptions())
	renderErr := make(chan error, 1)
	go func() {
		renderErr <- coordinator.Run()
	}()

	if err := p.LoadStartupAnimation(a.cfg.Render.StartupAnimation, a.lib, a.cmds, a.shutdown); err != nil {
		slog.Warn("No startup animation", "error", err)
	}
	a.startProducers()

	var runErr error
	for done := false; !done; {
		select {
		case sig := <-a.ossignal:
			if sig == syscall.SIGHUP {
				slog.Info("Received SIGHUP, reloading")
				a.reloadConfig()
				a.reloadLibrary()
				continue
			}
			slog.Info("Received signal, shutting down", "signal", sig.String())
			done = true
		case err := <-renderErr:
			runErr = err
			renderErr = nil
			done = true
		case err := <-a.producerErr:
			runErr = err
			done = true
		case <-a.shutdown.Done():
			done = true
		}
	}
	a.shutdown.Trigger()

	if renderErr != nil {
		runErr = errors.Join(runErr, <-renderErr)
	}
	a.waitProducers()
	for drained := false; !drained; {
		select {
		case err := <-a.producerErr:
			runErr = errors.Join(runErr, err)
		default:
			drained = true
		}
	}
	if err := a.sink.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("closing sink: %w", err))
	}
	return runErr
}

func (a *App) coordinatorOptions() controller.Options {
	color, err := animation.ParseHexColor(a.cfg.Render.DefaultColor)
	if err != nil {
		color = animation.DefaultColor
	}
	return controller.Options{
		PollWindow:    a.cfg.Render.PollWindow,
		MaxBrightness: uint8(a.cfg.Hardware.MaxBrightness),
		Initial:       animation.SingleColor("default", color, a.cfg.Hardware.LedsTotal(), animation.DefaultSpeed),
	}
}

func (a *App) goProducer(name string, run func()) {
	a.producerWg.Add(1)
	go func() {
		defer a.producerWg.Done()
		run()
		slog.Debug("Producer finished", "producer", name)
	}()
}

func (a *App) startProducers() {
	a.goProducer("daynight", p.NewDayNight(a.daynight, a.state, a.cmds, a.shutdown).Run)

	if a.cfg.MQTT.Enabled {
		mqtt := p.NewMQTT(a.cfg.MQTT, a.lib, a.cfg.Hardware.LedsTotal(), a.cmds, a.shutdown)
		a.goProducer("mqtt", mqtt.Run)
	}

	if a.cfg.Web.Enabled {
		srv := server.New(a.cfg.Web, a.cfg.Configfile, a.cmds, a.state, a.lib, a.daynight, a.shutdown)
		a.goProducer("http", func() {
			if err := srv.Run(); err != nil {
				slog.Error("HTTP server failed", "error", err)
				a.producerFailed(err)
			}
		})
	}

	watcher, err := c.NewWatcher()
	if err != nil {
		slog.Warn("File watcher unavailable, use SIGHUP to reload", "error", err)
		return
	}
	if a.cfg.Configfile != "" {
		if err := watcher.Add(a.cfg.Configfile, a.reloadConfig); err != nil {
			slog.Warn("Not watching config file", "error", err)
		}
	}
	if err := watcher.Add(a.lib.File(), a.reloadLibrary); err != nil {
		slog.Warn("Not watching animation library", "error", err)
	}
	a.goProducer("watcher", func() { watcher.Run(a.shutdown.Done()) })
}

// producerFailed hands a fatal producer error to Run, which shuts down and
// returns it.
func (a *App) producerFailed(err error) {
	select {
	case a.producerErr <- err:
	default:
		slog.Warn("Dropping producer error, shutdown already pending", "error", err)
	}
	a.shutdown.Trigger()
}

// waitProducers gives the producers a moment to notice the shutdown. A
// producer stuck in I/O does not hold up the exit.
func (a *App) waitProducers() {
	done := make(chan struct{})
	go func() {
		a.producerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(teardownTimeout):
		slog.Warn("Producers did not stop in time")
	}
}

// reloadConfig applies the day/night section of the config file. Every
// other section is only read at start.
func (a *App) reloadConfig() {
	if a.cfg.Configfile == "" {
		return
	}
	cfg, err := c.ReadConfig(a.cfg.Configfile)
	if err != nil {
		slog.Error("Config reload failed, keeping the current settings", "error", err)
		return
	}
	a.daynight.Set(cfg.DayNight)
	slog.Info("Day/night settings reloaded", "file", a.cfg.Configfile)
}

func (a *App) reloadLibrary() {
	if err := a.lib.Reload(); err != nil {
		slog.Error("Animation library reload failed, keeping the current animations", "error", err)
	}
}
