// ABOUTME: Visualizer application orchestration
// ABOUTME: Wires config, capture driver, engine, sinks, TUI and status server
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/FruityPi/fruitypi-go/internal/config"
	"github.com/FruityPi/fruitypi-go/internal/discovery"
	"github.com/FruityPi/fruitypi-go/internal/httpserver"
	"github.com/FruityPi/fruitypi-go/internal/metrics"
	"github.com/FruityPi/fruitypi-go/internal/ui"
	"github.com/FruityPi/fruitypi-go/internal/version"
	"github.com/FruityPi/fruitypi-go/pkg/audio/input"
	"github.com/FruityPi/fruitypi-go/pkg/capture"
	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/protocol"
	"github.com/FruityPi/fruitypi-go/pkg/sink"
	"github.com/FruityPi/fruitypi-go/pkg/visualizer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options holds what New needs beyond the config
type Options struct {
	Config *config.Config
	Logger zerolog.Logger

	// Driver replaces the configured capture driver when set
	Driver capture.Driver
}

// Visualizer runs one capture-to-color pipeline
type Visualizer struct {
	cfg    *config.Config
	log    zerolog.Logger
	driver capture.Driver
	name   string

	mu         sync.Mutex
	engine     *visualizer.Engine
	sink       *sink.Counting
	ws         *sink.WebSocket
	serverAddr string
	started    time.Time

	http    *httpserver.Server
	tuiProg *tea.Program
	control *ui.Control
	colors  chan color.Color
}

// New validates options and resolves the visualizer name
func New(opts Options) (*Visualizer, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	name := opts.Config.Sink.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		name = fmt.Sprintf("%s-fruitypi", hostname)
	}

	return &Visualizer{
		cfg:    opts.Config,
		log:    opts.Logger,
		driver: opts.Driver,
		name:   name,
	}, nil
}

// Run captures until ctx ends or the user quits the TUI
func (v *Visualizer) Run(ctx context.Context) error {
	if err := v.resolveServer(ctx); err != nil {
		return err
	}

	out, err := v.buildSinks()
	if err != nil {
		return err
	}
	counting := sink.NewCounting(out)
	defer func() {
		if err := counting.Close(); err != nil {
			v.log.Warn().Err(err).Msg("Error closing sinks")
		}
	}()

	driver := v.driver
	if driver == nil {
		driver, err = input.New(v.cfg.Device.Driver, input.Options{
			Loopback:         v.cfg.Device.Loopback,
			File:             v.cfg.Device.File,
			ToneFrequency:    v.cfg.Device.ToneFrequency,
			BuffersPerSecond: v.cfg.Capture.BuffersPerSecond,
			Logger:           v.log,
		})
		if err != nil {
			return err
		}
	}

	// The TUI loop must be running before the engine reports its first state
	if v.cfg.UI.Enabled {
		v.control = ui.NewControl()
		v.tuiProg, err = ui.Run(v.control)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		tuiDone := make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := v.tuiProg.Run(); err != nil {
				v.log.Error().Err(err).Msg("TUI exited")
			}
		}()
		defer func() {
			v.tuiProg.Quit()
			<-tuiDone
		}()

		v.colors = make(chan color.Color, 1)
		forwardCtx, stopForward := context.WithCancel(ctx)
		forwardDone := make(chan struct{})
		go v.forwardColors(forwardCtx, forwardDone)
		defer func() {
			stopForward()
			<-forwardDone
		}()
	}

	engine, err := visualizer.NewEngine(visualizer.Config{
		Driver:           driver,
		DeviceID:         v.cfg.Device.ID,
		Format:           v.cfg.AudioFormat(),
		Sink:             counting,
		NumBuffers:       v.cfg.Capture.Buffers,
		BuffersPerSecond: v.cfg.Capture.BuffersPerSecond,
		Filter:           v.cfg.LoudnessConfig(),
		Logger:           v.log,
		OnColor:          v.onColor,
		OnStateChange:    v.onStateChange,
	})
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.engine = engine
	v.sink = counting
	v.started = time.Now()
	v.mu.Unlock()

	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize capture: %w", err)
	}
	defer v.closeEngine(engine)

	if err := engine.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	v.log.Info().
		Str("name", v.name).
		Str("driver", driver.Name()).
		Str("format", engine.Format().String()).
		Str("server", v.serverAddr).
		Strs("transports", v.cfg.Sink.Transport).
		Msg("Visualizer running")

	if v.cfg.HTTP.Address != "" {
		if err := v.startHTTP(engine, counting); err != nil {
			return err
		}
		defer v.stopHTTP()
	}

	var quit <-chan struct{}
	var pause <-chan bool
	if v.tuiProg != nil {
		quit, pause = v.control.Quit, v.control.Pause

		statsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go v.statsUpdateLoop(statsCtx)
	}

	for {
		select {
		case <-ctx.Done():
			v.log.Info().Msg("Shutdown signal received")
			return nil
		case <-quit:
			v.log.Info().Msg("Received quit signal from TUI")
			return nil
		case paused := <-pause:
			v.setPaused(engine, paused)
		}
	}
}

// resolveServer finds a listener over mDNS when no address is configured.
// MQTT-only setups have no listener to find.
func (v *Visualizer) resolveServer(ctx context.Context) error {
	needsServer := v.cfg.HasTransport(config.TransportUDP) || v.cfg.HasTransport(config.TransportWebSocket)
	if !needsServer {
		return nil
	}
	if v.cfg.Sink.Address != "" {
		v.serverAddr = v.cfg.SinkAddr()
		return nil
	}
	if !v.cfg.Discovery.Enabled {
		return fmt.Errorf("no listener address configured and discovery is disabled")
	}

	v.log.Info().Msg("Starting listener discovery...")
	findCtx, cancel := context.WithTimeout(ctx, v.cfg.Discovery.Timeout)
	defer cancel()

	server, err := discovery.FindFirst(findCtx, v.log)
	if err != nil {
		return fmt.Errorf("no listener found after %s: %w", v.cfg.Discovery.Timeout, err)
	}
	v.serverAddr = server.Addr()
	v.log.Info().Str("name", server.Name).Str("addr", v.serverAddr).Msg("Discovered listener")
	return nil
}

// buildSinks opens one sink per configured transport
func (v *Visualizer) buildSinks() (sink.Multi, error) {
	var out sink.Multi
	fail := func(err error) (sink.Multi, error) {
		out.Close()
		return nil, err
	}

	for _, transport := range v.cfg.Sink.Transport {
		switch transport {
		case config.TransportUDP:
			u, err := sink.DialUDP(v.serverAddr, v.log)
			if err != nil {
				return fail(err)
			}
			out = append(out, u)
		case config.TransportWebSocket:
			v.ws = sink.NewWebSocket(sink.WebSocketConfig{
				ServerAddr: v.serverAddr,
				ClientID:   uuid.New().String(),
				Name:       v.name,
				DeviceInfo: protocol.DeviceInfo{
					ProductName:     version.Product,
					Manufacturer:    version.Manufacturer,
					SoftwareVersion: version.Version,
				},
				Logger: v.log,
			})
			out = append(out, v.ws)
		case config.TransportMQTT:
			m, err := sink.NewMQTT(sink.MQTTConfig{
				Broker:   v.cfg.Sink.MQTTBroker,
				Topic:    v.cfg.Sink.MQTTTopic,
				ClientID: v.name,
				Username: v.cfg.Sink.MQTTUser,
				Password: v.cfg.Sink.MQTTPass,
				Logger:   v.log,
			})
			if err != nil {
				return fail(err)
			}
			out = append(out, m)
		default:
			return fail(fmt.Errorf("unknown sink transport %q", transport))
		}
	}
	return out, nil
}

// setPaused stops or restarts capture for the TUI pause key
func (v *Visualizer) setPaused(engine *visualizer.Engine, paused bool) {
	var err error
	if paused {
		err = engine.Stop()
	} else {
		err = engine.Start()
	}
	if err != nil {
		v.log.Error().Err(err).Bool("paused", paused).Msg("Failed to toggle capture")
	}
}

// closeEngine tears the engine down and reports how it went
func (v *Visualizer) closeEngine(engine *visualizer.Engine) {
	result := engine.Close()
	stats := engine.Stats()
	ev := v.log.Info()
	if result != visualizer.ShutdownClean {
		ev = v.log.Warn()
	}
	ev.Str("result", result.String()).
		Uint64("buffers", stats.BuffersFilled).
		Uint64("colors", stats.ColorsSent).
		Msg("Visualizer stopped")
}

func (v *Visualizer) startHTTP(engine *visualizer.Engine, counting *sink.Counting) error {
	m, err := metrics.New(engine, counting)
	if err != nil {
		return err
	}

	srv, err := httpserver.New(httpserver.Config{
		Address: v.cfg.HTTP.Address,
		Status:  v.Status,
		Metrics: m.Handler(),
		Logger:  v.log,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	v.http = srv
	return nil
}

func (v *Visualizer) stopHTTP() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := v.http.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		v.log.Warn().Err(err).Msg("Status server shutdown failed")
	}
}

// Status reports the pipeline for the HTTP API
func (v *Visualizer) Status() httpserver.Status {
	v.mu.Lock()
	engine, counting, started := v.engine, v.sink, v.started
	v.mu.Unlock()

	st := httpserver.Status{
		Name:       v.name,
		Version:    version.Version,
		State:      visualizer.StateUninitialized.String(),
		Server:     v.serverAddr,
		Transports: v.cfg.Sink.Transport,
	}
	if engine == nil {
		return st
	}

	state := engine.State()
	stats := engine.Stats()
	last := engine.LastColor()

	st.State = state.String()
	st.Running = state == visualizer.StateRunning
	st.Format = engine.Format().String()
	st.Color = last.Hex()
	st.Brightness = last.Brightness()
	st.Uptime = time.Since(started)
	st.Capture = httpserver.CaptureStatus{
		BuffersFilled: stats.BuffersFilled,
		EmptyBuffers:  stats.EmptyBuffers,
		Colors:        stats.ColorsSent,
		FormatErrors:  stats.FormatErrors,
		RearmFailures: stats.RearmFailures,
		SlotFills:     stats.SlotFills,
	}
	if counting != nil {
		s := counting.Stats()
		st.Sink = httpserver.SinkStatus{Sent: s.Sent, Dropped: s.Dropped}
	}
	return st
}

// onColor runs on the capture goroutine and must not wait on the TUI
func (v *Visualizer) onColor(c color.Color) {
	if v.colors == nil {
		return
	}
	select {
	case v.colors <- c:
	default:
		// TUI is still drawing the previous color
	}
}

// forwardColors hands colors to the TUI, which may block while it renders
func (v *Visualizer) forwardColors(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-v.colors:
			v.tuiProg.Send(ui.ColorMsg(c))
		}
	}
}

func (v *Visualizer) onStateChange(s visualizer.State) {
	v.log.Debug().Str("state", s.String()).Msg("Capture state changed")
	if v.tuiProg != nil {
		v.tuiProg.Send(ui.StatusMsg{State: s.String()})
	}
}

// statsUpdateLoop periodically updates the TUI with capture statistics
func (v *Visualizer) statsUpdateLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	runtimeStatsTicker := time.NewTicker(2 * time.Second)
	defer runtimeStatsTicker.Stop()

	var lastGoroutines int
	var lastMemAlloc uint64

	for {
		select {
		case <-ctx.Done():
			return

		case <-runtimeStatsTicker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			lastGoroutines = runtime.NumGoroutine()
			lastMemAlloc = m.Alloc

		case <-ticker.C:
			st := v.Status()
			connected := v.serverAddr != "" || v.cfg.HasTransport(config.TransportMQTT)
			if v.ws != nil && !v.ws.Connected() {
				connected = false
			}
			server := v.serverAddr
			if server == "" {
				server = v.cfg.Sink.MQTTBroker
			}

			v.tuiProg.Send(ui.StatusMsg{
				Connected:    &connected,
				ServerName:   server,
				Transports:   st.Transports,
				Format:       st.Format,
				Buffers:      st.Capture.BuffersFilled,
				Colors:       st.Capture.Colors,
				Empty:        st.Capture.EmptyBuffers,
				FormatErrors: st.Capture.FormatErrors,
				Sent:         st.Sink.Sent,
				Dropped:      st.Sink.Dropped,
				Goroutines:   lastGoroutines,
				MemAlloc:     lastMemAlloc,
			})
		}
	}
}
