// ABOUTME: Tests for visualizer orchestration
// ABOUTME: Runs the tone driver end to end into a local UDP listener
package app

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/FruityPi/fruitypi-go/internal/config"
	"github.com/FruityPi/fruitypi-go/internal/ui"
	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/protocol"
	"github.com/FruityPi/fruitypi-go/pkg/visualizer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, settings map[string]interface{}) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())

	v := config.New()
	v.Set("ui.enabled", false)
	v.Set("discovery.enabled", false)
	for k, val := range settings {
		v.Set(k, val)
	}
	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	return cfg
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNameDefaultsToHostname(t *testing.T) {
	cfg := loadConfig(t, map[string]interface{}{"sink.address": "127.0.0.1"})
	v, err := New(Options{Config: cfg, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Contains(t, v.name, "-fruitypi")

	cfg.Sink.Name = "desk"
	v, err = New(Options{Config: cfg, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, "desk", v.name)
}

func TestStatusBeforeRun(t *testing.T) {
	cfg := loadConfig(t, map[string]interface{}{"sink.address": "127.0.0.1"})
	v, err := New(Options{Config: cfg, Logger: zerolog.Nop()})
	require.NoError(t, err)

	st := v.Status()
	assert.Equal(t, visualizer.StateUninitialized.String(), st.State)
	assert.False(t, st.Running)
}

func TestToneToUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	cfg := loadConfig(t, map[string]interface{}{
		"device.driver": "tone",
		"sink.address":  pc.LocalAddr().String(),
		"http.address":  "127.0.0.1:0",
	})

	v, err := New(Options{Config: cfg, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()

	buf := make([]byte, 16)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	_, err = protocol.UnmarshalColor(buf[:n])
	require.NoError(t, err)

	require.Eventually(t, func() bool { return v.Status().Running }, 2*time.Second, 10*time.Millisecond)
	st := v.Status()
	assert.Equal(t, pc.LocalAddr().String(), st.Server)
	assert.NotZero(t, st.Capture.BuffersFilled)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, visualizer.StateClosed.String(), v.Status().State)
}

func TestRunFailsWithoutFile(t *testing.T) {
	cfg := loadConfig(t, map[string]interface{}{
		"device.driver": "file",
		"sink.address":  "127.0.0.1",
	})

	v, err := New(Options{Config: cfg, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Error(t, v.Run(context.Background()))
}

func TestRunFailsWithoutServer(t *testing.T) {
	cfg := loadConfig(t, map[string]interface{}{"sink.address": "127.0.0.1"})
	cfg.Sink.Address = ""

	v, err := New(Options{Config: cfg, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Error(t, v.Run(context.Background()))
}

func TestColorCallbackDoesNotWaitForTUI(t *testing.T) {
	v := &Visualizer{log: zerolog.Nop()}
	v.onColor(color.RGB(1, 2, 3)) // no TUI

	v.colors = make(chan color.Color, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			v.onColor(color.RGB(uint8(i), 0, 0))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("color callback blocked with nobody reading")
	}
	assert.Len(t, v.colors, 1)
	assert.Equal(t, color.RGB(0, 0, 0), <-v.colors, "the first pending color is kept")
}

func TestForwardColorsStopsWithStalledTUI(t *testing.T) {
	progCtx, stopProg := context.WithCancel(context.Background())
	v := &Visualizer{
		log:    zerolog.Nop(),
		colors: make(chan color.Color, 1),
		tuiProg: tea.NewProgram(ui.NewModel(ui.NewControl()),
			tea.WithContext(progCtx), tea.WithInput(nil), tea.WithOutput(io.Discard)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go v.forwardColors(ctx, done)

	// The program never runs, so the forwarder sits in Send until it ends
	v.onColor(color.RGB(9, 9, 9))
	stopProg()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not exit")
	}
}
