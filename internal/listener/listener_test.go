// ABOUTME: Tests for the debug listener
// ABOUTME: Sends colors over real UDP and WebSocket connections
package listener

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startListener(t *testing.T, out *lockedBuffer) (*Server, <-chan Event) {
	t.Helper()
	events := make(chan Event, 16)

	cfg := Config{
		Host:    "127.0.0.1",
		Name:    "test-light",
		OnColor: func(ev Event) { events <- ev },
		Logger:  zerolog.Nop(),
	}
	if out != nil {
		cfg.Out = out
	}
	s := New(cfg)
	require.NoError(t, s.Listen())

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	t.Cleanup(func() {
		s.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("listener did not stop")
		}
	})
	return s, events
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a color")
		return Event{}
	}
}

func TestUDPDatagrams(t *testing.T) {
	out := &lockedBuffer{}
	s, events := startListener(t, out)

	conn, err := net.Dial("udp", s.UDPAddr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x02, 1, 2, 3})
	require.NoError(t, err)
	_, err = conn.Write(protocol.MarshalColor(color.RGB(0xbd, 0x52, 0xf2)))
	require.NoError(t, err)

	ev := nextEvent(t, events)
	assert.Equal(t, color.RGB(0xbd, 0x52, 0xf2), ev.Color)
	assert.Equal(t, "udp", ev.Transport)
	assert.Equal(t, conn.LocalAddr().String(), ev.Source)

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Datagrams)
	assert.Equal(t, uint64(1), st.BadDatagrams)
	assert.Equal(t, color.RGB(0xbd, 0x52, 0xf2), st.Last)
	assert.Contains(t, out.String(), "#bd52f2")
}

func TestWebSocketSession(t *testing.T) {
	s, events := startListener(t, nil)

	client := protocol.NewClient(protocol.Config{ServerAddr: s.WebSocketAddr(), ClientID: "viz-1", Name: "Desk"})
	require.NoError(t, client.Connect())
	defer client.Close()

	assert.Equal(t, "test-light", client.ServerHello.Name)
	assert.Equal(t, protocol.ProtocolVersion, client.ServerHello.Version)

	require.NoError(t, client.SendColor(color.RGB(9, 8, 7)))
	ev := nextEvent(t, events)
	assert.Equal(t, color.RGB(9, 8, 7), ev.Color)
	assert.Equal(t, "websocket", ev.Transport)
	assert.Equal(t, "Desk", ev.Source)

	st := s.Stats()
	require.Len(t, st.Clients, 1)
	assert.Equal(t, "viz-1", st.Clients[0].ID)
	assert.Equal(t, uint64(1), st.Clients[0].Colors)
	assert.Equal(t, uint64(1), st.Messages)

	require.NoError(t, client.SendGoodbye("done"))
	require.Eventually(t, func() bool { return len(s.Stats().Clients) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDuplicateClientRejected(t *testing.T) {
	s, _ := startListener(t, nil)

	first := protocol.NewClient(protocol.Config{ServerAddr: s.WebSocketAddr(), ClientID: "same", Name: "One"})
	require.NoError(t, first.Connect())
	defer first.Close()

	second := protocol.NewClient(protocol.Config{ServerAddr: s.WebSocketAddr(), ClientID: "same", Name: "Two"})
	assert.Error(t, second.Connect())
}

func TestHelloWithoutNameRejected(t *testing.T) {
	s, _ := startListener(t, nil)

	client := protocol.NewClient(protocol.Config{ServerAddr: s.WebSocketAddr(), ClientID: "anon"})
	assert.Error(t, client.Connect())
}

func TestPrintIsRateLimited(t *testing.T) {
	out := &lockedBuffer{}
	s := New(Config{Out: out, PrintInterval: time.Hour, Logger: zerolog.Nop()})

	now := time.Now()
	s.record(Event{Color: color.RGB(1, 1, 1), Transport: "udp", At: now})
	s.record(Event{Color: color.RGB(2, 2, 2), Transport: "udp", At: now.Add(time.Millisecond)})

	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Equal(t, color.RGB(2, 2, 2), s.Stats().Last)
}

func TestSwatch(t *testing.T) {
	line := Swatch(Event{Color: color.RGB(255, 0, 16), Transport: "udp", Source: "10.0.0.2:5000"})
	assert.Contains(t, line, "#ff0010")
	assert.Contains(t, line, "10.0.0.2:5000")
}
