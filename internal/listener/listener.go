// ABOUTME: Debug lighting endpoint for FruityPi visualizers
// ABOUTME: Accepts color datagrams over UDP and color messages over WebSocket
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FruityPi/fruitypi-go/internal/discovery"
	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/protocol"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// maxDatagram is larger than any valid color datagram
const maxDatagram = 64

// Config holds listener configuration
type Config struct {
	Host       string
	Port       int
	Name       string
	EnableMDNS bool
	UseTUI     bool

	// PrintInterval rate limits console swatches (default 100ms)
	PrintInterval time.Duration
	// Out receives swatches when the TUI is off
	Out io.Writer

	// OnColor is called for every accepted color
	OnColor func(Event)

	Logger zerolog.Logger
}

// Event is one received color
type Event struct {
	Color     color.Color
	Source    string // remote address or WebSocket client name
	Transport string // "udp" or "websocket"
	At        time.Time
}

// Client is a connected WebSocket visualizer
type Client struct {
	ID        string
	Name      string
	Addr      string
	Conn      *websocket.Conn
	Connected time.Time
	colors    atomic.Uint64
}

// Stats is a snapshot of listener counters
type Stats struct {
	Datagrams    uint64
	BadDatagrams uint64
	Messages     uint64
	Last         color.Color
	LastSource   string
	Clients      []ClientInfo
}

// ClientInfo describes a connected WebSocket client
type ClientInfo struct {
	ID     string
	Name   string
	Addr   string
	Colors uint64
}

// Server receives colors and shows them
type Server struct {
	config   Config
	serverID string
	log      zerolog.Logger
	upgrader websocket.Upgrader

	udp        net.PacketConn
	tcp        net.Listener
	httpServer *http.Server

	clients   map[string]*Client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager
	tui         *ServerTUI
	startTime   time.Time

	mu         sync.Mutex
	last       color.Color
	lastSource string
	lastPrint  time.Time

	datagrams    atomic.Uint64
	badDatagrams atomic.Uint64
	messages     atomic.Uint64

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// New creates a new listener
func New(config Config) *Server {
	if config.PrintInterval == 0 {
		config.PrintInterval = 100 * time.Millisecond
	}

	return &Server{
		config:   config,
		serverID: uuid.New().String(),
		log:      config.Logger.With().Str("component", "listener").Logger(),
		upgrader: websocket.Upgrader{
			// Visualizers are not browsers; local network only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[string]*Client),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
}

// Listen binds the TCP and UDP sockets on the same port. Port 0 picks a
// free TCP port and reuses its number for UDP.
func (s *Server) Listen() error {
	tcp, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen for WebSocket clients: %w", err)
	}
	port := tcp.Addr().(*net.TCPAddr).Port

	udp, err := net.ListenPacket("udp", net.JoinHostPort(s.config.Host, strconv.Itoa(port)))
	if err != nil {
		tcp.Close()
		return fmt.Errorf("failed to listen for datagrams: %w", err)
	}

	s.tcp = tcp
	s.udp = udp
	s.config.Port = port
	return nil
}

// UDPAddr returns the datagram address once Listen has succeeded
func (s *Server) UDPAddr() string {
	return s.udp.LocalAddr().String()
}

// WebSocketAddr returns the host:port WebSocket clients dial
func (s *Server) WebSocketAddr() string {
	return s.tcp.Addr().String()
}

// Start listens (unless Listen was already called) and serves until Stop
func (s *Server) Start() error {
	if s.tcp == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	if s.config.UseTUI {
		s.tui = NewServerTUI(s.config.Name, s.config.Port)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(); err != nil {
				s.log.Error().Err(err).Msg("TUI exited")
			}
		}()
	}

	s.log.Info().Str("name", s.config.Name).Str("id", s.serverID).Int("port", s.config.Port).Msg("Listener starting")

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Text:        []string{"ws=" + protocol.WebSocketPath, "proto=" + strconv.Itoa(protocol.ProtocolVersion)},
			Logger:      s.log,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to start mDNS advertisement")
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(protocol.WebSocketPath, s.handleWebSocket)
	s.httpServer = &http.Server{Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.tcp); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readDatagrams()
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		s.log.Info().Msg("Listener shutting down...")
	case <-tuiQuitChan:
		s.log.Info().Msg("TUI quit requested, shutting down...")
	case err := <-errChan:
		s.log.Error().Err(err).Msg("HTTP server error")
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	s.udp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	// Hijacked WebSocket conns outlive Shutdown
	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
	s.log.Info().Msg("Listener stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the listener
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// readDatagrams decodes color datagrams until the socket closes
func (s *Server) readDatagrams() {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := s.udp.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Error().Err(err).Msg("UDP read failed")
			}
			return
		}

		c, err := protocol.UnmarshalColor(buf[:n])
		if err != nil {
			s.badDatagrams.Add(1)
			s.log.Debug().Err(err).Str("from", addr.String()).Msg("Ignoring datagram")
			continue
		}
		s.datagrams.Add(1)
		s.record(Event{Color: c, Source: addr.String(), Transport: "udp", At: time.Now()})
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Counted before the hijack so Shutdown still covers the Add
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("New WebSocket connection")
	s.handleConnection(conn, r.RemoteAddr)
}

// handleConnection runs the hello handshake and reads color messages
func (s *Server) handleConnection(conn *websocket.Conn, remote string) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.log.Debug().Msg("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	conn.SetReadDeadline(time.Now().Add(protocol.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.log.Debug().Err(err).Msg("Error reading hello")
		return
	}
	conn.SetReadDeadline(time.Time{})

	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		s.log.Debug().Err(err).Msg("Malformed hello")
		return
	}
	if env.Type != protocol.TypeClientHello {
		s.log.Debug().Str("type", env.Type).Msg("Expected client/hello")
		return
	}

	var hello protocol.ClientHello
	if err := env.Decode(&hello); err != nil {
		s.log.Debug().Err(err).Msg("Bad client hello")
		return
	}
	if hello.ClientID == "" || hello.Name == "" {
		s.sendError(conn, "invalid_hello", "client_id and name are required")
		return
	}

	client := &Client{
		ID:        hello.ClientID,
		Name:      hello.Name,
		Addr:      remote,
		Conn:      conn,
		Connected: time.Now(),
	}

	s.clientsMu.Lock()
	if existing, exists := s.clients[hello.ClientID]; exists {
		s.clientsMu.Unlock()
		s.log.Warn().Str("id", hello.ClientID).Str("name", existing.Name).Msg("Client ID already connected, rejecting duplicate")
		s.sendError(conn, "duplicate_client_id", "Client ID already connected")
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.log.Info().Str("name", client.Name).Str("id", client.ID).Msg("Visualizer connected")
	s.updateTUI()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		s.log.Info().Str("name", client.Name).Msg("Visualizer disconnected")
		s.updateTUI()
	}()

	conn.SetWriteDeadline(time.Now().Add(protocol.WriteTimeout))
	if err := conn.WriteJSON(protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID: s.serverID,
			Name:     s.config.Name,
			Version:  protocol.ProtocolVersion,
		},
	}); err != nil {
		s.log.Debug().Err(err).Msg("Error sending server hello")
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("WebSocket error")
			}
			return
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			s.log.Debug().Err(err).Msg("Ignoring malformed message")
			continue
		}

		switch env.Type {
		case protocol.TypeColorOverride:
			var override protocol.ColorOverride
			if err := env.Decode(&override); err != nil {
				s.log.Debug().Err(err).Msg("Bad color override")
				continue
			}
			s.messages.Add(1)
			client.colors.Add(1)
			s.record(Event{Color: override.Color(), Source: client.Name, Transport: "websocket", At: time.Now()})
		case protocol.TypeClientGoodbye:
			var bye protocol.ClientGoodbye
			_ = env.Decode(&bye)
			s.log.Debug().Str("name", client.Name).Str("reason", bye.Reason).Msg("Client goodbye")
			return
		default:
			s.log.Debug().Str("type", env.Type).Msg("Unknown message type")
		}
	}
}

func (s *Server) sendError(conn *websocket.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(protocol.WriteTimeout))
	conn.WriteJSON(protocol.Message{
		Type:    "server/error",
		Payload: map[string]string{"error": code, "message": message},
	})
}

// record stores the color, notifies OnColor and prints or forwards it
func (s *Server) record(ev Event) {
	s.mu.Lock()
	s.last = ev.Color
	s.lastSource = ev.Source
	show := !s.config.UseTUI && s.config.Out != nil && ev.At.Sub(s.lastPrint) >= s.config.PrintInterval
	if show {
		s.lastPrint = ev.At
	}
	s.mu.Unlock()

	if s.config.OnColor != nil {
		s.config.OnColor(ev)
	}
	if show {
		fmt.Fprintln(s.config.Out, Swatch(ev))
	}
	if s.tui != nil {
		s.tui.Color(ev)
	}
}

// Swatch renders one event as a colored block plus its details
func Swatch(ev Event) string {
	block := lipgloss.NewStyle().Background(lipgloss.Color(ev.Color.Hex())).Render("      ")
	return fmt.Sprintf("%s %s brightness %3d  %-9s %s", block, ev.Color.Hex(), ev.Color.Brightness(), ev.Transport, ev.Source)
}

// Stats returns the counters and connected clients
func (s *Server) Stats() Stats {
	s.mu.Lock()
	st := Stats{Last: s.last, LastSource: s.lastSource}
	s.mu.Unlock()

	st.Datagrams = s.datagrams.Load()
	st.BadDatagrams = s.badDatagrams.Load()
	st.Messages = s.messages.Load()
	st.Clients = s.clientInfo()
	return st
}

func (s *Server) clientInfo() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, ClientInfo{ID: c.ID, Name: c.Name, Addr: c.Addr, Colors: c.colors.Load()})
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
	return clients
}
