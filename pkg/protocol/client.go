// ABOUTME: WebSocket client for FruityPi protocol communication
// ABOUTME: Handles connection, hello handshake and color messages
package protocol

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// HandshakeTimeout bounds the wait for server/hello
	HandshakeTimeout = 5 * time.Second

	// WriteTimeout bounds a single message write
	WriteTimeout = 2 * time.Second
)

// Config holds client configuration
type Config struct {
	ServerAddr string
	ClientID   string
	Name       string
	DeviceInfo DeviceInfo
	Logger     zerolog.Logger
}

// Client is a WebSocket connection to a listener
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex
	log    zerolog.Logger

	// ServerHello is set once the handshake completes
	ServerHello ServerHello

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config: config,
		log:    config.Logger.With().Str("server", config.ServerAddr).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect establishes the WebSocket connection and performs the handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: WebSocketPath}
	c.log.Debug().Str("url", u.String()).Msg("Connecting")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = HandshakeTimeout
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake sends client/hello and waits for server/hello
func (c *Client) handshake() error {
	hello := ClientHello{
		ClientID:   c.config.ClientID,
		Name:       c.config.Name,
		Version:    ProtocolVersion,
		DeviceInfo: &c.config.DeviceInfo,
	}

	if err := c.sendJSON(Message{Type: TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	env, err := ParseEnvelope(data)
	if err != nil {
		return err
	}
	if env.Type != TypeServerHello {
		return fmt.Errorf("expected %s, got %s", TypeServerHello, env.Type)
	}
	if err := env.Decode(&c.ServerHello); err != nil {
		return err
	}

	c.log.Info().
		Str("server_id", c.ServerHello.ServerID).
		Str("server_name", c.ServerHello.Name).
		Msg("Handshake complete with listener")
	return nil
}

// sendJSON writes one JSON message
func (c *Client) sendJSON(msg Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return c.conn.WriteJSON(msg)
}

// readMessages drains the connection so control frames are processed and
// a dropped connection is noticed
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("Read error")
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}
		env, err := ParseEnvelope(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("Ignoring malformed message")
			continue
		}
		c.log.Debug().Str("type", env.Type).Msg("Ignoring message from listener")
	}
}

// SendColor sends a color/override message
func (c *Client) SendColor(col color.Color) error {
	return c.sendJSON(ColorMessage(col))
}

// SendGoodbye sends a client/goodbye message before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.sendJSON(Message{Type: TypeClientGoodbye, Payload: ClientGoodbye{Reason: reason}})
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.log.Debug().Msg("Connection closed")
	}
}

// Done is closed once the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
