// ABOUTME: FruityPi wire message definitions
// ABOUTME: Binary color datagrams for UDP and JSON messages for WebSocket and MQTT
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FruityPi/fruitypi-go/pkg/color"
)

const (
	// OpColorOverride tells the light to show the color that follows
	OpColorOverride byte = 0x01

	// ColorDatagramSize is the length of an encoded color datagram
	ColorDatagramSize = 4

	// DefaultPort is where fruitypi-listen accepts datagrams and WebSocket clients
	DefaultPort = 7331

	// WebSocketPath is the HTTP path of the WebSocket endpoint
	WebSocketPath = "/fruitypi"

	// ProtocolVersion is sent in both hellos
	ProtocolVersion = 1
)

// JSON message types
const (
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeColorOverride = "color/override"
	TypeClientGoodbye = "client/goodbye"
)

var (
	// ErrShortDatagram is returned for datagrams shorter than ColorDatagramSize
	ErrShortDatagram = errors.New("color datagram too short")

	// ErrUnknownOpcode is returned for datagrams that are not color overrides
	ErrUnknownOpcode = errors.New("unknown datagram opcode")
)

// MarshalColor encodes c as [OpColorOverride, R, G, B]
func MarshalColor(c color.Color) []byte {
	return AppendColor(make([]byte, 0, ColorDatagramSize), c)
}

// AppendColor appends the datagram form of c to dst
func AppendColor(dst []byte, c color.Color) []byte {
	return append(dst, OpColorOverride, c.R, c.G, c.B)
}

// UnmarshalColor decodes a color datagram. Trailing bytes are ignored.
func UnmarshalColor(data []byte) (color.Color, error) {
	if len(data) < ColorDatagramSize {
		return color.Color{}, fmt.Errorf("%w: %d bytes", ErrShortDatagram, len(data))
	}
	if data[0] != OpColorOverride {
		return color.Color{}, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, data[0])
	}
	return color.RGB(data[1], data[2], data[3]), nil
}

// Message is the top-level wrapper for all JSON messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is a received Message whose payload has not been decoded yet
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEnvelope reads the message type and keeps the payload raw
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("message has no type")
	}
	return env, nil
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", e.Type, err)
	}
	return nil
}

// ClientHello is sent by a visualizer to open a WebSocket session
type ClientHello struct {
	ClientID   string      `json:"client_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// ServerHello is the listener's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ColorOverride carries one color; Hex duplicates the channels for humans
type ColorOverride struct {
	R   uint8  `json:"r"`
	G   uint8  `json:"g"`
	B   uint8  `json:"b"`
	Hex string `json:"hex"`
}

// NewColorOverride builds the payload for c
func NewColorOverride(c color.Color) ColorOverride {
	return ColorOverride{R: c.R, G: c.G, B: c.B, Hex: c.Hex()}
}

// Color returns the carried color
func (o ColorOverride) Color() color.Color {
	return color.RGB(o.R, o.G, o.B)
}

// ClientGoodbye is sent before a visualizer disconnects
type ClientGoodbye struct {
	Reason string `json:"reason"`
}

// ColorMessage wraps c as a color/override message
func ColorMessage(c color.Color) Message {
	return Message{Type: TypeColorOverride, Payload: NewColorOverride(c)}
}
