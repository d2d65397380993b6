// ABOUTME: UDP color sink
// ABOUTME: Sends one 4-byte datagram per color to a listener
package sink

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/protocol"
	"github.com/rs/zerolog"
)

// UDP writes color datagrams on a connected socket
type UDP struct {
	conn net.Conn
	log  zerolog.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// DialUDP connects to addr ("host:port")
func DialUDP(addr string, log zerolog.Logger) (*UDP, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	log = log.With().Str("sink", "udp").Str("addr", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("Sending colors over UDP")

	return &UDP{
		conn: conn,
		log:  log.Sample(&zerolog.BurstSampler{Burst: 1, Period: 10 * time.Second}),
	}, nil
}

// Send implements visualizer.Sink. Write errors (e.g. ICMP refused) are
// counted, never returned.
func (u *UDP) Send(c color.Color) {
	var datagram [protocol.ColorDatagramSize]byte
	if _, err := u.conn.Write(protocol.AppendColor(datagram[:0], c)); err != nil {
		u.dropped.Add(1)
		u.log.Debug().Err(err).Msg("Datagram write failed")
		return
	}
	u.sent.Add(1)
}

// Sent is the number of datagrams written
func (u *UDP) Sent() uint64 {
	return u.sent.Load()
}

// Dropped is the number of datagrams that failed to write
func (u *UDP) Dropped() uint64 {
	return u.dropped.Load()
}

// Close closes the socket
func (u *UDP) Close() error {
	return u.conn.Close()
}
