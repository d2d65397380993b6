// ABOUTME: WebSocket color sink
// ABOUTME: Queues colors for a writer goroutine that keeps a listener session alive
package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebSocketConfig configures the WebSocket sink
type WebSocketConfig struct {
	ServerAddr    string
	ClientID      string // generated when empty
	Name          string
	DeviceInfo    protocol.DeviceInfo
	QueueSize     int           // default 16
	RetryInterval time.Duration // default 2s
	Logger        zerolog.Logger
}

// WebSocket sends color/override messages over a WebSocket session.
// Send never blocks; colors are dropped while the queue is full.
type WebSocket struct {
	config WebSocketConfig
	log    zerolog.Logger
	queue  chan color.Color

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	connected atomic.Bool
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

// NewWebSocket starts the writer goroutine; it connects in the background
func NewWebSocket(config WebSocketConfig) *WebSocket {
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 2 * time.Second
	}

	w := &WebSocket{
		config: config,
		log:    config.Logger.With().Str("sink", "websocket").Str("server", config.ServerAddr).Logger(),
		queue:  make(chan color.Color, config.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Send implements visualizer.Sink
func (w *WebSocket) Send(c color.Color) {
	select {
	case w.queue <- c:
	default:
		w.dropped.Add(1)
	}
}

// Connected reports whether a session is currently open
func (w *WebSocket) Connected() bool {
	return w.connected.Load()
}

// Sent is the number of colors written to the socket
func (w *WebSocket) Sent() uint64 {
	return w.sent.Load()
}

// Dropped is the number of colors lost to a full queue or a failed write
func (w *WebSocket) Dropped() uint64 {
	return w.dropped.Load()
}

// Close says goodbye, closes the session and joins the writer
func (w *WebSocket) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
	return nil
}

func (w *WebSocket) run() {
	defer close(w.done)

	for {
		client := protocol.NewClient(protocol.Config{
			ServerAddr: w.config.ServerAddr,
			ClientID:   w.config.ClientID,
			Name:       w.config.Name,
			DeviceInfo: w.config.DeviceInfo,
			Logger:     w.log,
		})

		if err := client.Connect(); err != nil {
			w.log.Debug().Err(err).Dur("retry_in", w.config.RetryInterval).Msg("Listener unreachable")
			select {
			case <-w.stop:
				return
			case <-time.After(w.config.RetryInterval):
				continue
			}
		}

		w.connected.Store(true)
		stopped := w.session(client)
		w.connected.Store(false)
		if stopped {
			return
		}
	}
}

// session pumps the queue into one connection; true means Close was called
func (w *WebSocket) session(client *protocol.Client) bool {
	defer client.Close()

	for {
		select {
		case <-w.stop:
			if err := client.SendGoodbye("shutdown"); err != nil {
				w.log.Debug().Err(err).Msg("Failed to send goodbye")
			}
			return true

		case <-client.Done():
			w.log.Warn().Msg("Listener connection lost, reconnecting")
			return false

		case c := <-w.queue:
			if err := client.SendColor(c); err != nil {
				w.dropped.Add(1)
				w.log.Warn().Err(err).Msg("Color write failed, reconnecting")
				return false
			}
			w.sent.Add(1)
		}
	}
}
