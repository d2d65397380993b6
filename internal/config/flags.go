// ABOUTME: Command-line flags for the visualizer
// ABOUTME: Registers pflag flags and binds them onto viper keys
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps flag names onto config keys
var flagKeys = map[string]string{
	"driver":      "device.driver",
	"device":      "device.id",
	"file":        "device.file",
	"loopback":    "device.loopback",
	"tone":        "device.tone_frequency",
	"sample-rate": "format.sample_rate",
	"channels":    "format.channels",
	"buffers":     "capture.buffers",
	"window":      "filter.window",
	"gain":        "filter.gain",
	"base-color":  "filter.base_color",
	"transport":   "sink.transport",
	"server":      "sink.address",
	"port":        "sink.port",
	"name":        "sink.name",
	"mqtt-broker": "sink.mqtt_broker",
	"mqtt-topic":  "sink.mqtt_topic",
	"log-level":   "log.level",
	"log-file":    "log.file",
	"http":        "http.address",
}

// RegisterFlags adds the visualizer flags to fs. Defaults shown in help
// come from viper, so the flag defaults here are zero values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("driver", "", "Capture driver: malgo, portaudio, tone or file")
	fs.String("device", "", "Capture device index or name (default: system default)")
	fs.String("file", "", "Audio file to replay with the file driver")
	fs.Bool("loopback", false, "Capture what the system is playing (malgo, Windows)")
	fs.Float64("tone", 0, "Tone driver frequency in Hz")
	fs.Int("sample-rate", 0, "Capture sample rate in Hz")
	fs.Int("channels", 0, "Capture channel count")
	fs.Int("buffers", 0, "Number of capture buffers in the ring")
	fs.Int("window", 0, "Loudness window in buffers")
	fs.Int("gain", 0, "Loudness gain")
	fs.String("base-color", "", "Idle color as #rrggbb")
	fs.StringSlice("transport", nil, "Color transports: udp, websocket, mqtt")
	fs.String("server", "", "Listener address (skip mDNS)")
	fs.Int("port", 0, "Listener port")
	fs.String("name", "", "Visualizer friendly name (default: hostname-fruitypi)")
	fs.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	fs.String("mqtt-topic", "", "MQTT topic for colors")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.String("log-file", "", "Log file path")
	fs.String("http", "", "Status/metrics listen address, e.g. :9090 (empty disables)")
	fs.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	fs.Bool("no-discovery", false, "Never browse mDNS for a listener")
}

// BindFlags binds every flag from RegisterFlags onto its key. Only flags
// the user actually set override file and env values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	if f := fs.Lookup("no-tui"); f != nil && f.Changed {
		v.Set("ui.enabled", f.Value.String() != "true")
	}
	if f := fs.Lookup("no-discovery"); f != nil && f.Changed {
		v.Set("discovery.enabled", f.Value.String() != "true")
	}
	return nil
}
