// ABOUTME: Visualizer configuration backed by viper
// ABOUTME: Merges defaults, an optional YAML file, FRUITYPI_ env vars and CLI flags
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/loudness"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. FRUITYPI_SINK_ADDRESS
const EnvPrefix = "FRUITYPI"

// Transports a sink can use
const (
	TransportUDP       = "udp"
	TransportWebSocket = "websocket"
	TransportMQTT      = "mqtt"
)

// Config is the complete visualizer configuration
type Config struct {
	Device    DeviceConfig    `mapstructure:"device"`
	Format    FormatConfig    `mapstructure:"format"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Log       LogConfig       `mapstructure:"log"`
	UI        UIConfig        `mapstructure:"ui"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// DeviceConfig selects the capture driver and device
type DeviceConfig struct {
	Driver        string  `mapstructure:"driver"`
	ID            string  `mapstructure:"id"`
	File          string  `mapstructure:"file"`
	Loopback      bool    `mapstructure:"loopback"`
	ToneFrequency float64 `mapstructure:"tone_frequency"`
}

// FormatConfig is the requested capture format
type FormatConfig struct {
	SampleRate    int `mapstructure:"sample_rate"`
	BitsPerSample int `mapstructure:"bits_per_sample"`
	Channels      int `mapstructure:"channels"`
}

// CaptureConfig sizes the buffer ring
type CaptureConfig struct {
	Buffers          int `mapstructure:"buffers"`
	BuffersPerSecond int `mapstructure:"buffers_per_second"`
}

// FilterConfig tunes the loudness filter
type FilterConfig struct {
	Window    int    `mapstructure:"window"`
	Gain      int    `mapstructure:"gain"`
	BaseColor string `mapstructure:"base_color"`
}

// SinkConfig describes where colors go
type SinkConfig struct {
	Transport  []string `mapstructure:"transport"`
	Address    string   `mapstructure:"address"`
	Port       int      `mapstructure:"port"`
	Name       string   `mapstructure:"name"`
	MQTTBroker string   `mapstructure:"mqtt_broker"`
	MQTTTopic  string   `mapstructure:"mqtt_topic"`
	MQTTUser   string   `mapstructure:"mqtt_username"`
	MQTTPass   string   `mapstructure:"mqtt_password"`
}

// DiscoveryConfig controls mDNS lookup of a listener
type DiscoveryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig controls zerolog output and file rotation
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// UIConfig toggles the terminal UI
type UIConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HTTPConfig controls the status server; empty Address disables it
type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

// SetDefaults registers a default for every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("device.driver", "malgo")
	v.SetDefault("device.id", "")
	v.SetDefault("device.file", "")
	v.SetDefault("device.loopback", false)
	v.SetDefault("device.tone_frequency", 440.0)

	def := audio.DefaultFormat()
	v.SetDefault("format.sample_rate", def.SampleRate)
	v.SetDefault("format.bits_per_sample", def.BitsPerSample)
	v.SetDefault("format.channels", def.Channels)

	v.SetDefault("capture.buffers", 5)
	v.SetDefault("capture.buffers_per_second", audio.DefaultBuffersPerSecond)

	v.SetDefault("filter.window", loudness.DefaultWindow)
	v.SetDefault("filter.gain", loudness.DefaultGain)
	v.SetDefault("filter.base_color", loudness.DefaultBase.Hex())

	v.SetDefault("sink.transport", []string{TransportUDP})
	v.SetDefault("sink.address", "")
	v.SetDefault("sink.port", 7331)
	v.SetDefault("sink.name", "")
	v.SetDefault("sink.mqtt_broker", "")
	v.SetDefault("sink.mqtt_topic", "fruitypi/color")
	v.SetDefault("sink.mqtt_username", "")
	v.SetDefault("sink.mqtt_password", "")

	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "fruitypi.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("ui.enabled", true)
	v.SetDefault("http.address", "")
}

// New returns a viper instance with defaults and env overrides wired
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (if any) and unmarshals the merged result.
// An empty path searches ./fruitypi.yaml and ~/.config/fruitypi/; a missing
// file there is not an error, a missing explicit path is.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fruitypi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fruitypi")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for i, t := range cfg.Sink.Transport {
		cfg.Sink.Transport[i] = strings.ToLower(strings.TrimSpace(t))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check
func (c *Config) Validate() error {
	if err := c.AudioFormat().Validate(); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	if c.Capture.Buffers < 1 {
		return fmt.Errorf("capture.buffers must be at least 1, got %d", c.Capture.Buffers)
	}
	if c.Capture.BuffersPerSecond < 1 {
		return fmt.Errorf("capture.buffers_per_second must be at least 1, got %d", c.Capture.BuffersPerSecond)
	}
	if c.Filter.Window < 1 {
		return fmt.Errorf("filter.window must be at least 1, got %d", c.Filter.Window)
	}
	if _, err := color.Parse(c.Filter.BaseColor); err != nil {
		return fmt.Errorf("filter.base_color: %w", err)
	}

	if len(c.Sink.Transport) == 0 {
		return fmt.Errorf("sink.transport must name at least one transport")
	}
	for _, t := range c.Sink.Transport {
		switch t {
		case TransportUDP, TransportWebSocket:
		case TransportMQTT:
			if c.Sink.MQTTBroker == "" {
				return fmt.Errorf("sink.mqtt_broker is required for the mqtt transport")
			}
		default:
			return fmt.Errorf("unknown sink transport %q", t)
		}
	}
	if c.Sink.Port <= 0 || c.Sink.Port > 65535 {
		return fmt.Errorf("sink.port out of range: %d", c.Sink.Port)
	}
	if c.Sink.Address == "" && !c.Discovery.Enabled {
		return fmt.Errorf("sink.address is required when discovery is disabled")
	}
	return nil
}

// AudioFormat returns the requested capture format
func (c *Config) AudioFormat() audio.Format {
	return audio.Format{
		SampleRate:    c.Format.SampleRate,
		BitsPerSample: c.Format.BitsPerSample,
		Channels:      c.Format.Channels,
	}.Normalize()
}

// LoudnessConfig returns the filter settings; Validate has checked the color
func (c *Config) LoudnessConfig() loudness.Config {
	cfg := loudness.Config{Window: c.Filter.Window, Gain: c.Filter.Gain}
	if base, err := color.Parse(c.Filter.BaseColor); err == nil {
		cfg.Base = &base
	}
	return cfg
}

// SinkAddr returns "address:port"; an address that already carries a
// port wins over sink.port
func (c *Config) SinkAddr() string {
	if _, _, err := net.SplitHostPort(c.Sink.Address); err == nil {
		return c.Sink.Address
	}
	return net.JoinHostPort(c.Sink.Address, strconv.Itoa(c.Sink.Port))
}

// HasTransport reports whether t is one of the configured transports
func (c *Config) HasTransport(t string) bool {
	for _, have := range c.Sink.Transport {
		if have == t {
			return true
		}
	}
	return false
}
