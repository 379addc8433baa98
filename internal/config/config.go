// ABOUTME: Configuration for the WSAudio player and relay
// ABOUTME: Loaded with viper from defaults, wsaudio.yaml, WSAUDIO_* env vars and flags
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
	"github.com/wsaudio/wsaudio-go/pkg/audio/decode"
	"github.com/wsaudio/wsaudio-go/pkg/audio/output"
	"github.com/wsaudio/wsaudio-go/pkg/playout"
)

// Config holds all configuration for both binaries
type Config struct {
	Player    PlayerConfig    `mapstructure:"player"`
	Codec     CodecConfig     `mapstructure:"codec"`
	Server    ServerConfig    `mapstructure:"server"`
	Output    OutputConfig    `mapstructure:"output"`
	Playout   PlayoutConfig   `mapstructure:"playout"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Relay     RelayConfig     `mapstructure:"relay"`
	TUI       TUIConfig       `mapstructure:"tui"`
}

// PlayerConfig identifies the player to the relay
type PlayerConfig struct {
	Name string `mapstructure:"name"`
}

// CodecConfig describes the audio stream
type CodecConfig struct {
	Name            string `mapstructure:"name"`
	Decoder         string `mapstructure:"decoder"`
	SampleRate      int    `mapstructure:"sample_rate"`
	Channels        int    `mapstructure:"channels"`
	BitDepth        int    `mapstructure:"bit_depth"`
	BufferSize      int    `mapstructure:"buffer_size"`
	Application     int    `mapstructure:"application"`
	FrameDurationMs int    `mapstructure:"frame_duration_ms"`
	Bitrate         int    `mapstructure:"bitrate"`
}

// ServerConfig selects the relay to connect to. An empty address means
// discover one over mDNS.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// OutputConfig selects the audio device
type OutputConfig struct {
	Backend    string `mapstructure:"backend"`
	SampleRate int    `mapstructure:"sample_rate"`
}

// PlayoutConfig tunes the playout buffer
type PlayoutConfig struct {
	MaxLatencyMs int `mapstructure:"max_latency_ms"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
	File   string `mapstructure:"file"`
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// DiscoveryConfig controls mDNS
type DiscoveryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RelayConfig configures wsaudio-relay
type RelayConfig struct {
	Listen    string  `mapstructure:"listen"`
	Name      string  `mapstructure:"name"`
	Source    string  `mapstructure:"source"`
	File      string  `mapstructure:"file"`
	ToneHz    float64 `mapstructure:"tone_hz"`
	StaticDir string  `mapstructure:"static_dir"`
	MDNS      bool    `mapstructure:"mdns"`
}

// TUIConfig toggles the terminal UI
type TUIConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("player.name", "")

	v.SetDefault("codec.name", "opus")
	v.SetDefault("codec.decoder", decode.BackendLibopus)
	v.SetDefault("codec.sample_rate", playout.DefaultSampleRate)
	v.SetDefault("codec.channels", playout.DefaultChannels)
	v.SetDefault("codec.bit_depth", 16)
	v.SetDefault("codec.buffer_size", playout.DefaultBlockSize)
	v.SetDefault("codec.application", 2049)
	v.SetDefault("codec.frame_duration_ms", 10)
	v.SetDefault("codec.bitrate", 0)

	v.SetDefault("server.address", "")
	v.SetDefault("server.path", "/ws")

	v.SetDefault("output.backend", output.BackendMalgo)
	v.SetDefault("output.sample_rate", 48000)

	v.SetDefault("playout.max_latency_ms", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.listen", "")

	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.timeout", "10s")

	v.SetDefault("relay.listen", "0.0.0.0:8283")
	v.SetDefault("relay.name", "wsaudio-relay")
	v.SetDefault("relay.source", "tone")
	v.SetDefault("relay.file", "")
	v.SetDefault("relay.tone_hz", 440.0)
	v.SetDefault("relay.static_dir", "")
	v.SetDefault("relay.mdns", true)

	v.SetDefault("tui.enabled", true)
}

// Load reads configuration from defaults, the optional config file and
// the environment. A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("wsaudio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.wsaudio")
		v.AddConfigPath("/etc/wsaudio")
	}

	v.SetEnvPrefix("WSAUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logrus.Debug("No config file found, using defaults and environment variables")
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Info("Using config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the settings shared by both binaries
func (c *Config) Validate() error {
	if err := c.StreamFormat().Validate(); err != nil {
		return &ConfigError{Field: "codec", Message: err.Error()}
	}
	if c.Codec.BufferSize <= 0 {
		return &ConfigError{Field: "codec.buffer_size", Message: "must be positive"}
	}
	if c.Codec.FrameDurationMs <= 0 {
		return &ConfigError{Field: "codec.frame_duration_ms", Message: "must be positive"}
	}
	if c.Output.SampleRate <= 0 {
		return &ConfigError{Field: "output.sample_rate", Message: "must be positive"}
	}
	if c.Playout.MaxLatencyMs < 0 {
		return &ConfigError{Field: "playout.max_latency_ms", Message: "must not be negative"}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	return nil
}

// StreamFormat is the format of the audio carried on the wire
func (c *Config) StreamFormat() audio.Format {
	return audio.Format{
		Codec:      c.Codec.Name,
		SampleRate: c.Codec.SampleRate,
		Channels:   c.Codec.Channels,
		BitDepth:   c.Codec.BitDepth,
	}
}

// PlayoutConfig converts the codec and playout sections
func (c *Config) PlayoutConfig() playout.Config {
	return playout.Config{
		SampleRate: c.Codec.SampleRate,
		Channels:   c.Codec.Channels,
		BlockSize:  c.Codec.BufferSize,
		MaxLatency: time.Duration(c.Playout.MaxLatencyMs) * time.Millisecond,
	}
}

// FrameSize is the number of frames per encoded chunk
func (c *Config) FrameSize() int {
	return c.Codec.SampleRate * c.Codec.FrameDurationMs / 1000
}
