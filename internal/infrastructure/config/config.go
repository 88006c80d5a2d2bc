package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for btsync.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Stream   StreamConfig   `yaml:"stream"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	FastPath FastPathConfig `yaml:"fastpath"`
	Logging  LoggingConfig  `yaml:"logging"`
	Devices  []DeviceConfig `yaml:"devices"`
}

// SessionConfig carries the identity obtained by the external
// credential layer. Opaque to the sync core.
type SessionConfig struct {
	UserID string `yaml:"user_id"`
}

// StreamConfig contains the socket.io stream endpoint settings.
type StreamConfig struct {
	// URL is the full wss:// stream URL including any auth query
	// parameters. Supplied by the session layer; opaque here.
	URL    string `yaml:"url"`
	Origin string `yaml:"origin"`

	// PingInterval and PongTimeout drive the keepalive: a ping goes out
	// every PingInterval seconds, and a connection with no traffic for
	// PingInterval+PongTimeout is treated as dead.
	PingInterval int `yaml:"ping_interval"`
	PongTimeout  int `yaml:"pong_timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Reconnect ReconnectConfig  `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
// The BuildTrack broker only speaks MQTT over WebSocket, so Path and
// Origin are always needed alongside host/port.
type MQTTBrokerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Path   string `yaml:"path"`
	Origin string `yaml:"origin"`
	TLS    bool   `yaml:"tls"`

	// TLSInsecure skips certificate verification. The production broker
	// presents a certificate that does not validate against its
	// WebSocket hostname, so this is on by default.
	TLSInsecure bool `yaml:"tls_insecure"`

	// ClientID is generated by the session layer from account
	// credentials. When empty a random identifier is used.
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// The backend authenticates via client ID; these stay empty for it but
// are kept for self-hosted brokers in test rigs.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// FastPathConfig controls the best-effort direct-to-device HTTP path.
type FastPathConfig struct {
	Enabled bool `yaml:"enabled"`

	// TimeoutSeconds bounds each local call. Failures are logged and
	// swallowed, so this only limits how long the goroutine lingers.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DeviceConfig is one routing entry supplied by discovery: which
// transport carries an endpoint and where to reach it locally.
type DeviceConfig struct {
	// Endpoint is the controller's hardware key (MAC-style string).
	Endpoint string `yaml:"endpoint"`

	// Transport is "stream" or "broker".
	Transport string `yaml:"transport"`

	// LocalAddress is the controller's LAN address for the fast path.
	// Empty disables the fast path for this endpoint.
	LocalAddress string `yaml:"local_address"`

	// Channels lists the pin numbers to register interest in.
	Channels []int `yaml:"channels"`
}

// Transport route values accepted in DeviceConfig.
const (
	TransportStream = "stream"
	TransportBroker = "broker"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BTSYNC_SECTION_KEY
// For example: BTSYNC_STREAM_URL, BTSYNC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Keepalive numbers match what the backend's own web client negotiates.
func defaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			PingInterval: 25,
			PongTimeout:  20,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     120,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port:        443,
				Path:        "/mqtt",
				TLS:         true,
				TLSInsecure: true,
			},
			QoS: 0,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     120,
			},
		},
		FastPath: FastPathConfig{
			Enabled:        true,
			TimeoutSeconds: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BTSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Session
	if v := os.Getenv("BTSYNC_SESSION_USER_ID"); v != "" {
		cfg.Session.UserID = v
	}

	// Stream
	if v := os.Getenv("BTSYNC_STREAM_URL"); v != "" {
		cfg.Stream.URL = v
	}
	if v := os.Getenv("BTSYNC_STREAM_ORIGIN"); v != "" {
		cfg.Stream.Origin = v
	}

	// MQTT
	if v := os.Getenv("BTSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BTSYNC_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("BTSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BTSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Session.UserID == "" {
		errs = append(errs, "session.user_id is required")
	}

	if c.Stream.URL == "" {
		errs = append(errs, "stream.url is required")
	} else if !strings.HasPrefix(c.Stream.URL, "ws://") && !strings.HasPrefix(c.Stream.URL, "wss://") {
		errs = append(errs, "stream.url must be a ws:// or wss:// URL")
	}
	if c.Stream.PingInterval <= 0 {
		errs = append(errs, "stream.ping_interval must be positive")
	}
	if c.Stream.PongTimeout <= 0 {
		errs = append(errs, "stream.pong_timeout must be positive")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.FastPath.Enabled && c.FastPath.TimeoutSeconds <= 0 {
		errs = append(errs, "fastpath.timeout_seconds must be positive when enabled")
	}

	for i, d := range c.Devices {
		if d.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].endpoint is required", i))
		}
		if d.Transport != TransportStream && d.Transport != TransportBroker {
			errs = append(errs, fmt.Sprintf("devices[%d].transport must be %q or %q", i, TransportStream, TransportBroker))
		}
		for _, ch := range d.Channels {
			if ch < 1 {
				errs = append(errs, fmt.Sprintf("devices[%d].channels must be positive pin numbers", i))
				break
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPingInterval returns the stream ping interval as a Duration.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.Stream.PingInterval) * time.Second
}

// GetPongTimeout returns the stream pong timeout as a Duration.
func (c *Config) GetPongTimeout() time.Duration {
	return time.Duration(c.Stream.PongTimeout) * time.Second
}

// GetFastPathTimeout returns the fast-path call timeout as a Duration.
func (c *Config) GetFastPathTimeout() time.Duration {
	return time.Duration(c.FastPath.TimeoutSeconds) * time.Second
}
