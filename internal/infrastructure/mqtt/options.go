package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/buildtrack-sync/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive matches the backend web client's negotiated keepalive.
	defaultKeepAlive = 10 * time.Second

	// mqttProtocolVersion pins MQTT 3.1; the backend rejects 3.1.1 CONNECTs.
	mqttProtocolVersion = 3

	// willTopic/willPayload are what the backend expects as LWT. The odd
	// payload text is the backend's own, verbatim.
	willTopic   = "WillMsg"
	willPayload = "Connection Closed abnormally..!"
)

// buildClientOptions creates paho MQTT options from btsync config.
//
// This configures:
//   - WebSocket broker URL (ws:// or wss:// with the broker path)
//   - Origin header (the broker checks it like a browser endpoint)
//   - Client ID, generated when config leaves it blank
//   - Persistent session (the backend tracks subscriptions per client ID)
//   - Auto-reconnect with bounded delay
//   - TLS configuration, optionally without certificate verification
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "ws"
	if cfg.Broker.TLS {
		scheme = "wss"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d%s", scheme, cfg.Broker.Host, cfg.Broker.Port, cfg.Broker.Path)
	opts.AddBroker(brokerURL)

	opts.SetClientID(effectiveClientID(cfg.Broker.ClientID))
	opts.SetProtocolVersion(mqttProtocolVersion)

	// The backend authenticates via client ID; credentials are only set
	// for self-hosted brokers.
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	if cfg.Broker.Origin != "" {
		opts.SetHTTPHeaders(http.Header{"Origin": []string{cfg.Broker.Origin}})
	}

	// Persistent session: the broker replays our subscriptions across
	// reconnects of the same client ID.
	opts.SetCleanSession(false)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetWill(willTopic, willPayload, 0, false)

	if cfg.Broker.TLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if cfg.Broker.TLSInsecure {
			// The production broker's certificate does not validate
			// against its WebSocket hostname.
			tlsConfig.InsecureSkipVerify = true //nolint:gosec
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}

// effectiveClientID returns the configured client ID, or a generated one
// when the session layer did not supply any.
func effectiveClientID(configured string) string {
	if configured != "" {
		return configured
	}
	return "btsync-" + uuid.NewString()
}
