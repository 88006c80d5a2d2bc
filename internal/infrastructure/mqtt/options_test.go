package mqtt

import (
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/buildtrack-sync/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// No broker is required; these tests exercise option building only.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:        "broker.example.com",
			Port:        443,
			Path:        "/mqtt",
			Origin:      "https://app.example.com",
			ClientID:    "btsync-test",
			TLS:         true,
			TLSInsecure: true,
		},
		QoS: 0,
		Reconnect: config.ReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     120,
		},
	}
}

// =============================================================================
// Option Building Tests
// =============================================================================

func TestBuildClientOptions_BrokerURL(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker URL, got %d", len(opts.Servers))
	}

	got := opts.Servers[0].String()
	want := "wss://broker.example.com:443/mqtt"
	if got != want {
		t.Errorf("broker URL = %q, want %q", got, want)
	}
}

func TestBuildClientOptions_PlainWebSocket(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = false
	cfg.Broker.Port = 8080

	opts := buildClientOptions(cfg)

	got := opts.Servers[0].String()
	if !strings.HasPrefix(got, "ws://") {
		t.Errorf("broker URL = %q, want ws:// scheme", got)
	}
	if opts.TLSConfig != nil {
		t.Error("expected no TLS config for plain WebSocket")
	}
}

func TestBuildClientOptions_SessionAndProtocol(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if opts.CleanSession {
		t.Error("CleanSession = true, want false (broker tracks session per client ID)")
	}
	if opts.ProtocolVersion != mqttProtocolVersion {
		t.Errorf("ProtocolVersion = %d, want %d", opts.ProtocolVersion, mqttProtocolVersion)
	}
	if opts.KeepAlive != int64(defaultKeepAlive/time.Second) {
		t.Errorf("KeepAlive = %d, want %d", opts.KeepAlive, int64(defaultKeepAlive/time.Second))
	}
}

func TestBuildClientOptions_Will(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if !opts.WillEnabled {
		t.Fatal("expected Last Will to be enabled")
	}
	if opts.WillTopic != willTopic {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, willTopic)
	}
	if string(opts.WillPayload) != willPayload {
		t.Errorf("WillPayload = %q, want %q", opts.WillPayload, willPayload)
	}
	if opts.WillRetained {
		t.Error("WillRetained = true, want false")
	}
}

func TestBuildClientOptions_OriginHeader(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if got := opts.HTTPHeaders.Get("Origin"); got != "https://app.example.com" {
		t.Errorf("Origin header = %q, want %q", got, "https://app.example.com")
	}
}

func TestBuildClientOptions_TLSInsecure(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if opts.TLSConfig == nil {
		t.Fatal("expected TLS config")
	}
	if !opts.TLSConfig.InsecureSkipVerify {
		t.Error("InsecureSkipVerify = false, want true")
	}
}

func TestBuildClientOptions_Reconnect(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != 120*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 120s", opts.MaxReconnectInterval)
	}
	if opts.ConnectRetryInterval != 1*time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 1s", opts.ConnectRetryInterval)
	}
}

// =============================================================================
// Client ID Tests
// =============================================================================

func TestEffectiveClientID_Configured(t *testing.T) {
	if got := effectiveClientID("btsync-test"); got != "btsync-test" {
		t.Errorf("effectiveClientID = %q, want %q", got, "btsync-test")
	}
}

func TestEffectiveClientID_Generated(t *testing.T) {
	got := effectiveClientID("")
	if !strings.HasPrefix(got, "btsync-") {
		t.Errorf("generated client ID %q missing btsync- prefix", got)
	}
	if len(got) <= len("btsync-") {
		t.Error("generated client ID has no unique suffix")
	}

	other := effectiveClientID("")
	if got == other {
		t.Error("expected distinct generated client IDs")
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}
