package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/devicesync-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for one connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultReconnectInterval is the fixed delay between reconnect attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options configures a Bridge.
type Options struct {
	// ClientID identifies this process to the broker.
	ClientID string

	// Namespace is the first topic segment of device topics ("esp32").
	Namespace string

	// QoS is used for subscriptions and the status messages.
	QoS byte

	// ReconnectInterval is the fixed delay between reconnect attempts.
	ReconnectInterval time.Duration

	// MaxReconnectAttempts bounds consecutive failed reconnects before the
	// bridge enters StateError. 0 retries forever.
	MaxReconnectAttempts int

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration
}

// OptionsFromConfig builds bridge options from the mqtt config section.
func OptionsFromConfig(cfg config.MQTTConfig) Options {
	return Options{
		ClientID:             cfg.Broker.ClientID,
		Namespace:            cfg.Namespace,
		QoS:                  byte(cfg.QoS), //nolint:gosec // validated 0-2 by config
		ReconnectInterval:    cfg.ReconnectInterval(),
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
	}
}

func (o Options) withDefaults() Options {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.ClientID == "" {
		o.ClientID = "devicesync"
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = defaultReconnectInterval
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.QoS > maxQoS {
		o.QoS = maxQoS
	}
	return o
}

// Credentials authenticate against the broker.
type Credentials struct {
	Username string
	Password string
}

// buildClientOptions creates paho options for one bridge generation.
//
// paho's own auto-reconnect is disabled: the bridge runs its own
// fixed-interval loop so callers observe every attempt as a state change.
func buildClientOptions(o Options, brokerURL string, creds *Credentials) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(o.ClientID)

	if creds != nil && creds.Username != "" {
		opts.SetUsername(creds.Username)
		opts.SetPassword(creds.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Handlers run in receive order on paho's router goroutine, which keeps
	// per-topic telemetry ordered.
	opts.SetOrderMatters(true)

	if strings.HasPrefix(brokerURL, "ssl://") || strings.HasPrefix(brokerURL, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	configureLWT(opts, o)
	return opts
}

// statusPayload is published retained on the core status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildStatusPayload(clientID, status, reason string) []byte {
	data, _ := json.Marshal(statusPayload{ //nolint:errcheck // plain struct cannot fail
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

// configureLWT sets up Last Will and Testament so dashboards can tell the
// sync core crashed.
//
// Topic: devicesync/core/status
// QoS: 1
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, o Options) {
	opts.SetBinaryWill(CoreStatusTopic, buildStatusPayload(o.ClientID, "offline", "unexpected_disconnect"), 1, true)
}
