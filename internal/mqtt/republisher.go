// Package mqtt mirrors data-* bus events onto an external MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"system_bridge/internal/logger"
	"system_bridge/internal/models"
)

// TopicRoot prefixes every published topic.
const TopicRoot = "systembridge"

const (
	reconnectInterval = 10 * time.Second
	connectWait       = 5 * time.Second
	publishWait       = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

// SettingsReader is the part of the settings store the republisher reads.
type SettingsReader interface {
	GetString(ctx context.Context, key, def string) (string, error)
	GetInt(ctx context.Context, key string, def int) (int, error)
	GetBool(ctx context.Context, key string, def bool) (bool, error)
}

// client is the subset of paho.Client in use.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

type Republisher struct {
	settings SettingsReader
	clientID string
	log      *logger.Logger

	newClient func(opts *paho.ClientOptions) client

	mu     sync.Mutex
	client client
}

// New builds a republisher publishing as clientID, normally the OS UUID.
func New(settings SettingsReader, clientID string, log *logger.Logger) *Republisher {
	return &Republisher{
		settings: settings,
		clientID: clientID,
		log:      log,
		newClient: func(opts *paho.ClientOptions) client {
			return paho.NewClient(opts)
		},
	}
}

// Setup connects to the broker when mqtt-enabled is set. Reconnects are left
// to the client library on a fixed interval, so a broker that is down at
// startup is not an error here.
func (r *Republisher) Setup(ctx context.Context) error {
	enabled, err := r.settings.GetBool(ctx, models.SettingMQTTEnabled, false)
	if err != nil {
		return fmt.Errorf("read %s: %w", models.SettingMQTTEnabled, err)
	}
	if !enabled {
		r.log.Infow("mqtt_disabled")
		return nil
	}

	host, err := r.settings.GetString(ctx, models.SettingMQTTHost, "localhost")
	if err != nil {
		return err
	}
	port, err := r.settings.GetInt(ctx, models.SettingMQTTPort, 1883)
	if err != nil {
		return err
	}
	user, err := r.settings.GetString(ctx, models.SettingMQTTUsername, "")
	if err != nil {
		return err
	}
	pass, err := r.settings.GetString(ctx, models.SettingMQTTPassword, "")
	if err != nil {
		return err
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.SetClientID(r.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectInterval)
	opts.SetMaxReconnectInterval(reconnectInterval)
	if user != "" {
		opts.SetUsername(user)
		opts.SetPassword(pass)
	}
	opts.SetOnConnectHandler(func(paho.Client) {
		r.log.Infow("mqtt_connected", "broker", fmt.Sprintf("%s:%d", host, port))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		r.log.Warnw("mqtt_connection_lost", "err", err)
	})

	c := r.newClient(opts)
	token := c.Connect()
	if token.WaitTimeout(connectWait) && token.Error() != nil {
		r.log.Warnw("mqtt_connect_failed", "err", token.Error())
	}

	r.mu.Lock()
	r.client = c
	r.mu.Unlock()
	return nil
}

// Topic returns the full topic for suffix.
func (r *Republisher) Topic(suffix string) string {
	return TopicRoot + "/" + r.clientID + "/" + suffix
}

// Publish sends payload as JSON, QoS 0 and retained. Failures are logged.
func (r *Republisher) Publish(suffix string, payload any) {
	r.mu.Lock()
	c := r.client
	r.mu.Unlock()
	if c == nil {
		return
	}

	b, err := json.Marshal(payload)
	if err != nil {
		r.log.Warnw("mqtt_encode_failed", "topic", suffix, "err", err)
		return
	}

	topic := r.Topic(suffix)
	token := c.Publish(topic, 0, true, b)
	go func() {
		if token.WaitTimeout(publishWait) && token.Error() != nil {
			r.log.Warnw("mqtt_publish_failed", "topic", topic, "err", token.Error())
		}
	}()
}

// Mirror publishes a data-* event under data/<service>[-<method>].
func (r *Republisher) Mirror(ev models.Event) {
	if !ev.IsData() {
		return
	}
	r.Publish("data/"+strings.TrimPrefix(ev.Name, models.DataEventPrefix), ev.Data)
}

// Close disconnects from the broker if connected.
func (r *Republisher) Close() {
	r.mu.Lock()
	c := r.client
	r.client = nil
	r.mu.Unlock()
	if c != nil {
		c.Disconnect(disconnectQuiesce)
		r.log.Infow("mqtt_disconnected")
	}
}
