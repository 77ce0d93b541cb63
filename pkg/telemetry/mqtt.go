package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultTelemetryTopic  = "v1/devices/me/telemetry"
	DefaultAttributesTopic = "v1/devices/me/attributes"
)

var ErrPublishTimeout = errors.New("telemetry: publish timed out")

type MQTTConfig struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	TelemetryTopic  string
	AttributesTopic string
	QoS             byte
	Timeout         time.Duration
}

// DialMQTT connects to the broker. The client reconnects on its own after
// the first successful connect.
func DialMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("dlms-power-meter-%d", time.Now().UnixNano())
	}
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetWriteTimeout(10 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		_lg.Infof("Connected to MQTT broker %s (client id %s)", cfg.Broker, clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		_lg.Warnf("MQTT connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// MQTTObserver publishes changed resources as a telemetry JSON object.
type MQTTObserver struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

func NewMQTTObserver(client mqtt.Client, cfg MQTTConfig) *MQTTObserver {
	topic := cfg.TelemetryTopic
	if topic == "" {
		topic = DefaultTelemetryTopic
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTObserver{client: client, topic: topic, qos: cfg.QoS, timeout: timeout}
}

type telemetryMessage struct {
	Ts     int64              `json:"ts"`
	Values map[string]float64 `json:"values"`
}

// Notify implements Observer. Nothing is sent while the client is offline.
func (o *MQTTObserver) Notify(ts time.Time, changed []Resource) error {
	if !o.client.IsConnected() {
		return errors.New("telemetry: mqtt client not connected")
	}

	msg := telemetryMessage{Ts: ts.UnixMilli(), Values: make(map[string]float64, len(changed))}
	for _, res := range changed {
		msg.Values[res.Name] = res.Value
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return o.publish(o.topic, payload)
}

// PublishDeviceInfo sends the descriptive resources as client attributes.
func (o *MQTTObserver) PublishDeviceInfo(topic string, info DeviceInfo) error {
	if topic == "" {
		topic = DefaultAttributesTopic
	}
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return o.publish(topic, payload)
}

func (o *MQTTObserver) publish(topic string, payload []byte) error {
	token := o.client.Publish(topic, o.qos, false, payload)
	if !token.WaitTimeout(o.timeout) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	_lg.Debugf("Published %d bytes to %s", len(payload), topic)
	return nil
}
