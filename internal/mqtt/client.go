package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/db-tech/conbee2panel/internal/config"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
)

var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrTimeout        = errors.New("MQTT operation timed out")
)

// ConnectionHooks are called from paho's goroutines.
type ConnectionHooks struct {
	OnConnect func()
	OnLost    func(error)
}

// MQTTClient wraps paho with the panel topic layout. Every operation is
// asynchronous and reports its outcome through a continuation.
type MQTTClient struct {
	Topics Topics
	client paho.Client
}

// ParsedMQTTCommand is a command received on <base>/switch/<id>/command.
type ParsedMQTTCommand struct {
	DeviceId string
	Command  string
	Payload  string
}

// On reports whether the payload asks to turn the switch on.
func (c ParsedMQTTCommand) On() bool {
	return strings.EqualFold(strings.TrimSpace(c.Payload), MQTT_PAYLOAD_ON)
}

func NewMQTTClient(cfg config.MQTTConfig, hooks ConnectionHooks) *MQTTClient {
	topics := NewTopics(cfg)
	opts := clientOptions(cfg, topics)
	if hooks.OnConnect != nil {
		opts.OnConnect = func(paho.Client) { hooks.OnConnect() }
	}
	if hooks.OnLost != nil {
		opts.OnConnectionLost = func(_ paho.Client, err error) { hooks.OnLost(err) }
	}
	return &MQTTClient{
		Topics: topics,
		client: paho.NewClient(opts),
	}
}

// clientOptions sets a retained "offline" will on the bridge state topic.
func clientOptions(cfg config.MQTTConfig, topics Topics) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(fmt.Sprintf("conbee2panel_%d", rand.Intn(1000))).
		SetWill(topics.BridgeState(), MQTT_PAYLOAD_OFFLINE, 0, true)
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	return opts
}

func (c *MQTTClient) Connect(timeout time.Duration, done func(error)) {
	go await(c.client.Connect(), "connect", timeout, done)
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, timeout time.Duration, done func(error)) {
	go await(c.client.Publish(topic, qos, retain, payload), "publish", timeout, done)
}

// SubscribeCommands delivers every well formed switch command to onCommand.
// Messages on other topics are dropped.
func (c *MQTTClient) SubscribeCommands(onCommand func(*ParsedMQTTCommand), timeout time.Duration, done func(error)) {
	token := c.client.Subscribe(c.Topics.CommandFilter(), 1, func(_ paho.Client, m paho.Message) {
		if cmd, err := c.Topics.ParseCommand(m.Topic(), m.Payload()); err == nil {
			onCommand(cmd)
		}
	})
	go await(token, "subscribe", timeout, done)
}

func await(token paho.Token, op string, timeout time.Duration, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if !token.WaitTimeout(timeout) {
		done(fmt.Errorf("%s: %w", op, ErrTimeout))
		return
	}
	done(token.Error())
}
