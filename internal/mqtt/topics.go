package mqtt

import (
	"fmt"
	"regexp"

	"github.com/db-tech/conbee2panel/internal/config"
	"github.com/db-tech/conbee2panel/internal/core/domain"
)

// Topics lays out the panel entities below the configured base topic.
//
//	<base>/bridge/state
//	<base>/sensor/<id>/state
//	<base>/binary_sensor/<id>/state
//	<base>/switch/<id>/state
//	<base>/switch/<id>/command
type Topics struct {
	Base      string
	Discovery string

	command *regexp.Regexp
}

func NewTopics(cfg config.MQTTConfig) Topics {
	return Topics{
		Base:      cfg.BaseTopic,
		Discovery: cfg.HADiscoveryTopic,
		command:   regexp.MustCompile(fmt.Sprintf("^%s/switch/([a-zA-Z0-9_]+)/command$", regexp.QuoteMeta(cfg.BaseTopic))),
	}
}

func (t Topics) BridgeState() string {
	return t.Base + "/bridge/state"
}

func (t Topics) SensorState(id string) string {
	return t.entity("sensor", id, "state")
}

func (t Topics) BinarySensorState(id string) string {
	return t.entity("binary_sensor", id, "state")
}

func (t Topics) SwitchState(id string) string {
	return t.entity("switch", id, "state")
}

func (t Topics) SwitchCommand(id string) string {
	return t.entity("switch", id, "command")
}

// CommandFilter matches the command topic of every switch.
func (t Topics) CommandFilter() string {
	return t.SwitchCommand("+")
}

// StateOf is the topic a sensor publishes its value on.
func (t Topics) StateOf(sensor domain.GenericSensor) string {
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		return t.BridgeState()
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		return t.BinarySensorState(sensor.Id)
	default:
		return t.SensorState(sensor.Id)
	}
}

func (t Topics) SensorConfig(sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.Discovery, sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func (t Topics) SwitchConfig(sw domain.GenericSwitch) string {
	return fmt.Sprintf("%s/switch/%s/%s/config", t.Discovery, sw.Device.Id, sw.Id)
}

// ParseCommand extracts the switch id from a command topic.
func (t Topics) ParseCommand(topic string, payload []byte) (*ParsedMQTTCommand, error) {
	m := t.command.FindStringSubmatch(topic)
	if len(m) != 2 {
		return nil, ErrInvalidCommand
	}
	return &ParsedMQTTCommand{
		DeviceId: m[1],
		Command:  "switch",
		Payload:  string(payload),
	}, nil
}

func (t Topics) entity(kind, id, leaf string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Base, kind, id, leaf)
}
