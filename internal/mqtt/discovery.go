package mqtt

import (
	"encoding/json"

	"github.com/db-tech/conbee2panel/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// RetainedMessage is a rendered discovery announcement.
type RetainedMessage struct {
	Topic   string
	Payload []byte
}

func SensorDiscovery(t Topics, sensor domain.GenericSensor) HADiscoveryConfig {
	c := HADiscoveryConfig{
		Device:            newDiscoveryDevice(sensor.Device),
		StateTopic:        t.StateOf(sensor),
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		AvTopic:           t.BridgeState(),
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		// the bridge state is its own availability
		c.AvTopic = ""
		c.PayloadOn, c.PayloadOff = MQTT_PAYLOAD_ONLINE, MQTT_PAYLOAD_OFFLINE
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		c.PayloadOn, c.PayloadOff = MQTT_PAYLOAD_ON, MQTT_PAYLOAD_OFF
	}
	return c
}

func SwitchDiscovery(t Topics, sw domain.GenericSwitch) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:       newDiscoveryDevice(sw.Device),
		StateTopic:   t.SwitchState(sw.Id),
		CommandTopic: t.SwitchCommand(sw.Id),
		AvTopic:      t.BridgeState(),
		Name:         sw.Name,
		UniqueId:     sw.UniqueId,
		Icon:         sw.Icon,
		Platform:     "mqtt",
		PayloadOn:    MQTT_PAYLOAD_ON,
		PayloadOff:   MQTT_PAYLOAD_OFF,
	}
}

// DiscoveryMessages renders the announcements for all sensors, then all
// switches.
func DiscoveryMessages(t Topics, sensors []domain.GenericSensor, switches []domain.GenericSwitch) ([]RetainedMessage, error) {
	out := make([]RetainedMessage, 0, len(sensors)+len(switches))
	for _, s := range sensors {
		payload, err := json.Marshal(SensorDiscovery(t, s))
		if err != nil {
			return nil, err
		}
		out = append(out, RetainedMessage{Topic: t.SensorConfig(s), Payload: payload})
	}
	for _, s := range switches {
		payload, err := json.Marshal(SwitchDiscovery(t, s))
		if err != nil {
			return nil, err
		}
		out = append(out, RetainedMessage{Topic: t.SwitchConfig(s), Payload: payload})
	}
	return out, nil
}

func newDiscoveryDevice(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
