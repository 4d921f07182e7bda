package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE      = "bridge"
	SENSOR_ID_CONTROLLER_STATE  = "controller_connection"
	SENSOR_ID_ROUTER_STATUS     = "router_status"
	SENSOR_ID_HOUSE_POWER       = "house_power"
	SENSOR_ID_PV_POWER          = "pv_power"
	SENSOR_ID_OVERPRODUCTION    = "overproduction"
	SWITCH_ID_PLUG              = "plug"
	SWITCH_ID_MONITORING        = "monitoring"
	STATE_CLASS_MEASUREMENT     = "measurement"
	DEVICE_CLASS_POWER          = "power"
	DEVICE_CLASS_CONNECTIVITY   = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC     = "diagnostic"
	SENSOR_TYPE_SENSOR          = "sensor"
	SENSOR_TYPE_BINARY          = "binary_sensor"
	DEVICE_MANUFACTURER_DB_TECH = "db-tech"
	DEVICE_MODEL_CONBEE2_PANEL  = "Conbee2 Panel"
	DEVICE_NAME_PREFIX_PANEL    = "Conbee2 Panel"
	DEVICE_ID_PREFIX_PANEL      = "conbee2panel"
	UNIT_OF_MEASUREMENT_WATT    = "W"
	ICON_SOLAR_POWER            = "mdi:solar-power"
	ICON_HOME_LIGHTNING         = "mdi:home-lightning-bolt"
	ICON_TRANSMISSION_TOWER     = "mdi:transmission-tower-export"
	ICON_POWER_SOCKET           = "mdi:power-socket-eu"
	ICON_MONITOR_EYE            = "mdi:monitor-eye"
	ICON_STATE_MACHINE          = "mdi:state-machine"
)

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, duration, total_increasing
	DeviceClass       string // power, connectivity
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

func PanelDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("%s_%s", DEVICE_ID_PREFIX_PANEL, md5HashShort(baseTopic)),
		Manufacturer: DEVICE_MANUFACTURER_DB_TECH,
		Model:        DEVICE_MODEL_CONBEE2_PANEL,
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("%s %s", DEVICE_NAME_PREFIX_PANEL, md5HashShort(baseTopic)),
	}
}

// IdDevice strips a device down to the fields Home Assistant needs to link
// an entity to an already announced device.
func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func PanelSensors(panelDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         panelDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Bridge state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(panelDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(panelDevice),
		Id:             SENSOR_ID_CONTROLLER_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Controller connection",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(panelDevice.Id, SENSOR_ID_CONTROLLER_STATE),
	})

	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(panelDevice),
		Id:             SENSOR_ID_ROUTER_STATUS,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Controller status",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           ICON_STATE_MACHINE,
		UniqueId:       uniqueId(panelDevice.Id, SENSOR_ID_ROUTER_STATUS),
	})

	sensors = append(sensors, powerSensor(panelDevice, SENSOR_ID_PV_POWER, "PV power", ICON_SOLAR_POWER))
	sensors = append(sensors, powerSensor(panelDevice, SENSOR_ID_HOUSE_POWER, "House power", ICON_HOME_LIGHTNING))
	sensors = append(sensors, powerSensor(panelDevice, SENSOR_ID_OVERPRODUCTION, "Overproduction", ICON_TRANSMISSION_TOWER))

	return sensors
}

func PanelSwitches(panelDevice Device) []GenericSwitch {
	return []GenericSwitch{
		{
			Device:   IdDevice(panelDevice),
			Id:       SWITCH_ID_PLUG,
			Name:     "Plug",
			UniqueId: uniqueId(panelDevice.Id, SWITCH_ID_PLUG),
			Icon:     ICON_POWER_SOCKET,
		},
		{
			Device:   IdDevice(panelDevice),
			Id:       SWITCH_ID_MONITORING,
			Name:     "Monitoring",
			UniqueId: uniqueId(panelDevice.Id, SWITCH_ID_MONITORING),
			Icon:     ICON_MONITOR_EYE,
		},
	}
}

func powerSensor(panelDevice Device, id, name, icon string) GenericSensor {
	return GenericSensor{
		Device:            IdDevice(panelDevice),
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: UNIT_OF_MEASUREMENT_WATT,
		Icon:              icon,
		UniqueId:          uniqueId(panelDevice.Id, id),
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
