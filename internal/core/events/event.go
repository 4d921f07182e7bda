package events

import (
	. "github.com/db-tech/conbee2panel/internal/core/domain"
)

func TelemetryToUpdateEvents(t Telemetry) []SensorUpdateEvent {
	var events []SensorUpdateEvent

	// House consumption
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_HOUSE_POWER,
		},
		Value:    t.HousePowerConsumption,
		Decimals: 2,
	})
	// PV generation
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PV_POWER,
		},
		Value:    t.PVPowerGenerated,
		Decimals: 2,
	})
	// Overproduction sent to the grid
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_OVERPRODUCTION,
		},
		Value:    t.GridOut,
		Decimals: 2,
	})
	events = append(events, SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_PLUG,
		},
		Value: t.SocketState,
	})

	return events
}

func MonitoringToUpdateEvents(enabled bool) []SensorUpdateEvent {
	return []SensorUpdateEvent{
		SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SWITCH_ID_MONITORING,
			},
			Value: enabled,
		},
	}
}

func StatusToUpdateEvents(resp StatusResponse) []SensorUpdateEvent {
	return []SensorUpdateEvent{
		TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_ROUTER_STATUS,
			},
			Value: resp.Status.String(),
		},
	}
}

func ConnectionToUpdateEvents(connected bool) []SensorUpdateEvent {
	return []SensorUpdateEvent{
		BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_CONTROLLER_STATE,
			},
			Value: connected,
		},
	}
}

// PanelEventToUpdateEvents maps a panel event from the event stream to the
// sensor updates it implies. Other values yield nil.
func PanelEventToUpdateEvents(event any) []SensorUpdateEvent {
	switch ev := event.(type) {
	case TelemetryUpdatedEvent:
		return TelemetryToUpdateEvents(ev.Telemetry)
	case MonitoringUpdatedEvent:
		return MonitoringToUpdateEvents(ev.Enabled)
	case StatusUpdatedEvent:
		return StatusToUpdateEvents(ev.Response)
	case ConnectionUpdatedEvent:
		return ConnectionToUpdateEvents(ev.Connected)
	}
	return nil
}
