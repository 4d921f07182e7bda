package domain

import "math"

const (
	TopicData       = "data"
	TopicMonitoring = "monitoring"
)

type InverterData struct {
	HousePowerConsumption float64
	PVPower               float64
	Overproduction        float64
}

// DataNotification is the payload of the "data" push.
type DataNotification struct {
	InverterData InverterData `json:"inverterData"`
	SocketState  bool         `json:"socketState"`
}

// MonitoringNotification is the payload of the "monitoring" push.
type MonitoringNotification struct {
	Enabled bool `json:"enabled"`
}

// Telemetry is the last snapshot shown on the start page. Powers are in
// watts.
type Telemetry struct {
	HousePowerConsumption float64
	PVPowerGenerated      float64
	GridOut               float64
	SocketState           bool
}

func TelemetryFromData(n DataNotification) Telemetry {
	return Telemetry{
		HousePowerConsumption: Round2(n.InverterData.HousePowerConsumption),
		PVPowerGenerated:      Round2(n.InverterData.PVPower),
		GridOut:               Round2(n.InverterData.Overproduction),
		SocketState:           n.SocketState,
	}
}

// Round2 rounds to two decimals, halves rounded up.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
