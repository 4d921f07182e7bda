package util

import (
	"github.com/db-tech/conbee2panel/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Controller: config.ControllerConfig{
			Host:                   "localhost",
			Port:                   8888,
			Path:                   "/ws",
			Name:                   "Conbee2Controller",
			HandshakeTimeoutMillis: 1000,
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "conbee2panel",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		Session: config.SessionConfig{
			CookieName:    "user",
			CookieMaxDays: 365,
		},
		RateLimit: config.RateLimitConfig{
			ActionsPerSecond: 5,
			Burst:            10,
		},
		Port: 8080,
	}
}
