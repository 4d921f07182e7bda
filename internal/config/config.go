package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "panel"

type Config struct {
	LogLevel   zapcore.Level
	Controller ControllerConfig `mapstructure:"controller"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Session    SessionConfig    `mapstructure:"session"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Port       uint             `mapstructure:"port"`
	HttpLog    bool             `mapstructure:"http_log"`
}

type ControllerConfig struct {
	Host string
	Port uint
	Path string
	Name string
	// URL overrides Host, Port and Path when set.
	URL                    string
	CallTimeoutMillis      uint32 `mapstructure:"call_timeout_millis"`
	StatusRefreshMillis    uint32 `mapstructure:"status_refresh_millis"`
	HandshakeTimeoutMillis uint32 `mapstructure:"handshake_timeout_millis"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type SessionConfig struct {
	CookieName    string `mapstructure:"cookie_name"`
	CookieMaxDays int    `mapstructure:"cookie_max_days"`
}

type RateLimitConfig struct {
	ActionsPerSecond float64 `mapstructure:"actions_per_second"`
	Burst            int
}

func (c ControllerConfig) WebSocketURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("ws://%s:%d%s", c.Host, c.Port, c.Path)
}

func (c ControllerConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMillis) * time.Millisecond
}

func (c ControllerConfig) StatusRefreshInterval() time.Duration {
	return time.Duration(c.StatusRefreshMillis) * time.Millisecond
}

func (c ControllerConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMillis) * time.Millisecond
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
	v.SetDefault("controller.host", "localhost")
	v.SetDefault("controller.port", 8888)
	v.SetDefault("controller.path", "/ws")
	v.SetDefault("controller.name", "Conbee2Controller")
	v.SetDefault("controller.url", "")
	v.SetDefault("controller.call_timeout_millis", 0)
	v.SetDefault("controller.status_refresh_millis", 0)
	v.SetDefault("controller.handshake_timeout_millis", 10000)
	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "conbee2panel")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("session.cookie_name", "user")
	v.SetDefault("session.cookie_max_days", 365)
	v.SetDefault("rate_limit.actions_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
}

// BindEnv makes every key overridable from PANEL_<KEY> with dots replaced
// by underscores, e.g. PANEL_CONTROLLER_HOST.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals v into a Config and validates it. Defaults must have been
// set on v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg Config) Validate() error {
	u, err := url.Parse(cfg.Controller.WebSocketURL())
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("config param controller.url %q is not a ws:// or wss:// url", cfg.Controller.WebSocketURL())
	}
	if cfg.Controller.URL == "" && !strings.HasPrefix(cfg.Controller.Path, "/") {
		return errors.New("config param controller.path must start with /")
	}
	if cfg.Controller.StatusRefreshMillis > 0 && cfg.Controller.StatusRefreshMillis < 1000 {
		return errors.New("config param controller.status_refresh_millis should be 0 or >= 1000")
	}
	if cfg.Session.CookieName == "" {
		return errors.New("config param session.cookie_name must not be empty")
	}
	if cfg.RateLimit.ActionsPerSecond <= 0 {
		return errors.New("config param rate_limit.actions_per_second should be > 0")
	}
	if cfg.RateLimit.Burst < 1 {
		return errors.New("config param rate_limit.burst should be >= 1")
	}
	if cfg.Port == 0 {
		return errors.New("config param port should be > 0")
	}
	return nil
}

// Redacted returns a copy safe for printing.
func (cfg Config) Redacted() Config {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	return cfg
}

func ParseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zap.DebugLevel
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
