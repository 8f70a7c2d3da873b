package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig - HTTP and WebSocket front end.
type ServerConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Port           string   `json:"port" yaml:"port"`
	WebFilesDir    string   `json:"web_files_dir" yaml:"web_files_dir"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// BLEConfig - which bulb and how to reach it.
type BLEConfig struct {
	Address        string  `json:"address" yaml:"address"`
	Transport      string  `json:"transport" yaml:"transport"` // "bluez" or "tinygo"
	Adapter        string  `json:"adapter" yaml:"adapter"`
	ScanTimeout    string  `json:"scan_timeout" yaml:"scan_timeout"`
	ConnectTimeout string  `json:"connect_timeout" yaml:"connect_timeout"`
	PollInterval   string  `json:"poll_interval" yaml:"poll_interval"`
	PollAttempts   int     `json:"poll_attempts" yaml:"poll_attempts"`
	RetryDelay     string  `json:"retry_delay" yaml:"retry_delay"`
	RateLimit      float64 `json:"write_rate_limit" yaml:"write_rate_limit"`
	RateBurst      int     `json:"write_rate_burst" yaml:"write_rate_burst"`
}

// MQTTConfig - MQTT bridge and Home Assistant discovery.
type MQTTConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	Broker             string `json:"broker" yaml:"broker"` // tcp://IP:PORT
	Username           string `json:"username" yaml:"username"`
	Password           string `json:"password" yaml:"password"`
	ClientID           string `json:"client_id" yaml:"client_id"`
	TopicPrefix        string `json:"topic_prefix" yaml:"topic_prefix"`
	HADiscoveryEnabled bool   `json:"ha_discovery_enabled" yaml:"ha_discovery_enabled"`
	HADiscoveryPrefix  string `json:"ha_discovery_prefix" yaml:"ha_discovery_prefix"`
}

// Config is the whole agent configuration.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`
	BLE    BLEConfig    `json:"ble" yaml:"ble"`
	MQTT   MQTTConfig   `json:"mqtt" yaml:"mqtt"`

	ScriptsDir    string `json:"scripts_dir" yaml:"scripts_dir"`
	SchedulesFile string `json:"schedules_file" yaml:"schedules_file"`
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode json: %w", err)
		}
	}
	return nil
}

// Load reads path (JSON, or YAML for .yaml/.yml), applies defaults and
// validates. A missing file yields the defaults, still subject to the
// PLAYBULB_ADDRESS override.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Printf("[Config] %s not found, using defaults.", path)
	case err != nil:
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	if env := os.Getenv("PLAYBULB_ADDRESS"); env != "" {
		cfg.BLE.Address = env
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.BLE.Address = strings.ToUpper(strings.TrimSpace(c.BLE.Address))
	c.BLE.Transport = strings.ToLower(strings.TrimSpace(c.BLE.Transport))
	c.ScriptsDir = strings.TrimSpace(c.ScriptsDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
}

func (c *Config) setDefaults() {
	// Server
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	// BLE
	if c.BLE.Transport == "" {
		c.BLE.Transport = "bluez"
	}
	if c.BLE.Adapter == "" {
		c.BLE.Adapter = "hci0"
	}
	if c.BLE.ScanTimeout == "" {
		c.BLE.ScanTimeout = "30s"
	}
	if c.BLE.ConnectTimeout == "" {
		c.BLE.ConnectTimeout = "10s"
	}
	if c.BLE.PollInterval == "" {
		c.BLE.PollInterval = "1s"
	}
	if c.BLE.PollAttempts <= 0 {
		c.BLE.PollAttempts = 5
	}
	if c.BLE.RetryDelay == "" {
		c.BLE.RetryDelay = "5s"
	}
	if c.BLE.RateLimit == 0 {
		c.BLE.RateLimit = 10.0
	}
	if c.BLE.RateBurst <= 0 {
		c.BLE.RateBurst = 5
	}

	// Files
	if c.ScriptsDir == "" {
		c.ScriptsDir = "scripts"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}

	// MQTT
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "playbulb-controller"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "playbulb"
	}
	if c.MQTT.HADiscoveryPrefix == "" {
		c.MQTT.HADiscoveryPrefix = "homeassistant"
	}
}

func (c *Config) validate() error {
	if c.BLE.Transport != "bluez" && c.BLE.Transport != "tinygo" {
		return fmt.Errorf("config error: 'transport' must be bluez or tinygo, got %q", c.BLE.Transport)
	}
	if c.BLE.RateLimit < 0 {
		return fmt.Errorf("config error: 'write_rate_limit' must be positive")
	}
	for name, v := range map[string]string{
		"scan_timeout":    c.BLE.ScanTimeout,
		"connect_timeout": c.BLE.ConnectTimeout,
		"poll_interval":   c.BLE.PollInterval,
		"retry_delay":     c.BLE.RetryDelay,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("config error: '%s' must be a positive duration, got %q", name, v)
		}
	}
	return nil
}

// Duration parses a duration field that validate already accepted.
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}
