package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine transport kinds.
const (
	EngineHTTP = "http"
	EngineMQTT = "mqtt"
)

// Event store kinds.
const (
	StoreNone     = "none"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Version int `yaml:"version"`
	Server  struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Output struct {
		Dir      string `yaml:"dir"`
		Template string `yaml:"template"`
	} `yaml:"output"`
	Engine struct {
		Kind         string        `yaml:"kind"`
		URL          string        `yaml:"url"`
		ClientID     string        `yaml:"client_id"`
		PollInterval time.Duration `yaml:"poll_interval"`
		Timeout      time.Duration `yaml:"timeout"`
		Retries      int           `yaml:"retries"`
	} `yaml:"engine"`
	MQTT struct {
		Broker      string `yaml:"broker"`
		TopicPrefix string `yaml:"topic_prefix"`
		ClientID    string `yaml:"client_id"`
	} `yaml:"mqtt"`
	Events struct {
		Store      string `yaml:"store"`
		SQLitePath string `yaml:"sqlite_path"`
		InstanceID string `yaml:"instance_id"`
	} `yaml:"events"`
	Sweep struct {
		OnFailure string `yaml:"on_failure"`
	} `yaml:"sweep"`
	Alerts struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"alerts"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Version: 1}
}

// Port returns the configured HTTP port, defaulting to 8188 if not set.
func (c *Config) Port() int {
	if c.Server.Port == 0 {
		return 8188
	}
	return c.Server.Port
}

// OutputDir returns the root of the server output folders.
func (c *Config) OutputDir() string {
	if c.Output.Dir == "" {
		return "output"
	}
	return c.Output.Dir
}

func (c *Config) EngineKind() string {
	if c.Engine.Kind == "" {
		return EngineHTTP
	}
	return c.Engine.Kind
}

func (c *Config) EngineURL() string {
	if c.Engine.URL == "" {
		return "http://127.0.0.1:8188"
	}
	return c.Engine.URL
}

func (c *Config) MQTTBroker() string {
	if c.MQTT.Broker == "" {
		return "tcp://localhost:1883"
	}
	return c.MQTT.Broker
}

func (c *Config) ClientID() string {
	if c.MQTT.ClientID != "" {
		return c.MQTT.ClientID
	}
	if c.Engine.ClientID != "" {
		return c.Engine.ClientID
	}
	return "xyzplot"
}

func (c *Config) EventStore() string {
	if c.Events.Store == "" {
		return StoreNone
	}
	return c.Events.Store
}

func (c *Config) SQLitePath() string {
	if c.Events.SQLitePath == "" {
		return "xyzplot-events.db"
	}
	return c.Events.SQLitePath
}

// InstanceID tags persisted events, defaulting to the host name.
func (c *Config) InstanceID() string {
	if c.Events.InstanceID != "" {
		return c.Events.InstanceID
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "xyzplot"
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d", cfg.Version)
	}

	switch cfg.EngineKind() {
	case EngineHTTP, EngineMQTT:
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Engine.Kind)
	}
	switch cfg.EventStore() {
	case StoreNone, StorePostgres, StoreSQLite:
	default:
		return nil, fmt.Errorf("unknown event store %q", cfg.Events.Store)
	}

	return &cfg, nil
}
