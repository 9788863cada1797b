package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Channels   ChannelsConfig   `mapstructure:"channels"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
}

type NATSConfig struct {
	URLs           []string      `mapstructure:"urls"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type StorageConfig struct {
	MetricDBPath string `mapstructure:"metric_db_path"`
	AlertDBPath  string `mapstructure:"alert_db_path"`
}

// MonitoringConfig controls the collection and evaluation cycle
type MonitoringConfig struct {
	CollectionInterval time.Duration `mapstructure:"collection_interval"`
	RetentionDays      int           `mapstructure:"retention_days"`
	Providers          []string      `mapstructure:"providers"`
	SystemSource       bool          `mapstructure:"system_source"`
	DockerSource       bool          `mapstructure:"docker_source"`
}

// Retention returns the metric retention period as a duration
func (c MonitoringConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

type ChannelsConfig struct {
	Email   EmailChannelConfig   `mapstructure:"email"`
	Slack   SlackChannelConfig   `mapstructure:"slack"`
	Webhook WebhookChannelConfig `mapstructure:"webhook"`
}

type EmailChannelConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
}

type SlackChannelConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

type WebhookChannelConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// Load reads the YAML configuration from the given directory
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetDefault("app.name", "cloudmon")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("nats.urls", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connect_timeout", "5s")
	v.SetDefault("storage.metric_db_path", "metrics.db")
	v.SetDefault("storage.alert_db_path", "alerts.db")
	v.SetDefault("monitoring.collection_interval", "1m")
	v.SetDefault("monitoring.retention_days", 30)
	v.SetDefault("monitoring.providers", []string{"aws", "azure", "gcp"})
	v.SetDefault("monitoring.system_source", true)
	v.SetDefault("monitoring.docker_source", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file is fine, defaults apply
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Monitoring.CollectionInterval < time.Second {
		return fmt.Errorf("collection interval must be at least 1s, got %s", c.Monitoring.CollectionInterval)
	}
	if c.Monitoring.RetentionDays < 1 {
		return fmt.Errorf("retention must be at least 1 day, got %d", c.Monitoring.RetentionDays)
	}
	return nil
}
