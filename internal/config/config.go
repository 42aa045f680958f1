// Package config loads and validates cleaner configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// PubSubConfig names the subscription and outbound topics.
type PubSubConfig struct {
	ProjectID      string       `mapstructure:"project_id"`
	SubscriptionID string       `mapstructure:"subscription_id"`
	Topics         TopicsConfig `mapstructure:"topics"`
}

// TopicsConfig holds outbound topic names. DetailCrawl and SearchCrawl may
// be empty, which downgrades those emissions to log lines.
type TopicsConfig struct {
	Cleaned     string `mapstructure:"cleaned"`
	DetailCrawl string `mapstructure:"detail_crawl"`
	SearchCrawl string `mapstructure:"search_crawl"`
}

// ConsumerConfig governs message handling.
type ConsumerConfig struct {
	// Prefetch bounds the number of unacknowledged in-flight messages.
	Prefetch              int `mapstructure:"prefetch"`
	MessageTimeoutSeconds int `mapstructure:"message_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLEANER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	// Empty defaults register the keys so environment-only deploys resolve
	// them through AutomaticEnv during Unmarshal.
	v.SetDefault("db.dsn", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription_id", "")
	v.SetDefault("pubsub.topics.detail_crawl", "")
	v.SetDefault("pubsub.topics.search_crawl", "")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("pubsub.topics.cleaned", "weibo-cleaned-data")
	v.SetDefault("consumer.prefetch", 5)
	v.SetDefault("consumer.message_timeout_seconds", 60)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required")
	}
	if c.PubSub.SubscriptionID == "" {
		return fmt.Errorf("pubsub.subscription_id is required")
	}
	if c.Consumer.Prefetch <= 0 {
		return fmt.Errorf("consumer.prefetch must be > 0")
	}
	if c.Consumer.MessageTimeoutSeconds <= 0 {
		return fmt.Errorf("consumer.message_timeout_seconds must be > 0")
	}
	return nil
}

// MessageTimeout converts the configured timeout into a duration.
func (c Config) MessageTimeout() time.Duration {
	return time.Duration(c.Consumer.MessageTimeoutSeconds) * time.Second
}

// MaxConnLifetime converts the configured pool lifetime into a duration.
func (c DBConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMinutes) * time.Minute
}
