// Package config loads formrelay settings from defaults, an optional YAML file
// and FORMRELAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/formrelay/internal/models"
)

type Config struct {
	Frontend  FrontendConfig  `mapstructure:"frontend"`
	Collector CollectorConfig `mapstructure:"collector"`
	Store     StoreConfig     `mapstructure:"store"`
	Relay     RelayConfig     `mapstructure:"relay"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type FrontendConfig struct {
	Addr         string        `mapstructure:"addr"`
	StaticRoot   string        `mapstructure:"static_root"`
	IndexPage    string        `mapstructure:"index_page"`
	MessagePage  string        `mapstructure:"message_page"`
	ErrorPage    string        `mapstructure:"error_page"`
	RedirectTo   string        `mapstructure:"redirect_to"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type CollectorConfig struct {
	Addr             string `mapstructure:"addr"`
	MaxDatagramBytes int    `mapstructure:"max_datagram_bytes"`
	RejectEnabled    bool   `mapstructure:"reject_enabled"`
	RejectDir        string `mapstructure:"reject_dir"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// RelayConfig controls how the front-end forwards bodies to the collector.
type RelayConfig struct {
	Target       string        `mapstructure:"target"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ShutdownConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	maxUDPPayload = models.MaxDatagramBytes
	// maxUDPLength bounds the collector's receive buffer.
	maxUDPLength = 65535
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("frontend.addr", "127.0.0.1:3000")
	v.SetDefault("frontend.static_root", ".")
	v.SetDefault("frontend.index_page", "web/index.html")
	v.SetDefault("frontend.message_page", "web/message.html")
	v.SetDefault("frontend.error_page", "web/error.html")
	v.SetDefault("frontend.redirect_to", "/message")
	v.SetDefault("frontend.max_body_bytes", maxUDPPayload)
	v.SetDefault("frontend.read_timeout", "15s")
	v.SetDefault("frontend.write_timeout", "15s")
	v.SetDefault("frontend.idle_timeout", "60s")
	v.SetDefault("collector.addr", "127.0.0.1:5000")
	v.SetDefault("collector.max_datagram_bytes", maxUDPPayload)
	v.SetDefault("collector.reject_enabled", false)
	v.SetDefault("collector.reject_dir", "storage/rejected")
	v.SetDefault("store.path", "storage/data.json")
	v.SetDefault("relay.target", "127.0.0.1:5000")
	v.SetDefault("relay.write_timeout", "1s")
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.redis_url", "redis://localhost:6379/0")
	v.SetDefault("ratelimit.requests", 60)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("shutdown.grace_period", "5s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration. An empty configPath searches ./config.yaml and
// /etc/formrelay/config.yaml; a missing file there is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/formrelay")
	}

	v.SetEnvPrefix("FORMRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
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

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks addresses and size limits.
func (c *Config) Validate() error {
	for name, addr := range map[string]string{
		"frontend.addr":  c.Frontend.Addr,
		"collector.addr": c.Collector.Addr,
		"relay.target":   c.Relay.Target,
	} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, addr, err)
		}
	}

	if c.Frontend.MaxBodyBytes <= 0 || c.Frontend.MaxBodyBytes > maxUDPPayload {
		return fmt.Errorf("frontend.max_body_bytes must be between 1 and %d, got %d", maxUDPPayload, c.Frontend.MaxBodyBytes)
	}
	if c.Collector.MaxDatagramBytes <= 0 || c.Collector.MaxDatagramBytes > maxUDPLength {
		return fmt.Errorf("collector.max_datagram_bytes must be between 1 and %d, got %d", maxUDPLength, c.Collector.MaxDatagramBytes)
	}
	if c.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if c.Shutdown.GracePeriod <= 0 {
		return fmt.Errorf("shutdown.grace_period must be positive, got %s", c.Shutdown.GracePeriod)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("ratelimit.requests and ratelimit.window must be positive when rate limiting is enabled")
	}

	return nil
}
