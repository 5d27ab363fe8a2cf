// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the read-only service configuration. It is loaded once at
// startup and handed to components by value semantics; nothing mutates it
// afterwards.
type Config struct {
	BindAddress         string          `mapstructure:"bind_address"`
	MetricsAddress      string          `mapstructure:"metrics_address"`
	LogLevel            string          `mapstructure:"log_level"`
	Ticker              string          `mapstructure:"ticker"`
	Depth               int             `mapstructure:"depth"`
	IdenticalLevelOrder bool            `mapstructure:"identical_level_order"`
	Exchanges           ExchangesConfig `mapstructure:"exchanges"`
}

// ExchangesConfig groups the per-exchange settings.
type ExchangesConfig struct {
	Binance  BinanceConfig  `mapstructure:"binance"`
	Bitstamp BitstampConfig `mapstructure:"bitstamp"`
}

// BinanceConfig configures the sequenced-delta Binance feed.
type BinanceConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Websocket string `mapstructure:"websocket"`
	API       string `mapstructure:"api"`
}

// BitstampConfig configures the full-replace Bitstamp feed.
type BitstampConfig struct {
	Enable     bool          `mapstructure:"enable"`
	Websocket  string        `mapstructure:"websocket"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

// Load reads the configuration from path, or from ./config.yaml when path
// is empty. Any key can be overridden through OBAGG_-prefixed environment
// variables (e.g. OBAGG_BIND_ADDRESS).
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/obagg")
	}

	v.SetDefault("bind_address", "0.0.0.0:50051")
	v.SetDefault("metrics_address", "0.0.0.0:9091")
	v.SetDefault("log_level", "info")
	v.SetDefault("depth", 10)
	v.SetDefault("identical_level_order", true)
	v.SetDefault("exchanges.binance.enable", true)
	v.SetDefault("exchanges.binance.websocket", "wss://stream.binance.com:9443")
	v.SetDefault("exchanges.binance.api", "https://api.binance.com")
	v.SetDefault("exchanges.bitstamp.enable", true)
	v.SetDefault("exchanges.bitstamp.websocket", "wss://ws.bitstamp.net")
	v.SetDefault("exchanges.bitstamp.ping_period", 20*time.Second)

	v.SetEnvPrefix("OBAGG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Ticker == "" {
		return fmt.Errorf("config: ticker is required")
	}
	if c.Depth <= 0 {
		return fmt.Errorf("config: depth must be positive, got %d", c.Depth)
	}
	if c.Exchanges.Bitstamp.Enable && c.Exchanges.Bitstamp.PingPeriod <= 0 {
		return fmt.Errorf("config: bitstamp ping_period must be positive")
	}
	return nil
}
