// Package config loads service configuration from the environment.
// There are no CLI flags; every key below maps to an env var with the
// section as prefix, e.g. blockchain.ws_url -> BLOCKCHAIN_WS_URL.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/0xpads/curvewatch/internal/domain"
)

type Blockchain struct {
	WsURL                   string `mapstructure:"ws_url"`
	HTTPURL                 string `mapstructure:"http_url"`
	ChainID                 int64  `mapstructure:"chain_id"`
	FactoryAddress          string `mapstructure:"factory_address"`
	MaxReconnectionAttempts int    `mapstructure:"max_reconnection_attempts"`
	HeartbeatIntervalS      int    `mapstructure:"heartbeat_interval_s"`
}

type Cache struct {
	URL            string `mapstructure:"url"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	DB             int    `mapstructure:"db"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	SocketTimeoutS int    `mapstructure:"socket_timeout_s"`
}

type Processing struct {
	BatchSize              int      `mapstructure:"batch_size"`
	OHLCVIntervals         []string `mapstructure:"ohlcv_intervals"`
	LargeTradeThresholdEth string   `mapstructure:"large_trade_threshold_eth"`
}

type Websocket struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	BackendSocketURL string `mapstructure:"backend_socket_url"`
	BackendNamespace string `mapstructure:"backend_namespace"`
}

type Ops struct {
	Port int `mapstructure:"port"`
}

type Config struct {
	Blockchain Blockchain `mapstructure:"blockchain"`
	Cache      Cache      `mapstructure:"cache"`
	Processing Processing `mapstructure:"processing"`
	Websocket  Websocket  `mapstructure:"websocket"`
	Ops        Ops        `mapstructure:"ops"`
	LogLevel   string     `mapstructure:"log_level"`
}

// Addr returns host:port for the cache when no URL override is set.
func (c Cache) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Intervals parses the configured interval tokens.
func (p Processing) Intervals() ([]domain.Interval, error) {
	out := make([]domain.Interval, 0, len(p.OHLCVIntervals))
	for _, s := range p.OHLCVIntervals {
		iv, err := domain.ParseInterval(s)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

// LargeTradeThreshold parses the alert threshold.
func (p Processing) LargeTradeThreshold() (decimal.Decimal, error) {
	return decimal.NewFromString(p.LargeTradeThresholdEth)
}

// Load reads configuration from the environment, applying defaults for
// anything unset, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// AutomaticEnv alone does not surface env-only keys through
	// Unmarshal; bind each known key explicitly.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("blockchain.ws_url", "ws://127.0.0.1:8545")
	v.SetDefault("blockchain.http_url", "http://127.0.0.1:8545")
	v.SetDefault("blockchain.chain_id", 31337)
	v.SetDefault("blockchain.factory_address", "")
	v.SetDefault("blockchain.max_reconnection_attempts", 10)
	v.SetDefault("blockchain.heartbeat_interval_s", 30)

	v.SetDefault("cache.url", "")
	v.SetDefault("cache.host", "localhost")
	v.SetDefault("cache.port", 6379)
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.max_connections", 20)
	v.SetDefault("cache.socket_timeout_s", 5)

	v.SetDefault("processing.batch_size", 100)
	v.SetDefault("processing.ohlcv_intervals", []string{"1m", "5m", "15m", "1h", "4h", "1d"})
	v.SetDefault("processing.large_trade_threshold_eth", "1.0")

	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 3001)
	v.SetDefault("websocket.backend_socket_url", "ws://localhost:3001")
	v.SetDefault("websocket.backend_namespace", "/charts")

	v.SetDefault("ops.port", 9090)

	v.SetDefault("log_level", "info")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Blockchain.WsURL == "" {
		return fmt.Errorf("config: blockchain.ws_url is required")
	}
	if c.Blockchain.ChainID <= 0 {
		return fmt.Errorf("config: blockchain.chain_id must be positive, got %d", c.Blockchain.ChainID)
	}
	if c.Blockchain.MaxReconnectionAttempts < 1 {
		return fmt.Errorf("config: blockchain.max_reconnection_attempts must be at least 1")
	}
	if c.Blockchain.FactoryAddress != "" {
		if _, err := domain.ParseAddress(c.Blockchain.FactoryAddress); err != nil {
			return fmt.Errorf("config: blockchain.factory_address: %w", err)
		}
	}
	if len(c.Processing.OHLCVIntervals) == 0 {
		return fmt.Errorf("config: processing.ohlcv_intervals must not be empty")
	}
	if _, err := c.Processing.Intervals(); err != nil {
		return fmt.Errorf("config: processing.ohlcv_intervals: %w", err)
	}
	if _, err := c.Processing.LargeTradeThreshold(); err != nil {
		return fmt.Errorf("config: processing.large_trade_threshold_eth: %w", err)
	}
	if c.Cache.MaxConnections < 1 {
		return fmt.Errorf("config: cache.max_connections must be at least 1")
	}
	return nil
}
