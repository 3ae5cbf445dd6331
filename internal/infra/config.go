package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"liquidity_go/internal/domain"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
	DriverMemory  = "memory"
)

const defaultReconcileIntervalSec = 60

// AssetConfig registers the precision of one pool asset.
type AssetConfig struct {
	Denom    string `yaml:"denom"`
	Decimals uint8  `yaml:"decimals"`
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`

	Storage struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"storage"`

	Pool struct {
		Address              string        `yaml:"address"`
		MarketID             string        `yaml:"market_id"`
		SubaccountID         string        `yaml:"subaccount_id"`
		ObservationsCapacity int           `yaml:"observations_capacity"`
		MinTradesToAvg       uint32        `yaml:"min_trades_to_avg"`
		ReconcileIntervalSec *int          `yaml:"reconcile_interval_sec"` // 0 disables; absent means 60
		Assets               []AssetConfig `yaml:"assets"`
	} `yaml:"pool"`

	Chain struct {
		LCDURL     string `yaml:"lcd_url"`
		WSURL      string `yaml:"ws_url"`
		SwapQuery  string `yaml:"swap_query"`
		EventType  string `yaml:"event_type"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"chain"`

	Venue struct {
		RestURL    string `yaml:"rest_url"`
		AccessKey  string `yaml:"access_key"`
		SecretKey  string `yaml:"secret_key"`
		Passphrase string `yaml:"passphrase"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"venue"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML, applies defaults and environment overrides, then validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	// 보안 우선: 환경 변수 오버라이드 지원
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Pool.ReconcileIntervalSec == nil {
		interval := defaultReconcileIntervalSec
		c.Pool.ReconcileIntervalSec = &interval
	}
	if c.Chain.EventType == "" {
		c.Chain.EventType = "wasm"
	}
	if c.Chain.TimeoutSec == 0 {
		c.Chain.TimeoutSec = 10
	}
	if c.Venue.TimeoutSec == 0 {
		c.Venue.TimeoutSec = 10
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if err := c.PoolInfo().Validate(); err != nil {
		return err
	}
	if c.Pool.ObservationsCapacity <= 0 {
		return &domain.ConfigError{Field: "pool.observations_capacity", Err: fmt.Errorf("must be positive")}
	}
	ob := c.Orderbook()
	if err := ob.Validate(c.Pool.ObservationsCapacity); err != nil {
		return err
	}
	if c.Pool.ReconcileIntervalSec != nil && *c.Pool.ReconcileIntervalSec < 0 {
		return &domain.ConfigError{Field: "pool.reconcile_interval_sec", Err: fmt.Errorf("must not be negative")}
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverMemory:
	case DriverLevelDB:
		if c.Storage.Path == "" {
			return &domain.ConfigError{Field: "storage.path", Err: fmt.Errorf("required for leveldb")}
		}
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unknown driver %q", c.Storage.Driver)}
	}

	if !hasPrefix(c.Chain.WSURL, "ws://") && !hasPrefix(c.Chain.WSURL, "wss://") {
		return &domain.ConfigError{Field: "chain.ws_url", Err: fmt.Errorf("invalid websocket URL: %q", c.Chain.WSURL)}
	}
	if !isHTTP(c.Chain.LCDURL) {
		return &domain.ConfigError{Field: "chain.lcd_url", Err: fmt.Errorf("invalid URL: %q", c.Chain.LCDURL)}
	}
	if c.Chain.SwapQuery == "" {
		return &domain.ConfigError{Field: "chain.swap_query", Err: fmt.Errorf("must not be empty")}
	}
	if !isHTTP(c.Venue.RestURL) {
		return &domain.ConfigError{Field: "venue.rest_url", Err: fmt.Errorf("invalid URL: %q", c.Venue.RestURL)}
	}

	return nil
}

// PoolInfo returns the pool identity and its ordered asset list.
func (c *Config) PoolInfo() domain.PoolInfo {
	assets := make([]string, len(c.Pool.Assets))
	for i, a := range c.Pool.Assets {
		assets[i] = a.Denom
	}
	return domain.PoolInfo{Address: c.Pool.Address, Assets: assets}
}

// Orderbook returns the initial orderbook state of the pool.
func (c *Config) Orderbook() domain.OrderbookState {
	return domain.OrderbookState{
		MarketID:       c.Pool.MarketID,
		SubaccountID:   c.Pool.SubaccountID,
		MinTradesToAvg: c.Pool.MinTradesToAvg,
		Enabled:        true,
	}
}

// ReconcileInterval returns the period of the reserve reconciliation loop; zero disables it.
func (c *Config) ReconcileInterval() time.Duration {
	if c.Pool.ReconcileIntervalSec == nil {
		return defaultReconcileIntervalSec * time.Second
	}
	return time.Duration(*c.Pool.ReconcileIntervalSec) * time.Second
}

// Precisions returns the configured asset precisions.
func (c *Config) Precisions() domain.Precisions {
	p := make(domain.Precisions, len(c.Pool.Assets))
	for _, a := range c.Pool.Assets {
		p[a.Denom] = a.Decimals
	}
	return p
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

func isHTTP(s string) bool {
	return hasPrefix(s, "http://") || hasPrefix(s, "https://")
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("LIQ_VENUE_KEY"); key != "" {
		cfg.Venue.AccessKey = key
	}
	if secret := os.Getenv("LIQ_VENUE_SECRET"); secret != "" {
		cfg.Venue.SecretKey = secret
	}
	if pass := os.Getenv("LIQ_VENUE_PASSPHRASE"); pass != "" {
		cfg.Venue.Passphrase = pass
	}
}
