// Package config loads application configuration from defaults, an
// optional YAML file and MONITOR_-prefixed environment variables, in
// that order of precedence (later wins).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables before merging.
const envPrefix = "MONITOR_"

// Chain holds the network and factory contract settings.
type Chain struct {
	Network        string `koanf:"network"`
	FactoryAddress string `koanf:"factory-address"`
	RPCURL         string `koanf:"rpc-url"`
	WSURL          string `koanf:"ws-url"`
}

// Server holds the HTTP listener settings.
type Server struct {
	ListenAddr  string        `koanf:"listen-addr"`
	MetricsAddr string        `koanf:"metrics-addr"`
	ReadTimeout time.Duration `koanf:"read-timeout"`
}

// Backfill holds the chain-scan settings.
type Backfill struct {
	BatchSize            uint64 `koanf:"batch-size"`
	CreationSearchWindow uint64 `koanf:"creation-search-window"`
}

// Storage holds database connection strings.
type Storage struct {
	PostgresDSN   string `koanf:"postgres-dsn"`
	ClickhouseDSN string `koanf:"clickhouse-dsn"`
}

// Logger holds zerolog settings.
type Logger struct {
	Level      string `koanf:"level"`
	Prettier   bool   `koanf:"prettier"`
	TimeFormat string `koanf:"time-format"`
}

// Config is the root application configuration.
type Config struct {
	Chain    Chain    `koanf:"chain"`
	Server   Server   `koanf:"server"`
	Backfill Backfill `koanf:"backfill"`
	Storage  Storage  `koanf:"storage"`
	Logger   Logger   `koanf:"logger"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"chain.network":                   "avalanche-fuji",
		"server.listen-addr":              ":8080",
		"server.metrics-addr":             ":9090",
		"server.read-timeout":             30 * time.Second,
		"backfill.batch-size":             uint64(2048),
		"backfill.creation-search-window": uint64(5_000_000),
		"logger.level":                    "info",
		"logger.time-format":              time.RFC3339,
	}
}

// Load builds the configuration. path may be empty or point to a YAML
// file; a missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	// MONITOR_CHAIN_RPC_URL -> chain.rpc-url: the first underscore
	// separates levels, the rest become dashes within the key.
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string, v string) (string, interface{}) {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 2 {
		key = parts[0] + "." + strings.ReplaceAll(parts[1], "_", "-")
	}
	return key, v
}

func (c *Config) validate() error {
	if c.Chain.FactoryAddress == "" {
		return fmt.Errorf("chain.factory-address is required")
	}
	if !strings.HasPrefix(strings.ToLower(c.Chain.FactoryAddress), "0x") {
		return fmt.Errorf("chain.factory-address must be a 0x-prefixed hex address")
	}
	if c.Backfill.BatchSize == 0 {
		return fmt.Errorf("backfill.batch-size must be positive")
	}
	return nil
}
