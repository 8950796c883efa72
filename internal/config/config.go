// Package config loads Key Ledger tooling configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/spf13/viper"
)

// Config holds all configuration for the Key Ledger tooling.
type Config struct {
	RPC      RPCConfig      `mapstructure:"rpc"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Contract ContractConfig `mapstructure:"contract"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Log      LogConfig      `mapstructure:"log"`
}

// RPCConfig holds Neo RPC node endpoints.
type RPCConfig struct {
	// Endpoint is an HTTP(S) RPC node address.
	Endpoint string `mapstructure:"endpoint"`
	// WSEndpoint is a WebSocket RPC node address used for notification
	// subscriptions.
	WSEndpoint  string        `mapstructure:"ws_endpoint"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// WalletConfig holds NEP-6 wallet configuration for transaction signing.
type WalletConfig struct {
	Path     string `mapstructure:"path"`
	Password string `mapstructure:"password"`
}

// ContractConfig holds the on-chain Key Ledger contract address.
type ContractConfig struct {
	// Address is either a Neo address or a little-endian script hash in hex.
	Address string `mapstructure:"address"`
}

// Hash parses the configured contract address.
func (c ContractConfig) Hash() (util.Uint160, error) {
	if c.Address == "" {
		return util.Uint160{}, fmt.Errorf("contract address is not set")
	}
	h, err := address.StringToUint160(c.Address)
	if err == nil {
		return h, nil
	}
	h, err = util.Uint160DecodeStringLE(strings.TrimPrefix(c.Address, "0x"))
	if err != nil {
		return util.Uint160{}, fmt.Errorf("invalid contract address %q: %w", c.Address, err)
	}
	return h, nil
}

// WatcherConfig holds key history watcher service configuration.
type WatcherConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	// DedupTTL is how long processed notification markers are kept to
	// suppress replayed events.
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/keyledger")

	setDefaults(v)

	// Config file is optional, defaults and env vars are enough.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("KEYLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.endpoint", "http://localhost:30333")
	v.SetDefault("rpc.ws_endpoint", "ws://localhost:30333/ws")
	v.SetDefault("rpc.dial_timeout", "10s")

	v.SetDefault("wallet.path", "wallet.json")
	v.SetDefault("wallet.password", "")

	v.SetDefault("contract.address", "")

	v.SetDefault("watcher.listen_address", ":8080")
	v.SetDefault("watcher.dedup_ttl", "10m")

	v.SetDefault("log.level", "info")
}
