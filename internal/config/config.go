package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	PgDSN        string
	Chain        string
	TrackedToken string
	Pools        []string

	Confirmations  uint64
	LogChunk       uint64
	BackfillWindow uint64
	ChunkDelay     time.Duration

	ReconnectDelay    time.Duration
	ConnectErrorDelay time.Duration

	SweepInterval time.Duration
	SweepBatch    int

	MaxRetries   int
	RetryBackoff time.Duration
	RPCTimeout   time.Duration

	MetricsAddr string
	LogLevel    string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SWAPLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain", "base")
	v.SetDefault("confirmations", uint64(10))
	v.SetDefault("log-chunk", uint64(500))
	v.SetDefault("backfill-window", uint64(5000))
	v.SetDefault("chunk-delay", 150*time.Millisecond)
	v.SetDefault("reconnect-delay", 3*time.Second)
	v.SetDefault("connect-error-delay", 5*time.Second)
	v.SetDefault("sweep-interval", 5*time.Second)
	v.SetDefault("sweep-batch", 500)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("rpc-timeout", 15*time.Second)
	v.SetDefault("metrics-addr", ":9090")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		PgDSN:             v.GetString("pg-dsn"),
		Chain:             v.GetString("chain"),
		TrackedToken:      v.GetString("tracked-token"),
		Pools:             getStringSlice(v, "pool"),
		Confirmations:     v.GetUint64("confirmations"),
		LogChunk:          v.GetUint64("log-chunk"),
		BackfillWindow:    v.GetUint64("backfill-window"),
		ChunkDelay:        v.GetDuration("chunk-delay"),
		ReconnectDelay:    v.GetDuration("reconnect-delay"),
		ConnectErrorDelay: v.GetDuration("connect-error-delay"),
		SweepInterval:     v.GetDuration("sweep-interval"),
		SweepBatch:        v.GetInt("sweep-batch"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		RPCTimeout:        v.GetDuration("rpc-timeout"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks required settings. Failures here abort startup.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.PgDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if c.TrackedToken == "" {
		return fmt.Errorf("tracked token is required")
	}
	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool address is required")
	}
	if c.LogChunk == 0 {
		return fmt.Errorf("log chunk must be greater than zero")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
