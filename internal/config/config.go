// Package config loads client configuration from a file and RPCBATCH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. RPCBATCH_ENDPOINT
const EnvPrefix = "RPCBATCH"

// Load reads the configuration file at path, applies environment overrides
// and defaults, and validates the result. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	cfg := &Config{}
	_ = newViper().Unmarshal(cfg)
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyDefaults(v)
	return v
}

// applyDefaults registers default values; every key must be known to viper
// for environment overrides to apply
func applyDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "")
	v.SetDefault("transport", DefaultTransport)
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("logLevel", DefaultLogLevel)
	v.SetDefault("logFormat", DefaultLogFormat)
	v.SetDefault("logOutput", DefaultLogOutput)
	v.SetDefault("requestTimeout", DefaultRequestTimeout)
	v.SetDefault("flushDelay", DefaultFlushDelay)
	v.SetDefault("maxFlushWait", DefaultMaxFlushWait)
	v.SetDefault("maxBatchSize", DefaultMaxBatchSize)
	v.SetDefault("maxInflightBatches", DefaultMaxInflightBatches)
	v.SetDefault("pingInterval", DefaultPingInterval)
	v.SetDefault("rateLimit.batchesPerSecond", 0)
	v.SetDefault("rateLimit.burst", DefaultRateLimitBurst)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.size", DefaultCacheSize)
	v.SetDefault("cache.methods", []string{})
}

// Validate checks a configuration that was modified after Load
func (c *Config) Validate() error {
	return validate(c)
}

// validate checks the configuration for errors.
// The endpoint is optional so that a loopback client can run without one.
func validate(cfg *Config) error {
	if cfg.Transport != TransportHTTP && cfg.Transport != TransportWS {
		return fmt.Errorf("transport must be one of: %s, %s", TransportHTTP, TransportWS)
	}

	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		switch cfg.Transport {
		case TransportHTTP:
			if u.Scheme != "http" && u.Scheme != "https" {
				return errors.New("endpoint must be an http(s) URL for the http transport")
			}
		case TransportWS:
			if u.Scheme != "ws" && u.Scheme != "wss" {
				return errors.New("endpoint must be a ws(s) URL for the ws transport")
			}
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return fmt.Errorf("logFormat must be one of: console, json")
	}

	if cfg.LogOutput == "" {
		return fmt.Errorf("logOutput is required")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.FlushDelay < 0 {
		return fmt.Errorf("flushDelay must be non-negative")
	}

	if cfg.MaxFlushWait < 0 {
		return fmt.Errorf("maxFlushWait must be non-negative")
	}

	if cfg.MaxBatchSize < 0 {
		return fmt.Errorf("maxBatchSize must be non-negative")
	}

	if cfg.MaxInflightBatches <= 0 {
		return fmt.Errorf("maxInflightBatches must be positive")
	}

	if cfg.PingInterval < 0 {
		return fmt.Errorf("pingInterval must be non-negative")
	}

	if cfg.RateLimit.BatchesPerSecond < 0 {
		return fmt.Errorf("rateLimit.batchesPerSecond must be non-negative")
	}
	if cfg.RateLimit.BatchesPerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("rateLimit.burst must be positive when rate limiting is enabled")
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive when cache is enabled")
		}
	}

	return nil
}
