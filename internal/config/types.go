package config

import "time"

// Transport kinds
const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

// Config represents the main configuration structure
type Config struct {
	Endpoint           string            `json:"endpoint" mapstructure:"endpoint"`
	Transport          string            `json:"transport" mapstructure:"transport"`
	Headers            map[string]string `json:"headers" mapstructure:"headers"`
	LogLevel           string            `json:"logLevel" mapstructure:"logLevel"`
	LogFormat          string            `json:"logFormat" mapstructure:"logFormat"`
	LogOutput          string            `json:"logOutput" mapstructure:"logOutput"`
	RequestTimeout     int               `json:"requestTimeout" mapstructure:"requestTimeout"` // ms, 0 means none
	FlushDelay         int               `json:"flushDelay" mapstructure:"flushDelay"`         // ms of quiet that closes a tick
	MaxFlushWait       int               `json:"maxFlushWait" mapstructure:"maxFlushWait"`     // ms a tick may stay open
	MaxBatchSize       int               `json:"maxBatchSize" mapstructure:"maxBatchSize"`     // 0 means unlimited
	MaxInflightBatches int               `json:"maxInflightBatches" mapstructure:"maxInflightBatches"`
	PingInterval       int               `json:"pingInterval" mapstructure:"pingInterval"` // ms, ws only, 0 disables
	RateLimit          RateLimitConfig   `json:"rateLimit" mapstructure:"rateLimit"`
	Cache              CacheConfig       `json:"cache" mapstructure:"cache"`
}

// RateLimitConfig limits how often batches are sent over HTTP
type RateLimitConfig struct {
	BatchesPerSecond float64 `json:"batchesPerSecond" mapstructure:"batchesPerSecond"` // 0 disables
	Burst            int     `json:"burst" mapstructure:"burst"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	TTL     int      `json:"ttl" mapstructure:"ttl"`         // seconds
	Size    int      `json:"size" mapstructure:"size"`       // number of entries
	Methods []string `json:"methods" mapstructure:"methods"` // methods whose results may be cached
}

// Default values
const (
	DefaultTransport          = TransportHTTP
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
	DefaultLogOutput          = "stderr"
	DefaultRequestTimeout     = 30000 // ms
	DefaultFlushDelay         = 1     // ms
	DefaultMaxFlushWait       = 100   // ms
	DefaultMaxBatchSize       = 0
	DefaultMaxInflightBatches = 16
	DefaultPingInterval       = 30000 // ms
	DefaultRateLimitBurst     = 1
	DefaultCacheTTL           = 60 // seconds
	DefaultCacheSize          = 1024
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetFlushDelayDuration returns the batching window as time.Duration
func (c *Config) GetFlushDelayDuration() time.Duration {
	return time.Duration(c.FlushDelay) * time.Millisecond
}

// GetMaxFlushWaitDuration returns the longest a tick may stay open as time.Duration
func (c *Config) GetMaxFlushWaitDuration() time.Duration {
	return time.Duration(c.MaxFlushWait) * time.Millisecond
}

// GetPingIntervalDuration returns the WebSocket keepalive interval as time.Duration
func (c *Config) GetPingIntervalDuration() time.Duration {
	return time.Duration(c.PingInterval) * time.Millisecond
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
