package config

import "time"

// Defaults applied by ApplyDefaults when fields are unset.
const (
	DefaultAddr          = ":8080"
	DefaultBackend       = "static"
	DefaultPersist       = "memory"
	DefaultFallback      = "memory"
	DefaultKafkaTopic    = "replyd.pool-events"
	DefaultSQLitePath    = "replyd.db"
	DefaultMinIOBucket   = "replyd-voice"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultTraceFile     = "logs/replyd_traces.log"
	defaultLlamaHost     = "127.0.0.1"
	defaultPortStart     = 31000
	defaultPortEnd       = 31999
	defaultReadyTimeout  = 60 * time.Second
	defaultLogMaxSizeMB  = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAgeDays = 28
)

// ApplyDefaults fills unset fields. Component-level defaults (pool capacity,
// bridge timeout, voice workers) stay zero and are applied by the components.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = defaultLogMaxBackups
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = defaultLogMaxAgeDays
	}
	if c.Tracing.File == "" {
		c.Tracing.File = DefaultTraceFile
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Content-Type", "X-User-ID", "X-Log-Level"}
	}
	if c.Runtime.Backend == "" {
		c.Runtime.Backend = DefaultBackend
	}
	if c.Runtime.Host == "" {
		c.Runtime.Host = defaultLlamaHost
	}
	if c.Runtime.PortStart <= 0 {
		c.Runtime.PortStart = defaultPortStart
	}
	if c.Runtime.PortEnd <= 0 {
		c.Runtime.PortEnd = defaultPortEnd
	}
	if c.Runtime.ReadyTimeout <= 0 {
		c.Runtime.ReadyTimeout = Duration(defaultReadyTimeout)
	}
	if c.Fallback.Source == "" {
		c.Fallback.Source = DefaultFallback
	}
	if c.Persist.Backend == "" {
		c.Persist.Backend = DefaultPersist
	}
	if c.Persist.SQLitePath == "" {
		c.Persist.SQLitePath = DefaultSQLitePath
	}
	if c.Events.KafkaTopic == "" {
		c.Events.KafkaTopic = DefaultKafkaTopic
	}
	if c.Voice.MinIO.Bucket == "" {
		c.Voice.MinIO.Bucket = DefaultMinIOBucket
	}
}
