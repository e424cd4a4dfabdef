package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"replyd/internal/config"
)

// applyOverrides copies every key set by a flag or REPLYD_* variable over
// the file config. Keys follow the file layout, so REPLYD_POOL_CAPACITY
// overrides pool.capacity.
func applyOverrides(v *viper.Viper, c *config.Config) {
	strs := map[string]*string{
		"addr":                          &c.Addr,
		"log.level":                     &c.Log.Level,
		"log.format":                    &c.Log.Format,
		"log.file":                      &c.Log.File,
		"tracing.file":                  &c.Tracing.File,
		"runtime.backend":               &c.Runtime.Backend,
		"runtime.models_dir":            &c.Runtime.ModelsDir,
		"runtime.command":               &c.Runtime.Command,
		"runtime.llama_bin":             &c.Runtime.LlamaBin,
		"runtime.host":                  &c.Runtime.Host,
		"fallback.source":               &c.Fallback.Source,
		"fallback.corpus_dir":           &c.Fallback.CorpusDir,
		"persist.backend":               &c.Persist.Backend,
		"persist.sqlite_path":           &c.Persist.SQLitePath,
		"persist.redis_addr":            &c.Persist.RedisAddr,
		"persist.redis_password":        &c.Persist.RedisPassword,
		"voice.url":                     &c.Voice.URL,
		"voice.minio.endpoint":          &c.Voice.MinIO.Endpoint,
		"voice.minio.access_key_id":     &c.Voice.MinIO.AccessKeyID,
		"voice.minio.secret_access_key": &c.Voice.MinIO.SecretAccessKey,
		"voice.minio.bucket":            &c.Voice.MinIO.Bucket,
		"events.kafka_brokers":          &c.Events.KafkaBrokers,
		"events.kafka_topic":            &c.Events.KafkaTopic,
	}
	for k, p := range strs {
		if v.IsSet(k) {
			*p = v.GetString(k)
		}
	}

	ints := map[string]*int{
		"pool.capacity":        &c.Pool.Capacity,
		"runtime.port_start":   &c.Runtime.PortStart,
		"runtime.port_end":     &c.Runtime.PortEnd,
		"runtime.ctx_size":     &c.Runtime.CtxSize,
		"runtime.ngl":          &c.Runtime.NGL,
		"runtime.threads":      &c.Runtime.Threads,
		"bridge.token_ceiling": &c.Bridge.TokenCeiling,
		"dispatch.chunk_words": &c.Dispatch.ChunkWords,
		"persist.redis_db":     &c.Persist.RedisDB,
		"voice.workers":        &c.Voice.Workers,
		"voice.queue":          &c.Voice.Queue,
	}
	for k, p := range ints {
		if v.IsSet(k) {
			*p = v.GetInt(k)
		}
	}

	bools := map[string]*bool{
		"tracing.enabled":     &c.Tracing.Enabled,
		"cors.enabled":        &c.CORS.Enabled,
		"voice.enabled":       &c.Voice.Enabled,
		"voice.minio.use_ssl": &c.Voice.MinIO.UseSSL,
	}
	for k, p := range bools {
		if v.IsSet(k) {
			*p = v.GetBool(k)
		}
	}

	durs := map[string]*config.Duration{
		"pool.max_wait":         &c.Pool.MaxWait,
		"pool.load_timeout":     &c.Pool.LoadTimeout,
		"pool.drain_timeout":    &c.Pool.DrainTimeout,
		"runtime.ready_timeout": &c.Runtime.ReadyTimeout,
		"bridge.timeout":        &c.Bridge.Timeout,
		"fallback.timeout":      &c.Fallback.Timeout,
		"persist.ttl":           &c.Persist.TTL,
		"voice.timeout":         &c.Voice.Timeout,
		"voice.grace":           &c.Voice.Grace,
	}
	for k, p := range durs {
		if v.IsSet(k) {
			*p = config.Duration(v.GetDuration(k))
		}
	}

	lists := map[string]*[]string{
		"runtime.args":         &c.Runtime.Args,
		"cors.allowed_origins": &c.CORS.AllowedOrigins,
		"cors.allowed_methods": &c.CORS.AllowedMethods,
		"cors.allowed_headers": &c.CORS.AllowedHeaders,
	}
	for k, p := range lists {
		if v.IsSet(k) {
			*p = splitCSV(v.GetString(k))
		}
	}
}

// splitCSV splits a comma-separated list, trimming spaces and dropping
// empty items.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// shutdownGrace bounds graceful shutdown of the HTTP server and the pool.
const shutdownGrace = 10 * time.Second
