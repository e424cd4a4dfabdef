// Package config loads replyd configuration from YAML, JSON or TOML files.
// Zero values mean "unspecified"; ApplyDefaults fills them in.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
type Config struct {
	Addr     string         `json:"addr" yaml:"addr" toml:"addr"`
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing" toml:"tracing"`
	CORS     CORSConfig     `json:"cors" yaml:"cors" toml:"cors"`
	Pool     PoolConfig     `json:"pool" yaml:"pool" toml:"pool"`
	Runtime  RuntimeConfig  `json:"runtime" yaml:"runtime" toml:"runtime"`
	Bridge   BridgeConfig   `json:"bridge" yaml:"bridge" toml:"bridge"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch" toml:"dispatch"`
	Fallback FallbackConfig `json:"fallback" yaml:"fallback" toml:"fallback"`
	Persist  PersistConfig  `json:"persist" yaml:"persist" toml:"persist"`
	Voice    VoiceConfig    `json:"voice" yaml:"voice" toml:"voice"`
	Events   EventsConfig   `json:"events" yaml:"events" toml:"events"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" toml:"level"`
	// Format is console or json.
	Format string `json:"format" yaml:"format" toml:"format"`
	// File, when set, also writes JSON logs to a rotated file.
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
}

type TracingConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	File    string `json:"file" yaml:"file" toml:"file"`
}

type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

type PoolConfig struct {
	Capacity     int      `json:"capacity" yaml:"capacity" toml:"capacity"`
	MaxWait      Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	LoadTimeout  Duration `json:"load_timeout" yaml:"load_timeout" toml:"load_timeout"`
	DrainTimeout Duration `json:"drain_timeout" yaml:"drain_timeout" toml:"drain_timeout"`
}

type RuntimeConfig struct {
	// Backend is one of static, pipe, llamaserver, llama.
	Backend   string `json:"backend" yaml:"backend" toml:"backend"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Command and Args start a pipe backend; {user} and {model} are substituted.
	Command      string   `json:"command" yaml:"command" toml:"command"`
	Args         []string `json:"args" yaml:"args" toml:"args"`
	LlamaBin     string   `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	Host         string   `json:"host" yaml:"host" toml:"host"`
	PortStart    int      `json:"port_start" yaml:"port_start" toml:"port_start"`
	PortEnd      int      `json:"port_end" yaml:"port_end" toml:"port_end"`
	CtxSize      int      `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	NGL          int      `json:"ngl" yaml:"ngl" toml:"ngl"`
	Threads      int      `json:"threads" yaml:"threads" toml:"threads"`
	ReadyTimeout Duration `json:"ready_timeout" yaml:"ready_timeout" toml:"ready_timeout"`
}

type BridgeConfig struct {
	Timeout      Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	TokenCeiling int      `json:"token_ceiling" yaml:"token_ceiling" toml:"token_ceiling"`
}

type DispatchConfig struct {
	ChunkWords int `json:"chunk_words" yaml:"chunk_words" toml:"chunk_words"`
}

type FallbackConfig struct {
	// Source is one of memory, dir, sqlite.
	Source    string   `json:"source" yaml:"source" toml:"source"`
	CorpusDir string   `json:"corpus_dir" yaml:"corpus_dir" toml:"corpus_dir"`
	Timeout   Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type PersistConfig struct {
	// Backend is one of memory, redis, sqlite.
	Backend       string   `json:"backend" yaml:"backend" toml:"backend"`
	SQLitePath    string   `json:"sqlite_path" yaml:"sqlite_path" toml:"sqlite_path"`
	RedisAddr     string   `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string   `json:"redis_password" yaml:"redis_password" toml:"redis_password"`
	RedisDB       int      `json:"redis_db" yaml:"redis_db" toml:"redis_db"`
	TTL           Duration `json:"ttl" yaml:"ttl" toml:"ttl"`
}

type VoiceConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	URL     string `json:"url" yaml:"url" toml:"url"`
	Workers int    `json:"workers" yaml:"workers" toml:"workers"`
	Queue   int    `json:"queue" yaml:"queue" toml:"queue"`
	// Timeout bounds one synthesis; Grace is how long a stream waits for it.
	Timeout Duration    `json:"timeout" yaml:"timeout" toml:"timeout"`
	Grace   Duration    `json:"grace" yaml:"grace" toml:"grace"`
	MinIO   MinIOConfig `json:"minio" yaml:"minio" toml:"minio"`
}

type MinIOConfig struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key" toml:"secret_access_key"`
	UseSSL          bool   `json:"use_ssl" yaml:"use_ssl" toml:"use_ssl"`
	Bucket          string `json:"bucket" yaml:"bucket" toml:"bucket"`
}

type EventsConfig struct {
	// KafkaBrokers is a comma-separated broker list; empty disables publishing.
	KafkaBrokers string `json:"kafka_brokers" yaml:"kafka_brokers" toml:"kafka_brokers"`
	KafkaTopic   string `json:"kafka_topic" yaml:"kafka_topic" toml:"kafka_topic"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
