// Package config loads client settings from defaults, an optional config
// file and FEED_* environment variables, then checks them against an
// embedded CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix is prepended to every environment variable, e.g. FEED_BASE_URL.
const EnvPrefix = "FEED"

// Cache backends accepted in cache_backend.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds every tunable of the feed client and CLI.
type Config struct {
	BaseURL            string        `mapstructure:"base_url"`
	PageSize           int           `mapstructure:"page_size"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	RevalidateInterval time.Duration `mapstructure:"revalidate_interval"`
	SnapshotInterval   time.Duration `mapstructure:"snapshot_interval"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	Retries            int           `mapstructure:"retries"`
	CacheBackend       string        `mapstructure:"cache_backend"`
	SQLitePath         string        `mapstructure:"sqlite_path"`
	RedisAddr          string        `mapstructure:"redis_addr"`
	RedisPrefix        string        `mapstructure:"redis_prefix"`
	Token              string        `mapstructure:"token"`
	ViewerHandle       string        `mapstructure:"viewer_handle"`
	KeepCacheOnExit    bool          `mapstructure:"keep_cache_on_exit"`
	LogLevel           string        `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:3000")
	v.SetDefault("page_size", 10)
	v.SetDefault("cache_ttl", 2*time.Minute)
	v.SetDefault("revalidate_interval", 30*time.Second)
	v.SetDefault("snapshot_interval", 5*time.Minute)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("fetch_timeout", 15*time.Second)
	v.SetDefault("retries", 2)
	v.SetDefault("cache_backend", BackendSQLite)
	v.SetDefault("sqlite_path", "feedsync.db")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_prefix", "feedsync")
	v.SetDefault("token", "")
	v.SetDefault("viewer_handle", "")
	v.SetDefault("keep_cache_on_exit", true)
	v.SetDefault("log_level", "info")
}

// Default returns the built-in settings.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults are covered by the schema tests.
		panic(err)
	}
	return cfg
}

// Load reads settings. An empty path skips the config file; otherwise its
// format is taken from the extension (yaml, json, toml).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(c.schemaFields())
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}
	return nil
}

// schemaFields flattens durations to milliseconds and drops secrets.
func (c Config) schemaFields() map[string]any {
	return map[string]any{
		"base_url":           c.BaseURL,
		"page_size":          c.PageSize,
		"cache_ttl_ms":       c.CacheTTL.Milliseconds(),
		"revalidate_ms":      c.RevalidateInterval.Milliseconds(),
		"snapshot_ms":        c.SnapshotInterval.Milliseconds(),
		"request_timeout_ms": c.RequestTimeout.Milliseconds(),
		"fetch_timeout_ms":   c.FetchTimeout.Milliseconds(),
		"retries":            c.Retries,
		"cache_backend":      c.CacheBackend,
		"sqlite_path":        c.SQLitePath,
		"redis_addr":         c.RedisAddr,
		"redis_prefix":       c.RedisPrefix,
		"log_level":          strings.ToLower(c.LogLevel),
	}
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ValidationError lists every schema violation.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.TrimSpace(e.Details)
}
