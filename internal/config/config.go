// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package config loads passgate settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/passgate/passgate/internal/auth"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// EnvPrefix namespaces environment overrides, e.g. PASSGATE_HASH__MEMORY_KIB.
const EnvPrefix = "PASSGATE_"

// ResetKeyEnv is read on every reset request so the key can rotate without a restart.
const ResetKeyEnv = "PASSWORD_RESET_KEY"

// wellKnownEnv maps the conventional unprefixed variables to config keys.
var wellKnownEnv = map[string]string{
	"PORT":         "http.port",
	"DATABASE_URL": "database.url",
	"SECRET_KEY":   "auth.secret_key",
	ResetKeyEnv:    "auth.reset_key",
}

const redacted = "[REDACTED]"

// Config is the fully resolved server configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Hash     HashConfig     `koanf:"hash"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	CORS     CORSConfig     `koanf:"cors"`
	Store    string         `koanf:"store"`
}

// HTTPConfig configures the public listener.
type HTTPConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DatabaseConfig configures the PostgreSQL store.
type DatabaseConfig struct {
	URL         string `koanf:"url"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// AuthConfig holds token and reset secrets.
type AuthConfig struct {
	SecretKey string        `koanf:"secret_key"`
	ResetKey  string        `koanf:"reset_key"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// HashConfig tunes argon2id.
type HashConfig struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// Params converts the settings to hasher parameters.
func (h HashConfig) Params() auth.Argon2Params {
	return auth.Argon2Params{Time: h.Time, MemoryKiB: h.MemoryKiB, Threads: h.Threads}
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

func defaults() map[string]any {
	params := auth.DefaultArgon2Params()
	return map[string]any{
		"http.host":             "",
		"http.port":             3000,
		"http.max_body_bytes":   int64(1 << 20),
		"http.read_timeout":     "10s",
		"http.write_timeout":    "10s",
		"http.shutdown_timeout": "15s",
		"database.url":          "",
		"database.auto_migrate": false,
		"auth.secret_key":       "",
		"auth.reset_key":        "",
		"auth.token_ttl":        auth.DefaultTokenTTL.String(),
		"hash.time":             params.Time,
		"hash.memory_kib":       params.MemoryKiB,
		"hash.threads":          params.Threads,
		"log.format":            "json",
		"log.level":             "info",
		"metrics.addr":          "127.0.0.1:9100",
		"cors.allowed_origins":  []string{"*"},
		"store":                 StorePostgres,
	}
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// File is a YAML config path. Missing files are an error only when
	// FileRequired is set.
	File         string
	FileRequired bool
	// Flags, if set, override everything else for flags the user changed.
	Flags *pflag.FlagSet
	// FlagKeys maps flag names to config keys. Unmapped flags are ignored.
	FlagKeys map[string]string
}

// Load resolves the configuration. It does not validate; call Validate.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			if opts.FileRequired || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("CONFIG_LOAD_FAILED").
					With("source", "file").
					With("path", opts.File).
					Wrap(err)
			}
		}
	}

	wellKnown := env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return wellKnownEnv[name], value
	})
	if err := k.Load(wellKnown, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	prefixed := env.Provider(EnvPrefix, ".", func(name string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, EnvPrefix), "__", "."))
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		flags := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := opts.FlagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(flags, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return oops.Code("CONFIG_INVALID").With("port", c.HTTP.Port).Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("http max_body_bytes must be positive")
	}
	if c.Auth.SecretKey == "" {
		return oops.Code("CONFIG_INVALID").Errorf("auth secret_key is required (set SECRET_KEY)")
	}
	if c.Auth.TokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth token_ttl must be positive")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database url is required for the postgres store (set DATABASE_URL)")
		}
	default:
		return oops.Code("CONFIG_INVALID").With("store", c.Store).Errorf("store must be %q or %q", StorePostgres, StoreMemory)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").With("format", c.Log.Format).Errorf("log format must be json or text")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if err := c.Hash.Params().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("level", name).Errorf("unknown log level %q", name)
	}
	return level, nil
}

// ResetKeySource returns a function that reads PASSWORD_RESET_KEY from the
// process environment on every call, falling back to the configured value
// when the variable is unset or empty.
func (c *Config) ResetKeySource() func() string {
	fallback := c.Auth.ResetKey
	return func() string {
		if v := os.Getenv(ResetKeyEnv); v != "" {
			return v
		}
		return fallback
	}
}

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	if c.Auth.SecretKey != "" {
		c.Auth.SecretKey = redacted
	}
	if c.Auth.ResetKey != "" {
		c.Auth.ResetKey = redacted
	}
	if c.Database.URL != "" {
		c.Database.URL = redacted
	}
	c.CORS.AllowedOrigins = append([]string(nil), c.CORS.AllowedOrigins...)
	return c
}

// String implements fmt.Stringer without exposing secrets.
func (c Config) String() string {
	r := c.Redacted()
	return fmt.Sprintf("%+v", struct {
		HTTP     HTTPConfig
		Database DatabaseConfig
		Auth     AuthConfig
		Hash     HashConfig
		Log      LogConfig
		Metrics  MetricsConfig
		CORS     CORSConfig
		Store    string
	}(r))
}

// LogValue implements slog.LogValuer without exposing secrets.
func (c Config) LogValue() slog.Value {
	r := c.Redacted()
	return slog.GroupValue(
		slog.String("http_addr", r.HTTP.Addr()),
		slog.String("store", r.Store),
		slog.String("database_url", r.Database.URL),
		slog.Bool("auto_migrate", r.Database.AutoMigrate),
		slog.String("secret_key", r.Auth.SecretKey),
		slog.String("reset_key", r.Auth.ResetKey),
		slog.Duration("token_ttl", r.Auth.TokenTTL),
		slog.String("metrics_addr", r.Metrics.Addr),
		slog.String("log_format", r.Log.Format),
		slog.String("log_level", r.Log.Level),
	)
}
