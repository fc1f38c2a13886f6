// Package config loads OfficeChat runtime settings from an optional TOML file
// and the environment, and fills in defaults for anything left unset.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const appName = "officechat"

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// CollabConfig tunes collaborative editing.
type CollabConfig struct {
	EditorCapacity    int
	ReconcileInterval time.Duration
}

// LogConfig selects log level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// AdminConfig seeds an administrator account at startup when both fields are
// set.
type AdminConfig struct {
	Email    string
	Password string
}

// IdentityCacheConfig sizes the user lookup cache.
type IdentityCacheConfig struct {
	Size int
	TTL  time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	SendBufferSize int
	RateLimit      RateLimitConfig
	IdentityCache  IdentityCacheConfig
	Database       DatabaseConfig
	Auth           AuthConfig
	Collab         CollabConfig
	Log            LogConfig
	Admin          AdminConfig
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 64 * 1024,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		IdentityCache: IdentityCacheConfig{
			Size: 1024,
			TTL:  time.Minute,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    DefaultDatabasePath(),
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Collab: CollabConfig{
			EditorCapacity:    5,
			ReconcileInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultDatabasePath is the SQLite file under the XDG data directory.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, appName, appName+".db")
}

// DefaultConfigFile is the TOML file under the XDG config directory.
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, appName, appName+".toml")
}

// Sanitize replaces invalid or missing values with defaults.
func (c Config) Sanitize() Config {
	def := Default()

	if c.Port == "" {
		c.Port = def.Port
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.IdentityCache.Size <= 0 {
		c.IdentityCache.Size = def.IdentityCache.Size
	}
	if c.IdentityCache.TTL <= 0 {
		c.IdentityCache.TTL = def.IdentityCache.TTL
	}
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.DSN == "" {
		c.Database.DSN = def.Database.DSN
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = def.Auth.TokenTTL
	}
	if c.Collab.EditorCapacity <= 0 {
		c.Collab.EditorCapacity = def.Collab.EditorCapacity
	}
	if c.Collab.ReconcileInterval <= 0 {
		c.Collab.ReconcileInterval = def.Collab.ReconcileInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		c.Log.Format = def.Log.Format
	}

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins

	return c
}

// EnsureSecret fills an empty signing secret with random bytes. Tokens issued
// with a generated secret do not survive a restart.
func (c *Config) EnsureSecret() (generated bool, err error) {
	if c.Auth.Secret != "" {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("generate auth secret: %w", err)
	}
	c.Auth.Secret = hex.EncodeToString(buf)
	return true, nil
}

// legacyEnv maps keys to the environment variable names accepted before the
// OFFICECHAT_ prefix was introduced.
var legacyEnv = map[string]string{
	"port":                       "SERVER_PORT",
	"allowed_origins":            "ALLOWED_ORIGINS",
	"max_message_size":           "MAX_MESSAGE_SIZE",
	"rate_limit.burst":           "RATE_LIMIT_BURST",
	"rate_limit.refill_interval": "RATE_LIMIT_REFILL_INTERVAL",
}

// Load reads configuration into v from file (if it exists) and the
// environment. An empty file means DefaultConfigFile.
func Load(v *viper.Viper, file string) (Config, error) {
	def := Default()

	v.SetDefault("port", def.Port)
	v.SetDefault("allowed_origins", strings.Join(def.AllowedOrigins, ","))
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("send_buffer_size", def.SendBufferSize)
	v.SetDefault("rate_limit.burst", def.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", "1")
	v.SetDefault("identity_cache.size", def.IdentityCache.Size)
	v.SetDefault("identity_cache.ttl", def.IdentityCache.TTL.String())
	v.SetDefault("database.driver", def.Database.Driver)
	v.SetDefault("database.dsn", def.Database.DSN)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", def.Auth.TokenTTL.String())
	v.SetDefault("collab.editor_capacity", def.Collab.EditorCapacity)
	v.SetDefault("collab.reconcile_interval", def.Collab.ReconcileInterval.String())
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")

	// allow env vars to override config file
	v.SetEnvPrefix(appName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := strings.ToUpper(appName + "_" + strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	if file == "" {
		file = DefaultConfigFile()
	}
	v.SetConfigType("toml")
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Config{
		Port:           v.GetString("port"),
		AllowedOrigins: parseOrigins(v.Get("allowed_origins")),
		MaxMessageSize: v.GetInt64("max_message_size"),
		SendBufferSize: v.GetInt("send_buffer_size"),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt("rate_limit.burst"),
			RefillInterval: parseRefillInterval(v.GetString("rate_limit.refill_interval"), def.RateLimit.RefillInterval),
		},
		IdentityCache: IdentityCacheConfig{
			Size: v.GetInt("identity_cache.size"),
			TTL:  parseDuration(v.GetString("identity_cache.ttl"), def.IdentityCache.TTL),
		},
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		Auth: AuthConfig{
			Secret:   v.GetString("auth.secret"),
			TokenTTL: parseDuration(v.GetString("auth.token_ttl"), def.Auth.TokenTTL),
		},
		Collab: CollabConfig{
			EditorCapacity:    v.GetInt("collab.editor_capacity"),
			ReconcileInterval: parseDuration(v.GetString("collab.reconcile_interval"), def.Collab.ReconcileInterval),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Admin: AdminConfig{
			Email:    v.GetString("admin.email"),
			Password: v.GetString("admin.password"),
		},
	}
	return cfg.Sanitize(), nil
}

// parseOrigins accepts a comma separated string (env) or a TOML array.
func parseOrigins(raw any) []string {
	switch val := raw.(type) {
	case string:
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, strings.TrimSpace(fmt.Sprint(item)))
		}
		return out
	default:
		return nil
	}
}

// parseRefillInterval takes whole seconds, or a Go duration string.
func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return parseDuration(value, defaultValue)
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
