// Package config loads shopauthd settings from a YAML file, an optional
// .env file and SHOPAUTH_* environment variables, in that order of
// precedence (environment wins).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/permission"
)

type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// TrustProxyHeaders takes the client IP from X-Forwarded-For.
		TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int           `yaml:"max_open_conns"`
			MaxIdleConns    int           `yaml:"max_idle_conns"`
			ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	// Redis, when enabled, holds refresh tokens instead of the storage
	// driver.
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Addr      string        `yaml:"addr"`
		DB        int           `yaml:"db"`
		Prefix    string        `yaml:"prefix"`
		Retention time.Duration `yaml:"retention"`
	} `yaml:"redis"`

	JWT struct {
		// ed25519 | hs256
		SigningMethod  string        `yaml:"signing_method"`
		Secret         string        `yaml:"secret"`
		PrivateKeyFile string        `yaml:"private_key_file"`
		PublicKeyFile  string        `yaml:"public_key_file"`
		Issuer         string        `yaml:"issuer"`
		Audience       string        `yaml:"audience"`
		AccessTTL      time.Duration `yaml:"access_ttl"`
		RefreshTTL     time.Duration `yaml:"refresh_ttl"`
		Leeway         time.Duration `yaml:"leeway"`
	} `yaml:"jwt"`

	Password struct {
		Memory         uint32 `yaml:"memory_kb"`
		Time           uint32 `yaml:"time"`
		Parallelism    uint8  `yaml:"parallelism"`
		MinLength      int    `yaml:"min_length"`
		UpgradeOnLogin bool   `yaml:"upgrade_on_login"`
	} `yaml:"password"`

	Lockout struct {
		Threshold int           `yaml:"threshold"`
		Window    time.Duration `yaml:"window"`
	} `yaml:"lockout"`

	Account struct {
		RegistrationEnabled  bool   `yaml:"registration_enabled"`
		RequireVerifiedEmail bool   `yaml:"require_verified_email"`
		DefaultRole          string `yaml:"default_role"`
	} `yaml:"account"`

	Security struct {
		RevokeFamilyOnReuse bool `yaml:"revoke_family_on_reuse"`
	} `yaml:"security"`

	Authorization struct {
		// normal | elevated | critical
		LiveResolveSensitivity string `yaml:"live_resolve_sensitivity"`
	} `yaml:"authorization"`

	Audit struct {
		Enabled    bool `yaml:"enabled"`
		BufferSize int  `yaml:"buffer_size"`
		DropIfFull bool `yaml:"drop_if_full"`
		// log | postgres
		Sink string `yaml:"sink"`
	} `yaml:"audit"`

	Metrics struct {
		Enabled           bool `yaml:"enabled"`
		LatencyHistograms bool `yaml:"latency_histograms"`
	} `yaml:"metrics"`

	Rate struct {
		Enabled   bool    `yaml:"enabled"`
		PerSecond float64 `yaml:"per_second"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rate"`
}

// Default returns the settings used for anything the file and environment
// leave unset.
func Default() *Config {
	var c Config
	c.App.Env = "dev"
	c.App.LogLevel = "info"

	c.Server.Addr = ":8080"
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 15 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second

	c.Storage.Driver = "memory"
	c.Storage.Postgres.MaxOpenConns = 20
	c.Storage.Postgres.MaxIdleConns = 5
	c.Storage.Postgres.ConnMaxLifetime = 30 * time.Minute

	c.Redis.Addr = "localhost:6379"
	c.Redis.Prefix = "shopauth"
	c.Redis.Retention = 24 * time.Hour

	c.JWT.SigningMethod = "ed25519"
	c.JWT.Issuer = "shopauth"
	c.JWT.AccessTTL = 5 * time.Minute
	c.JWT.RefreshTTL = 7 * 24 * time.Hour
	c.JWT.Leeway = 5 * time.Second

	c.Password.Memory = 64 * 1024
	c.Password.Time = 3
	c.Password.Parallelism = 2
	c.Password.MinLength = 10
	c.Password.UpgradeOnLogin = true

	c.Lockout.Threshold = 5
	c.Lockout.Window = 15 * time.Minute

	c.Account.RegistrationEnabled = true
	c.Account.DefaultRole = "customer"

	c.Security.RevokeFamilyOnReuse = true

	c.Authorization.LiveResolveSensitivity = "critical"

	c.Audit.Enabled = true
	c.Audit.BufferSize = 1024
	c.Audit.DropIfFull = true
	c.Audit.Sink = "log"

	c.Metrics.Enabled = true

	c.Rate.Enabled = true
	c.Rate.PerSecond = 1
	c.Rate.Burst = 10
	return &c
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path over Default, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the daemon-level settings. Engine settings are checked
// again by shopauth.Config.Validate when the engine is built.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Audit.Sink {
	case "log":
	case "postgres":
		if c.Storage.Driver != "postgres" {
			return errors.New("audit.sink postgres requires storage.driver postgres")
		}
	default:
		return fmt.Errorf("unknown audit.sink %q", c.Audit.Sink)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	if _, err := permission.ParseSensitivity(c.Authorization.LiveResolveSensitivity); err != nil {
		return fmt.Errorf("authorization.live_resolve_sensitivity: %w", err)
	}
	if c.Rate.Enabled && (c.Rate.PerSecond <= 0 || c.Rate.Burst <= 0) {
		return errors.New("rate.per_second and rate.burst must be > 0 when rate limiting is enabled")
	}
	return nil
}

// Engine converts c into the engine configuration, reading key files as
// needed.
func (c *Config) Engine() (shopauth.Config, error) {
	out := shopauth.DefaultConfig()

	out.JWT.SigningMethod = c.JWT.SigningMethod
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience
	out.JWT.AccessTTL = c.JWT.AccessTTL
	out.JWT.RefreshTTL = c.JWT.RefreshTTL
	out.JWT.Leeway = c.JWT.Leeway
	switch c.JWT.SigningMethod {
	case "hs256":
		out.JWT.PrivateKey = []byte(c.JWT.Secret)
	case "ed25519":
		priv, err := readKey(c.JWT.PrivateKeyFile)
		if err != nil {
			return shopauth.Config{}, fmt.Errorf("jwt.private_key_file: %w", err)
		}
		pub, err := readKey(c.JWT.PublicKeyFile)
		if err != nil {
			return shopauth.Config{}, fmt.Errorf("jwt.public_key_file: %w", err)
		}
		out.JWT.PrivateKey, out.JWT.PublicKey = priv, pub
	}

	out.Password.Memory = c.Password.Memory
	out.Password.Time = c.Password.Time
	out.Password.Parallelism = c.Password.Parallelism
	out.Password.UpgradeOnLogin = c.Password.UpgradeOnLogin
	out.Password.Policy.MinLength = c.Password.MinLength

	out.Lockout.Threshold = c.Lockout.Threshold
	out.Lockout.Window = c.Lockout.Window

	out.Account.RegistrationEnabled = c.Account.RegistrationEnabled
	out.Account.RequireVerifiedEmail = c.Account.RequireVerifiedEmail
	out.Account.DefaultRole = c.Account.DefaultRole

	out.Security.RevokeFamilyOnReuse = c.Security.RevokeFamilyOnReuse

	sens, err := permission.ParseSensitivity(c.Authorization.LiveResolveSensitivity)
	if err != nil {
		return shopauth.Config{}, err
	}
	out.Authorization.LiveResolveSensitivity = sens

	out.Audit.Enabled = c.Audit.Enabled
	out.Audit.BufferSize = c.Audit.BufferSize
	out.Audit.DropIfFull = c.Audit.DropIfFull

	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Enabled && c.Metrics.LatencyHistograms

	if err := out.Validate(); err != nil {
		return shopauth.Config{}, err
	}
	return out, nil
}

func readKey(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	return os.ReadFile(path)
}

/*
====================================
ENVIRONMENT OVERRIDES
====================================
*/

const envPrefix = "SHOPAUTH_"

func getEnvStr(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := getEnvStr(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := getEnvStr(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := getEnvStr(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := getEnvStr(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("ENV", &c.App.Env)
	str("LOG_LEVEL", &c.App.LogLevel)
	str("ADDR", &c.Server.Addr)
	boolean("TRUST_PROXY_HEADERS", &c.Server.TrustProxyHeaders)

	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("DSN", &c.Storage.DSN)

	boolean("REDIS_ENABLED", &c.Redis.Enabled)
	str("REDIS_ADDR", &c.Redis.Addr)
	integer("REDIS_DB", &c.Redis.DB)

	str("JWT_SIGNING_METHOD", &c.JWT.SigningMethod)
	str("JWT_SECRET", &c.JWT.Secret)
	str("JWT_PRIVATE_KEY_FILE", &c.JWT.PrivateKeyFile)
	str("JWT_PUBLIC_KEY_FILE", &c.JWT.PublicKeyFile)
	str("JWT_ISSUER", &c.JWT.Issuer)
	duration("ACCESS_TTL", &c.JWT.AccessTTL)
	duration("REFRESH_TTL", &c.JWT.RefreshTTL)

	integer("LOCKOUT_THRESHOLD", &c.Lockout.Threshold)
	duration("LOCKOUT_WINDOW", &c.Lockout.Window)

	boolean("REGISTRATION_ENABLED", &c.Account.RegistrationEnabled)
	boolean("REQUIRE_VERIFIED_EMAIL", &c.Account.RequireVerifiedEmail)
	boolean("REVOKE_FAMILY_ON_REUSE", &c.Security.RevokeFamilyOnReuse)
	str("LIVE_RESOLVE_SENSITIVITY", &c.Authorization.LiveResolveSensitivity)

	str("AUDIT_SINK", &c.Audit.Sink)
	boolean("RATE_ENABLED", &c.Rate.Enabled)

	return errors.Join(errs...)
}
