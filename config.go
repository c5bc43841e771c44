package shopauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/permission"
)

// Config is the complete engine configuration. Token lifetimes and the
// lockout policy have no defaults and must be set explicitly; Validate
// rejects zero values.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	Account       AccountConfig
	Security      SecurityConfig
	Authorization AuthorizationConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token signing and refresh-token lifetime.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id costs and the registration policy.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
	Policy           password.Policy
}

/*
====================================
LOCKOUT / ACCOUNT / SECURITY
====================================
*/

// LockoutConfig: after Threshold consecutive failures the account is locked
// for Window.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
}

type AccountConfig struct {
	RegistrationEnabled  bool
	RequireVerifiedEmail bool
	// DefaultRole is granted on registration when the graph implements
	// RoleAssigner. Empty grants nothing.
	DefaultRole string
}

type SecurityConfig struct {
	// RevokeFamilyOnReuse revokes every refresh token of the user when a
	// dead token is presented.
	RevokeFamilyOnReuse bool
}

// AuthorizationConfig sets the sensitivity at which Authorize stops trusting
// token claims and re-resolves the permission graph.
type AuthorizationConfig struct {
	LiveResolveSensitivity permission.Sensitivity
}

/*
====================================
AUDIT / METRICS
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			Leeway:        5 * time.Second,
		},
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			MaxPasswordBytes: pw.MaxPasswordBytes,
			UpgradeOnLogin:   true,
			Policy:           password.DefaultPolicy(),
		},
		Account: AccountConfig{
			RegistrationEnabled: true,
		},
		Security: SecurityConfig{
			RevokeFamilyOnReuse: true,
		},
		Authorization: AuthorizationConfig{
			LiveResolveSensitivity: permission.SensitivityCritical,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MaxPasswordBytes: c.Password.MaxPasswordBytes,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks c for internal consistency.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be longer than AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return fmt.Errorf("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway >= c.JWT.AccessTTL {
		return errors.New("JWT Leeway must be >= 0 and shorter than AccessTTL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.Policy.MinLength < 0 || c.Password.Policy.MaxLength < 0 {
		return errors.New("Password Policy lengths must be >= 0")
	}
	if c.Password.Policy.MaxLength > 0 && c.Password.Policy.MinLength > c.Password.Policy.MaxLength {
		return errors.New("Password Policy MinLength must be <= MaxLength")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}

	// Authorization
	if c.Authorization.LiveResolveSensitivity > permission.SensitivityCritical {
		return errors.New("Authorization LiveResolveSensitivity is invalid")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
