package shopauth

import "time"

// SecurityReport is a read-only summary of the engine's security posture,
// logged by the daemon at startup.
type SecurityReport struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Argon2                 PasswordConfigReport
	LockoutThreshold       int
	LockoutWindow          time.Duration
	RevokeFamilyOnReuse    bool
	LiveResolveSensitivity string
	RegistrationEnabled    bool
	RequireVerifiedEmail   bool
	AuditEnabled           bool
	CatalogSize            int
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LockoutThreshold:       e.config.Lockout.Threshold,
		LockoutWindow:          e.config.Lockout.Window,
		RevokeFamilyOnReuse:    e.config.Security.RevokeFamilyOnReuse,
		LiveResolveSensitivity: e.config.Authorization.LiveResolveSensitivity.String(),
		RegistrationEnabled:    e.config.Account.RegistrationEnabled,
		RequireVerifiedEmail:   e.config.Account.RequireVerifiedEmail,
		AuditEnabled:           e.audit != nil,
		CatalogSize:            e.catalog.Count(),
	}
}
