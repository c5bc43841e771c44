package permission

import (
	"errors"
	"fmt"
	"strings"
)

// MatchMode selects how a [Requirement] combines its listed codes.
type MatchMode uint8

const (
	// MatchAny is satisfied when at least one listed code is held.
	MatchAny MatchMode = iota
	// MatchAll is satisfied only when every listed code is held.
	MatchAll
)

func (m MatchMode) String() string {
	switch m {
	case MatchAny:
		return "any"
	case MatchAll:
		return "all"
	default:
		return fmt.Sprintf("MatchMode(%d)", uint8(m))
	}
}

// ParseMatchMode accepts "any" or "all", case-insensitively.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "any", "":
		return MatchAny, nil
	case "all":
		return MatchAll, nil
	default:
		return MatchAny, fmt.Errorf("unknown match mode %q", s)
	}
}

// Sensitivity ranks operations. Requirements at or above the engine's
// configured bar are evaluated against a freshly resolved set instead of
// token claims.
type Sensitivity uint8

const (
	SensitivityNormal Sensitivity = iota
	SensitivityElevated
	SensitivityCritical
)

func (s Sensitivity) String() string {
	switch s {
	case SensitivityNormal:
		return "normal"
	case SensitivityElevated:
		return "elevated"
	case SensitivityCritical:
		return "critical"
	default:
		return fmt.Sprintf("Sensitivity(%d)", uint8(s))
	}
}

// ParseSensitivity accepts "normal", "elevated" or "critical".
func ParseSensitivity(s string) (Sensitivity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "":
		return SensitivityNormal, nil
	case "elevated":
		return SensitivityElevated, nil
	case "critical":
		return SensitivityCritical, nil
	default:
		return SensitivityNormal, fmt.Errorf("unknown sensitivity %q", s)
	}
}

// Requirement is the declarative capability descriptor attached to an
// operation. Permissions and Roles are evaluated independently with the
// same Mode:
//
//   - MatchAny: allowed when the caller holds any listed permission or any
//     listed role.
//   - MatchAll: allowed when the caller holds every listed permission and
//     every listed role.
//
// A requirement listing nothing only demands an authenticated caller.
type Requirement struct {
	Permissions []string
	Roles       []string
	Mode        MatchMode
	Sensitivity Sensitivity
}

// AnyOf builds a MatchAny permission requirement.
func AnyOf(codes ...string) Requirement {
	return Requirement{Permissions: codes, Mode: MatchAny}
}

// AllOf builds a MatchAll permission requirement.
func AllOf(codes ...string) Requirement {
	return Requirement{Permissions: codes, Mode: MatchAll}
}

// AnyRole builds a MatchAny role requirement.
func AnyRole(roles ...string) Requirement {
	return Requirement{Roles: roles, Mode: MatchAny}
}

// WithSensitivity returns a copy of r with the sensitivity replaced.
func (r Requirement) WithSensitivity(s Sensitivity) Requirement {
	r.Sensitivity = s
	return r
}

// Empty reports whether r lists no permissions and no roles.
func (r Requirement) Empty() bool {
	return len(r.Permissions) == 0 && len(r.Roles) == 0
}

// Validate rejects unknown modes and blank entries. When catalog is non-nil
// every permission must be registered in it.
func (r Requirement) Validate(catalog *Catalog) error {
	if r.Mode != MatchAny && r.Mode != MatchAll {
		return errors.New("invalid match mode")
	}
	if r.Sensitivity > SensitivityCritical {
		return errors.New("invalid sensitivity")
	}
	for _, p := range r.Permissions {
		if strings.TrimSpace(p) == "" {
			return errors.New("requirement contains empty permission")
		}
		if catalog != nil && !catalog.Has(p) {
			return fmt.Errorf("requirement references unknown permission %q", p)
		}
	}
	for _, role := range r.Roles {
		if strings.TrimSpace(role) == "" {
			return errors.New("requirement contains empty role")
		}
	}
	return nil
}

// SatisfiedBy evaluates r against an effective set.
func (r Requirement) SatisfiedBy(eff Effective) bool {
	if r.Empty() {
		return true
	}

	switch r.Mode {
	case MatchAll:
		if len(r.Permissions) > 0 && !eff.Permissions.HasAll(r.Permissions...) {
			return false
		}
		if len(r.Roles) > 0 && !eff.Roles.HasAll(r.Roles...) {
			return false
		}
		return true
	case MatchAny:
		return eff.Permissions.HasAny(r.Permissions...) || eff.Roles.HasAny(r.Roles...)
	default:
		return false
	}
}
