package shopauth

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal/flows"
)

const (
	maxEmailLength       = 254
	maxDisplayNameLength = 100
)

// Login verifies email and secret and, on success, issues a token pair.
//
// Failures: *ValidationError for empty input; ErrInvalidCredentials for an
// unknown email, a wrong secret or an inactive account (the Nth wrong
// secret also locks the account); *LockedError while locked, which also
// covers attempts that race past the threshold or a correct secret checked
// while a concurrent failure locked the account;
// ErrAccountUnverified when verified email is required. Every attempt is
// audited.
func (e *Engine) Login(ctx context.Context, email, secret string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunLogin(ctx, email, secret, e.flows.Login)
	secret = ""

	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginFailure(ctx, res)
	}

	if res.Upgraded {
		e.metricInc(MetricPasswordUpgraded)
	}

	out, err := e.issueSession(ctx, res.User.ID, res.User.Email, res.User.DisplayName)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.ID, res.Email, err, func() map[string]string {
			return map[string]string{"reason": "issue_failed"}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.User.ID, res.Email, nil, nil)
	return out, nil
}

func (e *Engine) loginFailure(ctx context.Context, res flows.LoginResult) error {
	var (
		err    error
		reason string
	)

	switch res.Failure {
	case flows.LoginFailureValidation:
		var fe *flows.FieldError
		fields := map[string]string{}
		if errors.As(res.Err, &fe) {
			fields = fe.Fields
		}
		err, reason = newValidationError(fields), "validation"
	case flows.LoginFailureUnknownUser:
		err, reason = ErrInvalidCredentials, "unknown_user"
	case flows.LoginFailureBadPassword:
		err, reason = ErrInvalidCredentials, "password_mismatch"
	case flows.LoginFailureInactive:
		err, reason = ErrInvalidCredentials, "inactive"
	case flows.LoginFailureUnverified:
		err, reason = ErrAccountUnverified, "unverified"
	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
		err = &LockedError{RetryAfter: res.RetryAfter}
		e.emitAudit(ctx, auditEventLoginLocked, false, res.User.ID, res.Email, err, func() map[string]string {
			return map[string]string{"retry_after": res.RetryAfter.Round(time.Second).String()}
		})
		return err
	default:
		e.log.Error("login backend failure", zap.Error(res.Err))
		err, reason = unavailable("login", res.Err), "backend"
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, res.User.ID, res.Email, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})

	if res.LockedNow {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, false, res.User.ID, res.Email, nil, func() map[string]string {
			return map[string]string{
				"locked_until": res.LockedUntil.UTC().Format(time.RFC3339),
				"threshold":    strconv.Itoa(e.config.Lockout.Threshold),
			}
		})
	}
	return err
}

// Register creates an active account from req and signs it in. When the
// configuration requires a verified email the account is created but no
// tokens are issued; the returned result carries only the profile.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Account.RegistrationEnabled {
		e.metricInc(MetricRegisterRejected)
		return nil, ErrRegistrationDisabled
	}

	email := flows.NormalizeEmail(req.Email)
	displayName := strings.TrimSpace(req.DisplayName)

	fields := e.config.Password.Policy.Check(req.Password, req.PasswordConfirmation)
	switch {
	case email == "":
		fields["email"] = "is required"
	case len(email) > maxEmailLength:
		fields["email"] = "is too long"
	default:
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			fields["email"] = "is not a valid address"
		}
	}
	switch {
	case displayName == "":
		fields["display_name"] = "is required"
	case utf8.RuneCountInString(displayName) > maxDisplayNameLength:
		fields["display_name"] = "is too long"
	}
	if len(fields) > 0 {
		err := newValidationError(fields)
		e.metricInc(MetricRegisterRejected)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, err, nil)
		return nil, err
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		err = newValidationError(map[string]string{"password": "is not acceptable"})
		e.metricInc(MetricRegisterRejected)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, err, nil)
		return nil, err
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.users.Create(ctx, user); err != nil {
		if !errors.Is(err, ErrEmailTaken) {
			err = unavailable("create user", err)
		}
		e.metricInc(MetricRegisterRejected)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, err, nil)
		return nil, err
	}

	if role := e.config.Account.DefaultRole; role != "" {
		if assigner, ok := e.graph.(RoleAssigner); ok {
			if err := assigner.AssignRole(ctx, user.ID, role); err != nil {
				e.log.Warn("default role assignment failed", zap.String("user_id", user.ID), zap.String("role", role), zap.Error(err))
			}
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, email, nil, nil)

	if e.config.Account.RequireVerifiedEmail {
		profile, err := e.profile(ctx, user.ID, user.Email, user.DisplayName)
		if err != nil {
			return nil, err
		}
		return &LoginResult{User: *profile}, nil
	}
	return e.issueSession(ctx, user.ID, user.Email, user.DisplayName)
}

// UnlockAccount clears a lockout and the failure counter ahead of the
// window.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if e == nil || e.lockout == nil {
		return ErrEngineNotReady
	}
	if _, err := e.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return unavailable("get user", err)
	}
	if err := e.lockout.Reset(ctx, userID); err != nil {
		return unavailable("unlock", err)
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, userID, "", nil, nil)
	return nil
}
