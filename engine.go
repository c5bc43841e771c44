package shopauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/flows"
	"github.com/MrEthical07/shopauth/internal/limiters"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/permission"
)

// Engine is the authentication and authorization core. Build one with
// New().With...().Build(); it is safe for concurrent use and holds no
// per-request state.
type Engine struct {
	config       Config
	users        UserStore
	refresh      RefreshTokenStore
	graph        permission.Graph
	catalog      *permission.Catalog
	resolver     *permission.Resolver
	lockout      *limiters.Lockout
	passwordHash password.Hasher
	jwtManager   *jwt.Manager
	audit        *audit.Dispatcher
	metrics      *Metrics
	log          *zap.Logger
	now          func() time.Time
	flows        flows.Deps
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped is the number of audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Catalog is the permission catalog requirements are checked against.
func (e *Engine) Catalog() *permission.Catalog {
	if e == nil {
		return nil
	}
	return e.catalog
}

// Logger is the engine's logger, never nil.
func (e *Engine) Logger() *zap.Logger {
	if e == nil || e.log == nil {
		return zap.NewNop()
	}
	return e.log
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, err error) {
	e.log.Warn(msg, zap.Error(err))
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// buildFlows wires flow dependencies from the engine's collaborators. It runs
// once in Build.
func (e *Engine) buildFlows() {
	e.flows = flows.Deps{
		Login: flows.LoginDeps{
			RequireVerifiedEmail: e.config.Account.RequireVerifiedEmail,
			UpgradeOnLogin:       e.config.Password.UpgradeOnLogin,
			Now:                  e.now,
			Lockout:              e.lockout,
			LookupUser:           e.lookupLoginUser,
			RecordSuccess:        e.users.RecordLoginSuccess,
			UpdatePasswordHash:   e.users.UpdatePasswordHash,
			VerifyPassword:       e.passwordHash.Verify,
			VerifyDummy:          e.passwordHash.VerifyDummy,
			NeedsUpgrade:         e.passwordHash.NeedsUpgrade,
			HashPassword:         e.passwordHash.Hash,
			ErrLocked:            ErrAccountLocked,
			Warn:                 e.warn,
		},
		Refresh: flows.RefreshDeps{
			RefreshTTL:          e.config.JWT.RefreshTTL,
			RevokeFamilyOnReuse: e.config.Security.RevokeFamilyOnReuse,
			Now:                 e.now,
			ClientIP:            clientIPFromContext,
			Lookup:              e.lookupTokenRecord,
			Rotate:              e.rotate,
			Revoke:              e.refresh.Revoke,
			RevokeAll:           e.refresh.RevokeAllForUser,
			UserActive:          e.userActive,
			IssueAccess:         e.issueAccess,
			ErrNotFound:         ErrRefreshNotFound,
			ErrConsumed:         ErrRefreshConsumed,
			ErrExpired:          ErrRefreshExpired,
			ErrMismatch:         ErrRefreshMismatch,
			Warn:                e.warn,
		},
		Authorize: flows.AuthorizeDeps{
			ParseAccess: e.jwtManager.ParseAccess,
			LiveAt:      e.config.Authorization.LiveResolveSensitivity,
			Resolve:     e.resolver.Resolve,
			UserActive:  e.userActive,
		},
		Revoke: flows.RevokeDeps{
			Now:    e.now,
			Get:    e.lookupTokenRecord,
			Revoke: e.refresh.Revoke,
		},
	}
}

func (e *Engine) lookupLoginUser(ctx context.Context, email string) (flows.LoginUser, bool, error) {
	u, err := e.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return flows.LoginUser{}, false, nil
	}
	if err != nil {
		return flows.LoginUser{}, false, err
	}
	return flows.LoginUser{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		PasswordHash:  u.PasswordHash,
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		LockedUntil:   u.LockedUntil,
	}, true, nil
}

func (e *Engine) userActive(ctx context.Context, userID string) (bool, error) {
	u, err := e.users.GetByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Active, nil
}

func (e *Engine) rotate(ctx context.Context, id, secretHash string, next flows.RefreshSeed, now time.Time) (flows.RefreshParent, error) {
	parent, err := e.refresh.RotateRefreshToken(ctx, id, secretHash, RefreshToken{
		ID:        next.ID,
		Hash:      next.Hash,
		IssuedAt:  next.IssuedAt,
		ExpiresAt: next.ExpiresAt,
		IssuedIP:  next.IssuedIP,
	}, now)
	return flows.RefreshParent{
		Found:    parent.ID != "",
		UserID:   parent.UserID,
		FamilyID: parent.FamilyID,
	}, err
}

func (e *Engine) lookupTokenRecord(ctx context.Context, id string) (flows.TokenRecord, error) {
	t, err := e.refresh.Get(ctx, id)
	if errors.Is(err, ErrRefreshNotFound) {
		return flows.TokenRecord{}, nil
	}
	if err != nil {
		return flows.TokenRecord{}, err
	}
	return flows.TokenRecord{
		Found:     true,
		UserID:    t.UserID,
		Hash:      t.Hash,
		Revoked:   t.Revoked || t.ReplacedBy != "",
		ExpiresAt: t.ExpiresAt,
	}, nil
}
