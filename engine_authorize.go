package shopauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal/flows"
	"github.com/MrEthical07/shopauth/permission"
)

// Authorize verifies accessToken and evaluates req against the caller's
// effective sets. Sets come from token claims unless req.Sensitivity is at
// or above Authorization.LiveResolveSensitivity, in which case they are
// re-resolved from the graph.
//
// A missing, malformed, badly signed or expired token is ErrUnauthenticated;
// a valid identity that does not satisfy req is ErrForbidden. The returned
// error never names the missing permission.
func (e *Engine) Authorize(ctx context.Context, accessToken string, req permission.Requirement) (*Identity, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := flows.RunAuthorize(ctx, accessToken, req, e.flows.Authorize)
	e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	if res.Live {
		e.metricInc(MetricLiveResolve)
	}

	switch {
	case res.Failure == flows.AuthorizeFailureNone:
		e.metricInc(MetricAuthorizeAllowed)
		id := &Identity{
			UserID:      res.Claims.UID,
			Roles:       res.Effective.Roles,
			Permissions: res.Effective.Permissions,
			Live:        res.Live,
		}
		if res.Claims.ExpiresAt != nil {
			id.ExpiresAt = res.Claims.ExpiresAt.Time
		}
		return id, nil

	case res.Failure.Unauthenticated():
		e.metricInc(MetricAuthorizeUnauthenticated)
		return nil, ErrUnauthenticated

	case res.Failure == flows.AuthorizeFailureForbidden:
		e.metricInc(MetricAuthorizeForbidden)
		e.emitAudit(ctx, auditEventAuthorizeForbidden, false, res.Claims.UID, "", ErrForbidden, func() map[string]string {
			return map[string]string{
				"mode":        req.Mode.String(),
				"sensitivity": req.Sensitivity.String(),
			}
		})
		return nil, ErrForbidden

	default:
		e.log.Error("live permission resolution failed", zap.Error(res.Err))
		return nil, unavailable("resolve permissions", res.Err)
	}
}

// Resolve returns userID's effective sets straight from the graph.
func (e *Engine) Resolve(ctx context.Context, userID string) (permission.Effective, error) {
	if e == nil || e.resolver == nil {
		return permission.Effective{}, ErrEngineNotReady
	}
	eff, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		return permission.Effective{}, unavailable("resolve permissions", err)
	}
	return eff, nil
}

// Profile returns the user's profile with live-resolved roles and
// permissions.
func (e *Engine) Profile(ctx context.Context, userID string) (*Profile, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, unavailable("get user", err)
	}
	return e.profile(ctx, u.ID, u.Email, u.DisplayName)
}

func (e *Engine) profile(ctx context.Context, userID, email, displayName string) (*Profile, error) {
	eff, err := e.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:          userID,
		Email:       email,
		DisplayName: displayName,
		Roles:       eff.Roles.Sorted(),
		Permissions: eff.Permissions.Sorted(),
	}, nil
}
