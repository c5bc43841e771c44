package shopauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal"
	"github.com/MrEthical07/shopauth/internal/flows"
)

// issueSession resolves the user's effective sets, mints an access token and
// a fresh refresh family, and persists the refresh record.
func (e *Engine) issueSession(ctx context.Context, userID, email, displayName string) (*LoginResult, error) {
	eff, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, unavailable("resolve permissions", err)
	}
	roles, perms := eff.Roles.Sorted(), eff.Permissions.Sorted()

	access, accessExp, err := e.jwtManager.CreateAccess(userID, roles, perms)
	if err != nil {
		return nil, unavailable("sign access token", err)
	}

	id, secret, err := internal.NewRefreshToken()
	if err != nil {
		return nil, unavailable("generate refresh token", err)
	}
	now := e.now()
	record := RefreshToken{
		ID:        id.String(),
		Hash:      secret.Hash(),
		UserID:    userID,
		FamilyID:  id.String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL),
		IssuedIP:  clientIPFromContext(ctx),
	}
	if err := e.refresh.Save(ctx, record); err != nil {
		return nil, unavailable("save refresh token", err)
	}

	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken:      access,
			RefreshToken:     internal.EncodeRefreshToken(id, secret),
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: record.ExpiresAt,
		},
		User: Profile{
			ID:          userID,
			Email:       email,
			DisplayName: displayName,
			Roles:       roles,
			Permissions: perms,
		},
	}, nil
}

// issueAccess mints an access token from a fresh resolution, so a refresh
// always carries the current role graph.
func (e *Engine) issueAccess(ctx context.Context, userID string) (string, time.Time, error) {
	eff, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}
	return e.jwtManager.CreateAccess(userID, eff.Roles.Sorted(), eff.Permissions.Sorted())
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed. Presenting a token that is revoked, already replaced, expired or
// carries the wrong secret returns ErrRefreshInvalid and, with
// Security.RevokeFamilyOnReuse, revokes every refresh token of its owner.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.refresh == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	if res.Failure != flows.RefreshFailureNone {
		return nil, e.refreshFailure(ctx, res)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, "", nil, func() map[string]string {
		return map[string]string{"token_id": res.TokenID}
	})
	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}, nil
}

func (e *Engine) refreshFailure(ctx context.Context, res flows.RefreshResult) error {
	e.metricInc(MetricRefreshFailure)

	var reason string
	switch res.Failure {
	case flows.RefreshFailureDecode:
		reason = "decode_failed"
	case flows.RefreshFailureNotFound:
		reason = "not_found"
	case flows.RefreshFailureConsumed:
		reason = "consumed"
	case flows.RefreshFailureExpired:
		reason = "expired"
	case flows.RefreshFailureMismatch:
		reason = "secret_mismatch"
	case flows.RefreshFailureSubjectInactive:
		reason = "user_inactive"
	default:
		e.log.Error("refresh backend failure", zap.String("token_id", res.TokenID), zap.Error(res.Err))
		err := unavailable("refresh", res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", err, nil)
		return err
	}

	if res.Failure.Reuse() {
		e.metricInc(MetricRefreshReuseDetected)
		if res.FamilyRevoked > 0 {
			e.metricInc(MetricFamilyRevoked)
		}
		e.log.Warn("dead refresh token presented",
			zap.String("token_id", res.TokenID),
			zap.String("user_id", res.UserID),
			zap.String("reason", reason),
			zap.Int("family_revoked", res.FamilyRevoked),
		)
		e.emitAudit(ctx, auditEventRefreshReuse, false, res.UserID, "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"token_id":       res.TokenID,
				"reason":         reason,
				"family_revoked": strconv.Itoa(res.FamilyRevoked),
			}
		})
		return ErrRefreshInvalid
	}

	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", ErrRefreshInvalid, func() map[string]string {
		return map[string]string{"token_id": res.TokenID, "reason": reason}
	})
	return ErrRefreshInvalid
}

// Logout revokes refreshToken without issuing a successor. An unknown or
// already revoked token is accepted silently; an undecodable one, or one
// whose secret does not match, is ErrRefreshInvalid.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.refresh == nil {
		return ErrEngineNotReady
	}

	res := flows.RunRevoke(ctx, refreshToken, e.flows.Revoke)
	switch {
	case res.Err == nil:
	case !res.Decoded, errors.Is(res.Err, flows.ErrRevokeMismatch):
		return ErrRefreshInvalid
	default:
		return unavailable("revoke", res.Err)
	}

	if res.Revoked {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, res.UserID, "", nil, nil)
	}
	return nil
}

// RevokeAll ends every refresh session of userID and returns how many
// tokens were revoked. Outstanding access tokens stay valid until expiry.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.refresh.RevokeAllForUser(ctx, userID, e.now())
	if err != nil {
		return 0, unavailable("revoke all", err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return n, nil
}
