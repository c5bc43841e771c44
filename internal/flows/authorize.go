package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/permission"
)

// AuthorizeFailureKind classifies authorization failures for root-level
// mapping. Unauthenticated and Forbidden must never be merged.
type AuthorizeFailureKind int

const (
	AuthorizeFailureNone AuthorizeFailureKind = iota
	AuthorizeFailureMissingToken
	AuthorizeFailureInvalidToken
	AuthorizeFailureSubjectInactive
	AuthorizeFailureResolve
	AuthorizeFailureForbidden
)

// Unauthenticated reports whether the caller has no usable identity.
func (k AuthorizeFailureKind) Unauthenticated() bool {
	switch k {
	case AuthorizeFailureMissingToken, AuthorizeFailureInvalidToken, AuthorizeFailureSubjectInactive:
		return true
	}
	return false
}

// AuthorizeResult returns the verified claims and the set the requirement
// was evaluated against.
type AuthorizeResult struct {
	Failure   AuthorizeFailureKind
	Err       error
	Claims    *jwt.AccessClaims
	Effective permission.Effective
	Live      bool
}

// AuthorizeDeps captures decision point dependencies.
type AuthorizeDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	// LiveAt is the lowest sensitivity evaluated against a fresh graph
	// resolution instead of token claims.
	LiveAt     permission.Sensitivity
	Resolve    func(ctx context.Context, userID string) (permission.Effective, error)
	UserActive func(ctx context.Context, userID string) (bool, error)
}

// RunAuthorize verifies the access token and evaluates req.
func RunAuthorize(ctx context.Context, token string, req permission.Requirement, deps AuthorizeDeps) AuthorizeResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return AuthorizeResult{Failure: AuthorizeFailureMissingToken, Err: errors.New("missing access token")}
	}

	claims, err := deps.ParseAccess(token)
	if err != nil {
		return AuthorizeResult{Failure: AuthorizeFailureInvalidToken, Err: err}
	}

	eff := permission.EffectiveFrom(claims.Roles, claims.Perms)
	live := req.Sensitivity >= deps.LiveAt
	if live {
		active, err := deps.UserActive(ctx, claims.UID)
		if err != nil {
			return AuthorizeResult{Failure: AuthorizeFailureResolve, Err: err, Claims: claims}
		}
		if !active {
			return AuthorizeResult{Failure: AuthorizeFailureSubjectInactive, Claims: claims, Live: true}
		}
		eff, err = deps.Resolve(ctx, claims.UID)
		if err != nil {
			return AuthorizeResult{Failure: AuthorizeFailureResolve, Err: err, Claims: claims}
		}
	}

	if !req.SatisfiedBy(eff) {
		return AuthorizeResult{Failure: AuthorizeFailureForbidden, Claims: claims, Effective: eff, Live: live}
	}
	return AuthorizeResult{Failure: AuthorizeFailureNone, Claims: claims, Effective: eff, Live: live}
}
