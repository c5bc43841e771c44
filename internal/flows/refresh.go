package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/shopauth/internal"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureNotFound
	RefreshFailureConsumed
	RefreshFailureExpired
	RefreshFailureMismatch
	RefreshFailureSubjectInactive
	RefreshFailureBackend
	RefreshFailureIssueAccess
)

// Reuse reports whether the failure means a dead token was presented.
func (k RefreshFailureKind) Reuse() bool {
	switch k {
	case RefreshFailureConsumed, RefreshFailureExpired, RefreshFailureMismatch:
		return true
	}
	return false
}

// RefreshSeed is the successor a rotation inserts. The store fills in the
// owner and family from the parent.
type RefreshSeed struct {
	ID        string
	Hash      string
	IssuedAt  time.Time
	ExpiresAt time.Time
	IssuedIP  string
}

// RefreshParent is what the store reports about the presented token.
type RefreshParent struct {
	Found    bool
	UserID   string
	FamilyID string
}

// RefreshResult carries either the issued pair or failure metadata.
type RefreshResult struct {
	Failure          RefreshFailureKind
	Err              error
	TokenID          string
	UserID           string
	FamilyRevoked    int
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshDeps captures rotation dependencies. The four store sentinels let
// the flow classify Rotate errors without importing the root package.
type RefreshDeps struct {
	RefreshTTL          time.Duration
	RevokeFamilyOnReuse bool
	Now                 func() time.Time
	ClientIP            func(context.Context) string

	Lookup      func(ctx context.Context, id string) (TokenRecord, error)
	Rotate      func(ctx context.Context, id, secretHash string, next RefreshSeed, now time.Time) (RefreshParent, error)
	Revoke      func(ctx context.Context, id string, at time.Time) error
	RevokeAll   func(ctx context.Context, userID string, at time.Time) (int, error)
	UserActive  func(ctx context.Context, userID string) (bool, error)
	IssueAccess func(ctx context.Context, userID string) (string, time.Time, error)

	ErrNotFound error
	ErrConsumed error
	ErrExpired  error
	ErrMismatch error

	Warn func(msg string, err error)
}

// RunRefresh exchanges a refresh token for a new pair. Rotation is a single
// store-side compare-and-swap; of two concurrent calls with the same token
// exactly one gets past Rotate.
//
// The access token is signed before the swap, so a resolver or signing
// failure leaves the presented token unconsumed and the client can retry.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	id, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	tokenID := id.String()
	now := deps.Now()

	rec, err := deps.Lookup(ctx, tokenID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureBackend, Err: err, TokenID: tokenID}
	}

	// A dead token skips straight to Rotate, which reports why it is dead
	// along with its owner.
	var minted *mintedAccess
	if rec.usable(secret, now) {
		m, res := mintAccess(ctx, tokenID, rec.UserID, deps)
		if m == nil {
			if res.Failure == RefreshFailureSubjectInactive {
				if revokeErr := deps.Revoke(ctx, tokenID, now); revokeErr != nil {
					warn(deps.Warn, "revoking refresh token of inactive user failed", revokeErr)
				}
			}
			return res
		}
		minted = m
	}

	nextID, nextSecret, err := internal.NewRefreshToken()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureBackend, Err: err, TokenID: tokenID}
	}
	seed := RefreshSeed{
		ID:        nextID.String(),
		Hash:      nextSecret.Hash(),
		IssuedAt:  now,
		ExpiresAt: now.Add(deps.RefreshTTL),
	}
	if deps.ClientIP != nil {
		seed.IssuedIP = deps.ClientIP(ctx)
	}

	parent, err := deps.Rotate(ctx, tokenID, secret.Hash(), seed, now)
	if err != nil {
		kind := classifyRotate(err, deps)
		res := RefreshResult{Failure: kind, Err: err, TokenID: tokenID, UserID: parent.UserID}
		if kind.Reuse() && parent.Found && deps.RevokeFamilyOnReuse {
			n, revokeErr := deps.RevokeAll(ctx, parent.UserID, now)
			if revokeErr != nil {
				warn(deps.Warn, "refresh family revocation failed", revokeErr)
			}
			res.FamilyRevoked = n
		}
		return res
	}

	if minted == nil || parent.UserID != rec.UserID {
		// The record changed between Lookup and Rotate. Mint for the owner
		// Rotate reported and retire the successor if that fails.
		m, res := mintAccess(ctx, tokenID, parent.UserID, deps)
		if m == nil {
			if revokeErr := deps.Revoke(ctx, seed.ID, now); revokeErr != nil {
				warn(deps.Warn, "revoking unissued successor failed", revokeErr)
			}
			return res
		}
		minted = m
	}

	return RefreshResult{
		Failure:          RefreshFailureNone,
		TokenID:          tokenID,
		UserID:           parent.UserID,
		AccessToken:      minted.token,
		AccessExpiresAt:  minted.expiresAt,
		RefreshToken:     internal.EncodeRefreshToken(nextID, nextSecret),
		RefreshExpiresAt: seed.ExpiresAt,
	}
}

type mintedAccess struct {
	token     string
	expiresAt time.Time
}

// mintAccess checks that userID may still hold a session and signs an access
// token for it. On failure the result carries the classified failure.
func mintAccess(ctx context.Context, tokenID, userID string, deps RefreshDeps) (*mintedAccess, RefreshResult) {
	active, err := deps.UserActive(ctx, userID)
	if err != nil {
		return nil, RefreshResult{Failure: RefreshFailureBackend, Err: err, TokenID: tokenID, UserID: userID}
	}
	if !active {
		return nil, RefreshResult{Failure: RefreshFailureSubjectInactive, TokenID: tokenID, UserID: userID}
	}

	token, exp, err := deps.IssueAccess(ctx, userID)
	if err != nil {
		return nil, RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, TokenID: tokenID, UserID: userID}
	}
	return &mintedAccess{token: token, expiresAt: exp}, RefreshResult{}
}

func classifyRotate(err error, deps RefreshDeps) RefreshFailureKind {
	switch {
	case deps.ErrNotFound != nil && errors.Is(err, deps.ErrNotFound):
		return RefreshFailureNotFound
	case deps.ErrConsumed != nil && errors.Is(err, deps.ErrConsumed):
		return RefreshFailureConsumed
	case deps.ErrExpired != nil && errors.Is(err, deps.ErrExpired):
		return RefreshFailureExpired
	case deps.ErrMismatch != nil && errors.Is(err, deps.ErrMismatch):
		return RefreshFailureMismatch
	default:
		return RefreshFailureBackend
	}
}
