package memory

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/MrEthical07/shopauth"
)

// RefreshStore is an in-memory shopauth.RefreshTokenStore. Rotation holds
// the write lock for the whole check-and-swap.
type RefreshStore struct {
	mu     sync.Mutex
	tokens map[string]shopauth.RefreshToken
}

// NewRefreshStore creates an empty store.
func NewRefreshStore() *RefreshStore {
	return &RefreshStore{tokens: make(map[string]shopauth.RefreshToken)}
}

func (s *RefreshStore) Save(_ context.Context, token shopauth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *RefreshStore) Get(_ context.Context, id string) (shopauth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return shopauth.RefreshToken{}, shopauth.ErrRefreshNotFound
	}
	return t, nil
}

func (s *RefreshStore) RotateRefreshToken(_ context.Context, id, secretHash string, next shopauth.RefreshToken, now time.Time) (shopauth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.tokens[id]
	if !ok {
		return shopauth.RefreshToken{}, shopauth.ErrRefreshNotFound
	}
	if subtle.ConstantTimeCompare([]byte(parent.Hash), []byte(secretHash)) != 1 {
		return parent, shopauth.ErrRefreshMismatch
	}
	if parent.Revoked || parent.ReplacedBy != "" {
		return parent, shopauth.ErrRefreshConsumed
	}
	if !now.Before(parent.ExpiresAt) {
		return parent, shopauth.ErrRefreshExpired
	}

	loaded := parent
	parent.Revoked = true
	parent.RevokedAt = &now
	parent.ReplacedBy = next.ID
	s.tokens[id] = parent

	next.UserID = parent.UserID
	next.FamilyID = parent.FamilyID
	s.tokens[next.ID] = next
	return loaded, nil
}

func (s *RefreshStore) Revoke(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return shopauth.ErrRefreshNotFound
	}
	if !t.Revoked {
		t.Revoked = true
		t.RevokedAt = &at
		s.tokens[id] = t
	}
	return nil
}

func (s *RefreshStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, t := range s.tokens {
		if t.UserID != userID || t.Revoked {
			continue
		}
		t.Revoked = true
		t.RevokedAt = &at
		s.tokens[id] = t
		n++
	}
	return n, nil
}

// Family returns every token sharing familyID, in no particular order.
func (s *RefreshStore) Family(familyID string) []shopauth.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []shopauth.RefreshToken
	for _, t := range s.tokens {
		if t.FamilyID == familyID {
			out = append(out, t)
		}
	}
	return out
}

// Active counts unrevoked tokens belonging to userID.
func (s *RefreshStore) Active(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && !t.Revoked {
			n++
		}
	}
	return n
}
