package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/shopauth"
)

// UserStore is an in-memory shopauth.UserStore.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]*shopauth.User
	byEmail map[string]string
}

// NewUserStore creates an empty store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]*shopauth.User),
		byEmail: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (shopauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return shopauth.User{}, shopauth.ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (shopauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return shopauth.User{}, shopauth.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) Create(_ context.Context, user shopauth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(user.Email)
	if _, taken := s.byEmail[key]; taken {
		return shopauth.ErrEmailTaken
	}
	u := cloneUser(&user)
	s.byID[u.ID] = &u
	s.byEmail[key] = u.ID
	return nil
}

func (s *UserStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return s.update(userID, func(u *shopauth.User) { u.PasswordHash = hash })
}

func (s *UserStore) IncrementFailedAttempts(_ context.Context, userID string) (int, *time.Time, error) {
	var (
		n     int
		until *time.Time
	)
	err := s.update(userID, func(u *shopauth.User) {
		u.FailedAttempts++
		n = u.FailedAttempts
		if u.LockedUntil != nil {
			t := *u.LockedUntil
			until = &t
		}
	})
	return n, until, err
}

func (s *UserStore) LockUser(_ context.Context, userID string, until time.Time) error {
	return s.update(userID, func(u *shopauth.User) {
		u.FailedAttempts = 0
		u.LockedUntil = &until
	})
}

func (s *UserStore) ClearLockout(_ context.Context, userID string) error {
	return s.update(userID, func(u *shopauth.User) {
		u.FailedAttempts = 0
		u.LockedUntil = nil
	})
}

// RecordLoginSuccess refuses with shopauth.ErrAccountLocked when a lock
// still in force at at was set after the caller read the user.
func (s *UserStore) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return shopauth.ErrUserNotFound
	}
	if u.LockedUntil != nil && u.LockedUntil.After(at) {
		return shopauth.ErrAccountLocked
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.LastAccessAt = &at
	return nil
}

// SetActive flips the user's active flag.
func (s *UserStore) SetActive(userID string, active bool) error {
	return s.update(userID, func(u *shopauth.User) { u.Active = active })
}

// SetEmailVerified flips the user's verified flag.
func (s *UserStore) SetEmailVerified(userID string, verified bool) error {
	return s.update(userID, func(u *shopauth.User) { u.EmailVerified = verified })
}

func (s *UserStore) update(userID string, fn func(*shopauth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return shopauth.ErrUserNotFound
	}
	fn(u)
	return nil
}

func cloneUser(u *shopauth.User) shopauth.User {
	out := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		out.LockedUntil = &t
	}
	if u.LastAccessAt != nil {
		t := *u.LastAccessAt
		out.LastAccessAt = &t
	}
	return out
}
