package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

const (
	refreshIDSize      = 16
	refreshSecretSize  = 32
	refreshTokenRawLen = refreshIDSize + refreshSecretSize
)

// ErrMalformedRefreshToken is returned for strings that are not a
// base64url(id || secret) refresh token.
var ErrMalformedRefreshToken = errors.New("malformed refresh token")

// RefreshSecret is the 32 random bytes behind a refresh token. Only its
// SHA-256 is persisted.
type RefreshSecret [refreshSecretSize]byte

// NewRefreshToken draws a random record id and secret.
func NewRefreshToken() (uuid.UUID, RefreshSecret, error) {
	var secret RefreshSecret
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, secret, err
	}
	if _, err := rand.Read(secret[:]); err != nil {
		return uuid.Nil, secret, err
	}
	return id, secret, nil
}

// Hash returns the hex SHA-256 of the secret, the form stores keep.
func (s RefreshSecret) Hash() string {
	sum := sha256.Sum256(s[:])
	return hex.EncodeToString(sum[:])
}

// Matches compares s against a stored hex hash in constant time.
func (s RefreshSecret) Matches(storedHash string) bool {
	want := s.Hash()
	return subtle.ConstantTimeCompare([]byte(want), []byte(storedHash)) == 1
}

// EncodeRefreshToken renders the opaque client value.
func EncodeRefreshToken(id uuid.UUID, secret RefreshSecret) string {
	var raw [refreshTokenRawLen]byte
	copy(raw[:refreshIDSize], id[:])
	copy(raw[refreshIDSize:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeRefreshToken splits a client value back into record id and secret.
func DecodeRefreshToken(token string) (uuid.UUID, RefreshSecret, error) {
	var secret RefreshSecret

	if len(token) != base64.RawURLEncoding.EncodedLen(refreshTokenRawLen) {
		return uuid.Nil, secret, ErrMalformedRefreshToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != refreshTokenRawLen {
		return uuid.Nil, secret, ErrMalformedRefreshToken
	}

	id, err := uuid.FromBytes(raw[:refreshIDSize])
	if err != nil || id == uuid.Nil {
		return uuid.Nil, secret, ErrMalformedRefreshToken
	}
	copy(secret[:], raw[refreshIDSize:])

	return id, secret, nil
}
