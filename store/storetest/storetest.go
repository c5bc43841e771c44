// Package storetest is a conformance suite for shopauth.RefreshTokenStore
// implementations. Every store package runs it against its own backend so
// rotation, revocation and reuse responses behave the same everywhere.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) shopauth.RefreshTokenStore

// RunRefreshStore runs the suite as subtests of t.
func RunRefreshStore(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(*testing.T, shopauth.RefreshTokenStore)
	}{
		{"RoundTrip", testRoundTrip},
		{"RotateSingleWinner", testRotateSingleWinner},
		{"RotationChain", testRotationChain},
		{"RejectionsKeepState", testRejectionsKeepState},
		{"RevokeIsIdempotent", testRevokeIsIdempotent},
		{"RevokeAllCountsLiveOnly", testRevokeAllCountsLiveOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// Stores may expire keys on the wall clock, so records are anchored at now.
var epoch = time.Now().UTC().Truncate(time.Millisecond)

func token(id, hash, user, family string, issued time.Time) shopauth.RefreshToken {
	return shopauth.RefreshToken{
		ID:        id,
		Hash:      hash,
		UserID:    user,
		FamilyID:  family,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(24 * time.Hour),
		IssuedIP:  "203.0.113.7",
	}
}

func mustSave(t *testing.T, s shopauth.RefreshTokenStore, tok shopauth.RefreshToken) {
	t.Helper()
	if err := s.Save(context.Background(), tok); err != nil {
		t.Fatalf("Save(%s): %v", tok.ID, err)
	}
}

func mustGet(t *testing.T, s shopauth.RefreshTokenStore, id string) shopauth.RefreshToken {
	t.Helper()
	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return got
}

func testRoundTrip(t *testing.T, s shopauth.RefreshTokenStore) {
	tok := token("rt-1", "h1", "u1", "f1", epoch)
	mustSave(t, s, tok)

	got := mustGet(t, s, "rt-1")
	if got.Hash != "h1" || got.UserID != "u1" || got.FamilyID != "f1" || got.IssuedIP != "203.0.113.7" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.ExpiresAt.Equal(tok.ExpiresAt) {
		t.Fatalf("ExpiresAt = %v, want %v", got.ExpiresAt, tok.ExpiresAt)
	}
	if !got.Rotatable(epoch) {
		t.Fatal("fresh token must be rotatable")
	}

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, shopauth.ErrRefreshNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrRefreshNotFound", err)
	}
}

func testRotateSingleWinner(t *testing.T, s shopauth.RefreshTokenStore) {
	ctx := context.Background()
	mustSave(t, s, token("rt-race", "h0", "u1", "f1", epoch))

	const workers = 16
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		next := token(fmt.Sprintf("rt-next-%d", i), fmt.Sprintf("h%d", i+1), "u1", "f1", epoch.Add(time.Minute))
		go func() {
			defer wg.Done()
			<-start
			_, err := s.RotateRefreshToken(ctx, "rt-race", "h0", next, epoch.Add(time.Minute))
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, shopauth.ErrRefreshConsumed):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	parent := mustGet(t, s, "rt-race")
	if !parent.Revoked || parent.ReplacedBy == "" {
		t.Fatalf("parent not consumed: %+v", parent)
	}
	child := mustGet(t, s, parent.ReplacedBy)
	if child.Revoked || child.FamilyID != "f1" || child.UserID != "u1" {
		t.Fatalf("unexpected successor: %+v", child)
	}
}

func testRotationChain(t *testing.T, s shopauth.RefreshTokenStore) {
	ctx := context.Background()
	mustSave(t, s, token("rt-0", "h0", "u1", "f1", epoch))

	now := epoch
	id, hash := "rt-0", "h0"
	for i := 1; i <= 3; i++ {
		now = now.Add(time.Minute)
		next := token(fmt.Sprintf("rt-%d", i), fmt.Sprintf("h%d", i), "u1", "f1", now)
		parent, err := s.RotateRefreshToken(ctx, id, hash, next, now)
		if err != nil {
			t.Fatalf("rotation %d: %v", i, err)
		}
		if parent.ID != id || parent.Revoked {
			t.Fatalf("rotation %d returned %+v, want the pre-rotation parent", i, parent)
		}
		id, hash = next.ID, next.Hash
	}

	// Replaying the first token is reuse even though its family lives on.
	parent, err := s.RotateRefreshToken(ctx, "rt-0", "h0", token("rt-x", "hx", "u1", "f1", now), now)
	if !errors.Is(err, shopauth.ErrRefreshConsumed) {
		t.Fatalf("replay = %v, want ErrRefreshConsumed", err)
	}
	if parent.ID != "rt-0" || parent.FamilyID != "f1" {
		t.Fatalf("replay must still return the parent, got %+v", parent)
	}
	if _, err := s.Get(ctx, "rt-x"); !errors.Is(err, shopauth.ErrRefreshNotFound) {
		t.Fatalf("rejected rotation persisted a successor: %v", err)
	}
}

func testRejectionsKeepState(t *testing.T, s shopauth.RefreshTokenStore) {
	ctx := context.Background()
	mustSave(t, s, token("rt-live", "h0", "u1", "f1", epoch))
	next := token("rt-next", "h1", "u1", "f1", epoch)

	if _, err := s.RotateRefreshToken(ctx, "rt-live", "wrong", next, epoch.Add(time.Minute)); !errors.Is(err, shopauth.ErrRefreshMismatch) {
		t.Fatalf("wrong secret = %v, want ErrRefreshMismatch", err)
	}
	if _, err := s.RotateRefreshToken(ctx, "rt-live", "h0", next, epoch.Add(25*time.Hour)); !errors.Is(err, shopauth.ErrRefreshExpired) {
		t.Fatalf("expired = %v, want ErrRefreshExpired", err)
	}
	if _, err := s.RotateRefreshToken(ctx, "nope", "h0", next, epoch); !errors.Is(err, shopauth.ErrRefreshNotFound) {
		t.Fatalf("unknown = %v, want ErrRefreshNotFound", err)
	}

	if got := mustGet(t, s, "rt-live"); !got.Rotatable(epoch.Add(time.Minute)) {
		t.Fatalf("rejections must not consume the token: %+v", got)
	}
	if _, err := s.RotateRefreshToken(ctx, "rt-live", "h0", next, epoch.Add(time.Minute)); err != nil {
		t.Fatalf("valid rotation after rejections: %v", err)
	}
}

func testRevokeIsIdempotent(t *testing.T, s shopauth.RefreshTokenStore) {
	ctx := context.Background()
	mustSave(t, s, token("rt-1", "h1", "u1", "f1", epoch))

	first := epoch.Add(time.Minute)
	if err := s.Revoke(ctx, "rt-1", first); err != nil {
		t.Fatalf("first Revoke: %v", err)
	}
	if err := s.Revoke(ctx, "rt-1", first.Add(time.Hour)); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}

	got := mustGet(t, s, "rt-1")
	if !got.Revoked || got.RevokedAt == nil || !got.RevokedAt.Equal(first) {
		t.Fatalf("unexpected revocation state: %+v", got)
	}
	if _, err := s.RotateRefreshToken(ctx, "rt-1", "h1", token("rt-2", "h2", "u1", "f1", first), first); !errors.Is(err, shopauth.ErrRefreshConsumed) {
		t.Fatalf("rotate revoked = %v, want ErrRefreshConsumed", err)
	}
	if err := s.Revoke(ctx, "missing", first); !errors.Is(err, shopauth.ErrRefreshNotFound) {
		t.Fatalf("Revoke(missing) = %v, want ErrRefreshNotFound", err)
	}
}

func testRevokeAllCountsLiveOnly(t *testing.T, s shopauth.RefreshTokenStore) {
	ctx := context.Background()
	mustSave(t, s, token("a-1", "h1", "alice", "fa", epoch))
	mustSave(t, s, token("a-2", "h2", "alice", "fb", epoch))
	mustSave(t, s, token("a-3", "h3", "alice", "fc", epoch))
	mustSave(t, s, token("b-1", "h4", "bob", "fd", epoch))
	if err := s.Revoke(ctx, "a-3", epoch); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	n, err := s.RevokeAllForUser(ctx, "alice", epoch.Add(time.Minute))
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if n != 2 {
		t.Fatalf("revoked %d, want 2", n)
	}
	if n, _ := s.RevokeAllForUser(ctx, "alice", epoch.Add(2*time.Minute)); n != 0 {
		t.Fatalf("second revoke-all revoked %d, want 0", n)
	}
	if got := mustGet(t, s, "b-1"); got.Revoked {
		t.Fatal("other users' tokens must be untouched")
	}
}
