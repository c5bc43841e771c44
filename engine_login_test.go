package shopauth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/permission"
)

func TestLoginIssuesPairAndProfile(t *testing.T) {
	f := newFixture(t, nil)

	res := f.login(t, "  Clerk@Shop.TEST ", clerkPassword)
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", res.TokenPair)
	}
	if res.User.ID != f.clerkID || res.User.Email != clerkEmail {
		t.Fatalf("unexpected profile %+v", res.User)
	}
	if len(res.User.Roles) != 1 || res.User.Roles[0] != "catalog_manager" {
		t.Fatalf("unexpected roles %v", res.User.Roles)
	}
	if !res.AccessExpiresAt.Equal(f.clock.Now().Add(5 * time.Minute)) {
		t.Fatalf("unexpected access expiry %v", res.AccessExpiresAt)
	}
	if !res.RefreshExpiresAt.Equal(f.clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry %v", res.RefreshExpiresAt)
	}

	u, _ := f.users.GetByID(context.Background(), f.clerkID)
	if u.LastAccessAt == nil || !u.LastAccessAt.Equal(f.clock.Now()) {
		t.Fatalf("LastAccessAt not stamped: %v", u.LastAccessAt)
	}
}

func TestLoginGenericFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.engine.Login(ctx, "nobody@shop.test", "whatever-123"); !errors.Is(err, shopauth.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.engine.Login(ctx, clerkEmail, "wrong-pass-1"); !errors.Is(err, shopauth.ErrInvalidCredentials) {
		t.Fatalf("wrong secret: expected ErrInvalidCredentials, got %v", err)
	}

	if err := f.users.SetActive(f.clerkID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, err := f.engine.Login(ctx, clerkEmail, clerkPassword); !errors.Is(err, shopauth.ErrInvalidCredentials) {
		t.Fatalf("inactive: expected ErrInvalidCredentials, got %v", err)
	}

	_, err := f.engine.Login(ctx, "", "")
	var verr *shopauth.ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, shopauth.ErrValidation) {
		t.Fatalf("empty input: expected ValidationError, got %v", err)
	}
	if verr.Fields["email"] == "" || verr.Fields["password"] == "" {
		t.Fatalf("expected email and password fields, got %v", verr.Fields)
	}
}

func TestLoginUnverifiedEmail(t *testing.T) {
	f := newFixture(t, func(cfg *shopauth.Config) {
		cfg.Account.RequireVerifiedEmail = true
	})
	if err := f.users.SetEmailVerified(f.clerkID, false); err != nil {
		t.Fatalf("SetEmailVerified: %v", err)
	}

	_, err := f.engine.Login(context.Background(), clerkEmail, clerkPassword)
	if !errors.Is(err, shopauth.ErrAccountUnverified) {
		t.Fatalf("expected ErrAccountUnverified, got %v", err)
	}
}

func TestLockoutAfterThresholdFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := f.engine.Login(ctx, clerkEmail, "wrong-pass-1")
		if !errors.Is(err, shopauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := f.engine.Login(ctx, clerkEmail, clerkPassword)
	if !errors.Is(err, shopauth.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with the correct secret, got %v", err)
	}
	retry, ok := shopauth.RetryAfter(err)
	if !ok || retry != 15*time.Minute {
		t.Fatalf("expected 15m retry-after, got %v (%v)", retry, ok)
	}

	f.clock.Advance(10 * time.Minute)
	if _, err := f.engine.Login(ctx, clerkEmail, clerkPassword); !errors.Is(err, shopauth.ErrAccountLocked) {
		t.Fatalf("still inside window: expected ErrAccountLocked, got %v", err)
	}

	f.clock.Advance(5*time.Minute + time.Second)
	f.login(t, clerkEmail, clerkPassword)

	u, _ := f.users.GetByID(ctx, f.clerkID)
	if u.FailedAttempts != 0 || u.LockedUntil != nil {
		t.Fatalf("elapsed lock must be cleared, got attempts=%d locked=%v", u.FailedAttempts, u.LockedUntil)
	}

	types := eventTypes(f.events())
	want := map[string]bool{"login_failure": false, "account_locked": false, "login_locked": false, "login_success": false}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Fatalf("expected %s audit event, got %v", typ, types)
		}
	}

	snap := f.engine.MetricsSnapshot()
	if snap.Counters[shopauth.MetricAccountLocked] != 1 || snap.Counters[shopauth.MetricLoginLocked] != 2 {
		t.Fatalf("unexpected lockout metrics %v", snap.Counters)
	}
}

func TestSuccessfulLoginResetsCounter(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = f.engine.Login(ctx, clerkEmail, "wrong-pass-1")
	}
	u, _ := f.users.GetByID(ctx, f.clerkID)
	if u.FailedAttempts != 2 {
		t.Fatalf("expected 2 failed attempts, got %d", u.FailedAttempts)
	}

	f.login(t, clerkEmail, clerkPassword)
	u, _ = f.users.GetByID(ctx, f.clerkID)
	if u.FailedAttempts != 0 || u.LockedUntil != nil {
		t.Fatalf("success must reset, got attempts=%d locked=%v", u.FailedAttempts, u.LockedUntil)
	}

	for i := 0; i < 2; i++ {
		_, _ = f.engine.Login(ctx, clerkEmail, "wrong-pass-1")
	}
	f.login(t, clerkEmail, clerkPassword)
}

func TestUnlockAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = f.engine.Login(ctx, clerkEmail, "wrong-pass-1")
	}
	if _, err := f.engine.Login(ctx, clerkEmail, clerkPassword); !errors.Is(err, shopauth.ErrAccountLocked) {
		t.Fatalf("expected lock, got %v", err)
	}

	if err := f.engine.UnlockAccount(ctx, f.clerkID); err != nil {
		t.Fatalf("UnlockAccount: %v", err)
	}
	f.login(t, clerkEmail, clerkPassword)

	if err := f.engine.UnlockAccount(ctx, "missing"); !errors.Is(err, shopauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t, func(cfg *shopauth.Config) {
		cfg.Account.DefaultRole = "customer"
	})
	ctx := context.Background()

	res, err := f.engine.Register(ctx, shopauth.RegisterRequest{
		Email:                "New.Staff@Shop.test",
		DisplayName:          "New Staff",
		Password:             "fresh-pass-42",
		PasswordConfirmation: "fresh-pass-42",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected a token pair after registration")
	}
	if res.User.Email != "new.staff@shop.test" {
		t.Fatalf("email must be normalized, got %q", res.User.Email)
	}
	if len(res.User.Roles) != 1 || res.User.Roles[0] != "customer" {
		t.Fatalf("expected default role, got %v", res.User.Roles)
	}

	f.login(t, "new.staff@shop.test", "fresh-pass-42")

	_, err = f.engine.Register(ctx, shopauth.RegisterRequest{
		Email:                "new.staff@shop.test",
		DisplayName:          "Dup",
		Password:             "fresh-pass-42",
		PasswordConfirmation: "fresh-pass-42",
	})
	if !errors.Is(err, shopauth.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.Register(context.Background(), shopauth.RegisterRequest{
		Email:                "not-an-address",
		Password:             "short",
		PasswordConfirmation: "different",
	})
	var verr *shopauth.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"email", "display_name", "password", "password_confirmation"} {
		if verr.Fields[field] == "" {
			t.Fatalf("expected %s problem, got %v", field, verr.Fields)
		}
	}
}

func TestRegisterModes(t *testing.T) {
	req := shopauth.RegisterRequest{
		Email:                "pending@shop.test",
		DisplayName:          "Pending",
		Password:             "fresh-pass-42",
		PasswordConfirmation: "fresh-pass-42",
	}

	disabled := newFixture(t, func(cfg *shopauth.Config) {
		cfg.Account.RegistrationEnabled = false
	})
	if _, err := disabled.engine.Register(context.Background(), req); !errors.Is(err, shopauth.ErrRegistrationDisabled) {
		t.Fatalf("expected ErrRegistrationDisabled, got %v", err)
	}

	verify := newFixture(t, func(cfg *shopauth.Config) {
		cfg.Account.RequireVerifiedEmail = true
	})
	res, err := verify.engine.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatal("unverified registration must not issue tokens")
	}
	if _, err := verify.engine.Login(context.Background(), req.Email, req.Password); !errors.Is(err, shopauth.ErrAccountUnverified) {
		t.Fatalf("expected ErrAccountUnverified, got %v", err)
	}
}

func TestProfileResolvesLive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.engine.Profile(ctx, f.clerkID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if !permission.NewSet(p.Permissions...).HasAll("products.view", "products.edit") {
		t.Fatalf("unexpected permissions %v", p.Permissions)
	}

	_ = f.graph.Grant("catalog_manager", "brands.view")
	p, _ = f.engine.Profile(ctx, f.clerkID)
	if !permission.NewSet(p.Permissions...).Has("brands.view") {
		t.Fatalf("grant must be visible on next profile read, got %v", p.Permissions)
	}
}
