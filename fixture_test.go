package shopauth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/permission"
	"github.com/MrEthical07/shopauth/store/memory"
)

const (
	adminEmail    = "admin@shop.test"
	adminPassword = "admin-pass-123"
	clerkEmail    = "clerk@shop.test"
	clerkPassword = "clerk-pass-123"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	engine  *shopauth.Engine
	users   *memory.UserStore
	refresh *memory.RefreshStore
	graph   *memory.Graph
	clock   *testClock
	sink    *shopauth.ChannelSink
	adminID string
	clerkID string
}

func testConfig() shopauth.Config {
	cfg := shopauth.DefaultConfig()
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "shopauth-test"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Lockout.Threshold = 3
	cfg.Lockout.Window = 15 * time.Minute
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	return cfg
}

func testHasher(t *testing.T, cfg shopauth.Config) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

// newFixture seeds an admin holding every catalog code and a clerk who can
// only view and edit products.
func newFixture(t *testing.T, mutate func(*shopauth.Config)) *fixture {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		users:   memory.NewUserStore(),
		refresh: memory.NewRefreshStore(),
		graph:   memory.NewGraph(),
		clock:   newTestClock(),
		sink:    shopauth.NewChannelSink(512),
		adminID: "user-admin",
		clerkID: "user-clerk",
	}

	h := testHasher(t, cfg)
	ctx := context.Background()
	for _, u := range []struct{ id, email, secret, role string }{
		{f.adminID, adminEmail, adminPassword, "admin"},
		{f.clerkID, clerkEmail, clerkPassword, "catalog_manager"},
	} {
		hash, err := h.Hash(u.secret)
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		err = f.users.Create(ctx, shopauth.User{
			ID:            u.id,
			Email:         u.email,
			DisplayName:   u.role,
			PasswordHash:  hash,
			Active:        true,
			EmailVerified: true,
			CreatedAt:     f.clock.Now(),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	f.graph.CreateRole("admin", permission.DefaultCodes...)
	f.graph.CreateRole("catalog_manager", "products.view", "products.edit")
	f.graph.CreateRole("customer")
	if err := f.graph.AssignRole(ctx, f.adminID, "admin"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := f.graph.AssignRole(ctx, f.clerkID, "catalog_manager"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	engine, err := shopauth.New().
		WithConfig(cfg).
		WithUserStore(f.users).
		WithRefreshStore(f.refresh).
		WithGraph(f.graph).
		WithAuditSink(f.sink).
		WithClock(f.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

func (f *fixture) login(t *testing.T, email, secret string) *shopauth.LoginResult {
	t.Helper()
	res, err := f.engine.Login(context.Background(), email, secret)
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}

// events closes the engine and drains every audit event emitted so far.
func (f *fixture) events() []shopauth.AuditEvent {
	f.engine.Close()
	var out []shopauth.AuditEvent
	for {
		select {
		case ev := <-f.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []shopauth.AuditEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.EventType
	}
	return out
}
