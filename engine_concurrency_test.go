package shopauth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/permission"
	"github.com/MrEthical07/shopauth/store/memory"
)

// overlappingUsers holds every email lookup until overlap of them are in
// flight, so each login reads the same pre-failure row. Success writes and
// any later lookups wait for proceed.
type overlappingUsers struct {
	*memory.UserStore
	overlap int32
	arrived atomic.Int32
	release chan struct{}
	proceed chan struct{}
}

func newOverlappingUsers(overlap int) *overlappingUsers {
	return &overlappingUsers{
		UserStore: memory.NewUserStore(),
		overlap:   int32(overlap),
		release:   make(chan struct{}),
		proceed:   make(chan struct{}),
	}
}

func (u *overlappingUsers) GetByEmail(ctx context.Context, email string) (shopauth.User, error) {
	n := u.arrived.Add(1)
	if n > u.overlap {
		<-u.proceed
		return u.UserStore.GetByEmail(ctx, email)
	}

	user, err := u.UserStore.GetByEmail(ctx, email)
	if n == u.overlap {
		close(u.release)
	}
	<-u.release
	return user, err
}

func (u *overlappingUsers) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	<-u.proceed
	return u.UserStore.RecordLoginSuccess(ctx, userID, at)
}

type stalledSink struct {
	gate chan struct{}
}

func (s *stalledSink) Emit(context.Context, shopauth.AuditEvent) {
	<-s.gate
}

// flakyGraph fails role lookups while fail is set.
type flakyGraph struct {
	*memory.Graph
	fail atomic.Bool
}

func (g *flakyGraph) UserRoles(ctx context.Context, userID string) ([]permission.UserRole, error) {
	if g.fail.Load() {
		return nil, errors.New("role graph unreachable")
	}
	return g.Graph.UserRoles(ctx, userID)
}

// newEngineWith seeds the clerk into seed and builds an engine over users.
// wrapGraph may be nil.
func newEngineWith(t *testing.T, cfg shopauth.Config, users shopauth.UserStore, seed *memory.UserStore, sink shopauth.AuditSink, wrapGraph func(*memory.Graph) permission.Graph) (*shopauth.Engine, *testClock) {
	t.Helper()

	hash, err := testHasher(t, cfg).Hash(clerkPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	clock := newTestClock()
	err = seed.Create(context.Background(), shopauth.User{
		ID:            "user-clerk",
		Email:         clerkEmail,
		DisplayName:   "Clerk",
		PasswordHash:  hash,
		Active:        true,
		EmailVerified: true,
		CreatedAt:     clock.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	graph := memory.NewGraph()
	graph.CreateRole("catalog_manager", "products.view")
	if err := graph.AssignRole(context.Background(), "user-clerk", "catalog_manager"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	var g permission.Graph = graph
	if wrapGraph != nil {
		g = wrapGraph(graph)
	}

	engine, err := shopauth.New().
		WithConfig(cfg).
		WithUserStore(users).
		WithRefreshStore(memory.NewRefreshStore()).
		WithGraph(g).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, clock
}

func TestConcurrentWrongGuessesAreCappedAtThreshold(t *testing.T) {
	const guesses = 9
	users := newOverlappingUsers(guesses)
	close(users.proceed)
	engine, _ := newEngineWith(t, testConfig(), users, users.UserStore, shopauth.NoOpSink{}, nil)

	var (
		wg               sync.WaitGroup
		invalid, locked  atomic.Int32
		unexpectedErrors = make(chan error, guesses)
	)
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Login(context.Background(), clerkEmail, "wrong-pass-1")
			switch {
			case errors.Is(err, shopauth.ErrInvalidCredentials):
				invalid.Add(1)
			case errors.Is(err, shopauth.ErrAccountLocked):
				locked.Add(1)
			default:
				unexpectedErrors <- err
			}
		}()
	}
	wg.Wait()
	close(unexpectedErrors)

	for err := range unexpectedErrors {
		t.Fatalf("unexpected login error %v", err)
	}
	if invalid.Load() != 3 || locked.Load() != guesses-3 {
		t.Fatalf("expected 3 evaluated failures and %d locked, got %d and %d", guesses-3, invalid.Load(), locked.Load())
	}

	u, _ := users.GetByID(context.Background(), "user-clerk")
	if u.LockedUntil == nil {
		t.Fatal("account must be locked after the burst")
	}
	if n := engine.MetricsSnapshot().Counters[shopauth.MetricAccountLocked]; n != 1 {
		t.Fatalf("expected one account_locked, got %d", n)
	}
}

func TestCorrectGuessLosesToConcurrentLock(t *testing.T) {
	const wrong = 3
	users := newOverlappingUsers(wrong + 1)
	engine, _ := newEngineWith(t, testConfig(), users, users.UserStore, shopauth.NoOpSink{}, nil)

	var failures sync.WaitGroup
	for i := 0; i < wrong; i++ {
		failures.Add(1)
		go func() {
			defer failures.Done()
			_, _ = engine.Login(context.Background(), clerkEmail, "wrong-pass-1")
		}()
	}
	go func() {
		failures.Wait()
		close(users.proceed)
	}()

	_, err := engine.Login(context.Background(), clerkEmail, clerkPassword)
	if !errors.Is(err, shopauth.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked for a success racing the lock, got %v", err)
	}
	if retry, ok := shopauth.RetryAfter(err); !ok || retry != 15*time.Minute {
		t.Fatalf("expected 15m retry-after, got %v (%v)", retry, ok)
	}

	u, _ := users.GetByID(context.Background(), "user-clerk")
	if u.LockedUntil == nil || u.LastAccessAt != nil {
		t.Fatalf("refused success must leave the lock, got locked=%v last=%v", u.LockedUntil, u.LastAccessAt)
	}
}

func TestInactiveCorrectGuessLosesToConcurrentLock(t *testing.T) {
	const wrong = 3
	users := newOverlappingUsers(wrong + 1)
	engine, _ := newEngineWith(t, testConfig(), users, users.UserStore, shopauth.NoOpSink{}, nil)
	if err := users.SetActive("user-clerk", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	var failures sync.WaitGroup
	for i := 0; i < wrong; i++ {
		failures.Add(1)
		go func() {
			defer failures.Done()
			_, _ = engine.Login(context.Background(), clerkEmail, "wrong-pass-1")
		}()
	}
	go func() {
		failures.Wait()
		close(users.proceed)
	}()

	_, err := engine.Login(context.Background(), clerkEmail, clerkPassword)
	if !errors.Is(err, shopauth.ErrAccountLocked) {
		t.Fatalf("a correct secret on an inactive account must look like any other guess, got %v", err)
	}
}

func TestStalledAuditSinkDoesNotDelayLogin(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = false

	users := memory.NewUserStore()
	sink := &stalledSink{gate: make(chan struct{})}
	engine, _ := newEngineWith(t, cfg, users, users, sink, nil)
	t.Cleanup(func() { close(sink.gate) })

	start := time.Now()
	for i := 0; i < 4; i++ {
		if _, err := engine.Login(context.Background(), clerkEmail, clerkPassword); err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("login waited %s on a stalled audit sink", elapsed)
	}
	if engine.AuditDropped() == 0 {
		t.Fatal("expected events to be dropped while the sink is stalled")
	}
}

func TestRefreshSigningFailureKeepsTokenUsable(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RevokeFamilyOnReuse = true

	users := memory.NewUserStore()
	var graph *flakyGraph
	engine, _ := newEngineWith(t, cfg, users, users, shopauth.NoOpSink{}, func(g *memory.Graph) permission.Graph {
		graph = &flakyGraph{Graph: g}
		return graph
	})
	ctx := context.Background()

	login, err := engine.Login(ctx, clerkEmail, clerkPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	graph.fail.Store(true)
	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, shopauth.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable while the graph is down, got %v", err)
	}

	graph.fail.Store(false)
	pair, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("retry with the same token must succeed, got %v", err)
	}
	if _, err := engine.Authorize(ctx, pair.AccessToken, permission.AnyOf("products.view")); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if n := engine.MetricsSnapshot().Counters[shopauth.MetricRefreshReuseDetected]; n != 0 {
		t.Fatalf("retry must not count as reuse, got %d", n)
	}
}
