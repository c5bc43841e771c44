package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrSessionExpired means the refresh token was rejected or the refresh
	// timed out. The session is anonymous; the user must log in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionCleared is returned to callers waiting on a refresh when
	// Logout ran first.
	ErrSessionCleared = errors.New("session cleared")
	// ErrRefreshTimeout accompanies ErrSessionExpired when the refresh call
	// exceeded Config.RefreshTimeout.
	ErrRefreshTimeout = errors.New("refresh timed out")
)

const (
	defaultRefreshTimeout = 10 * time.Second
	defaultMaxSnapshotAge = 5 * time.Minute
	revokeTimeout         = 5 * time.Second
)

// Config configures a Coordinator.
type Config struct {
	BaseURL string
	// HTTPClient is used for the auth endpoints; its Transport is the base
	// of Coordinator.Transport. Nil means http.DefaultClient.
	HTTPClient *http.Client
	// RefreshTimeout bounds one refresh round trip. Waiters are released
	// when it elapses.
	RefreshTimeout time.Duration
	// MaxSnapshotAge is how long the Gate trusts a snapshot.
	MaxSnapshotAge time.Duration
	Logger         *zap.Logger
	Now            func() time.Time
}

// Coordinator owns one client session. It is safe for concurrent use.
type Coordinator struct {
	api            *API
	base           http.RoundTripper
	refreshTimeout time.Duration
	maxSnapshotAge time.Duration
	now            func() time.Time
	log            *zap.Logger

	mu   sync.RWMutex
	sess Session
	// epoch changes on every login and logout so a refresh started for one
	// session never writes into the next.
	epoch   uint64
	cleared chan struct{}

	refreshes singleflight.Group
	refreshed atomic.Uint64
}

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("client: base URL is required")
	}
	if cfg.RefreshTimeout < 0 || cfg.MaxSnapshotAge < 0 {
		return nil, errors.New("client: durations must not be negative")
	}
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	if cfg.MaxSnapshotAge == 0 {
		cfg.MaxSnapshotAge = defaultMaxSnapshotAge
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	base := cfg.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Coordinator{
		api:            NewAPI(cfg.BaseURL, cfg.HTTPClient),
		base:           base,
		refreshTimeout: cfg.RefreshTimeout,
		maxSnapshotAge: cfg.MaxSnapshotAge,
		now:            cfg.Now,
		log:            cfg.Logger,
		cleared:        make(chan struct{}),
	}, nil
}

// API exposes the underlying endpoint client.
func (c *Coordinator) API() *API { return c.api }

// State returns the current session state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.State
}

// Session returns a copy of the session.
func (c *Coordinator) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.sess
	out.Snapshot = c.sess.Snapshot.clone()
	return out
}

// Refreshes counts refresh calls that reached the server.
func (c *Coordinator) Refreshes() uint64 {
	return c.refreshed.Load()
}

// Login authenticates and installs the new session, replacing any current
// one.
func (c *Coordinator) Login(ctx context.Context, email, password string) (*Snapshot, error) {
	resp, err := c.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.install(resp), nil
}

// Register creates an account. When the server issues tokens the session is
// installed; when it withholds them pending verification the session is
// left unchanged.
func (c *Coordinator) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	resp, err := c.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken != "" {
		c.install(resp)
	}
	return resp.User, nil
}

func (c *Coordinator) install(resp *AuthResponse) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.sess = Session{
		State:           StateAuthenticated,
		AccessToken:     resp.AccessToken,
		RefreshToken:    resp.RefreshToken,
		AccessExpiresAt: resp.ExpiresAt,
		Snapshot:        snapshotFrom(resp.User, c.now()),
	}
	return c.sess.Snapshot.clone()
}

// Logout clears the session, releases every caller waiting on a refresh
// with ErrSessionCleared, then revokes the refresh token server-side.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.sess.RefreshToken
	c.sess = Session{}
	c.epoch++
	close(c.cleared)
	c.cleared = make(chan struct{})
	c.mu.Unlock()

	if refreshToken == "" {
		return nil
	}
	return c.api.Logout(ctx, refreshToken)
}

// RefreshSnapshot reloads the user view from /api/auth/me.
func (c *Coordinator) RefreshSnapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	token, epoch := c.sess.AccessToken, c.epoch
	c.mu.RUnlock()
	if token == "" {
		return nil, ErrSessionExpired
	}

	user, err := c.api.Me(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		if token, err = c.refreshFrom(ctx, token); err != nil {
			return nil, err
		}
		user, err = c.api.Me(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil, ErrSessionCleared
	}
	c.sess.Snapshot = snapshotFrom(user, c.now())
	return c.sess.Snapshot.clone(), nil
}

func (c *Coordinator) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.AccessToken
}

// refreshFrom returns an access token newer than stale. Concurrent callers
// share one refresh; a caller whose stale token was already replaced gets
// the current token without a new refresh.
func (c *Coordinator) refreshFrom(ctx context.Context, stale string) (string, error) {
	c.mu.RLock()
	state, current, epoch, cleared := c.sess.State, c.sess.AccessToken, c.epoch, c.cleared
	c.mu.RUnlock()

	if state == StateAnonymous {
		return "", ErrSessionExpired
	}
	if state == StateAuthenticated && current != stale {
		return current, nil
	}

	ch := c.refreshes.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		return c.doRefresh(epoch, stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-cleared:
		return "", ErrSessionCleared
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) doRefresh(epoch uint64, stale string) (string, error) {
	c.mu.Lock()
	if c.epoch != epoch || c.sess.State == StateAnonymous {
		c.mu.Unlock()
		return "", ErrSessionCleared
	}
	if c.sess.AccessToken != stale {
		token := c.sess.AccessToken
		c.mu.Unlock()
		return token, nil
	}
	refreshToken := c.sess.RefreshToken
	c.sess.State = StateRefreshing
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()
	c.refreshed.Add(1)
	resp, err := c.api.Refresh(ctx, refreshToken)
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		if err == nil {
			c.revokeOrphan(resp.RefreshToken)
		}
		return "", ErrSessionCleared
	}

	switch {
	case err == nil:
		c.sess.State = StateAuthenticated
		c.sess.AccessToken = resp.AccessToken
		c.sess.RefreshToken = resp.RefreshToken
		c.sess.AccessExpiresAt = resp.ExpiresAt
		c.log.Debug("access token refreshed", zap.Time("expires_at", resp.ExpiresAt))
		return resp.AccessToken, nil

	case timedOut:
		c.sess = Session{}
		c.epoch++
		c.log.Warn("refresh timed out; session cleared", zap.Duration("timeout", c.refreshTimeout))
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, ErrRefreshTimeout)

	case errors.Is(err, ErrRefreshRejected):
		c.sess = Session{}
		c.epoch++
		c.log.Info("refresh rejected; session cleared")
		return "", ErrSessionExpired

	default:
		c.sess.State = StateAuthenticated
		c.log.Warn("refresh failed", zap.Error(err))
		return "", fmt.Errorf("client: refresh: %w", err)
	}
}

// revokeOrphan revokes a pair that arrived after the session it belonged to
// was logged out. Best effort.
func (c *Coordinator) revokeOrphan(refreshToken string) {
	if refreshToken == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
		defer cancel()
		if err := c.api.Logout(ctx, refreshToken); err != nil {
			c.log.Debug("orphaned refresh token revoke failed", zap.Error(err))
		}
	}()
}

func snapshotFrom(u *User, now time.Time) *Snapshot {
	if u == nil {
		return nil
	}
	return &Snapshot{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Roles:       append([]string(nil), u.Roles...),
		Permissions: append([]string(nil), u.Permissions...),
		FetchedAt:   now,
	}
}
