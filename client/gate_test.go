package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/shopauth/permission"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGateHidesWhenAnonymous(t *testing.T) {
	f := newFakeAuthServer(t)
	c := newTestCoordinator(t, f, nil)

	require.False(t, c.Gate().Allows(permission.Requirement{}))
	require.False(t, c.Gate().Allows(permission.AnyOf("products.view")))

	var nilGate *Gate
	require.False(t, nilGate.Allows(permission.Requirement{}))
}

func TestGateMatchSemantics(t *testing.T) {
	f := newFakeAuthServer(t)
	c := loggedIn(t, f, nil)
	g := c.Gate()

	cases := []struct {
		name string
		req  permission.Requirement
		want bool
	}{
		{"empty requirement", permission.Requirement{}, true},
		{"any held", permission.AnyOf("orders.view", "products.view"), true},
		{"any none held", permission.AnyOf("orders.view", "users.edit"), false},
		{"all held", permission.AllOf("products.view", "products.edit"), true},
		{"all partially held", permission.AllOf("products.view", "orders.view"), false},
		{"role held", permission.AnyRole("catalog_manager"), true},
		{"role missing", permission.AnyRole("admin"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, g.Allows(tc.req))
		})
	}
}

func TestGateHidesStaleSnapshot(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	f := newFakeAuthServer(t)
	c := loggedIn(t, f, func(cfg *Config) {
		cfg.Now = clock.Now
		cfg.MaxSnapshotAge = time.Minute
	})
	req := permission.AnyOf("products.edit")

	require.True(t, c.Gate().Allows(req))

	clock.Advance(2 * time.Minute)
	require.False(t, c.Gate().Allows(req), "snapshot older than MaxSnapshotAge")

	_, err := c.RefreshSnapshot(context.Background())
	require.NoError(t, err)
	require.True(t, c.Gate().Allows(permission.AnyOf("products.view")))
	require.False(t, c.Gate().Allows(req), "fresh snapshot dropped products.edit")
}

func TestGateHidesAfterAccessExpiry(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	f := newFakeAuthServer(t)
	c := loggedIn(t, f, func(cfg *Config) {
		cfg.Now = clock.Now
		cfg.MaxSnapshotAge = 24 * time.Hour
	})

	clock.Advance(2 * time.Hour)
	require.False(t, c.Gate().Allows(permission.Requirement{}))
}

func TestGateHidesAfterLogout(t *testing.T) {
	f := newFakeAuthServer(t)
	c := loggedIn(t, f, nil)
	require.NoError(t, c.Logout(context.Background()))
	require.False(t, c.Gate().Allows(permission.Requirement{}))
}
