package permission

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type graphFixture struct {
	mu        sync.Mutex
	userRoles []UserRole
	roles     map[string]Role
	grants    []RolePermission
	calls     int
	fail      error
}

func (g *graphFixture) UserRoles(_ context.Context, userID string) ([]UserRole, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail != nil {
		return nil, g.fail
	}
	var out []UserRole
	for _, ur := range g.userRoles {
		if ur.UserID == userID {
			out = append(out, ur)
		}
	}
	return out, nil
}

func (g *graphFixture) RolesByID(_ context.Context, ids []string) ([]Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Role
	for _, id := range ids {
		if r, ok := g.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (g *graphFixture) RolePermissions(_ context.Context, ids []string) ([]RolePermission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	want := NewSet(ids...)
	var out []RolePermission
	for _, rp := range g.grants {
		if want.Has(rp.RoleID) {
			out = append(out, rp)
		}
	}
	return out, nil
}

func (g *graphFixture) setRoleActive(id string, active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.roles[id]
	r.Active = active
	g.roles[id] = r
}

func newGraphFixture() *graphFixture {
	return &graphFixture{
		userRoles: []UserRole{
			{UserID: "u1", RoleID: "r-admin", Active: true},
			{UserID: "u1", RoleID: "r-editor", Active: true},
			{UserID: "u1", RoleID: "r-old", Active: false},
			{UserID: "u2", RoleID: "r-editor", Active: true},
		},
		roles: map[string]Role{
			"r-admin":  {ID: "r-admin", Name: "admin", Active: true},
			"r-editor": {ID: "r-editor", Name: "editor", Active: true},
			"r-old":    {ID: "r-old", Name: "legacy", Active: true},
		},
		grants: []RolePermission{
			{RoleID: "r-admin", Code: "products.edit"},
			{RoleID: "r-admin", Code: "products.view"},
			{RoleID: "r-editor", Code: "products.view"},
			{RoleID: "r-editor", Code: "categories.edit"},
			{RoleID: "r-old", Code: "orders.refund"},
		},
	}
}

func TestResolveUnionDeduplicatesAndSkipsInactiveEdges(t *testing.T) {
	g := newGraphFixture()
	r, err := NewResolver(g)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	eff, err := r.Resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := eff.Roles.Sorted(); len(got) != 2 || got[0] != "admin" || got[1] != "editor" {
		t.Fatalf("unexpected roles %v", got)
	}
	if eff.Permissions.Len() != 3 {
		t.Fatalf("expected 3 de-duplicated permissions, got %v", eff.Permissions.Sorted())
	}
	if eff.Permissions.Has("orders.refund") {
		t.Fatal("inactive user-role edge leaked orders.refund")
	}
}

func TestResolveRoleDeactivationVisibleOnNextResolution(t *testing.T) {
	g := newGraphFixture()
	r, _ := NewResolver(g)
	ctx := context.Background()

	before, err := r.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !before.Permissions.Has("products.edit") {
		t.Fatal("expected products.edit before deactivation")
	}

	g.setRoleActive("r-admin", false)

	after, err := r.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if after.Permissions.Has("products.edit") {
		t.Fatal("deactivated role still contributes products.edit")
	}
	if after.Roles.Has("admin") {
		t.Fatal("deactivated role still listed")
	}
	if !after.Permissions.Has("products.view") {
		t.Fatal("permission granted by a second active role must survive")
	}
}

func TestResolveUnknownUserIsEmpty(t *testing.T) {
	r, _ := NewResolver(newGraphFixture())
	eff, err := r.Resolve(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !eff.Empty() {
		t.Fatalf("expected empty effective set, got %v / %v", eff.Roles.Sorted(), eff.Permissions.Sorted())
	}
}

func TestResolveRequestCacheScopesToContext(t *testing.T) {
	g := newGraphFixture()
	r, _ := NewResolver(g)

	ctx := WithRequestCache(context.Background())
	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx, "u2"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if g.calls != 1 {
		t.Fatalf("expected one graph walk within a request, got %d", g.calls)
	}

	if _, err := r.Resolve(context.Background(), "u2"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if g.calls != 2 {
		t.Fatalf("expected a fresh walk outside the request, got %d", g.calls)
	}
}

func TestResolvePropagatesGraphErrors(t *testing.T) {
	g := newGraphFixture()
	g.fail = errors.New("db down")
	r, _ := NewResolver(g)

	if _, err := r.Resolve(context.Background(), "u1"); !errors.Is(err, g.fail) {
		t.Fatalf("expected wrapped graph error, got %v", err)
	}
}

func TestNewResolverRequiresGraph(t *testing.T) {
	if _, err := NewResolver(nil); !errors.Is(err, ErrNilGraph) {
		t.Fatalf("expected ErrNilGraph, got %v", err)
	}
}
