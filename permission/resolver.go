package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Role is a named group of permissions. Inactive roles contribute nothing.
type Role struct {
	ID     string
	Name   string
	Active bool
}

// RolePermission is a Role -> permission code edge.
type RolePermission struct {
	RoleID string
	Code   string
}

// UserRole is a User -> Role edge. Inactive edges contribute nothing.
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedAt time.Time
	Active     bool
}

// Graph is the read side of the role/permission store. Implementations
// return edges as stored, active or not; filtering happens in [Resolver].
type Graph interface {
	UserRoles(ctx context.Context, userID string) ([]UserRole, error)
	RolesByID(ctx context.Context, roleIDs []string) ([]Role, error)
	RolePermissions(ctx context.Context, roleIDs []string) ([]RolePermission, error)
}

// Effective is a user's resolved role names and permission codes.
type Effective struct {
	Roles       Set
	Permissions Set
}

// EffectiveFrom builds an Effective from claim slices.
func EffectiveFrom(roles, permissions []string) Effective {
	return Effective{Roles: NewSet(roles...), Permissions: NewSet(permissions...)}
}

// Empty reports whether nothing was resolved.
func (e Effective) Empty() bool {
	return e.Roles.Len() == 0 && e.Permissions.Len() == 0
}

// ErrNilGraph is returned by [NewResolver] without a graph.
var ErrNilGraph = errors.New("permission graph required")

// Resolver computes effective sets from a [Graph]. It holds no state
// between calls.
type Resolver struct {
	graph Graph
}

// NewResolver wraps graph.
func NewResolver(graph Graph) (*Resolver, error) {
	if graph == nil {
		return nil, ErrNilGraph
	}
	return &Resolver{graph: graph}, nil
}

// Resolve walks active UserRole -> active Role -> RolePermission edges for
// userID and de-duplicates the result. A user with no active roles yields
// empty sets, not an error.
//
// When ctx carries a request cache (see [WithRequestCache]) the first result
// for userID is reused for the rest of that request.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Effective, error) {
	if cache := requestCacheFrom(ctx); cache != nil {
		if eff, ok := cache.get(userID); ok {
			return eff, nil
		}
		eff, err := r.resolve(ctx, userID)
		if err != nil {
			return Effective{}, err
		}
		cache.put(userID, eff)
		return eff, nil
	}
	return r.resolve(ctx, userID)
}

func (r *Resolver) resolve(ctx context.Context, userID string) (Effective, error) {
	eff := Effective{Roles: Set{}, Permissions: Set{}}

	edges, err := r.graph.UserRoles(ctx, userID)
	if err != nil {
		return Effective{}, fmt.Errorf("load user roles: %w", err)
	}

	roleIDs := make([]string, 0, len(edges))
	seen := make(map[string]struct{}, len(edges))
	for _, edge := range edges {
		if !edge.Active || edge.UserID != userID {
			continue
		}
		if _, dup := seen[edge.RoleID]; dup {
			continue
		}
		seen[edge.RoleID] = struct{}{}
		roleIDs = append(roleIDs, edge.RoleID)
	}
	if len(roleIDs) == 0 {
		return eff, nil
	}

	roles, err := r.graph.RolesByID(ctx, roleIDs)
	if err != nil {
		return Effective{}, fmt.Errorf("load roles: %w", err)
	}

	activeIDs := make([]string, 0, len(roles))
	active := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if !role.Active {
			continue
		}
		if _, ok := seen[role.ID]; !ok {
			continue
		}
		eff.Roles.Add(role.Name)
		active[role.ID] = struct{}{}
		activeIDs = append(activeIDs, role.ID)
	}
	if len(activeIDs) == 0 {
		return eff, nil
	}

	grants, err := r.graph.RolePermissions(ctx, activeIDs)
	if err != nil {
		return Effective{}, fmt.Errorf("load role permissions: %w", err)
	}
	for _, g := range grants {
		if _, ok := active[g.RoleID]; !ok {
			continue
		}
		eff.Permissions.Add(g.Code)
	}

	return eff, nil
}

type requestCacheKey struct{}

type requestCache struct {
	mu      sync.Mutex
	entries map[string]Effective
}

func (c *requestCache) get(userID string) (Effective, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	eff, ok := c.entries[userID]
	return eff, ok
}

func (c *requestCache) put(userID string, eff Effective) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = eff
}

// WithRequestCache returns a context that memoizes [Resolver.Resolve]
// results. Attach it per request and let it die with the request.
func WithRequestCache(ctx context.Context) context.Context {
	if requestCacheFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, requestCacheKey{}, &requestCache{entries: make(map[string]Effective)})
}

func requestCacheFrom(ctx context.Context) *requestCache {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(requestCacheKey{}).(*requestCache)
	return c
}
