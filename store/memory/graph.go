package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/shopauth/permission"
)

// ErrRoleNotFound is returned by the role helpers for an unknown name.
var ErrRoleNotFound = errors.New("role not found")

// Graph is an in-memory permission.Graph with write helpers for seeding
// and administration. It also implements shopauth.RoleAssigner.
type Graph struct {
	mu        sync.RWMutex
	roles     map[string]permission.Role
	byName    map[string]string
	grants    map[string]permission.Set
	userRoles map[string][]permission.UserRole
	now       func() time.Time
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		roles:     make(map[string]permission.Role),
		byName:    make(map[string]string),
		grants:    make(map[string]permission.Set),
		userRoles: make(map[string][]permission.UserRole),
		now:       time.Now,
	}
}

// CreateRole adds an active role and returns its ID. Creating an existing
// name returns the existing ID.
func (g *Graph) CreateRole(name string, codes ...string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.byName[name]
	if !ok {
		id = uuid.NewString()
		g.roles[id] = permission.Role{ID: id, Name: name, Active: true}
		g.byName[name] = id
		g.grants[id] = permission.Set{}
	}
	for _, c := range codes {
		g.grants[id].Add(c)
	}
	return id
}

// Grant adds permission codes to an existing role.
func (g *Graph) Grant(roleName string, codes ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.byName[roleName]
	if !ok {
		return ErrRoleNotFound
	}
	for _, c := range codes {
		g.grants[id].Add(c)
	}
	return nil
}

// SetRoleActive toggles a role. Inactive roles stop contributing on the
// next resolution.
func (g *Graph) SetRoleActive(roleName string, active bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.byName[roleName]
	if !ok {
		return ErrRoleNotFound
	}
	r := g.roles[id]
	r.Active = active
	g.roles[id] = r
	return nil
}

// AssignRole gives userID the named role. Re-assigning reactivates the edge.
func (g *Graph) AssignRole(_ context.Context, userID, roleName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.byName[roleName]
	if !ok {
		return ErrRoleNotFound
	}
	edges := g.userRoles[userID]
	for i := range edges {
		if edges[i].RoleID == id {
			edges[i].Active = true
			return nil
		}
	}
	g.userRoles[userID] = append(edges, permission.UserRole{
		UserID:     userID,
		RoleID:     id,
		AssignedAt: g.now(),
		Active:     true,
	})
	return nil
}

// RevokeRole deactivates the user's edge to the named role.
func (g *Graph) RevokeRole(userID, roleName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.byName[roleName]
	if !ok {
		return ErrRoleNotFound
	}
	for i, e := range g.userRoles[userID] {
		if e.RoleID == id {
			g.userRoles[userID][i].Active = false
		}
	}
	return nil
}

func (g *Graph) UserRoles(_ context.Context, userID string) ([]permission.UserRole, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]permission.UserRole(nil), g.userRoles[userID]...), nil
}

func (g *Graph) RolesByID(_ context.Context, ids []string) ([]permission.Role, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]permission.Role, 0, len(ids))
	for _, id := range ids {
		if r, ok := g.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (g *Graph) RolePermissions(_ context.Context, ids []string) ([]permission.RolePermission, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []permission.RolePermission
	for _, id := range ids {
		for _, code := range g.grants[id].Sorted() {
			out = append(out, permission.RolePermission{RoleID: id, Code: code})
		}
	}
	return out, nil
}
