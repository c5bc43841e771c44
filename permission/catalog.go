package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Permission is a catalog entry. Module is the prefix before the first dot.
type Permission struct {
	Code        string
	Module      string
	Description string
}

// Catalog is the shared list of permission codes known to the server and
// the admin client. Register everything at startup, then Freeze.
type Catalog struct {
	mu     sync.RWMutex
	byCode map[string]Permission
	frozen bool
}

// NewCatalog creates an empty, unfrozen catalog.
func NewCatalog() *Catalog {
	return &Catalog{byCode: make(map[string]Permission)}
}

// DefaultCatalog returns the frozen back-office catalog.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, code := range DefaultCodes {
		if err := c.Register(code, ""); err != nil {
			panic(err)
		}
	}
	c.Freeze()
	return c
}

// DefaultCodes lists the permission codes of the back-office modules.
var DefaultCodes = []string{
	"products.view", "products.create", "products.edit", "products.delete",
	"categories.view", "categories.create", "categories.edit", "categories.delete",
	"brands.view", "brands.create", "brands.edit", "brands.delete",
	"orders.view", "orders.edit", "orders.refund",
	"inventory.view", "inventory.edit",
	"users.view", "users.edit",
	"roles.view", "roles.edit",
	"reports.view", "logs.view",
}

// ParseCode splits a "module.action" code. Both halves must be non-empty.
func ParseCode(code string) (module, action string, err error) {
	code = strings.TrimSpace(code)
	i := strings.IndexByte(code, '.')
	if i <= 0 || i == len(code)-1 {
		return "", "", fmt.Errorf("permission code %q is not module.action", code)
	}
	if strings.ContainsAny(code, " \t\r\n") {
		return "", "", fmt.Errorf("permission code %q contains whitespace", code)
	}
	return code[:i], code[i+1:], nil
}

// Register adds code. Must be called before [Catalog.Freeze].
func (c *Catalog) Register(code, description string) error {
	module, _, err := ParseCode(code)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return errors.New("catalog frozen")
	}
	if _, exists := c.byCode[code]; exists {
		return fmt.Errorf("permission %q already registered", code)
	}

	c.byCode[code] = Permission{Code: code, Module: module, Description: description}
	return nil
}

// Freeze prevents further registrations.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Has reports whether code is registered.
func (c *Catalog) Has(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byCode[code]
	return ok
}

// Get returns the entry for code.
func (c *Catalog) Get(code string) (Permission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byCode[code]
	return p, ok
}

// Codes returns every registered code in lexical order.
func (c *Catalog) Codes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.byCode))
	for code := range c.byCode {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Module returns the registered codes under module, sorted.
func (c *Catalog) Module(module string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for code, p := range c.byCode {
		if p.Module == module {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byCode)
}
