package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/permission"
	"github.com/MrEthical07/shopauth/store/memory"
)

type guardFixture struct {
	engine *shopauth.Engine
	graph  *memory.Graph
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	cfg := shopauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

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
	hash, err := h.Hash("clerk-pass-123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	users := memory.NewUserStore()
	graph := memory.NewGraph()
	graph.CreateRole("catalog_manager", "products.view", "products.edit")

	ctx := context.Background()
	if err := users.Create(ctx, shopauth.User{
		ID: "user-clerk", Email: "clerk@shop.test", PasswordHash: hash,
		Active: true, EmailVerified: true, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := graph.AssignRole(ctx, "user-clerk", "catalog_manager"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	engine, err := shopauth.New().
		WithConfig(cfg).
		WithUserStore(users).
		WithRefreshStore(memory.NewRefreshStore()).
		WithGraph(graph).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return &guardFixture{engine: engine, graph: graph}
}

func (f *guardFixture) token(t *testing.T) string {
	t.Helper()
	res, err := f.engine.Login(context.Background(), "clerk@shop.test", "clerk-pass-123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res.AccessToken
}

func serve(mw func(http.Handler) http.Handler, authorization string) (*httptest.ResponseRecorder, *shopauth.Identity) {
	var seen *shopauth.Identity
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireMissingToken(t *testing.T) {
	f := newGuardFixture(t)

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		rec, _ := serve(Require(f.engine, permission.AnyOf("products.view")), header)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: status = %d, want 401", header, rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%q: missing WWW-Authenticate", header)
		}
		if !strings.Contains(rec.Body.String(), `"unauthenticated"`) {
			t.Fatalf("%q: body = %s", header, rec.Body.String())
		}
	}
}

func TestRequireDecisions(t *testing.T) {
	f := newGuardFixture(t)
	bearer := "Bearer " + f.token(t)

	tests := []struct {
		name string
		req  permission.Requirement
		want int
	}{
		{"any held", permission.AnyOf("products.view", "orders.refund"), http.StatusOK},
		{"all held", permission.AllOf("products.view", "products.edit"), http.StatusOK},
		{"all missing one", permission.AllOf("products.view", "orders.refund"), http.StatusForbidden},
		{"any none held", permission.AnyOf("orders.refund"), http.StatusForbidden},
		{"role held", permission.AnyRole("catalog_manager"), http.StatusOK},
		{"role missing", permission.AnyRole("admin"), http.StatusForbidden},
		{"authenticated only", permission.Requirement{}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, id := serve(Require(f.engine, tt.req), bearer)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && (id == nil || id.UserID != "user-clerk") {
				t.Fatalf("identity = %+v", id)
			}
			if tt.want == http.StatusForbidden {
				if body := rec.Body.String(); !strings.Contains(body, `"access_denied"`) || strings.Contains(body, "orders.refund") {
					t.Fatalf("body = %s", body)
				}
			}
		})
	}
}

func TestRequireLiveSeesRoleRevocation(t *testing.T) {
	f := newGuardFixture(t)
	bearer := "Bearer " + f.token(t)
	req := permission.AllOf("products.edit")

	if err := f.graph.RevokeRole("user-clerk", "catalog_manager"); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}

	rec, _ := serve(Require(f.engine, req), bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("claims path status = %d, want 200", rec.Code)
	}
	rec, _ = serve(RequireLive(f.engine, req), bearer)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("live path status = %d, want 403", rec.Code)
	}
}

func TestAuthenticateAttachesIdentity(t *testing.T) {
	f := newGuardFixture(t)
	rec, id := serve(Authenticate(f.engine), "bearer "+f.token(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if id == nil || !id.Permissions.Has("products.edit") {
		t.Fatalf("identity = %+v", id)
	}
}

func TestRequireRejectsUnknownCode(t *testing.T) {
	f := newGuardFixture(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown permission code")
		}
	}()
	Require(f.engine, permission.AnyOf("products.teleport"))
}

func TestRequireNilEngine(t *testing.T) {
	rec, _ := serve(Require(nil, permission.Requirement{}), "Bearer x")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
