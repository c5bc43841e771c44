package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeAuthServer issues acc-N / ref-N pairs and guards /api/orders with the
// current access token.
type fakeAuthServer struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	generation   int
	accessValid  bool
	refreshValid bool
	refreshCalls int
	unauthorized int
	rejectAll    bool
	servedWith   []string
	bodies       []string
	logouts      []string

	// refreshGate, when set, is called inside the refresh handler before it
	// answers.
	refreshGate func()
	inRefresh   chan struct{}
	release     chan struct{}
	releaseOnce sync.Once
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()
	f := &fakeAuthServer{
		t:         t,
		inRefresh: make(chan struct{}, 64),
		release:   make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", f.login)
	mux.HandleFunc("/api/auth/refresh", f.refresh)
	mux.HandleFunc("/api/auth/logout", f.logout)
	mux.HandleFunc("/api/auth/me", f.me)
	mux.HandleFunc("/api/orders", f.orders)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	t.Cleanup(f.releaseRefresh)
	return f
}

func (f *fakeAuthServer) releaseRefresh() {
	f.releaseOnce.Do(func() { close(f.release) })
}

func (f *fakeAuthServer) access() string     { return "acc-" + strconv.Itoa(f.generation) }
func (f *fakeAuthServer) refreshTok() string { return "ref-" + strconv.Itoa(f.generation) }

// expireAccess makes the current access token stale while keeping the
// refresh token usable.
func (f *fakeAuthServer) expireAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessValid = false
}

func (f *fakeAuthServer) setRefreshGate(gate func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshGate = gate
}

func (f *fakeAuthServer) rejectAllAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectAll = true
}

func (f *fakeAuthServer) recorded() (bodies, logouts []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...), append([]string(nil), f.logouts...)
}

func (f *fakeAuthServer) revokeRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessValid = false
	f.refreshValid = false
}

func (f *fakeAuthServer) stats() (refreshCalls, unauthorized int, servedWith []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.unauthorized, append([]string(nil), f.servedWith...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAuthServer) pair() map[string]any {
	return map[string]any{
		"access_token":  f.access(),
		"refresh_token": f.refreshTok(),
		"expires_at":    time.Now().Add(time.Hour),
	}
}

func (f *fakeAuthServer) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.Password == "locked" {
		w.Header().Set("Retry-After", "900")
		writeJSON(w, http.StatusLocked, map[string]string{"error": "account_locked"})
		return
	}
	if in.Password != "s3cret-pass" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
		return
	}

	f.mu.Lock()
	f.generation++
	f.accessValid, f.refreshValid = true, true
	body := f.pair()
	f.mu.Unlock()

	body["user"] = map[string]any{
		"id":          "user-clerk",
		"email":       in.Email,
		"roles":       []string{"catalog_manager"},
		"permissions": []string{"products.view", "products.edit"},
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *fakeAuthServer) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	f.mu.Lock()
	f.refreshCalls++
	gate := f.refreshGate
	f.mu.Unlock()

	f.inRefresh <- struct{}{}
	if gate != nil {
		gate()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.refreshValid || in.RefreshToken != f.refreshTok() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh_invalid"})
		return
	}
	f.generation++
	f.accessValid = true
	writeJSON(w, http.StatusOK, f.pair())
}

func (f *fakeAuthServer) logout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	f.mu.Lock()
	f.logouts = append(f.logouts, in.RefreshToken)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAuthServer) authorized(r *http.Request) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	got := r.Header.Get("Authorization")
	if f.rejectAll || !f.accessValid || got != "Bearer "+f.access() {
		f.unauthorized++
		return "", false
	}
	return f.access(), true
}

func (f *fakeAuthServer) me(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.authorized(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          "user-clerk",
		"email":       "clerk@shop.test",
		"roles":       []string{"catalog_manager"},
		"permissions": []string{"products.view"},
	})
}

func (f *fakeAuthServer) orders(w http.ResponseWriter, r *http.Request) {
	token, ok := f.authorized(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.servedWith = append(f.servedWith, token)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
