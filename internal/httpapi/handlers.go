package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/logger"
	"github.com/MrEthical07/shopauth/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", map[string]string{"body": "is not valid JSON"})
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req shopauth.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.engine.Register(r.Context(), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pair, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleLogout answers 204 for any token the engine accepts or rejects as
// invalid; only backend failures surface.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.engine.Logout(r.Context(), req.RefreshToken)
	if err != nil && !errors.Is(err, shopauth.ErrRefreshInvalid) {
		writeEngineError(w, r, err)
		return
	}
	if err != nil {
		logger.From(r.Context()).Debug("logout with invalid refresh token")
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	profile, err := s.engine.Profile(r.Context(), id.UserID)
	if errors.Is(err, shopauth.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := s.engine.UnlockAccount(r.Context(), userID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.adminLog(r, "account unlocked", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokeSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	n, err := s.engine.RevokeAll(r.Context(), userID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.adminLog(r, "sessions revoked", userID, zap.Int("revoked", n))
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *Server) adminLog(r *http.Request, msg, target string, fields ...zap.Field) {
	actor := ""
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		actor = id.UserID
	}
	logger.From(r.Context()).Info(msg, append(fields,
		zap.String("actor", actor),
		zap.String("target", target),
	)...)
}
