package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/logger"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code string, fields map[string]string) {
	writeJSON(w, status, errorBody{Error: code, Fields: fields})
}

// writeEngineError is the single mapping from engine errors to responses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *shopauth.ValidationError
		locked     *shopauth.LockedError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_error", validation.Fields)
	case errors.Is(err, shopauth.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", nil)
	case errors.As(err, &locked):
		secs := int(math.Ceil(locked.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusLocked, "account_locked", nil)
	case errors.Is(err, shopauth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", nil)
	case errors.Is(err, shopauth.ErrAccountUnverified):
		writeError(w, http.StatusForbidden, "account_unverified", nil)
	case errors.Is(err, shopauth.ErrRegistrationDisabled):
		writeError(w, http.StatusForbidden, "registration_disabled", nil)
	case errors.Is(err, shopauth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", nil)
	case errors.Is(err, shopauth.ErrRefreshInvalid):
		writeError(w, http.StatusUnauthorized, "refresh_invalid", nil)
	case errors.Is(err, shopauth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", nil)
	case errors.Is(err, shopauth.ErrForbidden):
		writeError(w, http.StatusForbidden, "access_denied", nil)
	case errors.Is(err, shopauth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", nil)
	default:
		logger.From(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", nil)
	}
}
