package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/permission"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by Require.
func IdentityFromContext(ctx context.Context) (*shopauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*shopauth.Identity)
	return id, ok && id != nil
}

// WithIdentity attaches id to ctx. Handlers under Require get this for free;
// it is exported for tests and non-HTTP entry points.
func WithIdentity(ctx context.Context, id *shopauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// Require returns the per-route decision point: it authenticates the bearer
// token and evaluates req before next runs. req is validated against the
// engine's catalog when the route is built, so a typo in a permission code
// fails at startup rather than denying every request.
//
// Responses are 401 for ErrUnauthenticated, 403 for ErrForbidden and 503 for
// backend failures, each with a generic body.
func Require(engine *shopauth.Engine, req permission.Requirement) func(http.Handler) http.Handler {
	if engine != nil {
		if err := req.Validate(engine.Catalog()); err != nil {
			panic("middleware: invalid requirement: " + err.Error())
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeDenied(w, http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				writeDenied(w, http.StatusUnauthorized)
				return
			}

			ctx := permission.WithRequestCache(r.Context())
			id, err := engine.Authorize(ctx, token, req)
			if err != nil {
				switch {
				case errors.Is(err, shopauth.ErrUnauthenticated):
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
					writeDenied(w, http.StatusUnauthorized)
				case errors.Is(err, shopauth.ErrForbidden):
					writeDenied(w, http.StatusForbidden)
				default:
					writeDenied(w, http.StatusServiceUnavailable)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

func writeDenied(w http.ResponseWriter, status int) {
	var body string
	switch status {
	case http.StatusUnauthorized:
		body = `{"error":"unauthenticated"}`
	case http.StatusForbidden:
		body = `{"error":"access_denied"}`
	default:
		body = `{"error":"unavailable"}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
