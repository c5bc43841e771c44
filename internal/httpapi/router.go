package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/logger"
	"github.com/MrEthical07/shopauth/middleware"
	"github.com/MrEthical07/shopauth/permission"
)

// Handler builds the router. Route requirements are validated against the
// engine catalog here, so a bad code panics at startup.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if s.trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(s.requestContext)
	r.Use(s.instrument)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metricsHandler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.throttle)
			r.Post("/login", s.handleLogin)
			r.Post("/register", s.handleRegister)
			r.Post("/refresh", s.handleRefresh)
		})
		r.Post("/logout", s.handleLogout)
		r.With(middleware.Authenticate(s.engine)).Get("/me", s.handleMe)
	})

	usersEdit := permission.AllOf("users.edit")
	r.Route("/api/admin/users/{id}", func(r chi.Router) {
		r.With(middleware.Require(s.engine, usersEdit)).Post("/unlock", s.handleUnlock)
		r.With(middleware.RequireLive(s.engine, usersEdit)).Post("/revoke-sessions", s.handleRevokeSessions)
	})

	return r
}

// requestContext attaches the client IP, User-Agent and a request-scoped
// logger.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientIP(r)
		ctx = shopauth.WithClientIP(ctx, ip)
		ctx = shopauth.WithUserAgent(ctx, r.UserAgent())
		ctx = logger.ToContext(ctx, s.log.With(
			zap.String("request_id", chimw.GetReqID(ctx)),
			zap.String("ip", ip),
		))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		s.metrics.inflight.Inc()
		defer s.metrics.inflight.Dec()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		s.metrics.observe(r.Method, route, ww.Status(), time.Since(start))
	})
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.limiter.Allow(clientIP(r)); err != nil {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
