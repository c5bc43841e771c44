package httpapi

import (
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/rate"
	shopprom "github.com/MrEthical07/shopauth/metrics/export/prometheus"
)

const maxBodyBytes = 64 << 10

// Options configures a Server. Zero values are usable.
type Options struct {
	Logger *zap.Logger
	// Limiter throttles login, register and refresh per client IP. Nil
	// disables throttling.
	Limiter *rate.Limiter
	// TrustProxyHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
	// Registry receives the engine collector and the HTTP metrics. Nil
	// creates a private registry.
	Registry *prometheus.Registry
}

// Server serves the auth API for one engine.
type Server struct {
	engine     *shopauth.Engine
	log        *zap.Logger
	limiter    *rate.Limiter
	trustProxy bool
	metrics    *httpMetrics
	gatherer   prometheus.Gatherer
}

func New(engine *shopauth.Engine, opts Options) (*Server, error) {
	if engine == nil {
		return nil, errors.New("httpapi: engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	if err := opts.Registry.Register(shopprom.NewCollector(engine)); err != nil {
		return nil, err
	}
	m, err := newHTTPMetrics(opts.Registry)
	if err != nil {
		return nil, err
	}

	return &Server{
		engine:     engine,
		log:        opts.Logger,
		limiter:    opts.Limiter,
		trustProxy: opts.TrustProxyHeaders,
		metrics:    m,
		gatherer:   opts.Registry,
	}, nil
}

func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
