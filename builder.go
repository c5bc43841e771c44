package shopauth

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/limiters"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/permission"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config

	users   UserStore
	refresh RefreshTokenStore
	graph   permission.Graph
	catalog *permission.Catalog

	auditSink AuditSink
	log       *zap.Logger
	now       func() time.Time

	built bool
}

// New starts a Builder from the default configuration. The defaults leave
// token lifetimes and the lockout policy unset; supply them with WithConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

func (b *Builder) WithRefreshStore(store RefreshTokenStore) *Builder {
	b.refresh = store
	return b
}

// WithGraph sets the role/permission graph used for resolution.
func (b *Builder) WithGraph(graph permission.Graph) *Builder {
	b.graph = graph
	return b
}

// WithCatalog overrides permission.DefaultCatalog.
func (b *Builder) WithCatalog(catalog *permission.Catalog) *Builder {
	b.catalog = catalog
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithClock replaces time.Now, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.refresh == nil {
		return nil, errors.New("refresh token store required")
	}
	if b.graph == nil {
		return nil, errors.New("permission graph required")
	}

	catalog := b.catalog
	if catalog == nil {
		catalog = permission.DefaultCatalog()
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- RESOLUTION --------
	resolver, err := permission.NewResolver(b.graph)
	if err != nil {
		return nil, err
	}

	// -------- LOCKOUT --------
	lockout, err := limiters.NewLockout(b.users, limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
	}, now)
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIALS --------
	ph, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    true,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		users:        b.users,
		refresh:      b.refresh,
		graph:        b.graph,
		catalog:      catalog,
		resolver:     resolver,
		lockout:      lockout,
		passwordHash: ph,
		jwtManager:   jm,
		metrics:      NewMetrics(cfg.Metrics),
		log:          log.Named("shopauth"),
		now:          now,
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, engine.log)
	engine.buildFlows()

	b.built = true
	return engine, nil
}
