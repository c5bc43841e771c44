package rate

import (
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// Config sets the per-key token bucket. PerSecond is the refill rate and
// Burst the bucket size. Idle buckets are forgotten after IdleTTL.
type Config struct {
	PerSecond float64
	Burst     int
	IdleTTL   time.Duration
}

type bucket struct {
	lim  *xrate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per key (usually a client IP). Safe for
// concurrent use.
type Limiter struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New returns a Limiter, or nil when cfg disables limiting. A nil Limiter
// allows everything.
func New(cfg Config) *Limiter {
	if cfg.PerSecond <= 0 || cfg.Burst <= 0 {
		return nil
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	return &Limiter{
		config:  cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) error {
	if l == nil {
		return nil
	}
	if key == "" {
		key = "unknown"
	}

	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: xrate.NewLimiter(xrate.Limit(l.config.PerSecond), l.config.Burst)}
		l.buckets[key] = b
	}
	b.seen = now
	allowed := b.lim.AllowN(now, 1)
	l.mu.Unlock()

	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// Sweep drops buckets idle for longer than IdleTTL and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	if l == nil {
		return 0
	}
	cutoff := l.now().Add(-l.config.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until stop is closed.
func (l *Limiter) Run(interval time.Duration, stop <-chan struct{}) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-stop:
			return
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
