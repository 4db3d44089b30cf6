package devserver

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRPS   = 5
	defaultBurst = 10

	limiterTTL  = 10 * time.Minute
	sweepPeriod = time.Minute
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per user. Idle buckets are swept
// on access instead of by a background goroutine.
type limiterPool struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	m         map[string]*limiterEntry
	lastSweep time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = defaultRPS
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &limiterPool{
		rps:   rate.Limit(rps),
		burst: burst,
		now:   time.Now,
		m:     make(map[string]*limiterEntry),
	}
}

// Allow reports whether key may make a request now.
func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	now := p.now()
	p.sweep(now)
	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(p.rps, p.burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	l := e.l
	p.mu.Unlock()

	return l.AllowN(now, 1)
}

// sweep drops buckets not seen within limiterTTL. Caller holds mu.
func (p *limiterPool) sweep(now time.Time) {
	if now.Sub(p.lastSweep) < sweepPeriod {
		return
	}
	p.lastSweep = now
	cutoff := now.Add(-limiterTTL)
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
