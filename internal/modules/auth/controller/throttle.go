package controller

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter map; idle entries are dropped first.
const maxTrackedClients = 4096

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// throttle is a token bucket per client address.
type throttle struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func newThrottle(limit rate.Limit, burst int) *throttle {
	return &throttle{
		limit:   limit,
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (t *throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	c, ok := t.clients[key]
	if !ok {
		if len(t.clients) >= maxTrackedClients {
			t.prune(now)
		}
		c = &clientLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// prune drops clients idle long enough for their bucket to have refilled.
func (t *throttle) prune(now time.Time) {
	idle := time.Minute
	if t.limit > 0 && t.limit != rate.Inf {
		idle = time.Duration(float64(t.burst) / float64(t.limit) * float64(time.Second))
	}
	for key, c := range t.clients {
		if now.Sub(c.lastSeen) > idle {
			delete(t.clients, key)
		}
	}
}
