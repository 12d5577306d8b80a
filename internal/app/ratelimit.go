package app

import (
	"net"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 4096

// clientLimiter throttles per remote address. Limiters for the least
// recently seen addresses are evicted.
type clientLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if perSecond <= 0 {
		return nil
	}
	limiters, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		return nil
	}
	return &clientLimiter{limit: rate.Limit(perSecond), burst: max(burst, 1), limiters: limiters}
}

func (c *clientLimiter) Allow(r *http.Request) bool {
	if c == nil {
		return true
	}
	key := clientAddress(r)
	c.mu.Lock()
	limiter, ok := c.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(c.limit, c.burst)
		c.limiters.Add(key, limiter)
	}
	c.mu.Unlock()
	return limiter.Allow()
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
