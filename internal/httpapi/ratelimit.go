package httpapi

import (
	"container/list"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"devbridge-go/internal/config"
)

const (
	defaultMaxClients = 10000
	clientIdleTimeout = 30 * time.Minute
)

type clientLimiter struct {
	key        string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ClientRateLimiter keeps one token bucket per client address. Entries are
// kept in LRU order; the least recently seen client is evicted when the table
// is full, and clients idle past clientIdleTimeout are dropped on access.
type ClientRateLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	maxEntries int
	clients    map[string]*list.Element
	lru        *list.List
	now        func() time.Time
}

// NewClientRateLimiter builds a limiter from rl. A nil rl or a non-positive
// rate allows everything.
func NewClientRateLimiter(rl *config.RateLimitConfig) *ClientRateLimiter {
	limit := rate.Inf
	burst := 0
	if rl != nil && rl.RPS > 0 {
		limit = rate.Limit(rl.RPS)
		burst = rl.Burst
	}
	return &ClientRateLimiter{
		limit:      limit,
		burst:      burst,
		maxEntries: defaultMaxClients,
		clients:    make(map[string]*list.Element),
		lru:        list.New(),
		now:        time.Now,
	}
}

// Allow reports whether the client identified by key may proceed.
func (l *ClientRateLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dropIdleLocked(now)

	if elem, ok := l.clients[key]; ok {
		entry := elem.Value.(*clientLimiter)
		entry.lastAccess = now
		l.lru.MoveToFront(elem)
		return entry.limiter.AllowN(now, 1)
	}

	if l.maxEntries > 0 && l.lru.Len() >= l.maxEntries {
		if back := l.lru.Back(); back != nil {
			l.lru.Remove(back)
			delete(l.clients, back.Value.(*clientLimiter).key)
		}
	}

	entry := &clientLimiter{key: key, limiter: rate.NewLimiter(l.limit, l.burst), lastAccess: now}
	l.clients[key] = l.lru.PushFront(entry)
	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *ClientRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Len()
}

func (l *ClientRateLimiter) dropIdleLocked(now time.Time) {
	for {
		back := l.lru.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*clientLimiter)
		if now.Sub(entry.lastAccess) < clientIdleTimeout {
			return
		}
		l.lru.Remove(back)
		delete(l.clients, entry.key)
	}
}

// Middleware answers 429 once the caller's bucket is empty.
func (l *ClientRateLimiter) Middleware(reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientKey(r)) {
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey is the remote IP without the port. Forwarding headers are not
// trusted.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
