package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit is a request budget per client: Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Disabled reports whether the limit is switched off.
func (l Limit) Disabled() bool {
	return l.Requests <= 0 || l.Window <= 0
}

// DefaultAPILimit and DefaultSheetsLimit match the deployed service.
var (
	DefaultAPILimit    = Limit{Requests: 100, Window: 15 * time.Minute}
	DefaultSheetsLimit = Limit{Requests: 30, Window: time.Minute}
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands every client address its own token bucket.
type RateLimiter struct {
	limit   Limit
	message string

	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
}

// NewRateLimiter creates a limiter for limit. message is returned to rejected clients.
func NewRateLimiter(limit Limit, message string) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		message:  message,
		visitors: make(map[string]*visitor),
		lastGC:   time.Now(),
	}
}

// Allow reports whether a client may make a request now.
func (l *RateLimiter) Allow(client string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.limit.Window {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.limit.Window {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[client]
	if !ok {
		every := rate.Every(l.limit.Window / time.Duration(l.limit.Requests))
		v = &visitor{limiter: rate.NewLimiter(every, l.limit.Requests)}
		l.visitors[client] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware rejects clients over budget with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l.limit.Disabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientAddr(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.limit.Window/time.Duration(l.limit.Requests)/time.Second)+1))
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "TooManyRequests", Message: l.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) String() string {
	return fmt.Sprintf("%d per %s", l.limit.Requests, l.limit.Window)
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
