package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ericksa/contractrisk/internal/config"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// Logger logs method, path and latency. The query string is not logged.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %v", err)
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// PublicPaths lists the routes that never require a token: the health
// checks and, when enabled, the metrics endpoint.
func PublicPaths(cfg *config.Config) map[string]bool {
	paths := map[string]bool{
		"/api/health": true,
		"/health":     true,
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Path != "" {
		paths[cfg.Metrics.Path] = true
	}
	return paths
}

// AuthMiddleware checks the Authorization bearer token against auth.token
// when auth is enabled. Public paths are fixed when the middleware is
// built, matching the routes mounted at startup.
func AuthMiddleware(shared *config.Shared) func(http.Handler) http.Handler {
	public := PublicPaths(shared.Load())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := shared.Load().Auth
			if !auth.Enabled || r.Method == http.MethodOptions || public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(auth.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CORS(shared *config.Shared) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch allowed := shared.Load().Server.CORSOrigins; {
			case allowsAll(allowed):
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(allowed, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowsAll(origins []string) bool {
	return len(origins) == 0 || slices.Contains(origins, "*")
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	idle    time.Duration
	lastGC  time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		lastGC:  time.Now(),
	}
}

// SetLimits changes the rate and burst for new and existing clients.
func (rl *RateLimiter) SetLimits(perSecond float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit := rate.Limit(perSecond)
	if limit == rl.limit && burst == rl.burst {
		return
	}
	rl.limit, rl.burst = limit, burst
	for _, c := range rl.clients {
		c.limiter.SetLimit(limit)
		c.limiter.SetBurst(burst)
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastGC) > rl.idle {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > rl.idle {
				delete(rl.clients, k)
			}
		}
		rl.lastGC = now
	}

	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.Allow()
}

// RateLimit applies rl using the rate, burst and trusted proxies of the
// current configuration. A non-positive rate turns limiting off.
func RateLimit(shared *config.Shared, rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			srv := shared.Load().Server
			if srv.RateLimit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			rl.SetLimits(srv.RateLimit, srv.RateBurst)
			if !rl.Allow(ClientIP(r, srv.TrustedNets())) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the address a request came from. X-Forwarded-For is
// only consulted when the peer is a trusted proxy; the chain is walked
// from the right, stopping at the first hop that is not trusted.
func ClientIP(r *http.Request, trusted []*net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isTrusted(trusted, net.ParseIP(host)) {
		return host
	}
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return host
	}

	client := host
	hops := strings.Split(fwd, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		ip := net.ParseIP(hop)
		if ip == nil {
			break
		}
		client = hop
		if !isTrusted(trusted, ip) {
			break
		}
	}
	return client
}

func isTrusted(trusted []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": message})
}

// Register installs the middleware chain on r. Auth, CORS and rate limits
// follow the current configuration in shared.
func Register(r *mux.Router, shared *config.Shared) {
	srv := shared.Load().Server
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(shared))
	r.Use(RateLimit(shared, NewRateLimiter(srv.RateLimit, srv.RateBurst)))
	r.Use(AuthMiddleware(shared))
}
