package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// adminCredentials guard the /admin/ routes. Either a token
// (X-Admin-Token) or a basic auth pair is accepted.
type adminCredentials struct {
	user     string
	password string
	token    string
}

func loadAdminCredentials() adminCredentials {
	c := adminCredentials{
		user:     os.Getenv("ADMIN_USERNAME"),
		password: os.Getenv("ADMIN_PASSWORD"),
		token:    os.Getenv("ADMIN_TOKEN"),
	}
	if !c.configured() {
		slog.Warn("admin endpoints are open: anyone reaching HTTP_ADDR can inject broadcaster commands; set ADMIN_TOKEN or ADMIN_USERNAME+ADMIN_PASSWORD",
			slog.String("component", "http"))
	}
	return c
}

func (c adminCredentials) configured() bool {
	return c.token != "" || (c.user != "" && c.password != "")
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (c adminCredentials) permits(r *http.Request) bool {
	if !c.configured() {
		return true
	}
	if tok := r.Header.Get("X-Admin-Token"); c.token != "" && tok != "" && equal(tok, c.token) {
		return true
	}
	if c.user == "" || c.password == "" {
		return false
	}
	user, pass, ok := r.BasicAuth()
	return ok && equal(user, c.user) && equal(pass, c.password)
}

func requireAdmin(next http.Handler, creds adminCredentials) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if creds.permits(r) {
			next.ServeHTTP(w, r)
			return
		}
		slog.Warn("admin request rejected", slog.String("path", r.URL.Path), slog.String("ip", clientIP(r)), slog.String("component", "http"))
		w.Header().Set("WWW-Authenticate", `Basic realm="copilot admin"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// limitConfig is the per-IP request budget for admin routes.
type limitConfig struct {
	enabled   bool
	perWindow int
	window    time.Duration
}

func loadLimitConfig() limitConfig {
	cfg := limitConfig{
		enabled:   os.Getenv("RATE_LIMIT_ENABLED") != "0",
		perWindow: 30,
		window:    time.Minute,
	}
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("RATE_LIMIT_REQUESTS_PER_IP"))); err == nil && n > 0 {
		cfg.perWindow = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS"))); err == nil && n > 0 {
		cfg.window = time.Duration(n) * time.Second
	}
	return cfg
}

// limiter is satisfied by the in-memory and Redis rate limiters.
type limiter interface {
	allow(ctx context.Context, ip string) bool
	window() time.Duration
}

type bucket struct {
	count   int
	resetAt time.Time
}

// memoryLimiter counts requests per IP in fixed windows, the same scheme the
// Redis limiter uses, so switching backends keeps the budget semantics.
type memoryLimiter struct {
	cfg limitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newMemoryLimiter(ctx context.Context, cfg limitConfig) *memoryLimiter {
	l := &memoryLimiter{cfg: cfg, now: time.Now, buckets: make(map[string]*bucket)}
	go l.sweepEvery(ctx, time.Minute)
	return l
}

func (l *memoryLimiter) window() time.Duration { return l.cfg.window }

func (l *memoryLimiter) allow(_ context.Context, ip string) bool {
	if !l.cfg.enabled {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[ip]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.cfg.window)}
		l.buckets[ip] = b
	}
	b.count++
	return b.count <= l.cfg.perWindow
}

func (l *memoryLimiter) sweepEvery(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.sweep()
		}
	}
}

// sweep drops expired buckets.
func (l *memoryLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, ip)
		}
	}
}

func limitAdmin(next http.Handler, l limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if l.allow(r.Context(), ip) {
			next.ServeHTTP(w, r)
			return
		}
		slog.Warn("admin rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path), slog.String("component", "http"))
		w.Header().Set("Retry-After", strconv.Itoa(int(l.window().Seconds())))
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	})
}

// clientIP prefers the first X-Forwarded-For hop and strips the port.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ = strings.Cut(fwd, ",")
		ip = strings.TrimSpace(ip)
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

// corsPolicy allows any origin or a fixed list; "*.example.com" entries
// match subdomains and the bare domain.
type corsPolicy struct {
	anyOrigin bool
	origins   []string
}

func loadCORSPolicy() corsPolicy {
	v := os.Getenv("CORS_PERMISSIVE")
	p := corsPolicy{anyOrigin: v == "1" || v == "true"}
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			p.origins = append(p.origins, o)
		}
	}
	return p
}

func (p corsPolicy) allows(origin string) bool {
	for _, allowed := range p.origins {
		if origin == allowed {
			return true
		}
		domain, ok := strings.CutPrefix(allowed, "*.")
		if !ok {
			continue
		}
		if strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain || origin == "http://"+domain {
			return true
		}
	}
	return false
}

const corsHeaders = "Content-Type, Authorization, X-Admin-Token, X-Correlation-ID"

func withCORS(next http.Handler, p corsPolicy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		origin := r.Header.Get("Origin")
		switch {
		case p.anyOrigin:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && p.allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if h.Get("Access-Control-Allow-Origin") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", corsHeaders)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
