package api

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"gearrental/internal/auth"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	visitorTTL      = 10 * time.Minute
	cleanupInterval = time.Minute
)

// principalHandler receives the verified caller explicitly.
type principalHandler func(w http.ResponseWriter, r *http.Request, p auth.Principal)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// logRequests writes one access log line per request and tags the response with a request id.
func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Str("ip", clientIP(r)).
			Msg("HTTP request")
	})
}

func (s *HTTPServer) authenticate(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := s.verifier.ParseHeader(r.Header.Get("Authorization"))
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		writeError(w, http.StatusUnauthorized, "no token provided")
		return auth.Principal{}, false
	case err != nil:
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected token")
		writeError(w, http.StatusForbidden, "invalid or expired token")
		return auth.Principal{}, false
	}
	return p, true
}

func (s *HTTPServer) requireUser(next principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r, p)
	}
}

func (s *HTTPServer) requireAdmin(next principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		if !p.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r, p)
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	logger   *zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewRateLimiter returns a limiter allowing rps requests per second with the given burst.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int, logger *zerolog.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (rl *RateLimiter) enabled() bool {
	return rl.limit > 0
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.enabled() {
		return true
	}
	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()
	return v.limiter.Allow()
}

// StartCleanup evicts idle visitors in the background until Stop.
func (rl *RateLimiter) StartCleanup() {
	rl.startOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-rl.stop:
					return
				case now := <-ticker.C:
					rl.evict(now)
				}
			}
		}()
	})
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, key)
		}
	}
}

func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			rl.logger.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
