package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RequestsServed.Inc()
		if rec.status >= http.StatusInternalServerError {
			s.metrics.RequestsFailed.Inc()
		}
		s.log.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", s.now().Sub(start)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			s.writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimiter counts requests per client over fixed one-minute windows.
type rateLimiter struct {
	mu      sync.Mutex
	perMin  int
	now     func() time.Time
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

func newRateLimiter(perMin int, now func() time.Time) *rateLimiter {
	return &rateLimiter{perMin: perMin, now: now, windows: make(map[string]*window)}
}

func (l *rateLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.now().Truncate(time.Minute)
	w, ok := l.windows[client]
	if !ok || !w.start.Equal(start) {
		if len(l.windows) > 10000 {
			l.prune(start)
		}
		w = &window{start: start}
		l.windows[client] = w
	}
	w.count++
	return w.count <= l.perMin
}

func (l *rateLimiter) prune(current time.Time) {
	for client, w := range l.windows {
		if !w.start.Equal(current) {
			delete(l.windows, client)
		}
	}
}
