package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// clientIP returns the remote address without the port. The endpoint listens on
// loopback for a local UI, so forwarding headers are never trusted.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

// RateLimitMiddleware applies a rate limit based on the client's address.
// It rejects requests with "429 Too Many Requests" if the limit is exceeded.
func (s *Server) RateLimitMiddleware(next http.Handler) http.Handler {
	if s.rateCount <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.allow(clientIP(r)) {
			log.Debug().
				Str("ip", clientIP(r)).
				Str("path", r.URL.Path).
				Msg("Rate limit hit")

			respondJSON(w, http.StatusTooManyRequests, envelope{Error: "too many requests", Kind: "rate_limited"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow takes a token from the bucket of ip, creating it on first use.
func (s *Server) allow(ip string) bool {
	s.limMu.Lock()
	cli, found := s.limiters[ip]
	if !found {
		limit := rate.Limit(float64(s.rateCount) / s.rateWindow.Seconds())
		cli = &clientLimiter{limiter: rate.NewLimiter(limit, s.rateCount)}
		s.limiters[ip] = cli
	}
	cli.lastSeen = time.Now()
	limiter := cli.limiter
	s.limMu.Unlock()

	return limiter.Allow()
}

// gcLimiters periodically drops limiters of clients not seen for a while.
func (s *Server) gcLimiters(every, idle time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			now := time.Now()
			s.limMu.Lock()
			for ip, c := range s.limiters {
				if now.Sub(c.lastSeen) > idle {
					delete(s.limiters, ip)
				}
			}
			s.limMu.Unlock()
		}
	}
}

// LoggingMiddleware logs the details of each HTTP request, including method, path, IP, and duration.
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", clientIP(r)).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// AuthMiddleware requires a valid Bearer token in the Authorization header.
// The token may also be passed as ?token= because browser EventSource cannot set headers.
// An empty token disables the check.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" {
			got = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			respondJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized", Kind: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
