package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tapgate/tapgate/server/internal/metrics"
)

func loggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("from", r.RemoteAddr).
			Int("status", sw.status).
			Dur("dur", time.Since(start)).
			Msg("request")
	})
}

func metricsMiddleware(rec metrics.Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		rec.IncRequestsTotal(r.URL.Path, sw.status)
		rec.ObserveRequestDuration(r.URL.Path, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// apiKeyAuthorizer builds the opaque "is this caller allowed to read admin
// views" check.  In dev with no keys configured everything is allowed; in
// prod an empty key list locks the admin views down.
func apiKeyAuthorizer(keys []string, env string) func(r *http.Request) bool {
	if len(keys) == 0 {
		allow := env == "dev"
		return func(*http.Request) bool { return allow }
	}

	return func(r *http.Request) bool {
		got := []byte(r.Header.Get("X-API-Key"))
		for _, k := range keys {
			if subtle.ConstantTimeCompare(got, []byte(k)) == 1 {
				return true
			}
		}
		return false
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "valid API key required")
			return
		}
		next(w, r)
	}
}
