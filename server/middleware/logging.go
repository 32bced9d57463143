package middleware

import (
	"net/http"
	"time"

	"github.com/kbukum/mmrunner/logger"
)

var quietPaths = map[string]bool{
	"/health":  true,
	"/version": true,
}

// RequestLogger returns middleware that logs every request with method,
// path, status code, response size and duration. Probe paths are skipped.
// An event stream is logged once, when the client goes away.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			fields := logger.MergeWithDuration(logger.Fields(
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
			), time.Since(start))
			logByStatus(log.WithContext(r.Context()), fields, sw.status)
		})
	}
}

// logByStatus logs request fields at the appropriate level based on HTTP status code.
func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("request completed", fields)
	case status >= 400:
		log.Warn("request completed", fields)
	default:
		log.Debug("request completed", fields)
	}
}
