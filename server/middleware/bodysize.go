package middleware

import (
	"net/http"

	"github.com/kbukum/mmrunner/util"
)

const defaultMaxBodySize = 64 * 1024

// BodySizeLimit returns middleware that restricts the request body to the given
// size string (e.g. "64KB", "1MB"). An unparsable size falls back to 64KB.
func BodySizeLimit(maxSize string) Middleware {
	size, err := util.ParseSize(maxSize)
	if err != nil || size <= 0 {
		size = defaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, size)
			}
			next.ServeHTTP(w, r)
		})
	}
}
