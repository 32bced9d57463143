package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/mmrunner/errors"
)

// DefaultSkipPaths are reachable without a token.
var DefaultSkipPaths = []string{"/health", "/version"}

// Middleware returns a Gin middleware that validates Bearer tokens with v.
// Requests whose path starts with one of skip (DefaultSkipPaths if none)
// pass through. Verified claims are stored in the request context and the
// subject under the "subject" key of the Gin context.
func Middleware(v TokenValidator, skip ...string) gin.HandlerFunc {
	if len(skip) == 0 {
		skip = DefaultSkipPaths
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range skip {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, errors.Unauthorized("Authorization header required."))
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abort(c, errors.Unauthorized("Invalid authorization header format."))
			return
		}

		claims, err := v.ValidateToken(token)
		if err != nil {
			abort(c, errors.From(err))
			return
		}

		c.Request = c.Request.WithContext(ContextWithClaims(c.Request.Context(), claims))
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

func abort(c *gin.Context, err *errors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err.ToResponse())
}
