package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// RateLimitMiddleware rejects requests over the limiter's budget with 429.
// A nil limiter lets everything through.
func RateLimitMiddleware(rl *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl != nil && !rl.Allow() {
			c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// PrivateLogMiddleware lets channel transcripts ("#" names) through and
// requires a bearer key or remote token for everything else.
func PrivateLogMiddleware(keys KeyVerifier, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Param("log"), "#") {
			c.Next()
			return
		}
		if keys == nil {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "private transcripts are disabled"})
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}
		who, err := keys.Verify(parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid key")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid key"})
			c.Abort()
			return
		}
		logger.Debug().Str("who", who).Str("log", c.Param("log")).Msg("private transcript read")
		c.Next()
	}
}
