// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/idgen"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"github.com/reviewgate/reviewgate/pkg/telemetry"
)

// LoggerConfig holds the configuration for the Logger middleware
type LoggerConfig struct {
	// AccessLog determines if HTTP request logs should be printed at info level
	// When true, successful requests (status < 400) are logged; when false, they are not
	AccessLog bool
}

// Logger returns a middleware that logs HTTP requests
// If cfg is nil, defaults to not logging access requests (accessLog = false)
func Logger(cfg *LoggerConfig) gin.HandlerFunc {
	accessLog := false
	if cfg != nil {
		accessLog = cfg.AccessLog
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		telemetry.GetMetrics().RecordHTTPRequest(c.Request.Context(),
			c.Request.Method, c.FullPath(), status, latency.Seconds())

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
		}

		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("Server error", fields...)
		case status >= 400:
			logger.Warn("Client error", fields...)
		default:
			// Only log successful requests if accessLog is enabled
			if accessLog {
				logger.Info("Request", fields...)
			}
		}
	}
}

// Recovery returns a middleware that recovers from panics
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.ByteString("stack", stack),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   errors.ErrCodeInternal,
					"message": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// CORS returns a middleware that handles CORS headers with origin whitelist validation
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]bool)
	for _, origin := range allowedOrigins {
		originSet[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Only set CORS headers if origin is in the whitelist
		if origin != "" && originSet[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Gitlab-Token")
			c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == "OPTIONS" {
			if origin != "" && originSet[origin] {
				c.AbortWithStatus(http.StatusNoContent)
			} else {
				c.AbortWithStatus(http.StatusForbidden)
			}
			return
		}

		c.Next()
	}
}

// RequestID returns a middleware that adds a request ID to the context
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Request.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = idgen.NewRequestID()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// ErrorHandler returns a middleware that handles errors uniformly.
// In production mode (debugMode=false), sensitive error details are hidden.
func ErrorHandler(debugMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			if appErr, ok := errors.AsAppError(err); ok {
				response := gin.H{
					"error": appErr.Code,
				}
				// Hide sensitive error messages in production mode
				if appErr.HTTPStatus() >= http.StatusInternalServerError && !debugMode {
					response["message"] = "Internal server error"
				} else {
					response["message"] = appErr.Message
				}
				if debugMode && appErr.Details != nil {
					response["details"] = appErr.Details
				}
				c.JSON(appErr.HTTPStatus(), response)
				return
			}

			msg := "Internal server error"
			if debugMode {
				msg = err.Error()
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   errors.ErrCodeInternal,
				"message": msg,
			})
		}
	}
}

// APIAuth returns a middleware that validates a static bearer token for the
// control API. An empty configured token disables the check entirely, which
// is the single-operator localhost deployment mode.
func APIAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   errors.ErrCodeUnauthorized,
				"message": "Authorization header required",
			})
			return
		}

		const bearerPrefix = "Bearer "
		if len(authHeader) <= len(bearerPrefix) || authHeader[:len(bearerPrefix)] != bearerPrefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   errors.ErrCodeUnauthorized,
				"message": "Invalid authorization format",
			})
			return
		}

		presented := authHeader[len(bearerPrefix):]
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			logger.Debug("API token mismatch", zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   errors.ErrCodeUnauthorized,
				"message": "Invalid token",
			})
			return
		}

		c.Next()
	}
}
