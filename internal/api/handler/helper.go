// Package handler provides HTTP handlers for the API.
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reviewgate/reviewgate/pkg/errors"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// respondError writes the standard error envelope directly. Handlers on the
// public surface use this; control handlers push AppErrors through the
// ErrorHandler middleware instead.
func respondError(c *gin.Context, status int, code errors.ErrorCode, message string) {
	c.JSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

// abortWithError hands an error to the ErrorHandler middleware.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// parsePagination reads limit/offset query parameters with clamping.
// Out-of-range or unparseable values fall back to the defaults.
func parsePagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
