package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jdziat/sitepipe/pkg/core"
)

// abortWithError writes the JSON error body for err. Messages of
// unexpected errors stay in the log.
func abortWithError(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	switch {
	case core.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound, "job not found"
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "job store unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
