package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/dockpipe/pkg/errors"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// parseLimit reads a positive ?limit= (or another key), capped at maxLimit.
func parseLimit(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code errors.ErrorCode, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: string(code), Message: msg})
}

// writeAppError maps the error code to a status.  Server-side messages are
// masked.
func writeAppError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	if code == errors.CodeUnknown || status >= http.StatusInternalServerError {
		_ = c.Error(err)
		writeError(c, status, errors.CodeInternal, "internal server error")
		return
	}
	writeError(c, status, code, err.Error())
}

func writeUnavailable(c *gin.Context, backend string) {
	writeError(c, http.StatusServiceUnavailable, errors.ErrCodeExternalService, backend+" is not configured")
}
