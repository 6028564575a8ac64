package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"eduface/internal/logging"
	"eduface/internal/portal"
)

// fail writes the response for a service error. Store failures are logged
// and reported without detail.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, portal.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, portal.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, portal.ErrNotFound), errors.Is(err, portal.ErrUnknownSubject):
		status = http.StatusNotFound
	case errors.Is(err, portal.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, portal.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, portal.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	_ = c.Error(err)
	if status >= 500 {
		logging.FromContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = "storage temporarily unavailable, try again"
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
}
