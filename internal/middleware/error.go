package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medalarm/internal/handler"
	apperrors "github.com/jwalitptl/medalarm/pkg/errors"
	"github.com/jwalitptl/medalarm/pkg/logger"
)

// ErrorHandler renders the last error recorded by a handler in the response
// envelope. Storage and internal failures are logged and reported without
// their underlying cause.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := apperrors.HTTPStatus(err)

		message := http.StatusText(status)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			message = appErr.Message
			// validation details help the caller fix the request
			if appErr.Code == apperrors.ErrBadRequest {
				message = appErr.Error()
			}
		}

		if status >= http.StatusInternalServerError {
			log.Error(err, "request failed",
				"request_id", c.GetString(ContextRequestID),
				"method", c.Request.Method,
				"path", c.FullPath())
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(status, handler.NewErrorResponse(message))
	}
}
