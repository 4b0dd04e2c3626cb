package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wavelink-backend/pkg/errors"
)

// Result is the envelope returned by every group mutation endpoint
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// OK sends a successful mutation result
func OK(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Result{Success: true, Message: message})
}

// OKWithData sends a successful result with a payload
func OKWithData(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Result{Success: true, Message: message, Data: data})
}

// Fail sends a failed mutation result with an explicit status code
func Fail(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Result{Success: false, Message: message})
}

// FromError maps an application error to a failure result. Internal error
// detail is never leaked to the client.
func FromError(c *gin.Context, err error) {
	appErr := errors.GetAppError(err)
	message := appErr.Message
	if appErr.Code == errors.ErrCodeInternal || appErr.Code == errors.ErrCodeDatabase {
		message = "Internal error"
	}
	c.JSON(appErr.StatusCode, Result{Success: false, Message: message})
}
