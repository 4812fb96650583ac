package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
	"github.com/noah-isme/marsha-lti/pkg/middleware/requestid"
)

// Envelope is the body of every API response.
type Envelope struct {
	Data      interface{}      `json:"data,omitempty"`
	Error     *appErrors.Error `json:"error,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// LTI responses are rendered inside consumer iframes and must not be cached
// by intermediaries.
func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON sends data with status.
func JSON(c *gin.Context, status int, data interface{}) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, RequestID: requestid.Value(c)})
}

// OK responds with HTTP 200.
func OK(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// Created responds with HTTP 201.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// Error renders err. Untyped errors become 500s with a generic message.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr, RequestID: requestid.Value(c)})
}

// Abort renders err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
