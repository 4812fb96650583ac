package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
	"github.com/noah-isme/marsha-lti/pkg/middleware/requestid"
)

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(requestid.Middleware())
	router.GET("/", handler, func(c *gin.Context) { c.Status(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	router.ServeHTTP(rec, req)
	return rec
}

func TestOK(t *testing.T) {
	rec := serve(func(c *gin.Context) { OK(c, gin.H{"state": "available"}) })

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, "available", body["data"].(map[string]interface{})["state"])
	assert.NotContains(t, body, "error")
}

func TestAbort(t *testing.T) {
	rec := serve(func(c *gin.Context) { Abort(c, appErrors.Clone(appErrors.ErrForbidden, "instructors only")) })

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
	assert.Equal(t, "instructors only", body.Error.Message)
}

func TestErrorHidesUntypedErrors(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		Error(c, errors.New("pq: password authentication failed"))
		c.Abort()
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}
