package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"backoffice/internal/apperr"
)

func serve(handler gin.HandlerFunc) (*httptest.ResponseRecorder, *gin.Context) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)
	return w, c
}

func TestErrorEnvelope(t *testing.T) {
	w, _ := serve(func(c *gin.Context) {
		Error(c, fmt.Errorf("record: %w", apperr.ActivityNotStarted))
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":{"code":"ACTIVITY_NOT_STARTED","message":"Activity has not started yet"}}`, w.Body.String())
}

func TestErrorHidesInternalMessage(t *testing.T) {
	w, c := serve(func(c *gin.Context) {
		Error(c, errors.New("pq: connection reset"))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":{"code":"INTERNAL_ERROR","message":"Internal server error"}}`, w.Body.String())
	if assert.Len(t, c.Errors, 1) {
		assert.Contains(t, c.Errors[0].Error(), "connection reset")
	}
}

func TestErrorKeepsUnavailableCause(t *testing.T) {
	w, c := serve(func(c *gin.Context) {
		Error(c, apperr.StorageUnavailable.Wrap(errors.New("dial tcp: connection refused")))
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":{"code":"STORAGE_UNAVAILABLE","message":"Storage unavailable"}}`, w.Body.String())
	if assert.Len(t, c.Errors, 1) {
		assert.Contains(t, c.Errors[0].Error(), "connection refused")
	}
}

func TestPage(t *testing.T) {
	w, _ := serve(func(c *gin.Context) {
		Page(c, []string{"a"}, 10, 20)
	})

	assert.JSONEq(t, `{"data":["a"],"meta":{"limit":10,"offset":20}}`, w.Body.String())
}

func TestCreated(t *testing.T) {
	w, _ := serve(func(c *gin.Context) {
		Created(c, map[string]string{"id": "x"})
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"data":{"id":"x"}}`, w.Body.String())
}
