// Package response writes the JSON envelopes shared by every handler.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/apperr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse wraps payloads of successful requests.
type SuccessResponse struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Error maps err to its status and writes the error envelope.
func Error(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	code, msg := apperr.CodeAndMessage(err)
	if status >= http.StatusInternalServerError {
		// Internal details stay in the logs.
		_ = c.Error(err)
	}
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: msg}})
}

// OK writes data with status 200.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse{Data: data})
}

// Created writes data with status 201.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse{Data: data})
}

// Page writes a list with its paging parameters.
func Page(c *gin.Context, data any, limit, offset int) {
	c.JSON(http.StatusOK, SuccessResponse{Data: data, Meta: map[string]any{"limit": limit, "offset": offset}})
}
