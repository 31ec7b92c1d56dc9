// Package handler implements the HTTP handlers of the Tech Pack API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/techpack/backend/internal/interfaces/http/dto"
	"github.com/techpack/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides the response helpers shared by every handler
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	return c.GetString(middleware.RequestIDKey)
}

// Success sends a 200 envelope
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// ErrorWithCode sends an error envelope, deriving the status from the code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string, details ...string) {
	info := dto.ErrorInfo{Code: code, Message: message, Details: details}
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseFromInfo(info, getRequestID(c)))
}

// HandleError classifies err and sends its envelope. Retryable timing hints
// are mirrored into the Retry-After header.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	apiErr := dto.FromError(err)
	if apiErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(apiErr.RetryAfter.Seconds())))
	}
	_ = c.Error(err)
	c.JSON(apiErr.Status, dto.NewErrorResponseFromInfo(apiErr.Info, getRequestID(c)))
}

// BindJSON decodes the request body into req. An empty body leaves req
// untouched when optional is set. It writes the error envelope and returns
// false on failure.
func (h *BaseHandler) BindJSON(c *gin.Context, req any, optional bool) bool {
	if optional && c.Request.ContentLength == 0 {
		return true
	}
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case optional && errors.Is(err, io.EOF):
		return true
	case errors.As(err, &tooLarge):
		h.ErrorWithCode(c, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		h.ErrorWithCode(c, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
	default:
		if problems := middleware.ValidationProblems(err); problems != nil {
			h.ErrorWithCode(c, dto.ErrCodeValidation, "Request validation failed", problems...)
			return false
		}
		h.ErrorWithCode(c, dto.ErrCodeValidation, err.Error())
	}
	return false
}
