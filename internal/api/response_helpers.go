// internal/api/response_helpers.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/SceneComposer/internal/errors"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// APIResponse is the envelope of every JSON reply
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError is the error part of the envelope
type APIError struct {
	Code    string `json:"code"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper writes envelopes
type ResponseHelper struct {
	logger *utils.Logger
}

// NewResponseHelper creates a response helper
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{logger: utils.GetLogger()}
}

// Success writes a 200 envelope
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusOK, data, message)
}

// Created writes a 201 envelope
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusCreated, data, message)
}

// Accepted writes a 202 envelope, used when work continues in the background
func (rh *ResponseHelper) Accepted(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusAccepted, data, message)
}

func (rh *ResponseHelper) write(c *gin.Context, status int, data interface{}, message []string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// sanitizeErrorMessage keeps credentials out of replies
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "apikey", "secret", "token", "authorization", "bearer "} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error writes an error envelope
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}
	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest writes a 400 for malformed input
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound writes a 404 for an unknown route target
func (rh *ResponseHelper) NotFound(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusNotFound, ErrorNotFound, message, details...)
}

// InternalError writes a 500
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// FromError maps an error to its status and writes it. AppErrors keep their message,
// anything else is reported as an internal error.
func (rh *ResponseHelper) FromError(c *gin.Context, err error) {
	errType := apperrors.TypeOf(err)
	status := statusForType(errType)
	if status == http.StatusInternalServerError {
		rh.logger.Error("unhandled error", map[string]interface{}{
			"path":       c.FullPath(),
			"request_id": rh.getRequestID(c),
			"error":      err.Error(),
		})
		rh.InternalError(c, "something went wrong, please try again")
		return
	}

	apiError := &APIError{
		Code:    codeForType(errType),
		Type:    string(errType),
		Message: sanitizeErrorMessage(apperrors.MessageOf(err)),
	}
	c.JSON(status, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

func statusForType(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeMissingMedia:
		return http.StatusUnprocessableEntity
	case apperrors.ErrorTypeNetwork, apperrors.ErrorTypeJobFailed:
		return http.StatusBadGateway
	case apperrors.ErrorTypeBusy:
		return http.StatusConflict
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func codeForType(t apperrors.ErrorType) string {
	switch t {
	case apperrors.ErrorTypeValidation:
		return ErrorInvalidInput
	case apperrors.ErrorTypeMissingMedia:
		return ErrorMissingMedia
	case apperrors.ErrorTypeNetwork:
		return ErrorBackendUnavailable
	case apperrors.ErrorTypeJobFailed:
		return ErrorRenderFailed
	case apperrors.ErrorTypeBusy:
		return ErrorConflict
	case apperrors.ErrorTypeNotFound:
		return ErrorSceneNotFound
	case apperrors.ErrorTypeForbidden:
		return ErrorPinnedScene
	}
	return ErrorInternalError
}

func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
