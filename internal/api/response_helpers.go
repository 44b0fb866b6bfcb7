// internal/api/response_helpers.go
package api

import (
	"net/http"
	"time"

	apperrors "github.com/Corphon/HeartSyncMCP/internal/errors"
	"github.com/gin-gonic/gin"
)

// APIResponse 统一响应包装
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 响应中的错误详情
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: message,
	}

	if len(details) > 0 {
		apiError.Details = details[0]
	}

	response := &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusNotFound, ErrorNotFound, message, details...)
}

// Conflict 409错误响应
func (rh *ResponseHelper) Conflict(c *gin.Context, errorCode, message string, details ...string) {
	rh.Error(c, http.StatusConflict, errorCode, message, details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// FromAppError 把应用层错误映射为HTTP响应
// The mapping mirrors the failure taxonomy: configuration errors are
// persistent (503), transient network/timeout errors invite a retry
// (502), conflicts mean the turn could not be accepted right now (409).
func (rh *ResponseHelper) FromAppError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidationError(err):
		rh.Error(c, http.StatusBadRequest, ErrorMessageEmpty, err.Error())
	case apperrors.IsNotFoundError(err):
		rh.Error(c, http.StatusNotFound, ErrorCharacterNotFound, err.Error())
	case apperrors.IsConflictError(err):
		rh.Error(c, http.StatusConflict, ErrorDateAlreadyDecided, err.Error())
	case apperrors.IsConfigError(err):
		rh.Error(c, http.StatusServiceUnavailable, ErrorAPIKeyMissing, err.Error())
	case apperrors.IsUnauthorizedError(err):
		rh.Error(c, http.StatusBadGateway, ErrorUnauthorized, err.Error())
	case apperrors.IsNetworkError(err):
		rh.Error(c, http.StatusBadGateway, ErrorConnectionFailed, err.Error())
	default:
		rh.InternalError(c, err.Error())
	}
}
