package utils

import (
	"errors"
	"net/http"
	"os"

	svcerror "summershop-saga/pkg/error"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func SendSuccess(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func SendError(c *gin.Context, statusCode int, code, message, details string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func SendValidationError(c *gin.Context, err error) {
	SendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation Failed", err.Error())
}

func SendInternalError(c *gin.Context, message string) {
	SendError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, "An internal error has occurred")
}

// SendServiceError maps a service-error code onto an HTTP status with the
// specific failure reason in the body.
func SendServiceError(c *gin.Context, err error) {
	var ed *svcerror.ErrorDetails
	if !errors.As(err, &ed) {
		SendInternalError(c, err.Error())
		return
	}

	var status int
	var code string
	switch ed.Code {
	case svcerror.ErrNotFound:
		status, code = http.StatusNotFound, "NOT_FOUND"
	case svcerror.ErrConflict:
		status, code = http.StatusConflict, "CONFLICT"
	case svcerror.ErrStaleVersion:
		status, code = http.StatusConflict, "STALE_VERSION"
	case svcerror.ErrInvalidState:
		status, code = http.StatusUnprocessableEntity, "INVALID_STATE"
	case svcerror.ErrInvalidAmount:
		status, code = http.StatusUnprocessableEntity, "INVALID_AMOUNT"
	case svcerror.ErrTransientDependency:
		status, code = http.StatusBadGateway, "TRANSIENT_DEPENDENCY_FAILURE"
	default:
		status, code = http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	}

	SendError(c, status, code, ed.Code.Error(), ed.Msg)
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
