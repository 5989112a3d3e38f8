package models

import "fmt"

// ErrorCode is a string type for consistent error codes.
type ErrorCode string

const (
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeInvalidToken        ErrorCode = "invalid_token"
	ErrorCodeServiceUnavailable  ErrorCode = "service_unavailable"
	ErrorCodeUnknownPipeline     ErrorCode = "unknown_pipeline"
)

type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	StatusCode int       `json:"-"`
}

// Error makes APIError implement the error interface.
func (e APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewAPIError is a constructor for APIError.
func NewAPIError(code ErrorCode, message string, details any, statusCode int) APIError {
	return APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}
