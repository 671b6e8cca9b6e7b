package cubechat

import (
	"fmt"
)

// APIError represents an error returned by the cubechat API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Code       string `json:"code,omitempty"`
	Details    string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// IsNotFound returns true if the error is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404 || e.Code == "session_not_found" || e.Code == "cube_not_found"
}

// IsInvalidInput returns true if the error is an invalid input error.
func (e *APIError) IsInvalidInput() bool {
	return e.StatusCode == 400
}

// IsServerError returns true if the error is a server error.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// IsNotFoundError checks if the error is a not found error.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.IsNotFound()
	}
	return false
}
