package sdk

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried by SDKError. Callers can compare SDKError.Code directly
// or use errors.Is with the matching sentinel below.
const (
	// CodeCommandFailed is set when a command exhausted all of its attempts
	CodeCommandFailed = "COMMAND_FAILED"
	// CodeNotInitialized is set when the global SDK is used before Init
	CodeNotInitialized = "NOT_INITIALIZED"
	// CodeCanceled is set when the context ended while waiting to retry
	CodeCanceled = "CANCELED"
	// CodeInvalidConfig is set when a CommandContext fails validation
	CodeInvalidConfig = "INVALID_CONFIG"
	// CodeRequestFailed is set when the Receiver could not prepare a request
	CodeRequestFailed = "REQUEST_FAILED"
)

// Sentinel errors for use with errors.Is.
//
// Example:
//
//	_, err := sdk.Run(ctx, invoker, cmd, input)
//	if errors.Is(err, sdk.ErrCommandFailed) {
//	    // every attempt failed; errors.Unwrap(err) is the last failure
//	}
var (
	ErrCommandFailed  = &SDKError{Code: CodeCommandFailed, Message: "command failed"}
	ErrNotInitialized = &SDKError{Code: CodeNotInitialized, Message: "assessment sdk not initialized"}
	ErrCanceled       = &SDKError{Code: CodeCanceled, Message: "command canceled"}
	ErrInvalidConfig  = &SDKError{Code: CodeInvalidConfig, Message: "invalid configuration"}
	ErrRequestFailed  = &SDKError{Code: CodeRequestFailed, Message: "request failed"}
)

// SDKError is the single error shape surfaced to callers of Run and of the
// bootstrap accessors. Cause holds the underlying failure, if any, and is
// reachable through errors.Unwrap, errors.Is and errors.As.
//
// Example:
//
//	var sdkErr *sdk.SDKError
//	if errors.As(err, &sdkErr) {
//	    log.Printf("code=%s cause=%v", sdkErr.Code, sdkErr.Cause)
//	}
type SDKError struct {
	// Code categorizes the error; any layer constructing the error may set it
	Code string `json:"code,omitempty"`
	// Message is a human-readable description
	Message string `json:"message"`
	// Cause is the last underlying error, nil if none
	Cause error `json:"-"`
}

// NewSDKError creates an SDKError with the given code, message and cause
func NewSDKError(code, message string, cause error) *SDKError {
	return &SDKError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error implements the error interface
func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the cause
func (e *SDKError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an SDKError with the same code.
func (e *SDKError) Is(target error) bool {
	var t *SDKError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// APIError represents a non-2xx response returned to one of the API commands.
//
// Example:
//
//	var apiErr *sdk.APIError
//	if errors.As(err, &apiErr) && apiErr.IsNotFound() {
//	    // the administration does not exist
//	}
type APIError struct {
	// StatusCode is the HTTP status code from the response
	StatusCode int `json:"-"`
	// Message is the error message from the server
	Message string `json:"error"`
	// Code is an optional error code for programmatic handling
	Code string `json:"code,omitempty"`
	// Details provides additional error information
	Details string `json:"details,omitempty"`
	// RequestID is the X-Request-Id the request was sent with, if any
	RequestID string `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("API error (status %d): %s - %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a not found error
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Code == "NOT_FOUND"
}

// IsServerError returns true if the error is a server error
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// IsClientError returns true if the error is a client error
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsRetryable returns true for 5xx, 408, 429 and 504 responses
func (e *APIError) IsRetryable() bool {
	if e.IsServerError() {
		return true
	}
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsNotFound checks if err represents a "not found" response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsNotFound()
	}
	return false
}

// IsRetryable reports whether err looks transient. API errors are classified by
// status code; any other error (network failures, decode errors from a
// truncated body) is treated as retryable.
//
// The Invoker does not consult this on its own. Plug it in explicitly:
//
//	opts := sdk.DefaultInvokerOptions().WithShouldRetry(sdk.IsRetryable)
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var sdkErr *SDKError
	if errors.As(err, &sdkErr) && sdkErr.Code == CodeInvalidConfig {
		return false
	}
	return true
}
