package types

import "fmt"

// Error codes surfaced to API callers. The numeric values are part of the
// public contract and must not change between releases.
const (
	CodeInternalServerError = 1
	CodeObjectNotFound      = 101
	CodeInvalidQuery        = 102
	CodeInvalidClassName    = 103
	CodeInvalidFieldName    = 105
	CodeInvalidJSON         = 107
	CodeIncorrectType       = 111
	CodeOperationForbidden  = 119
	CodeDuplicateValue      = 137
	CodeScriptFailed        = 141
	CodeValidationFailed    = 142
	CodeUsernameMissing     = 200
	CodePasswordMissing     = 201
	CodeUsernameTaken       = 202
	CodeEmailTaken          = 203
	CodeInvalidSessionToken = 209
	CodeUnsupportedService  = 252
)

// APIError is the structured error returned to callers of the engine.
// It serializes as {"code": <int>, "error": <message>}.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewAPIError builds an APIError with the given code and message.
func NewAPIError(code int, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// NewAPIErrorf builds an APIError with a formatted message.
func NewAPIErrorf(code int, format string, args ...interface{}) *APIError {
	return &APIError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsAPIError converts any error to an APIError. Errors that are not already
// APIErrors become internal server errors so callers always get a coded payload.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return &APIError{Code: CodeInternalServerError, Message: err.Error()}
}
