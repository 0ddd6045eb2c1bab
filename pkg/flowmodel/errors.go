package flowmodel

import "fmt"

// Error codes exchanged between the backend and its clients.
const (
	CodeForbidden         = "FORBIDDEN"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeModuleNotEntitled = "MODULE_NOT_ENTITLED"
	CodeNotFound          = "NOT_FOUND"
	CodeStageConflict     = "STAGE_CONFLICT"
	CodeVersionConflict   = "VERSION_CONFLICT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNetwork           = "NETWORK_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
	CodeRequestFailed     = "REQUEST_FAILED"
)

// APIError is the error body returned by the backend:
// {"error":{"code":"...","message":"..."}}.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorBody is the JSON envelope around APIError.
type ErrorBody struct {
	Error *APIError `json:"error"`
}
