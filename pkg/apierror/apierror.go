package apierror

import (
	"fmt"
	"net/http"
	"strings"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	// Data is returned to the client as the envelope's data field, e.g. validation issues.
	Data any `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

func (e *APIError) WithData(data any) *APIError {
	clone := *e
	clone.Data = data
	return &clone
}

func (e *APIError) WithStatus(status int) *APIError {
	clone := *e
	clone.HTTPStatus = status
	return &clone
}

// Issue is one field-level failure reported by request validation.
type Issue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func Validation(issues []Issue) *APIError {
	fields := make([]string, 0, len(issues))
	for _, issue := range issues {
		fields = append(fields, issue.Field)
	}

	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    "Invalid request payload",
		Details:    strings.Join(fields, ","),
		HTTPStatus: http.StatusBadRequest,
		Data:       map[string]any{"issues": issues},
	}
}

func DuplicateField(fields ...string) *APIError {
	joined := strings.Join(fields, ",")
	return &APIError{
		Code:       "DUPLICATE_FIELD",
		Message:    fmt.Sprintf("Duplicate value for field(s): %s", joined),
		Details:    joined,
		HTTPStatus: http.StatusConflict,
		Data:       map[string]any{"fields": fields},
	}
}
