package apperrors

import (
	"errors"
	"net/http"
)

const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotReady         = "NOT_READY"
	ErrCodeConversionFailed = "CONVERSION_FAILED"
	ErrCodeArtifactMissing  = "ARTIFACT_MISSING"
	ErrCodeArtifactEmpty    = "ARTIFACT_EMPTY"
	ErrCodeBusy             = "BUSY"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

var (
	ErrMissingParameters = New(ErrCodeValidation, "Missing parameters", nil)
	ErrNotReady          = New(ErrCodeNotReady, "File not ready or not found", nil)
)

// AppError is an error carrying a stable code that handlers map to a status.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func New(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (a *AppError) Error() string {
	if a.Err != nil {
		return a.Message + ": " + a.Err.Error()
	}
	return a.Message
}

func (a *AppError) Unwrap() error {
	return a.Err
}

// Is matches any AppError with the same code.
func (a *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == a.Code
}

func (a *AppError) MapToHttpCode() int {
	switch a.Code {
	case ErrCodeNotFound, ErrCodeNotReady:
		return http.StatusNotFound
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConversionFailed:
		return http.StatusBadGateway
	case ErrCodeBusy:
		return http.StatusServiceUnavailable
	case ErrCodeArtifactMissing, ErrCodeArtifactEmpty, ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the code of the first AppError in err's chain, or
// ErrCodeInternal when there is none.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}
