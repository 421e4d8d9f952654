package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMapToHttpCode(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeNotReady, http.StatusNotFound},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeConversionFailed, http.StatusBadGateway},
		{ErrCodeArtifactMissing, http.StatusInternalServerError},
		{ErrCodeArtifactEmpty, http.StatusInternalServerError},
		{ErrCodeBusy, http.StatusServiceUnavailable},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, test := range tests {
		result := New(test.code, "msg", nil).MapToHttpCode()
		if result != test.expected {
			t.Errorf("MapToHttpCode(%s) = %d, expected %d", test.code, result, test.expected)
		}
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("fetch: %w", New(ErrCodeNotReady, "task abc not completed", nil))
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected wrapped not-ready error to match ErrNotReady")
	}
	if errors.Is(err, ErrMissingParameters) {
		t.Fatalf("did not expect not-ready error to match ErrMissingParameters")
	}
}

func TestErrorIncludesCause(t *testing.T) {
	err := New(ErrCodeConversionFailed, "Error: boom", errors.New("exit status 1"))
	if err.Error() != "Error: boom: exit status 1" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if Code(err) != ErrCodeConversionFailed {
		t.Errorf("Code() = %s", Code(err))
	}
	if Code(errors.New("plain")) != ErrCodeInternal {
		t.Errorf("plain errors should map to internal")
	}
}
