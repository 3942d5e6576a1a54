package pipelineerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want bool
	}{
		{"transient", Transient(CodeExternalService, "boom", nil), true},
		{"rate_limited", RateLimited(CodeQuotaExceeded, "slow down", nil), true},
		{"validation", Validation(CodeInvalidPDFFormat, "bad input", nil), false},
		{"authorization", Authorization("FORBIDDEN", "nope", nil), false},
		{"integrity", Integrity(CodeChunkContiguity, "gap", nil), false},
		{"cancelled", Cancelled("CANCELLED", "user stopped it"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.err.IsRetryable(); got != c.want {
				t.Errorf("IsRetryable() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestErrorMessageIncludesWrappedCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient(CodeExternalService, "ocr provider request failed", cause)

	got := err.Error()
	want := fmt.Sprintf("%s: %s: %v", CodeExternalService, "ocr provider request failed", cause)
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorMessageWithoutCause(t *testing.T) {
	err := Validation(CodeEmptyDocument, "document has no pages", nil)
	want := fmt.Sprintf("%s: %s", CodeEmptyDocument, "document has no pages")
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Transient(CodeExternalService, "wrapped", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestAs(t *testing.T) {
	var wrapped error = fmt.Errorf("task failed: %w", Integrity(CodeChunkContiguity, "gap detected", nil))

	pe, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find the *Error")
	}
	if pe.Code != CodeChunkContiguity {
		t.Errorf("Code = %q, want %q", pe.Code, CodeChunkContiguity)
	}

	if _, ok := As(errors.New("plain error")); ok {
		t.Error("expected As to report false for a non-pipelineerr error")
	}
}
