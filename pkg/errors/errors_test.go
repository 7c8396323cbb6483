package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Details == nil {
			t.Error("Details map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("only process execution is retryable", func(t *testing.T) {
		if !NewError(ErrCodeProcessExecution, "exit 1").Retryable {
			t.Error("ProcessExecution should be retryable by default")
		}
		for _, code := range []ErrorCode{
			ErrCodeNotImplemented, ErrCodeRetryExhausted, ErrCodeOperationCanceled,
			ErrCodeNetworkService, ErrCodeConnectionFailed,
		} {
			if NewError(code, "x").Retryable {
				t.Errorf("%s should not be retryable by default", code)
			}
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeProcessExecution, CategoryExecution},
		{ErrCodeRetryExhausted, CategoryExecution},
		{ErrCodeNotImplemented, CategoryContract},
		{ErrCodeSetupFailed, CategoryContract},
		{ErrCodeCircuitOpen, CategoryConnection},
		{ErrCodeNetworkService, CategoryNetwork},
		{ErrCodeInvalidState, CategoryState},
		{ErrCodeUnknownError, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestDriverError_Error(t *testing.T) {
	t.Parallel()

	err := NotImplemented("create_share").WithComponent("driver")
	want := "[driver:create_share] NOT_IMPLEMENTED: create_share is not implemented by this backend"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := Wrap(fmt.Errorf("boom"), ErrCodeSetupFailed, "do_setup failed")
	if !strings.HasSuffix(wrapped.Error(), "do_setup failed: boom") {
		t.Errorf("Error() = %q, want cause appended", wrapped.Error())
	}
}

func TestChainHelpers(t *testing.T) {
	t.Parallel()

	base := NewError(ErrCodeProcessExecution, "exit status 1")
	exhausted := Wrap(base, ErrCodeRetryExhausted, "giving up")
	outer := fmt.Errorf("create share: %w", exhausted)

	if !IsRetryExhausted(outer) {
		t.Error("IsRetryExhausted should see through fmt wrapping")
	}
	if !HasCode(outer, ErrCodeProcessExecution) {
		t.Error("HasCode should find the wrapped process error")
	}
	if CodeOf(outer) != ErrCodeRetryExhausted {
		t.Errorf("CodeOf = %s, want outermost driver code", CodeOf(outer))
	}
	if IsCanceled(outer) {
		t.Error("exhaustion must not look like cancellation")
	}
	if CodeOf(errors.New("plain")) != ErrCodeUnknownError {
		t.Error("plain errors have no code")
	}
	if IsRetryable(exhausted) {
		t.Error("exhaustion is fatal")
	}
	if !IsNotImplemented(NotImplemented("ensure_share")) {
		t.Error("IsNotImplemented")
	}
}

func TestDriverError_String(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeProcessExecution, "failed").
		WithOperation("try_execute").
		WithRequestID("req-1").
		WithDetail("exit_code", 2)

	s := err.String()
	for _, want := range []string{"Code=PROCESS_EXECUTION", "Operation=try_execute", "RequestID=req-1", "Retryable=true", `"exit_code":2`} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestRecommendation(t *testing.T) {
	t.Parallel()

	exhausted := Wrap(NewError(ErrCodeProcessExecution, "exit status 1"), ErrCodeRetryExhausted, "giving up")
	if got := Recommendation(fmt.Errorf("create share: %w", exhausted)); !strings.Contains(got, "num_shell_tries") {
		t.Errorf("Recommendation() = %q, want the exhaustion hint", got)
	}
	if got := Recommendation(NewError(ErrCodeCircuitOpen, "open")); !strings.Contains(got, "breaker") {
		t.Errorf("Recommendation() = %q, want the breaker hint", got)
	}
	if got := Recommendation(errors.New("plain")); got != "" {
		t.Errorf("Recommendation() = %q, want empty for plain errors", got)
	}
}
