// Package errors provides the structured error system shared by share drivers,
// the resilient executor and the network allocation coordinator.
package errors

import (
	"encoding/json"
	stderr "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for driver operations.
type ErrorCode string

// Error code constants grouped by category.
const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"

	// Execution errors
	ErrCodeProcessExecution  ErrorCode = "PROCESS_EXECUTION"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"

	// Contract errors
	ErrCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"
	ErrCodeNotSupported   ErrorCode = "NOT_SUPPORTED"
	ErrCodeSetupFailed    ErrorCode = "SETUP_FAILED"

	// Connection errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	ErrCodePoolClosed        ErrorCode = "POOL_CLOSED"

	// Network allocation errors
	ErrCodeNetworkService ErrorCode = "NETWORK_SERVICE"

	// State errors
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryExecution     ErrorCategory = "execution"
	CategoryContract      ErrorCategory = "contract"
	CategoryConnection    ErrorCategory = "connection"
	CategoryNetwork       ErrorCategory = "network"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

var categories = map[ErrorCode]ErrorCategory{
	ErrCodeInvalidConfig:     CategoryConfiguration,
	ErrCodeMissingConfig:     CategoryConfiguration,
	ErrCodeProcessExecution:  CategoryExecution,
	ErrCodeRetryExhausted:    CategoryExecution,
	ErrCodeOperationCanceled: CategoryExecution,
	ErrCodeNotImplemented:    CategoryContract,
	ErrCodeNotSupported:      CategoryContract,
	ErrCodeSetupFailed:       CategoryContract,
	ErrCodeConnectionFailed:  CategoryConnection,
	ErrCodeConnectionTimeout: CategoryConnection,
	ErrCodeCircuitOpen:       CategoryConnection,
	ErrCodePoolClosed:        CategoryConnection,
	ErrCodeNetworkService:    CategoryNetwork,
	ErrCodeInvalidState:      CategoryState,
}

// DriverError represents a structured error with context and metadata.
type DriverError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Retryable marks failures the resilient executor may recover from.
	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, msg)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *DriverError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DriverError with the same code.
func (e *DriverError) Is(target error) bool {
	if other, ok := target.(*DriverError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *DriverError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.RequestID != "" {
		parts = append(parts, fmt.Sprintf("RequestID=%s", e.RequestID))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("DriverError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new driver error with default values for the code.
func NewError(code ErrorCode, message string) *DriverError {
	return &DriverError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Retryable: IsRetryableByDefault(code),
	}
}

// Newf creates a new driver error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *DriverError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap creates a driver error with the given cause.
func Wrap(cause error, code ErrorCode, message string) *DriverError {
	return NewError(code, message).WithCause(cause)
}

// NotImplemented returns the error reported by a contract operation that a
// backend has not provided.
func NotImplemented(operation string) *DriverError {
	return Newf(ErrCodeNotImplemented, "%s is not implemented by this backend", operation).
		WithOperation(operation)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	if category, ok := categories[code]; ok {
		return category
	}
	return CategoryInternal
}

// IsRetryableByDefault determines if an error is retryable by default.
// Only process execution failures are treated as transient.
func IsRetryableByDefault(code ErrorCode) bool {
	return code == ErrCodeProcessExecution
}

// CodeOf returns the code of the first DriverError in err's chain, or
// ErrCodeUnknownError.
func CodeOf(err error) ErrorCode {
	var de *DriverError
	if stderr.As(err, &de) {
		return de.Code
	}
	return ErrCodeUnknownError
}

// HasCode reports whether any DriverError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return stderr.Is(err, &DriverError{Code: code})
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var de *DriverError
	if stderr.As(err, &de) {
		return de.Retryable
	}
	return false
}

func IsNotImplemented(err error) bool { return HasCode(err, ErrCodeNotImplemented) }

func IsRetryExhausted(err error) bool { return HasCode(err, ErrCodeRetryExhausted) }

func IsCanceled(err error) bool { return HasCode(err, ErrCodeOperationCanceled) }

// Recommendation returns the operator hint of the first DriverError in
// err's chain, or "" when there is none.
func Recommendation(err error) string {
	var de *DriverError
	if !stderr.As(err, &de) {
		return ""
	}
	return de.GetRecommendation()
}

// WithDetail adds detailed information to an error
func (e *DriverError) WithDetail(key string, value interface{}) *DriverError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *DriverError) WithComponent(component string) *DriverError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *DriverError) WithOperation(operation string) *DriverError {
	e.Operation = operation
	return e
}

// WithRequestID records the request the error belongs to.
func (e *DriverError) WithRequestID(id string) *DriverError {
	e.RequestID = id
	return e
}

// WithCause sets the underlying cause
func (e *DriverError) WithCause(cause error) *DriverError {
	e.Cause = cause
	return e
}

// GetRecommendation returns an operator-facing hint for fixing the error.
func (e *DriverError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeProcessExecution: "A management command failed on the storage appliance. " +
			"Inspect stderr and the appliance logs.",
		ErrCodeRetryExhausted: "The command kept failing after all attempts. " +
			"Check appliance health or raise num_shell_tries.",
		ErrCodeNotImplemented: "The configured backend does not provide this operation. " +
			"Check share_driver and the backend's capability list.",
		ErrCodeSetupFailed: "The backend reported it is unusable. " +
			"Fix its configuration before serving requests.",
		ErrCodeCircuitOpen: "Connections to the appliance are failing repeatedly. " +
			"Requests are rejected until the breaker timeout elapses.",
		ErrCodeInvalidConfig: "Configuration validation failed. " +
			"Check the option groups in your configuration file.",
	}

	if rec, ok := recommendations[e.Code]; ok {
		return rec
	}
	return "Please check the error message for details."
}
