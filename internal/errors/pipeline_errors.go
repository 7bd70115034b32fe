package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the different failure classes of the pipeline
type ErrorCategory string

const (
	// Errors that abort only the offending action or instruction
	ErrorCategoryValidation          ErrorCategory = "VALIDATION"
	ErrorCategoryInsufficientBalance ErrorCategory = "INSUFFICIENT_BALANCE"

	// Call queue errors: backpressure is distinct from latency
	ErrorCategoryTimeout   ErrorCategory = "TIMEOUT"
	ErrorCategoryQueueFull ErrorCategory = "QUEUE_FULL"

	// Operator-facing conditions
	ErrorCategoryReconciliationDrift ErrorCategory = "RECONCILIATION_DRIFT"
	ErrorCategoryNotImplemented      ErrorCategory = "NOT_IMPLEMENTED"

	// Infrastructure errors
	ErrorCategoryExecution ErrorCategory = "EXECUTION"
	ErrorCategoryConfig    ErrorCategory = "CONFIG"
)

// PipelineError is a categorized error with component and operation context
type PipelineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *PipelineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether the failed operation can be retried
func (e *PipelineError) IsRetryable() bool {
	return e.Retryable
}

// WithContext attaches context information to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a categorized pipeline error
func New(category ErrorCategory, component, operation, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with pipeline error context
func Wrap(err error, category ErrorCategory, component, operation, message string) *PipelineError {
	if err == nil {
		return nil
	}
	return &PipelineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryTimeout, ErrorCategoryQueueFull, ErrorCategoryExecution:
		return true
	default:
		return false
	}
}

// Is reports whether err carries the given category anywhere in its chain
func Is(err error, category ErrorCategory) bool {
	var perr *PipelineError
	for errors.As(err, &perr) {
		if perr.Category == category {
			return true
		}
		err = perr.Underlying
		if err == nil {
			return false
		}
	}
	return false
}

// Taxonomy constructors

// NewValidationError marks an unknown venue/token/key, malformed instruction
// or delta underflow; aborts only the offending action
func NewValidationError(component, operation, message string) *PipelineError {
	return New(ErrorCategoryValidation, component, operation, message)
}

// NewInsufficientBalanceError marks a debit that exceeds the available balance
func NewInsufficientBalanceError(component, operation string, key fmt.Stringer, required, available float64) *PipelineError {
	return New(ErrorCategoryInsufficientBalance, component, operation,
		fmt.Sprintf("insufficient balance for %s: required %.8f, available %.8f", key, required, available)).
		WithContext("required", required).
		WithContext("available", available)
}

// NewTimeoutError marks a per-call or per-await timeout
func NewTimeoutError(component, operation, message string) *PipelineError {
	return New(ErrorCategoryTimeout, component, operation, message)
}

// NewQueueFullError marks backpressure on a bounded call queue, distinct
// from a call timing out
func NewQueueFullError(component, operation string, capacity int) *PipelineError {
	return New(ErrorCategoryQueueFull, component, operation,
		fmt.Sprintf("queue at capacity (%d), enqueue rejected", capacity)).
		WithContext("capacity", capacity)
}

// NewReconciliationDriftError marks a live-vs-ledger mismatch beyond tolerance;
// reported for operator decision, never auto-corrected
func NewReconciliationDriftError(component, operation, message string) *PipelineError {
	return New(ErrorCategoryReconciliationDrift, component, operation, message)
}

// NewNotImplementedError is the fail-fast marker for unimplemented live
// execution paths; it never silently no-ops
func NewNotImplementedError(component, operation, message string) *PipelineError {
	return New(ErrorCategoryNotImplemented, component, operation, message)
}

// NewExecutionError wraps a venue-side execution failure
func NewExecutionError(component, operation string, err error) *PipelineError {
	return Wrap(err, ErrorCategoryExecution, component, operation, "execution failed")
}

// NewConfigError marks an invalid run configuration; always fatal
func NewConfigError(component, operation, message string) *PipelineError {
	return New(ErrorCategoryConfig, component, operation, message)
}
