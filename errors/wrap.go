package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps err with a message while preserving its code.
// Context errors become TIMEOUT or CANCELED, anything else INTERNAL.
// If err is nil, Wrap returns nil.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var pcErr *Error
	if errors.As(err, &pcErr) {
		wrapped := &Error{
			code:      pcErr.code,
			category:  pcErr.category,
			message:   message,
			cause:     err,
			metadata:  pcErr.Metadata(),
			timestamp: pcErr.timestamp,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// FromContext converts a context error into TIMEOUT or CANCELED.
// Returns nil if err is not a context error.
func FromContext(err error, message string) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return New(ErrCodeTimeout, message, WithCause(err))
	case errors.Is(err, context.Canceled):
		return New(ErrCodeCanceled, message, WithCause(err))
	default:
		return nil
	}
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var pcErr *Error
	if errors.As(err, &pcErr) {
		return pcErr, true
	}
	return nil, false
}

// Is checks if the outermost *Error in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	if pcErr, ok := As(err); ok {
		return pcErr.code == code
	}
	return false
}

// IsCategory checks if the outermost *Error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	if pcErr, ok := As(err); ok {
		return pcErr.category == category
	}
	return false
}

// Code extracts the error code, or INTERNAL for foreign errors.
// Returns empty string for a nil error.
func Code(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if pcErr, ok := As(err); ok {
		return pcErr.code
	}
	return ErrCodeInternal
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
