package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Error is the structured error returned by every pagechat component.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	timestamp time.Time
}

var (
	_ error          = (*Error)(nil)
	_ json.Marshaler = (*Error)(nil)
)

// Error returns the message, followed by the cause when one is set.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	return e.message
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

type errorJSON struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
}

// MarshalJSON implements json.Marshaler. The server embeds it in strict
// status responses.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:     e.code,
		Category: e.category,
		Message:  e.message,
		Metadata: e.metadata,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// InvalidURL reports a URL that failed validation.
func InvalidURL(rawURL string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("url", rawURL)}, opts...)
	return New(ErrCodeInvalidURL, "Invalid URL provided.", opts...)
}

// FetchFailed reports a failed page retrieval, keeping the cause.
func FetchFailed(rawURL string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("url", rawURL), WithCause(cause)}, opts...)
	return New(ErrCodeFetchFailed, "Could not fetch content", opts...)
}

// GenerationFailed reports a failed LLM call. providerMessage is the
// provider's own error text, or empty when it supplied none.
func GenerationFailed(providerMessage string, opts ...Option) *Error {
	if providerMessage == "" {
		providerMessage = "unknown issue"
	}
	return New(ErrCodeGenerationFailed, "Generation failed: "+providerMessage, opts...)
}

// MalformedResponse reports a success envelope without the expected answer.
func MalformedResponse(detail string, opts ...Option) *Error {
	return New(ErrCodeMalformedResponse, "Malformed generation response: "+detail, opts...)
}

// Busy reports that no admission slot became free in time.
func Busy(message string, opts ...Option) *Error {
	return New(ErrCodeBusy, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
