package errors

import "net/http"

// ErrorCategory classifies errors by their nature.
type ErrorCategory string

const (
	// CategoryPermanent indicates the request cannot succeed as sent.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryTransient indicates an upstream or timing failure.
	CategoryTransient ErrorCategory = "transient"

	// CategoryResource indicates local capacity was exhausted.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates a bug or recovered panic.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// ErrorCode identifies specific failure types.
type ErrorCode string

const (
	// Request shape
	ErrCodeInvalidContext ErrorCode = "INVALID_CONTEXT" // Website/Language block malformed
	ErrCodeInvalidURL     ErrorCode = "INVALID_URL"     // not an absolute http(s) URL
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"   // request body unreadable

	// Upstreams
	ErrCodeFetchFailed       ErrorCode = "FETCH_FAILED"       // page GET failed or non-2xx
	ErrCodeLangDetectFailed  ErrorCode = "LANG_DETECT_FAILED" // detector had no answer
	ErrCodeGenerationFailed  ErrorCode = "GENERATION_FAILED"  // LLM transport or error envelope
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE" // LLM success envelope missing the answer
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
	ErrCodeCanceled          ErrorCode = "CANCELED"

	// Capacity
	ErrCodeBusy   ErrorCode = "BUSY"
	ErrCodeClosed ErrorCode = "CLOSED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL"
	ErrCodePanic    ErrorCode = "PANIC"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeInvalidContext, ErrCodeInvalidURL, ErrCodeInvalidInput, ErrCodeCanceled:
		return CategoryPermanent
	case ErrCodeFetchFailed, ErrCodeLangDetectFailed, ErrCodeGenerationFailed,
		ErrCodeMalformedResponse, ErrCodeTimeout:
		return CategoryTransient
	case ErrCodeBusy, ErrCodeClosed:
		return CategoryResource
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeInvalidContext:    "invalid context format",
	ErrCodeInvalidURL:        "invalid URL provided",
	ErrCodeInvalidInput:      "invalid request body",
	ErrCodeFetchFailed:       "could not fetch content",
	ErrCodeLangDetectFailed:  "language detection failed",
	ErrCodeGenerationFailed:  "generation failed",
	ErrCodeMalformedResponse: "malformed generation response",
	ErrCodeTimeout:           "operation timed out",
	ErrCodeCanceled:          "operation canceled",
	ErrCodeBusy:              "all generation slots are busy",
	ErrCodeClosed:            "service is shutting down",
	ErrCodeInternal:          "internal error",
	ErrCodePanic:             "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// HTTPStatus maps a code to the status used when strict status reporting is on.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case "":
		return http.StatusOK
	case ErrCodeInvalidContext, ErrCodeInvalidURL, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeFetchFailed, ErrCodeGenerationFailed, ErrCodeMalformedResponse:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeBusy, ErrCodeClosed:
		return http.StatusServiceUnavailable
	case ErrCodeCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
