// Package errors provides the structured error taxonomy used across pagechat.
//
// Every layer of the chat pipeline returns *Error values instead of sentinel
// strings. The request handler is the only place that renders an error into
// the human-readable "[ERROR] ..." response text.
//
// # Categories
//
//   - Permanent: the request itself is wrong (bad context block, bad URL)
//   - Transient: an upstream failed (page fetch, LLM endpoint, timeouts)
//   - Resource: the admission gate could not hand out a slot in time
//   - Internal: bugs and recovered panics
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidURL, "Invalid URL provided.")
//
//	wrapped := errors.WrapWithCode(cause, errors.ErrCodeFetchFailed,
//	    "Could not fetch content", errors.WithMetadata("url", u))
//
//	if errors.Is(err, errors.ErrCodeFetchFailed) {
//	    // ...
//	}
//
// Errors marshal to JSON so the HTTP layer can expose the code alongside the
// response text.
package errors
