package relay

import (
	"context"
	"strings"

	"github.com/vinayprograms/pagechat/errors"
)

// Context block markers.
const (
	WebsiteMarker  = "Website: "
	LanguageMarker = "Language: "
)

// InvalidContextMessage is returned verbatim for a malformed context block.
const InvalidContextMessage = "Invalid context format. Expected:\nWebsite: <url>\\nLanguage: <optional language>"

// ParsedContext is the content of a context block.
type ParsedContext struct {
	URL         string
	Language    string
	HasLanguage bool
}

// ParseContext reads a "Website: <url>\nLanguage: <lang>" block. The URL runs
// from the first Website marker to the end of its line. The language is the
// text after the first Language marker. When requireLanguage is set a block
// without a Language marker is rejected.
func ParseContext(raw string, requireLanguage bool) (ParsedContext, error) {
	raw = strings.TrimSpace(raw)

	hasLanguage := strings.Contains(raw, LanguageMarker)
	if !strings.HasPrefix(raw, WebsiteMarker) || (requireLanguage && !hasLanguage) {
		return ParsedContext{}, errors.New(errors.ErrCodeInvalidContext, InvalidContextMessage)
	}

	site := strings.Split(raw, WebsiteMarker)[1]
	pc := ParsedContext{
		URL:         strings.TrimSpace(strings.SplitN(site, "\n", 2)[0]),
		HasLanguage: hasLanguage,
	}
	if hasLanguage {
		pc.Language = strings.TrimSpace(strings.Split(raw, LanguageMarker)[1])
	}
	return pc, nil
}

type requestIDKey struct{}

// WithRequestID attaches a request ID to ctx. Chat uses it instead of
// minting one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID carried by ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
