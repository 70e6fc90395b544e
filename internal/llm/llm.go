package llm

import (
	"context"
	"fmt"
	"net/http"
)

// InlineData embeds raw bytes, base64-encoded, next to their MIME type.
type InlineData struct {
	MimeType string
	Data     string // base64 (standard encoding)
}

// Part is one element of a multimodal prompt. Exactly one of InlineData or Text is set.
type Part struct {
	InlineData *InlineData
	Text       string
}

// Request is a single generate call against a multimodal model.
type Request struct {
	Model string
	Parts []Part
}

// Client defines the capability to run a multimodal prompt against a remote model.
type Client interface {
	// GenerateContent sends req and returns the decoded response document:
	// map[string]any, []any, string or another JSON value. Callers must not assume a fixed shape.
	GenerateContent(ctx context.Context, req Request) (any, error)
}

// StatusError reports a non-2xx reply from a remote model API.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string // truncated
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d (%s): %s", e.Provider, e.StatusCode, e.Kind(), e.Body)
}

// Kind classifies the status into the failure families callers log.
func (e *StatusError) Kind() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "auth"
	case e.StatusCode == http.StatusTooManyRequests:
		return "quota"
	case e.StatusCode >= http.StatusInternalServerError:
		return "server"
	default:
		return "request"
	}
}

// Truncate shortens s to at most n bytes, marking the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
