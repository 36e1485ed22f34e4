// Package notes renders the server-provided markdown notes into HTML
// safe to embed in a UI surface. The backend is trusted less than the
// local user: everything goes through a sanitizer after rendering.
package notes

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	policy = bluemonday.UGCPolicy()

	md = goldmark.New(
		goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	)
)

// Render converts markdown to sanitized HTML. Unsafe markup survives
// rendering only as text.
func Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render notes: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

// Sanitize strips unsafe HTML from a plain string, for values shown
// verbatim such as display names and activity descriptions.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}
