package api

import (
	"net/url"
	"strings"
)

// Request describes one call against a named route: extra path
// segments, query parameters and a JSON body built from named fields.
type Request struct {
	Route  Route
	path   []string
	query  url.Values
	fields map[string]any
}

func NewRequest(route Route) *Request {
	return &Request{Route: route}
}

// Path appends a path segment (for example a user id).
func (r *Request) Path(segment string) *Request {
	r.path = append(r.path, segment)
	return r
}

func (r *Request) Query(key, value string) *Request {
	if r.query == nil {
		r.query = url.Values{}
	}
	r.query.Set(key, value)
	return r
}

// Field sets a named body field. Values may be primitives, nested
// maps, or lists; the body is sent as a single JSON object.
func (r *Request) Field(key string, value any) *Request {
	if r.fields == nil {
		r.fields = map[string]any{}
	}
	r.fields[key] = value
	return r
}

func (r *Request) hasBody() bool {
	return len(r.fields) > 0
}

// URL resolves the request against the API base URL.
func (r *Request) URL(base string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(base, "/"))
	b.WriteString("/")
	b.WriteString(r.Route.Path)
	for _, seg := range r.path {
		b.WriteString("/")
		b.WriteString(url.PathEscape(seg))
	}
	if len(r.query) > 0 {
		b.WriteString("?")
		b.WriteString(r.query.Encode())
	}
	return b.String()
}
