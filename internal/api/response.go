package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Response is a decoded service reply. Err is set for non-2xx replies;
// Body navigation works on whatever JSON document came back.
type Response struct {
	StatusCode int
	Raw        []byte
	body       any
	Err        *Error
}

func newResponse(status int, raw []byte) *Response {
	resp := &Response{StatusCode: status, Raw: raw}
	if len(raw) > 0 {
		// tolerate non-JSON bodies; Raw keeps the plain text
		_ = json.Unmarshal(raw, &resp.body)
	}
	if status < 200 || status >= 300 {
		message, _ := resp.Str("description")
		resp.Err = &Error{StatusCode: status, Message: message}
	}
	return resp
}

func (r *Response) IsError() bool {
	return r.Err != nil
}

// Get walks a dotted field path ("status.activity.title") through
// nested objects. The boolean reports whether the full path exists.
func (r *Response) Get(path string) (any, bool) {
	current := r.body
	if path == "" {
		return current, current != nil
	}
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Str returns a required string field, failing fast when the path is
// absent or holds a different type.
func (r *Response) Str(path string) (string, error) {
	v, ok := r.Get(path)
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrDecode, path)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is %T, not string", ErrDecode, path, v)
	}
	return s, nil
}

// StrOr returns an optional string field or the default.
func (r *Response) StrOr(path, def string) string {
	if s, err := r.Str(path); err == nil {
		return s
	}
	return def
}

func (r *Response) Int(path string) (int, error) {
	v, ok := r.Get(path)
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrDecode, path)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: field %q is %T, not number", ErrDecode, path, v)
	}
	return int(f), nil
}

func (r *Response) IntOr(path string, def int) int {
	if n, err := r.Int(path); err == nil {
		return n
	}
	return def
}

func (r *Response) Bool(path string) (bool, error) {
	v, ok := r.Get(path)
	if !ok {
		return false, fmt.Errorf("%w: missing field %q", ErrDecode, path)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: field %q is %T, not bool", ErrDecode, path, v)
	}
	return b, nil
}

// Time parses a required RFC 3339 timestamp field.
func (r *Response) Time(path string) (time.Time, error) {
	s, err := r.Str(path)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %q: %v", ErrDecode, path, err)
	}
	return t, nil
}

// List returns a required array field.
func (r *Response) List(path string) ([]any, error) {
	v, ok := r.Get(path)
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrDecode, path)
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: field %q is %T, not array", ErrDecode, path, v)
	}
	return l, nil
}

// StrList returns a required array-of-strings field. Path "" reads a
// top-level JSON array body.
func (r *Response) StrList(path string) ([]string, error) {
	l, err := r.List(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(l))
	for _, v := range l {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %q holds %T, not string", ErrDecode, path, v)
		}
		out = append(out, s)
	}
	return out, nil
}
