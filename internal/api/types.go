// Package api is the request gateway: it builds, dispatches, and
// post-processes calls against the storefront backend.
//
// DESIGN: The same client runs in two environments. During server rendering
// failures must reject so the orchestrator can map them to a status code;
// during interactive use failures must surface as notifications and never
// reject. The difference is carried by the injected FailureReporter, not by
// per-call branching (see reporter.go).
package api

import (
	"fmt"
	"strings"
)

// Method is the closed set of gateway methods. CACHE is a read-only
// pseudo-method: it performs a GET on the wire but consults and populates
// the read cache around it.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodCache  Method = "CACHE"
)

// ParseMethod normalizes and validates a method string.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(s))
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodCache:
		return m, nil
	case "":
		return MethodGet, nil
	}
	return "", fmt.Errorf("unknown method %q", s)
}

// transport returns the HTTP verb actually sent on the wire.
func (m Method) transport() string {
	if m == MethodCache {
		return string(MethodGet)
	}
	return string(m)
}

// readLike reports whether params belong in the query string.
func (m Method) readLike() bool {
	return m == MethodGet || m == MethodCache
}

// ContentType is the closed set of request body conventions.
type ContentType string

const (
	ContentForm ContentType = "form"
	ContentJSON ContentType = "json"
	ContentFile ContentType = "file"
)

// mimeByContentType is the shorthand-to-MIME mapping table.
var mimeByContentType = map[ContentType]string{
	ContentForm: "application/x-www-form-urlencoded",
	ContentJSON: "application/json",
	ContentFile: "multipart/form-data",
}

// ParseContentType validates a content-type shorthand.
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(s))
	if ct == "" {
		return ContentForm, nil
	}
	if _, ok := mimeByContentType[ct]; !ok {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return ct, nil
}

// MIME returns the MIME string sent in the Content-Type header.
func (ct ContentType) MIME() string { return mimeByContentType[ct] }

// Param is a single request parameter. Params are ordered: query strings and
// JSON bodies serialize in insertion order.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list.
type Params []Param

// P is shorthand for building a Param.
func P(key, value string) Param { return Param{Key: key, Value: value} }

// Encode joins params as k=v pairs with "&". Values are deliberately not
// URL-encoded: the backend is trusted and values are simple identifiers.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, kv := range p {
		parts[i] = kv.Key + "=" + kv.Value
	}
	return strings.Join(parts, "&")
}

// Business-layer codes carried in the response envelope {code, data?, msg?}.
// These are distinct from HTTP status codes.
const (
	CodeOK             = 200
	CodeSessionExpired = 401
)

// UniformError is the only error shape that crosses the gateway boundary.
type UniformError struct {
	Title   string
	Message string
}

// Error implements error as "title | message".
func (e *UniformError) Error() string {
	return e.Title + " | " + e.Message
}
