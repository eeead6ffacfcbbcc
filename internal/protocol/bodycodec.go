package protocol

import (
	"encoding/base64"
	"strings"
)

// IsTextLikeContentType reports whether contentType is one of the types
// treated as text-like: text/*, */json, */xml, any type with a +json or
// +xml suffix, or application/x-www-form-urlencoded. An empty or unparseable content-type
// is NOT text-like, so it falls back to base64 to guarantee byte equality
// for unknown payloads.
func IsTextLikeContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return false
	}
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if ct == "application/x-www-form-urlencoded" {
		return true
	}
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	if strings.HasSuffix(ct, "/json") || strings.Contains(ct, "+json") {
		return true
	}
	if strings.HasSuffix(ct, "/xml") || strings.Contains(ct, "+xml") {
		return true
	}
	return false
}

// EncodeBody applies the wire encoding rule: nil for an absent body, the
// raw string for a text-like content-type, base64 otherwise. It is used
// identically for request bodies (ingress to the agent) and response
// bodies (egress from the agent), on both the relay and agent sides.
func EncodeBody(body []byte, contentType string) *string {
	if body == nil {
		return nil
	}
	var s string
	if IsTextLikeContentType(contentType) {
		s = string(body)
	} else {
		s = base64.StdEncoding.EncodeToString(body)
	}
	return &s
}

// IsBodylessStatus reports whether status is one of the response statuses
// always encoded with a null body (204 No Content, 304 Not Modified),
// regardless of what the upstream response actually sent.
func IsBodylessStatus(status int) bool {
	return status == 204 || status == 304
}

// DecodeBody reverses EncodeBody. For a text-like content-type it returns
// the string's bytes verbatim. Otherwise it base64-decodes; a decode
// failure is not an error — the raw string bytes are used instead rather
// than rejecting the request.
func DecodeBody(body *string, contentType string) []byte {
	if body == nil {
		return nil
	}
	if IsTextLikeContentType(contentType) {
		return []byte(*body)
	}
	decoded, err := base64.StdEncoding.DecodeString(*body)
	if err != nil {
		return []byte(*body)
	}
	return decoded
}
