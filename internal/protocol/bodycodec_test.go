package protocol_test

import (
	"encoding/base64"
	"testing"

	"github.com/tunnelmesh/relay/internal/protocol"
)

func TestIsTextLikeContentType(t *testing.T) {
	cases := map[string]bool{
		"":                                  false,
		"text/plain":                        true,
		"text/html; charset=utf-8":          true,
		"application/json":                  true,
		"application/vnd.api+json":          true,
		"application/xml":                   true,
		"application/x-www-form-urlencoded": true,
		"application/octet-stream":          false,
		"image/png":                         false,
	}
	for ct, want := range cases {
		if got := protocol.IsTextLikeContentType(ct); got != want {
			t.Errorf("IsTextLikeContentType(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestEncodeDecodeBody_TextLikeRoundTrips(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	encoded := protocol.EncodeBody(body, "application/json")
	if encoded == nil || *encoded != string(body) {
		t.Fatalf("expected raw passthrough for json, got %v", encoded)
	}

	decoded := protocol.DecodeBody(encoded, "application/json")
	if string(decoded) != string(body) {
		t.Fatalf("expected round-trip, got %q", decoded)
	}
}

func TestEncodeDecodeBody_BinaryIsBase64(t *testing.T) {
	body := []byte{0x00, 0xFF, 0x10, 0x20}
	encoded := protocol.EncodeBody(body, "application/octet-stream")
	if encoded == nil {
		t.Fatalf("expected encoded body")
	}
	if *encoded != base64.StdEncoding.EncodeToString(body) {
		t.Fatalf("expected base64 encoding, got %q", *encoded)
	}

	decoded := protocol.DecodeBody(encoded, "application/octet-stream")
	if string(decoded) != string(body) {
		t.Fatalf("expected round-trip, got %v", decoded)
	}
}

func TestEncodeBody_NilBodyStaysNil(t *testing.T) {
	if got := protocol.EncodeBody(nil, "text/plain"); got != nil {
		t.Fatalf("expected nil body to stay nil, got %v", got)
	}
}

func TestDecodeBody_Base64FailureFallsBackToRawBytes(t *testing.T) {
	raw := "not valid base64!!"
	decoded := protocol.DecodeBody(&raw, "application/octet-stream")
	if string(decoded) != raw {
		t.Fatalf("expected fallback to raw bytes on decode failure, got %q", decoded)
	}
}

func TestIsBodylessStatus(t *testing.T) {
	for _, s := range []int{204, 304} {
		if !protocol.IsBodylessStatus(s) {
			t.Errorf("expected %d to be bodyless", s)
		}
	}
	for _, s := range []int{200, 404, 500} {
		if protocol.IsBodylessStatus(s) {
			t.Errorf("expected %d to not be bodyless", s)
		}
	}
}
