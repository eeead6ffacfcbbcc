package relay

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tunnelmesh/relay/internal/protocol"
)

func TestHeadersToMap_SkipsHostAndContentLength(t *testing.T) {
	h := http.Header{}
	h.Set("Host", "example.com")
	h.Set("Content-Length", "42")
	h.Set("X-Custom", "a")
	h.Add("X-Multi", "1")
	h.Add("X-Multi", "2")

	got := headersToMap(h)
	if _, ok := got["Host"]; ok {
		t.Errorf("expected Host skipped")
	}
	if _, ok := got["Content-Length"]; ok {
		t.Errorf("expected Content-Length skipped")
	}
	if got["X-Custom"] != "a" {
		t.Errorf("expected X-Custom preserved, got %q", got["X-Custom"])
	}
	if got["X-Multi"] != "1, 2" {
		t.Errorf("expected multi-value header joined, got %q", got["X-Multi"])
	}
}

func TestHeadersToMap_EmptyHeadersReturnsNil(t *testing.T) {
	if got := headersToMap(http.Header{}); got != nil {
		t.Fatalf("expected nil for empty headers, got %v", got)
	}
}

func TestIsWebsocketUpgrade(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/t1/ws", nil)
	if isWebsocketUpgrade(r) {
		t.Fatalf("expected false without Upgrade header")
	}
	r.Header.Set("Upgrade", "websocket")
	if !isWebsocketUpgrade(r) {
		t.Fatalf("expected true with Upgrade: websocket")
	}
}

func TestWriteHTTPResponseData_SkipsBodyForBodylessStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeHTTPResponseData(rec, protocol.HTTPResponseData{Status: 204})
	if rec.Code != 204 {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body for 204, got %q", rec.Body.String())
	}
}

func TestWriteHTTPResponseData_WritesTextBody(t *testing.T) {
	rec := httptest.NewRecorder()
	body := "hello"
	writeHTTPResponseData(rec, protocol.HTTPResponseData{
		Status:  200,
		Headers: map[string]string{"Content-Type": "text/plain"},
		Body:    &body,
	})
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", rec.Body.String())
	}
}
