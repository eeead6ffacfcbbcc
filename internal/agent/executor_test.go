package agent

import (
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/tunnelmesh/relay/internal/config"
)

func TestMatchService_ExactAndPrefix(t *testing.T) {
	services := []config.ServiceConfig{
		{SubdomainOrPath: "api", LocalPort: 8080},
		{SubdomainOrPath: "web", LocalPort: 3000},
	}

	svc, localPath, ok := matchService(services, "/api")
	if !ok || svc.LocalPort != 8080 || localPath != "/" {
		t.Fatalf("exact match failed: svc=%+v path=%q ok=%v", svc, localPath, ok)
	}

	svc, localPath, ok = matchService(services, "/api/v1/users")
	if !ok || svc.LocalPort != 8080 || localPath != "/v1/users" {
		t.Fatalf("prefix match failed: svc=%+v path=%q ok=%v", svc, localPath, ok)
	}

	_, _, ok = matchService(services, "/unknown")
	if ok {
		t.Fatalf("expected no match for unconfigured path")
	}
}

func TestMatchService_FirstConfiguredWins(t *testing.T) {
	services := []config.ServiceConfig{
		{SubdomainOrPath: "app", LocalPort: 1111},
		{SubdomainOrPath: "app/admin", LocalPort: 2222},
	}

	// "app" is configured first and its prefix match claims everything
	// under /app, including /app/admin — configuration order decides.
	svc, _, ok := matchService(services, "/app/admin/panel")
	if !ok || svc.LocalPort != 1111 {
		t.Fatalf("expected first configured service to win, got %+v (ok=%v)", svc, ok)
	}
}

func TestClassifyDialError(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "foo.invalid"}
	if got := classifyDialError(dnsErr); got != http.StatusBadGateway {
		t.Errorf("dns error: got %d, want %d", got, http.StatusBadGateway)
	}

	refused := errors.New("dial tcp 127.0.0.1:9: connect: connection refused")
	if got := classifyDialError(refused); got != http.StatusServiceUnavailable {
		t.Errorf("connection refused: got %d, want %d", got, http.StatusServiceUnavailable)
	}

	other := errors.New("some other transport failure")
	if got := classifyDialError(other); got != http.StatusBadGateway {
		t.Errorf("other error: got %d, want %d", got, http.StatusBadGateway)
	}
}

func TestLookupHeader_CaseInsensitive(t *testing.T) {
	headers := map[string]string{"Content-Type": "application/json"}
	if got := lookupHeader(headers, "content-type"); got != "application/json" {
		t.Fatalf("expected case-insensitive lookup, got %q", got)
	}
	if got := lookupHeader(headers, "X-Missing"); got != "" {
		t.Fatalf("expected empty string for missing header, got %q", got)
	}
}
