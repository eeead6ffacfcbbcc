package relay

import (
	"testing"

	"github.com/tunnelmesh/relay/internal/protocol"
)

func TestValidateServiceSpec(t *testing.T) {
	valid := protocol.ServiceSpec{Type: protocol.ServiceHTTP, LocalPort: 8080, SubdomainOrPath: "api"}
	if err := validateServiceSpec(valid); err != nil {
		t.Fatalf("expected valid spec to pass, got %v", err)
	}

	cases := []protocol.ServiceSpec{
		{Type: protocol.ServiceHTTP, LocalPort: 0, SubdomainOrPath: "api"},
		{Type: protocol.ServiceHTTP, LocalPort: 8080, SubdomainOrPath: ""},
		{Type: protocol.ServiceHTTP, LocalPort: 8080, SubdomainOrPath: "a/b"},
		{Type: "grpc", LocalPort: 8080, SubdomainOrPath: "api"},
	}
	for i, c := range cases {
		if err := validateServiceSpec(c); err == nil {
			t.Errorf("case %d: expected error for %+v", i, c)
		}
	}
}
