package relay

import (
	"os"

	"github.com/google/uuid"
)

// NewInstanceID mints the one stable random id a relay process uses for its
// lifetime (C12): hostname plus a uuid, so logs stay readable while the id
// stays unique across a fleet.
func NewInstanceID() string {
	host, _ := os.Hostname()
	if host == "" {
		host = "relay"
	}
	return host + "-" + uuid.NewString()
}
