package instance

import (
	"fmt"
	"os"

	"github.com/angelmondragon/bazaar-backend/pkg/env"
)

// EnvInstanceID overrides the generated instance identifier.
const EnvInstanceID = "BAZAAR_INSTANCE_ID"

// ID returns a stable identifier for this process: the override when set,
// otherwise service@hostname.
func ID(service string) string {
	if id := env.Get(EnvInstanceID, ""); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	if service == "" {
		return host
	}
	return fmt.Sprintf("%s@%s", service, host)
}
