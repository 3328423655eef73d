package instance

import (
	"strings"
	"testing"
)

func TestIDPrefersOverride(t *testing.T) {
	t.Setenv(EnvInstanceID, "worker-7")
	if got := ID("worker"); got != "worker-7" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestIDIncludesService(t *testing.T) {
	t.Setenv(EnvInstanceID, "")
	if got := ID("worker"); !strings.HasPrefix(got, "worker@") {
		t.Fatalf("expected service prefix, got %q", got)
	}
}
