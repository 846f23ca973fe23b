package verify

import (
	"context"
	"strings"
	"testing"
)

func TestSandbox_UnreachableDaemon(t *testing.T) {
	// Nothing listens here, so the startup ping fails fast.
	t.Setenv("DOCKER_HOST", "tcp://127.0.0.1:1")

	sb := NewSandbox("")
	defer sb.Close()

	if sb.Available() {
		t.Fatal("sandbox reports available with no reachable daemon")
	}
	_, err := sb.Run(context.Background(), t.TempDir(), "#!/bin/sh\nexit 0\n")
	if err == nil {
		t.Fatal("Run succeeded with no reachable daemon")
	}
	if !strings.Contains(err.Error(), "docker not available") {
		t.Errorf("error = %v, want explicit docker-not-available failure", err)
	}
}
