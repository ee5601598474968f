package testutil

import (
	"os"
	"strconv"
	"testing"
)

// IntegrationEnv is the variable that enables container-backed tests.
const IntegrationEnv = "INTEGRATION_TESTS"

// IntegrationEnabled reports whether IntegrationEnv is set to a true value (1, true, yes).
func IntegrationEnabled() bool {
	raw := os.Getenv(IntegrationEnv)
	if raw == "yes" {
		return true
	}
	enabled, err := strconv.ParseBool(raw)
	return err == nil && enabled
}

// RequireIntegration skips the test unless INTEGRATION_TESTS=1 is set. Short mode always skips.
// Integration tests start Docker containers through testcontainers.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !IntegrationEnabled() {
		t.Skipf("skipping integration test (set %s=1 to run)", IntegrationEnv)
	}
}
