package testutil

import (
	"os"
	"testing"
)

// ProxyEnvVars are the variables a job forwards to its proxy container.
var ProxyEnvVars = []string{
	"http_proxy",
	"HTTP_PROXY",
	"https_proxy",
	"HTTPS_PROXY",
	"no_proxy",
	"NO_PROXY",
}

// UnsetEnv removes keys from the environment for the duration of the test.
func UnsetEnv(t testing.TB, keys ...string) {
	t.Helper()
	for _, key := range keys {
		// Setenv registers the restore; the value is then removed entirely.
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
