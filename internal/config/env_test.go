package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("JOBRUNNER_LOG_LEVEL", "debug")
	t.Setenv("JOBRUNNER_RUNTIME", "podman")
	t.Setenv("JOBRUNNER_PROXY_IMAGE", "ghcr.io/example/proxy:dev")
	t.Setenv("JOBRUNNER_ALLOW_UNTRUSTED_IMAGES", "true")
	t.Setenv("CUSTOM_CA_PATH", "/etc/corp/ca.pem")

	applyEnvOverrides(cfg)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, RuntimePodman, cfg.Runtime)
	assert.Equal(t, "ghcr.io/example/proxy:dev", cfg.Images.Proxy)
	assert.True(t, cfg.Images.AllowUntrusted)
	assert.Equal(t, "/etc/corp/ca.pem", cfg.Proxy.CustomCAPath)
}

func TestEnvOverrides_EmptyNoChange(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("JOBRUNNER_LOG_LEVEL", "")
	t.Setenv("JOBRUNNER_PROXY_IMAGE", "")

	applyEnvOverrides(cfg)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultProxyImage, cfg.Images.Proxy)
}

func TestEnvOverrides_InvalidBoolIgnored(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("JOBRUNNER_ALLOW_UNTRUSTED_IMAGES", "sometimes")

	applyEnvOverrides(cfg)

	assert.False(t, cfg.Images.AllowUntrusted)
}
