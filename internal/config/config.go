package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = ".jobrunner.yaml"

// Runtime selects the container runtime CLI.
type Runtime string

const (
	RuntimeAuto   Runtime = "auto"
	RuntimeDocker Runtime = "docker"
	RuntimePodman Runtime = "podman"
)

// Config holds the runner configuration.
// It is immutable after creation via Load().
type Config struct {
	// LogLevel controls log verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogFormat is auto, text or json
	LogFormat string `yaml:"log_format"`

	// Runtime is the container runtime CLI: auto, docker or podman
	Runtime Runtime `yaml:"runtime"`

	// Images selects the proxy and updater images
	Images ImagesConfig `yaml:"images"`

	// Proxy contains proxy container settings
	Proxy ProxyConfig `yaml:"proxy"`

	// API contains job service client settings
	API APIConfig `yaml:"api"`
}

// ImagesConfig controls which images run and where they come from.
type ImagesConfig struct {
	// Proxy is the credential proxy image
	Proxy string `yaml:"proxy"`

	// Updaters maps a package manager to its updater image
	Updaters map[string]string `yaml:"updaters"`

	// FallbackRegistry is prefixed to both images when the primary pull fails
	FallbackRegistry string `yaml:"fallback_registry"`

	// AllowUntrusted disables the registry allow-list
	AllowUntrusted bool `yaml:"allow_untrusted"`
}

// ProxyConfig controls the proxy container.
type ProxyConfig struct {
	// CustomCAPath is a PEM bundle trusted by the proxy in addition to the
	// system roots
	CustomCAPath string `yaml:"custom_ca_path,omitempty"`
}

// APIConfig controls the job service client.
type APIConfig struct {
	// MaxAttempts is the total number of attempts for detail fetches
	MaxAttempts int `yaml:"max_attempts"`

	// UserAgent is sent with every request
	UserAgent string `yaml:"user_agent"`
}

// UpdaterImage returns the updater image for packageManager, or "" when none
// is configured.
func (c *Config) UpdaterImage(packageManager string) string {
	return c.Images.Updaters[packageManager]
}

// Load reads configuration from path. An empty path means DefaultConfigFile,
// which may be absent; an explicit path must exist.
// It applies defaults, then file values, then environment overrides,
// then validates.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// missing default file is not an error
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
