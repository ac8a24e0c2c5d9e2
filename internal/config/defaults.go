package config

const (
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "auto"
	DefaultRuntime          = RuntimeAuto
	DefaultProxyImage       = "ghcr.io/github/dependabot-update-job-proxy/dependabot-update-job-proxy:latest"
	DefaultFallbackRegistry = "dependabot-acr-apim-production.azure-api.net"
	DefaultAPIMaxAttempts   = 3
	DefaultAPIUserAgent     = "github/dependabot-action"
)

// defaultUpdaterImages maps each package manager to its updater image.
var defaultUpdaterImages = map[string]string{
	"bun":            "ghcr.io/dependabot/dependabot-updater-bun:latest",
	"bundler":        "ghcr.io/dependabot/dependabot-updater-bundler:latest",
	"cargo":          "ghcr.io/dependabot/dependabot-updater-cargo:latest",
	"composer":       "ghcr.io/dependabot/dependabot-updater-composer:latest",
	"devcontainers":  "ghcr.io/dependabot/dependabot-updater-devcontainers:latest",
	"docker":         "ghcr.io/dependabot/dependabot-updater-docker:latest",
	"docker_compose": "ghcr.io/dependabot/dependabot-updater-docker-compose:latest",
	"dotnet_sdk":     "ghcr.io/dependabot/dependabot-updater-dotnet-sdk:latest",
	"elm":            "ghcr.io/dependabot/dependabot-updater-elm:latest",
	"github_actions": "ghcr.io/dependabot/dependabot-updater-github-actions:latest",
	"go_modules":     "ghcr.io/dependabot/dependabot-updater-gomod:latest",
	"gradle":         "ghcr.io/dependabot/dependabot-updater-gradle:latest",
	"helm":           "ghcr.io/dependabot/dependabot-updater-helm:latest",
	"hex":            "ghcr.io/dependabot/dependabot-updater-mix:latest",
	"maven":          "ghcr.io/dependabot/dependabot-updater-maven:latest",
	"npm_and_yarn":   "ghcr.io/dependabot/dependabot-updater-npm:latest",
	"nuget":          "ghcr.io/dependabot/dependabot-updater-nuget:latest",
	"pip":            "ghcr.io/dependabot/dependabot-updater-pip:latest",
	"pub":            "ghcr.io/dependabot/dependabot-updater-pub:latest",
	"submodules":     "ghcr.io/dependabot/dependabot-updater-gitsubmodule:latest",
	"swift":          "ghcr.io/dependabot/dependabot-updater-swift:latest",
	"terraform":      "ghcr.io/dependabot/dependabot-updater-terraform:latest",
	"uv":             "ghcr.io/dependabot/dependabot-updater-uv:latest",
}

// DefaultImagesConfig returns the published images.
func DefaultImagesConfig() ImagesConfig {
	updaters := make(map[string]string, len(defaultUpdaterImages))
	for manager, image := range defaultUpdaterImages {
		updaters[manager] = image
	}
	return ImagesConfig{
		Proxy:            DefaultProxyImage,
		Updaters:         updaters,
		FallbackRegistry: DefaultFallbackRegistry,
	}
}

// DefaultConfig returns a Config with all default values applied.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Runtime:   DefaultRuntime,
		Images:    DefaultImagesConfig(),
		API: APIConfig{
			MaxAttempts: DefaultAPIMaxAttempts,
			UserAgent:   DefaultAPIUserAgent,
		},
	}
}
