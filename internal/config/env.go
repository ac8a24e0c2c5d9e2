package config

import (
	"os"
	"strconv"
)

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "JOBRUNNER_LOG_LEVEL",
		apply: func(c *Config, v string) {
			c.LogLevel = v
		},
	},
	{
		envVar: "JOBRUNNER_RUNTIME",
		apply: func(c *Config, v string) {
			c.Runtime = Runtime(v)
		},
	},
	{
		envVar: "JOBRUNNER_PROXY_IMAGE",
		apply: func(c *Config, v string) {
			c.Images.Proxy = v
		},
	},
	{
		envVar: "JOBRUNNER_ALLOW_UNTRUSTED_IMAGES",
		apply: func(c *Config, v string) {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Images.AllowUntrusted = b
			}
		},
	},
	{
		envVar: "CUSTOM_CA_PATH",
		apply: func(c *Config, v string) {
			c.Proxy.CustomCAPath = v
		},
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
