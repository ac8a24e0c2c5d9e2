package config

import (
	"errors"
	"fmt"
)

// ValidationError contains details about what failed validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// validateConfig checks all config values for validity.
// Returns nil if valid, or joined errors for all validation failures.
func validateConfig(cfg *Config) error {
	var errs []error

	// LogLevel must be one of: debug, info, warn, error (case-sensitive)
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, &ValidationError{
			Field:   "log_level",
			Value:   cfg.LogLevel,
			Message: "must be one of: debug, info, warn, error",
		})
	}

	switch cfg.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, &ValidationError{
			Field:   "log_format",
			Value:   cfg.LogFormat,
			Message: "must be one of: auto, text, json",
		})
	}

	switch cfg.Runtime {
	case RuntimeAuto, RuntimeDocker, RuntimePodman:
	default:
		errs = append(errs, &ValidationError{
			Field:   "runtime",
			Value:   cfg.Runtime,
			Message: "must be one of: auto, docker, podman",
		})
	}

	if cfg.Images.Proxy == "" {
		errs = append(errs, &ValidationError{
			Field:   "images.proxy",
			Value:   cfg.Images.Proxy,
			Message: "must not be empty",
		})
	}

	for manager, image := range cfg.Images.Updaters {
		if image == "" {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("images.updaters[%s]", manager),
				Value:   image,
				Message: "must not be empty",
			})
		}
	}

	if cfg.API.MaxAttempts < 1 {
		errs = append(errs, &ValidationError{
			Field:   "api.max_attempts",
			Value:   cfg.API.MaxAttempts,
			Message: "must be at least 1",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
