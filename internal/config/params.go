package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Environment variables read by JobParametersFromEnv.
const (
	EnvJobID            = "DEPENDABOT_JOB_ID"
	EnvJobToken         = "DEPENDABOT_JOB_TOKEN"
	EnvCredentialsToken = "DEPENDABOT_CREDENTIALS_TOKEN"
	EnvAPIURL           = "DEPENDABOT_API_URL"
	EnvAPIDockerURL     = "DEPENDABOT_API_DOCKER_URL"
	EnvWorkingDirectory = "DEPENDABOT_WORKING_DIRECTORY"
	EnvUpdaterImage     = "DEPENDABOT_UPDATER_IMAGE"
)

// JobParameters identify one job and how to reach the job service.
type JobParameters struct {
	JobID            int64
	JobToken         string
	CredentialsToken string

	// APIURL is the job service as seen from the host.
	APIURL string

	// APIDockerURL is the job service as seen from inside containers.
	APIDockerURL string

	// WorkingDirectory holds the per-job output and repo directories.
	WorkingDirectory string

	// UpdaterImage overrides the configured updater image.
	UpdaterImage string
}

// JobParametersFromEnv reads JobParameters from the environment. The result
// is not validated.
func JobParametersFromEnv() (JobParameters, error) {
	params := JobParameters{
		JobToken:         os.Getenv(EnvJobToken),
		CredentialsToken: os.Getenv(EnvCredentialsToken),
		APIURL:           os.Getenv(EnvAPIURL),
		APIDockerURL:     os.Getenv(EnvAPIDockerURL),
		WorkingDirectory: os.Getenv(EnvWorkingDirectory),
		UpdaterImage:     os.Getenv(EnvUpdaterImage),
	}

	if raw := os.Getenv(EnvJobID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return JobParameters{}, &ValidationError{Field: "job_id", Value: raw, Message: "must be an integer"}
		}
		params.JobID = id
	}
	if params.APIDockerURL == "" {
		params.APIDockerURL = params.APIURL
	}
	if params.WorkingDirectory == "" {
		wd, err := os.Getwd()
		if err != nil {
			return JobParameters{}, fmt.Errorf("get working directory: %w", err)
		}
		params.WorkingDirectory = wd
	}
	return params, nil
}

// Validate reports every missing or invalid parameter.
func (p JobParameters) Validate() error {
	var errs []error
	if p.JobID <= 0 {
		errs = append(errs, &ValidationError{Field: "job_id", Value: p.JobID, Message: "must be a positive integer"})
	}
	if p.JobToken == "" {
		errs = append(errs, &ValidationError{Field: "job_token", Value: "", Message: "must be set"})
	}
	if p.CredentialsToken == "" {
		errs = append(errs, &ValidationError{Field: "credentials_token", Value: "", Message: "must be set"})
	}
	if p.APIURL == "" {
		errs = append(errs, &ValidationError{Field: "api_url", Value: p.APIURL, Message: "must be set"})
	}
	if p.WorkingDirectory == "" {
		errs = append(errs, &ValidationError{Field: "working_directory", Value: p.WorkingDirectory, Message: "must be set"})
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
