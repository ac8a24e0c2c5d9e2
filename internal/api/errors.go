package api

import (
	"errors"
	"fmt"
)

// Resources named in fetch errors.
const (
	ResourceJobDetails  = "job details"
	ResourceCredentials = "credentials"
)

var (
	// ErrJobDetails matches any failure to fetch job details.
	ErrJobDetails = errors.New("fetching job details failed")

	// ErrCredentials matches any failure to fetch credentials.
	ErrCredentials = errors.New("fetching credentials failed")

	errMissingResponse = errors.New("missing response")
)

// FetchError is returned when job details or credentials cannot be fetched.
// StatusCode and Body are set when the server answered with an unexpected
// status.
type FetchError struct {
	Resource   string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: unexpected status code: %d: %s", e.Resource, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("fetching %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrJobDetails:
		return e.Resource == ResourceJobDetails
	case ErrCredentials:
		return e.Resource == ResourceCredentials
	}
	return false
}

func (e *FetchError) retryable() bool {
	return e.StatusCode >= 500 && e.StatusCode <= 599
}

// ReportError is returned when reporting back to the service fails.
type ReportError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *ReportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status code: %d", e.Operation, e.StatusCode)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}
