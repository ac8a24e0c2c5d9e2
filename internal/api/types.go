package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RevCBH/jobrunner/internal/credential"
)

// JobDetails describes the repository and dependencies to update. Only the
// fields the runner inspects are typed; every field the server sent is kept
// and re-emitted by MarshalJSON so the sandbox receives the job unchanged.
//
// A nil CredentialsMetadata leaves the server's value in place; any non-nil
// slice, even an empty one, replaces it.
type JobDetails struct {
	PackageManager      string                `json:"package-manager,omitempty"`
	Experiments         Experiments           `json:"experiments,omitempty"`
	Source              Source                `json:"source,omitzero"`
	CredentialsMetadata []credential.Metadata `json:"credentials-metadata,omitzero"`

	raw map[string]json.RawMessage
}

// Source locates the repository the job operates on.
type Source struct {
	Provider    string   `json:"provider,omitempty"`
	Repo        string   `json:"repo,omitempty"`
	Directory   string   `json:"directory,omitempty"`
	Directories []string `json:"directories,omitempty"`
	Branch      string   `json:"branch,omitempty"`
	Commit      string   `json:"commit,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	APIEndpoint string   `json:"api-endpoint,omitempty"`

	raw map[string]json.RawMessage
}

// Owner returns the organization or user part of Repo.
func (s Source) Owner() string {
	owner, _, _ := strings.Cut(s.Repo, "/")
	return owner
}

// Experiments holds the feature flags enabled for the job.
type Experiments map[string]any

// Enabled reports whether the experiment is on under either its underscore
// or hyphen spelling.
func (e Experiments) Enabled(name string) bool {
	for _, key := range []string{name, strings.ReplaceAll(name, "_", "-"), strings.ReplaceAll(name, "-", "_")} {
		v, ok := e[key]
		if !ok {
			continue
		}
		switch v := v.(type) {
		case bool:
			return v
		case string:
			return strings.EqualFold(v, "true")
		}
		return false
	}
	return false
}

type jobDetailsFields JobDetails

func (d *JobDetails) UnmarshalJSON(data []byte) error {
	var fields jobDetailsFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode job details: %w", err)
	}
	if err := json.Unmarshal(data, &fields.raw); err != nil {
		return fmt.Errorf("decode job details: %w", err)
	}
	*d = JobDetails(fields)
	return nil
}

func (d JobDetails) MarshalJSON() ([]byte, error) {
	return overlay(d.raw, jobDetailsFields(d))
}

type sourceFields Source

func (s *Source) UnmarshalJSON(data []byte) error {
	var fields sourceFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode source: %w", err)
	}
	if err := json.Unmarshal(data, &fields.raw); err != nil {
		return fmt.Errorf("decode source: %w", err)
	}
	*s = Source(fields)
	return nil
}

func (s Source) MarshalJSON() ([]byte, error) {
	return overlay(s.raw, sourceFields(s))
}

// overlay encodes typed and writes its keys over a copy of raw.
func overlay(raw map[string]json.RawMessage, typed any) ([]byte, error) {
	encoded, err := json.Marshal(typed)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, err
	}

	merged := make(map[string]json.RawMessage, len(raw)+len(fields))
	for k, v := range raw {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// JobError is reported to the service when a job fails.
type JobError struct {
	Type    string          `json:"error-type"`
	Details JobErrorDetails `json:"error-details"`
}

// JobErrorDetails carries the human readable failure.
type JobErrorDetails struct {
	ActionError string `json:"action-error"`
}

// Metric is a single data point sent to the metrics endpoint.
type Metric struct {
	Metric string            `json:"metric"`
	Type   string            `json:"type"`
	Value  float64           `json:"value"`
	Tags   map[string]string `json:"tags,omitempty"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type attributes[T any] struct {
	Attributes T `json:"attributes"`
}

type credentialsAttributes struct {
	Credentials []credential.Credential `json:"credentials"`
}
