// Package api is the client for the job-management service that hands out
// job details and credentials and receives error reports and metrics.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RevCBH/jobrunner/internal/credential"
	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxAttempts is the total number of attempts for detail fetches.
	DefaultMaxAttempts = 3

	// DefaultUserAgent identifies the runner to the service.
	DefaultUserAgent = "github/dependabot-action"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 16 << 20

	metricPrefix = "dependabot.action."
)

// Options configures a Client.
type Options struct {
	BaseURL          string
	JobID            int64
	JobToken         string
	CredentialsToken string

	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client

	// Masker receives every credential secret before GetCredentials returns.
	Masker logging.SecretMasker

	Logger logrus.FieldLogger

	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int

	UserAgent string

	// BackOff overrides the retry delay policy. Tests use a zero backoff.
	BackOff func() backoff.BackOff
}

// Client talks to the job-management API for a single job.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	jobID            int64
	jobToken         string
	credentialsToken string
	masker           logging.SecretMasker
	log              logrus.FieldLogger
	maxAttempts      int
	userAgent        string
	newBackOff       func() backoff.BackOff
}

// NewClient creates a client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient:       opts.HTTPClient,
		baseURL:          strings.TrimSuffix(opts.BaseURL, "/"),
		jobID:            opts.JobID,
		jobToken:         opts.JobToken,
		credentialsToken: opts.CredentialsToken,
		masker:           opts.Masker,
		log:              opts.Logger,
		maxAttempts:      opts.MaxAttempts,
		userAgent:        opts.UserAgent,
		newBackOff:       opts.BackOff,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.newBackOff == nil {
		c.newBackOff = DefaultBackOff
	}
	return c
}

// DefaultBackOff waits 2s, 4s, 8s, ... between attempts, without jitter.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// JobID returns the job this client reports for.
func (c *Client) JobID() int64 {
	return c.jobID
}

// GetJobDetails fetches the job details using the job token.
func (c *Client) GetJobDetails(ctx context.Context) (*JobDetails, error) {
	var out envelope[attributes[JobDetails]]
	if err := c.getJSON(ctx, ResourceJobDetails, c.url("details"), c.jobToken, &out); err != nil {
		return nil, err
	}
	return &out.Data.Attributes, nil
}

// GetCredentials fetches the job credentials using the credentials token.
// Every secret is registered with the masker before the credentials are
// returned.
func (c *Client) GetCredentials(ctx context.Context) ([]credential.Credential, error) {
	var out envelope[attributes[credentialsAttributes]]
	if err := c.getJSON(ctx, ResourceCredentials, c.url("credentials"), c.credentialsToken, &out); err != nil {
		return nil, err
	}
	creds := out.Data.Attributes.Credentials
	credential.MaskAll(creds, c.masker)
	return creds, nil
}

// ReportJobError records a job failure. It is attempted once.
func (c *Client) ReportJobError(ctx context.Context, jobErr JobError) error {
	return c.send(ctx, "record job error", http.MethodPost, c.url("record_update_job_error"), envelope[JobError]{Data: jobErr})
}

// MarkJobAsProcessed marks the job finished. It is attempted once.
func (c *Client) MarkJobAsProcessed(ctx context.Context) error {
	body := envelope[map[string]string]{Data: map[string]string{"base-commit-sha": "unknown"}}
	return c.send(ctx, "mark job as processed", http.MethodPatch, c.url("mark_as_processed"), body)
}

// SendMetrics records a single metric. Failures are logged and never
// returned; metrics must not affect the outcome of a job.
func (c *Client) SendMetrics(ctx context.Context, name, metricType string, value float64, tags map[string]string) {
	metric := Metric{
		Metric: metricPrefix + name,
		Type:   metricType,
		Value:  value,
		Tags:   tags,
	}
	err := c.send(ctx, "record metrics", http.MethodPost, c.url("record_metrics"), envelope[[]Metric]{Data: []Metric{metric}})
	if err != nil {
		c.log.WithError(err).Warnf("Metric sending failed for %s", name)
	}
}

func (c *Client) url(endpoint string) string {
	return fmt.Sprintf("%s/update_jobs/%d/%s", c.baseURL, c.jobID, endpoint)
}

func (c *Client) getJSON(ctx context.Context, resource, url, token string, out any) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxAttempts-1)), ctx)

	operation := func() error {
		err := c.fetch(ctx, resource, url, token, out)
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.retryable() {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	notify := func(err error, delay time.Duration) {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			c.log.Warnf("Retrying failed request with status code: %d", fetchErr.StatusCode)
		}
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return nil
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr
	}
	// context cancelled between attempts
	return &FetchError{Resource: resource, Err: err}
}

func (c *Client) fetch(ctx context.Context, resource, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchError{Resource: resource, Err: err}
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return &FetchError{Resource: resource, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &FetchError{Resource: resource, StatusCode: resp.StatusCode, Body: string(body)}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &FetchError{Resource: resource, Err: errMissingResponse}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &FetchError{Resource: resource, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) send(ctx context.Context, operation, method, url string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return &ReportError{Operation: operation, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
	if err != nil {
		return &ReportError{Operation: operation, Err: err}
	}
	req.Header.Set("Authorization", c.jobToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ReportError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusNoContent {
		return &ReportError{Operation: operation, StatusCode: resp.StatusCode}
	}
	return nil
}

// readBody reads at most maxResponseBytes of the response.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
	}
	return body, nil
}
