package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/RevCBH/jobrunner/internal/api"
	"github.com/RevCBH/jobrunner/internal/config"
	"github.com/RevCBH/jobrunner/internal/container"
	"github.com/RevCBH/jobrunner/internal/credential"
	"github.com/RevCBH/jobrunner/internal/image"
	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/RevCBH/jobrunner/internal/updater"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Error types reported to the job service.
const (
	ErrorTypeUnknown = "actions_workflow_unknown"
	ErrorTypeImage   = "actions_workflow_image"
	ErrorTypeUpdater = "actions_workflow_updater"
)

// Environment consulted by a job run in addition to JobParameters.
const (
	EnvJobTokenOverride         = "GITHUB_DEPENDABOT_JOB_TOKEN"
	EnvCredentialsTokenOverride = "GITHUB_DEPENDABOT_CRED_TOKEN"
	EnvGitHubToken              = "GITHUB_TOKEN"
	EnvGitHubActor              = "GITHUB_ACTOR"
	EnvGitHubServerURL          = "GITHUB_SERVER_URL"
	EnvGitHubRepository         = "GITHUB_REPOSITORY"
)

// JobFailure is returned by Job.Run when the job did not complete. Its
// message is what the user sees.
type JobFailure struct {
	Message string
	Err     error

	// JobID is zero when the failure happened before the job was known
	JobID int64

	// Reported is true when the failure was recorded with the job service
	Reported bool
}

func (e *JobFailure) Error() string {
	parts := []string{e.Message}
	if e.JobID != 0 {
		if e.Err != nil {
			parts = append(parts, e.Err.Error())
		}
		parts = append(parts, jobHelp(e.JobID))
	}
	return strings.Join(parts, "\n\n")
}

func (e *JobFailure) Unwrap() error {
	return e.Err
}

func jobHelp(jobID int64) string {
	return fmt.Sprintf("For more information see: %s (write access to the repository is required to view the log)", jobURL(jobID))
}

func jobURL(jobID int64) string {
	var parts []string
	for _, p := range []string{os.Getenv(EnvGitHubServerURL), os.Getenv(EnvGitHubRepository), "network/updates", strconv.FormatInt(jobID, 10)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}

// JobOptions wires a Job.
type JobOptions struct {
	Params  config.JobParameters
	Config  *config.Config
	Runtime container.Runtime

	// Redactor masks every token and credential secret the job observes
	Redactor *logging.Redactor
	Logger   *logrus.Entry

	HTTPClient   *http.Client
	APIBackOff   func() backoff.BackOff
	ImageBackOff func() backoff.BackOff
	ImageTimer   backoff.Timer
}

// Job drives one dependency-update job from parameters to a reported result.
type Job struct {
	opts JobOptions
	log  *logrus.Entry
}

// NewJob creates a Job.
func NewJob(opts JobOptions) *Job {
	if opts.Redactor == nil {
		opts.Redactor = logging.NewRedactor()
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Job{opts: opts, log: log}
}

// Run executes the job. Failures after the job details were fetched are
// reported to the job service before Run returns a *JobFailure.
func (j *Job) Run(ctx context.Context) error {
	logging.Say(j.log, "starting update")

	params := j.opts.Params
	if v := os.Getenv(EnvJobTokenOverride); v != "" {
		params.JobToken = v
	}
	if v := os.Getenv(EnvCredentialsTokenOverride); v != "" {
		params.CredentialsToken = v
	}
	if params.JobToken == "" {
		return j.finish(&JobFailure{Message: "Github Dependabot job token is not set"})
	}
	if params.CredentialsToken == "" {
		return j.finish(&JobFailure{Message: "Github Dependabot credentials token is not set"})
	}
	j.opts.Redactor.AddSecret(params.JobToken)
	j.opts.Redactor.AddSecret(params.CredentialsToken)

	if err := params.Validate(); err != nil {
		return j.finish(&JobFailure{Message: "Invalid job parameters", Err: err})
	}

	log := j.log.WithField("job_id", params.JobID)
	client := api.NewClient(api.Options{
		BaseURL:          params.APIURL,
		JobID:            params.JobID,
		JobToken:         params.JobToken,
		CredentialsToken: params.CredentialsToken,
		HTTPClient:       j.opts.HTTPClient,
		Masker:           j.opts.Redactor,
		Logger:           log,
		MaxAttempts:      j.opts.Config.API.MaxAttempts,
		UserAgent:        j.opts.Config.API.UserAgent,
		BackOff:          j.opts.APIBackOff,
	})

	log.Info("Fetching job details")
	// the job may not be processing yet, so this failure is not reported
	details, err := client.GetJobDetails(ctx)
	if err != nil {
		return j.finish(&JobFailure{Message: "Dependabot encountered an unexpected problem", Err: err, JobID: params.JobID})
	}

	run := &jobRun{Job: j, client: client, params: params, details: details, log: log}
	if err := run.execute(ctx); err != nil {
		return j.finish(err)
	}

	logging.Say(j.log, "finished")
	return nil
}

func (j *Job) finish(failure *JobFailure) error {
	switch {
	case failure.Reported:
		logging.Say(j.log, "finished: error reported to Dependabot")
	case failure.JobID == 0:
		logging.Say(j.log, "finished: "+failure.Message)
	default:
		logging.Say(j.log, "finished: unexpected error")
	}
	return failure
}

// jobRun is a job whose details are known.
type jobRun struct {
	*Job
	client  *api.Client
	params  config.JobParameters
	details *api.JobDetails
	log     *logrus.Entry
}

func (r *jobRun) execute(ctx context.Context) *JobFailure {
	updaterImage := r.params.UpdaterImage
	if updaterImage == "" {
		updaterImage = r.opts.Config.UpdaterImage(r.details.PackageManager)
	}
	if updaterImage == "" {
		err := fmt.Errorf("no updater image configured for package manager %q", r.details.PackageManager)
		return r.fail(ctx, "Dependabot was unable to start the update", err, ErrorTypeUnknown)
	}
	proxyImage := r.opts.Config.Images.Proxy

	creds, err := r.client.GetCredentials(ctx)
	if err != nil {
		msg, errorType := credentialsFailure(err)
		return r.fail(ctx, msg, err, errorType)
	}
	creds = append(creds, credential.FromEnv(os.Getenv(credential.RegistriesProxyEnv), r.opts.Redactor, r.log)...)
	if packagesCred, ok := r.packagesCredential(); ok {
		r.log.Info("Adding GitHub Packages credential")
		creds = append(creds, packagesCred)
	}

	images := image.NewService(r.opts.Runtime, image.Options{
		Logger:           r.log,
		Metrics:          r.sendMetrics,
		AllowUntrusted:   r.opts.Config.Images.AllowUntrusted,
		FallbackRegistry: r.opts.Config.Images.FallbackRegistry,
		BackOff:          r.opts.ImageBackOff,
		Timer:            r.opts.ImageTimer,
	})
	r.log.Info("Pulling updater images")
	pulled, err := images.PullWithFallback(ctx, updaterImage, proxyImage)
	if err != nil {
		return r.fail(ctx, "Error fetching updater images", err, ErrorTypeImage)
	}
	updaterImage, proxyImage = pulled[0], pulled[1]

	r.log.Info("Starting update process")
	u := updater.New(r.opts.Runtime, updater.Options{
		Params:       r.params,
		Details:      r.details,
		Credentials:  creds,
		UpdaterImage: updaterImage,
		ProxyImage:   proxyImage,
		CustomCAPath: r.opts.Config.Proxy.CustomCAPath,
		Logger:       r.log,
	})
	if err := u.Run(ctx); err != nil {
		return r.fail(ctx, "Dependabot encountered an error performing the update", err, ErrorTypeUpdater)
	}
	return nil
}

// packagesCredential synthesizes a GitHub Packages credential when the job
// opted in and none exists yet.
func (r *jobRun) packagesCredential() (credential.Credential, bool) {
	if !r.details.Experiments.Enabled(credential.PackagesExperiment) {
		return credential.Credential{}, false
	}
	token := os.Getenv(EnvGitHubToken)
	if token == "" {
		r.log.Warn("GITHUB_TOKEN is not set; cannot create GitHub Packages credential")
		return credential.Credential{}, false
	}
	r.opts.Redactor.AddSecret(token)

	return credential.GitHubPackagesCredential(credential.PackagesRequest{
		PackageManager: r.details.PackageManager,
		Owner:          r.details.Source.Owner(),
		Actor:          os.Getenv(EnvGitHubActor),
		Token:          token,
		Existing:       r.details.CredentialsMetadata,
	})
}

// sendMetrics tags every metric with the job's package manager.
func (r *jobRun) sendMetrics(ctx context.Context, name, metricType string, value float64, tags map[string]string) {
	merged := map[string]string{"package_manager": r.details.PackageManager}
	for k, v := range tags {
		merged[k] = v
	}
	r.client.SendMetrics(ctx, name, metricType, value, merged)
}

// fail reports the failure and marks the job processed. Reporting problems
// are logged; the original failure is what the caller sees.
// credentialsFailure classifies a failure to obtain the job credentials.
func credentialsFailure(err error) (message, errorType string) {
	if errors.Is(err, api.ErrCredentials) {
		return "Dependabot was unable to retrieve job credentials", ErrorTypeUpdater
	}
	return "Dependabot was unable to start the update", ErrorTypeUnknown
}

func (r *jobRun) fail(ctx context.Context, message string, err error, errorType string) *JobFailure {
	ctx = context.WithoutCancel(ctx)
	failure := &JobFailure{Message: message, Err: err, JobID: r.params.JobID, Reported: true}

	jobErr := api.JobError{Type: errorType, Details: api.JobErrorDetails{ActionError: err.Error()}}
	if reportErr := r.client.ReportJobError(ctx, jobErr); reportErr != nil {
		r.log.WithError(reportErr).Error("Failed to report job error")
		failure.Reported = false
	}
	if markErr := r.client.MarkJobAsProcessed(ctx); markErr != nil {
		r.log.WithError(markErr).Error("Failed to mark job as processed")
		failure.Reported = false
	}
	return failure
}
