// Package updater runs a dependency-update job: it starts the proxy, runs the
// fetch and update phases in sandboxes, and always tears everything down.
package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RevCBH/jobrunner/internal/api"
	"github.com/RevCBH/jobrunner/internal/config"
	"github.com/RevCBH/jobrunner/internal/container"
	"github.com/RevCBH/jobrunner/internal/credential"
	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/RevCBH/jobrunner/internal/proxy"
	"github.com/RevCBH/jobrunner/internal/sandbox"
	"github.com/sirupsen/logrus"
)

// Options configures an Updater.
type Options struct {
	Params       config.JobParameters
	Details      *api.JobDetails
	Credentials  []credential.Credential
	UpdaterImage string
	ProxyImage   string

	// CustomCAPath is an extra root certificate trusted by the proxy
	CustomCAPath string

	Logger *logrus.Entry
}

// Updater runs one job. It is not reusable.
type Updater struct {
	runtime container.Runtime
	service *container.Service
	proxies *proxy.Builder
	opts    Options
	log     *logrus.Entry

	last *run
}

// New creates an Updater over runtime.
func New(runtime container.Runtime, opts Options) *Updater {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.WithField("job_id", opts.Params.JobID)
	return &Updater{
		runtime: runtime,
		service: container.NewService(runtime, log),
		proxies: proxy.NewBuilder(runtime, proxy.BuilderOptions{
			Image:        opts.ProxyImage,
			CustomCAPath: opts.CustomCAPath,
			Logger:       log,
		}),
		opts: opts,
		log:  log,
	}
}

// FetcherName is the fetch phase sandbox of a job.
func FetcherName(jobID int64) string {
	return fmt.Sprintf("dependabot-job-%d-file-fetcher", jobID)
}

// UpdaterName is the update phase sandbox of a job.
func UpdaterName(jobID int64) string {
	return fmt.Sprintf("dependabot-job-%d-file-updater", jobID)
}

// Run executes the job. The proxy and working directories are removed on
// every path; a cleanup failure is returned only when the job succeeded.
func (u *Updater) Run(ctx context.Context) (err error) {
	r := &run{}
	u.last = r
	u.transition(r, StageInit)

	if u.opts.Details == nil {
		return u.fail(r, errors.New("job details are required"))
	}

	defer func() {
		u.transition(r, StageCleanup)
		if cleanupErr := u.cleanup(r); cleanupErr != nil {
			u.log.WithError(cleanupErr).Warn("Cleanup failed")
			if err == nil {
				err = cleanupErr
			}
		}
		if err != nil {
			u.transition(r, StageFailed)
			return
		}
		u.transition(r, StageDone)
	}()

	u.transition(r, StageCreateDirs)
	if err := u.createDirs(r); err != nil {
		return err
	}

	details := *u.opts.Details
	details.CredentialsMetadata = credential.MetadataList(u.opts.Credentials)

	u.transition(r, StageStartProxy)
	return u.withProxy(ctx, func(p *proxy.Proxy) error {
		u.transition(r, StageRunSandbox)
		return u.runPhases(ctx, r, p, &details)
	})
}

// Stages returns the stages the last Run went through, in order.
func (u *Updater) Stages() []Stage {
	if u.last == nil {
		return nil
	}
	return append([]Stage(nil), u.last.history...)
}

func (u *Updater) transition(r *run, stage Stage) {
	from := r.stage
	r.enter(stage)
	u.log.WithFields(logrus.Fields{"from": string(from), "to": string(stage)}).Debug("Stage transition")
}

func (u *Updater) fail(r *run, err error) error {
	u.transition(r, StageFailed)
	return err
}

func (u *Updater) createDirs(r *run) error {
	r.outputDir = filepath.Join(u.opts.Params.WorkingDirectory, "output")
	r.repoDir = filepath.Join(u.opts.Params.WorkingDirectory, "repo")
	for _, dir := range []string{r.outputDir, r.repoDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// withProxy runs fn with a started proxy and shuts the proxy down afterwards,
// whatever fn returned.
func (u *Updater) withProxy(ctx context.Context, fn func(p *proxy.Proxy) error) (err error) {
	params := u.opts.Params
	p, err := u.proxies.Run(ctx, params.JobID, params.JobToken, params.APIDockerURL, u.opts.Credentials)
	if err != nil {
		return fmt.Errorf("start proxy: %w", err)
	}

	defer func() {
		if shutdownErr := p.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			u.log.WithError(shutdownErr).Warn("Failed to shut down proxy")
			if err == nil {
				err = fmt.Errorf("shut down proxy: %w", shutdownErr)
			}
		}
	}()

	return fn(p)
}

func (u *Updater) runPhases(ctx context.Context, r *run, p *proxy.Proxy, details *api.JobDetails) error {
	outputPath := filepath.Join(r.outputDir, sandbox.OutputFile)
	if err := os.Remove(outputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear previous output: %w", err)
	}

	jobID := u.opts.Params.JobID
	if err := u.runSandbox(ctx, r, p, FetcherName(jobID), sandbox.CommandFetchFiles, sandbox.FetcherInput{Job: details}); err != nil {
		return err
	}

	files, err := readOutput(outputPath)
	if err != nil {
		return err
	}
	input, err := sandbox.NewUpdaterInput(details, files)
	if err != nil {
		return &OutputError{Path: outputPath, Err: err}
	}

	return u.runSandbox(ctx, r, p, UpdaterName(jobID), sandbox.CommandUpdateFiles, input)
}

func (u *Updater) runSandbox(ctx context.Context, r *run, p *proxy.Proxy, name, command string, input any) error {
	params := u.opts.Params
	builder := sandbox.NewBuilder(u.runtime, p, sandbox.BuilderOptions{
		JobID:     params.JobID,
		JobToken:  params.JobToken,
		APIURL:    params.APIDockerURL,
		Image:     u.opts.UpdaterImage,
		OutputDir: r.outputDir,
		RepoDir:   r.repoDir,
		Input:     input,
		Logger:    u.log,
	})

	id, err := builder.Run(ctx, name, command)
	if err != nil {
		return err
	}
	u.log.WithField("command", command).Info("Running sandbox")
	return u.service.Run(ctx, id, "updater")
}

func readOutput(path string) (sandbox.FetchedFiles, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return sandbox.FetchedFiles{}, ErrNoOutput
	}
	if err != nil {
		return sandbox.FetchedFiles{}, fmt.Errorf("read sandbox output: %w", err)
	}

	var files sandbox.FetchedFiles
	if err := json.Unmarshal(data, &files); err != nil {
		return sandbox.FetchedFiles{}, &OutputError{Path: path, Err: err}
	}
	return files, nil
}

func (u *Updater) cleanup(r *run) error {
	var errs []error
	for _, dir := range []string{r.outputDir, r.repoDir} {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}
