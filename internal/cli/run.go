package cli

import (
	"context"
	"fmt"

	"github.com/RevCBH/jobrunner/internal/config"
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command
type RunOptions struct {
	JobID        int64  // overrides DEPENDABOT_JOB_ID
	APIURL       string // overrides DEPENDABOT_API_URL
	WorkDir      string // overrides DEPENDABOT_WORKING_DIRECTORY
	UpdaterImage string // overrides DEPENDABOT_UPDATER_IMAGE
}

// apply layers the flags over parameters read from the environment.
func (opts RunOptions) apply(params config.JobParameters) config.JobParameters {
	if opts.JobID != 0 {
		params.JobID = opts.JobID
	}
	if opts.APIURL != "" {
		if params.APIDockerURL == "" || params.APIDockerURL == params.APIURL {
			params.APIDockerURL = opts.APIURL
		}
		params.APIURL = opts.APIURL
	}
	if opts.WorkDir != "" {
		params.WorkingDirectory = opts.WorkDir
	}
	if opts.UpdaterImage != "" {
		params.UpdaterImage = opts.UpdaterImage
	}
	return params
}

// NewRunCmd creates the run command
func NewRunCmd(app *App) *cobra.Command {
	var opts RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a dependency update job",
		Long: `Run fetches the job from the job service, starts the credential proxy and
runs the fetch and update phases in sandbox containers.

Job parameters are read from DEPENDABOT_* environment variables; flags
override them. Tokens are only accepted from the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunJob(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.JobID, "job-id", 0, "Job id")
	cmd.Flags().StringVar(&opts.APIURL, "api-url", "", "Job service URL")
	cmd.Flags().StringVar(&opts.WorkDir, "workdir", "", "Directory for job output and repository contents")
	cmd.Flags().StringVar(&opts.UpdaterImage, "updater-image", "", "Updater image override")

	return cmd
}

// RunJob executes one job with signal-driven cancellation.
func (a *App) RunJob(ctx context.Context, cmd *cobra.Command, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, redactor, log, err := a.setup(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	handler := NewSignalHandler(cancel, log)
	handler.OnShutdown(func() {
		log.Warn("Shutting down, removing job containers")
	})
	handler.Start()
	defer handler.Stop()

	params, err := config.JobParametersFromEnv()
	if err != nil {
		return err
	}
	params = opts.apply(params)

	runtime, err := a.newRuntime(cfg)
	if err != nil {
		return fmt.Errorf("container runtime: %w", err)
	}

	job := NewJob(JobOptions{
		Params:   params,
		Config:   cfg,
		Runtime:  runtime,
		Redactor: redactor,
		Logger:   log,
	})
	return job.Run(ctx)
}
