// Package cli implements the jobrunner command line.
package cli

import (
	"io"

	"github.com/RevCBH/jobrunner/internal/config"
	"github.com/RevCBH/jobrunner/internal/container"
	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// VersionInfo is stamped into the binary at build time.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies
type App struct {
	rootCmd *cobra.Command

	// Flags
	configPath string
	verbose    bool

	versionInfo VersionInfo

	// log is the redacted logger of the running command, set by setup.
	log *logrus.Entry

	// newRuntime connects to the container runtime selected by cfg.
	// Replaced in tests.
	newRuntime func(cfg *config.Config) (container.Runtime, error)
}

// New creates a new CLI application
func New() *App {
	app := &App{
		newRuntime: defaultRuntime,
	}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application. A failure is logged through the
// command's redacted logger before it is returned.
func (a *App) Execute() error {
	err := a.rootCmd.Execute()
	if err != nil {
		a.logger().Error(err.Error())
	}
	return err
}

// logger returns the command's logger, or a plain stderr logger when the
// command failed before setup.
func (a *App) logger() *logrus.Entry {
	if a.log != nil {
		return a.log
	}
	logger, err := logging.New(logging.Options{Output: a.rootCmd.ErrOrStderr()}, logging.NewRedactor())
	if err != nil {
		return logging.Discard()
	}
	return logrus.NewEntry(logger)
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = VersionInfo{Version: version, Commit: commit, Date: date}
}

// SetArgs overrides the command line, for tests.
func (a *App) SetArgs(args []string) {
	a.rootCmd.SetArgs(args)
}

func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "jobrunner",
		Short: "Run dependency update jobs in isolated containers",
		Long: `jobrunner executes a single dependency update job. Updater code runs in a
sandbox container whose only route to the network is a credential proxy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"Config file (default "+config.DefaultConfigFile+" if present)")
	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")

	a.rootCmd.AddCommand(
		NewRunCmd(a),
		NewPullCmd(a),
		NewVersionCmd(a),
	)
}

// setup loads configuration and builds the logger shared by a command.
func (a *App) setup(out io.Writer) (*config.Config, *logging.Redactor, *logrus.Entry, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	level := cfg.LogLevel
	if a.verbose {
		level = "debug"
	}
	redactor := logging.NewRedactor()
	logger, err := logging.New(logging.Options{Level: level, Format: cfg.LogFormat, Output: out}, redactor)
	if err != nil {
		return nil, nil, nil, err
	}
	a.log = logrus.NewEntry(logger)
	return cfg, redactor, a.log, nil
}

func defaultRuntime(cfg *config.Config) (container.Runtime, error) {
	bin, err := container.ResolveRuntime(string(cfg.Runtime))
	if err != nil {
		return nil, err
	}
	return container.NewCLIManager(bin), nil
}
