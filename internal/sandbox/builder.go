// Package sandbox creates the updater containers. A sandbox has no route to
// the outside world except through the job proxy.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/RevCBH/jobrunner/internal/container"
	"github.com/RevCBH/jobrunner/internal/image"
	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/sirupsen/logrus"
)

// Paths inside the sandbox.
const (
	UpdaterHome   = "/home/dependabot/dependabot-updater"
	InputDir      = UpdaterHome
	InputFile     = "job.json"
	OutputDir     = UpdaterHome + "/output"
	OutputFile    = "output.json"
	RepoDir       = UpdaterHome + "/repo"
	CACertDir     = "/usr/local/share/ca-certificates"
	CACertFile    = "dbot-ca.crt"
	systemCACerts = "/etc/ssl/certs/ca-certificates.crt"
)

// MaxMemory is the memory limit of a sandbox: 8 GiB.
const MaxMemory int64 = 8 * 1024 * 1024 * 1024

// Commands understood by the updater image.
const (
	CommandFetchFiles  = "fetch_files"
	CommandUpdateFiles = "update_files"
)

// Proxy is what a sandbox needs from the job proxy.
type Proxy interface {
	URL(ctx context.Context) (string, error)
	CACert() string
	InternalNetwork() string
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	JobID    int64
	JobToken string

	// APIURL is the job service as reached from inside the sandbox
	APIURL string

	Image string

	// OutputDir and RepoDir are host directories bind-mounted read-write
	OutputDir string
	RepoDir   string

	// Input is written to job.json before the container starts
	Input any

	Logger *logrus.Entry
}

// Builder creates sandbox containers for one phase of a job.
type Builder struct {
	manager container.Manager
	service *container.Service
	proxy   Proxy
	opts    BuilderOptions
	log     *logrus.Entry
}

// NewBuilder creates a Builder.
func NewBuilder(manager container.Manager, proxy Proxy, opts BuilderOptions) *Builder {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Builder{
		manager: manager,
		service: container.NewService(manager, log),
		proxy:   proxy,
		opts:    opts,
		log:     log,
	}
}

// Run creates a sandbox named containerName that will execute command, with
// the proxy CA and job input in place. The container is created, not started.
func (b *Builder) Run(ctx context.Context, containerName, command string) (container.ContainerID, error) {
	proxyURL, err := b.proxy.URL(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve proxy: %w", err)
	}

	id, err := b.manager.Create(ctx, container.ContainerConfig{
		Image:   b.opts.Image,
		Name:    containerName,
		Env:     b.env(proxyURL),
		Cmd:     []string{"sh", "-c", shellCommand(command)},
		Network: b.proxy.InternalNetwork(),
		Memory:  MaxMemory,
		Binds: []string{
			b.opts.OutputDir + ":" + OutputDir + ":rw",
			b.opts.RepoDir + ":" + RepoDir + ":rw",
		},
	})
	if err != nil {
		return "", fmt.Errorf("create %s container: %w", command, err)
	}

	if err := b.prepare(ctx, id); err != nil {
		if rmErr := b.manager.Remove(context.WithoutCancel(ctx), id); rmErr != nil {
			b.log.WithError(rmErr).Warn("Failed to remove sandbox")
		}
		return "", err
	}

	b.log.WithField("container_id", string(id)).Infof("Created %s container", command)
	return id, nil
}

func (b *Builder) prepare(ctx context.Context, id container.ContainerID) error {
	if err := b.service.StoreCert(ctx, id, CACertDir, CACertFile, []byte(b.proxy.CACert())); err != nil {
		return err
	}
	return b.service.StoreInput(ctx, id, InputDir, InputFile, b.opts.Input)
}

func (b *Builder) env(proxyURL string) map[string]string {
	env := map[string]string{
		"GITHUB_ACTIONS":                     os.Getenv("GITHUB_ACTIONS"),
		"DEPENDABOT_JOB_ID":                  strconv.FormatInt(b.opts.JobID, 10),
		"DEPENDABOT_JOB_TOKEN":               b.opts.JobToken,
		"DEPENDABOT_JOB_PATH":                InputDir + "/" + InputFile,
		"DEPENDABOT_OPEN_TIMEOUT_IN_SECONDS": "15",
		"DEPENDABOT_OUTPUT_PATH":             OutputDir + "/" + OutputFile,
		"DEPENDABOT_REPO_CONTENTS_PATH":      RepoDir,
		"DEPENDABOT_API_URL":                 b.opts.APIURL,
		"SSL_CERT_FILE":                      systemCACerts,
		"http_proxy":                         proxyURL,
		"HTTP_PROXY":                         proxyURL,
		"https_proxy":                        proxyURL,
		"HTTPS_PROXY":                        proxyURL,
		"ENABLE_CONNECTIVITY_CHECK":          "1",
	}
	if sha, ok := image.UpdaterSHA(b.opts.Image); ok {
		env["DEPENDABOT_UPDATER_SHA"] = sha
	}
	return env
}

// shellCommand trusts only the proxy CA, then runs the updater.
func shellCommand(command string) string {
	return "(echo > /etc/ca-certificates.conf) && " +
		"rm -Rf /usr/share/ca-certificates/ && " +
		"/usr/sbin/update-ca-certificates && " +
		"$DEPENDABOT_HOME/dependabot-updater/bin/run " + command
}
