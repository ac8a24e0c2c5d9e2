// Package proxy runs the credential proxy that sits between the sandbox and
// the outside world. The proxy is the only container with egress and the only
// one that ever sees credentials.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/RevCBH/jobrunner/internal/container"
	"github.com/RevCBH/jobrunner/internal/credential"
	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/RevCBH/jobrunner/internal/network"
	"github.com/sirupsen/logrus"
)

// Port is where the proxy listens on the internal network.
const Port = 1080

const (
	customCADir  = "/usr/local/share/ca-certificates"
	customCAFile = "custom-ca-cert.crt"

	// NodeExtraCACertsEnv is honoured as a custom CA source when no path is
	// configured.
	NodeExtraCACertsEnv = "NODE_EXTRA_CA_CERTS"

	stopTimeout = 10 * time.Second
)

// forwardedEnv is copied from the runner environment into the proxy.
var forwardedEnv = []string{"http_proxy", "https_proxy", "no_proxy"}

// ErrNotRunning is returned when the proxy address is requested before the
// proxy started or after it stopped.
var ErrNotRunning = errors.New("proxy container isn't running")

// State is the lifecycle state of a Proxy.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ContainerName is the name of the proxy container of a job.
func ContainerName(jobID int64) string {
	return fmt.Sprintf("dependabot-job-%d-proxy", jobID)
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Image is the proxy image reference
	Image string

	// CustomCAPath is an extra root certificate for the proxy to trust.
	// When empty, NODE_EXTRA_CA_CERTS is consulted.
	CustomCAPath string

	Logger *logrus.Entry
}

// Builder creates and starts proxy containers.
type Builder struct {
	runtime  container.Runtime
	service  *container.Service
	networks *network.Manager
	opts     BuilderOptions
	log      *logrus.Entry
}

// NewBuilder creates a Builder over the given runtime.
func NewBuilder(runtime container.Runtime, opts BuilderOptions) *Builder {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Builder{
		runtime:  runtime,
		service:  container.NewService(runtime, log),
		networks: network.NewManager(runtime, log),
		opts:     opts,
		log:      log,
	}
}

// Run creates the job networks and a started proxy attached to both.
// Anything created before a failure is removed again.
func (b *Builder) Run(ctx context.Context, jobID int64, jobToken, apiURL string, creds []credential.Credential) (_ *Proxy, err error) {
	ca, err := GenerateCA()
	if err != nil {
		return nil, err
	}
	cfg := NewConfig(creds, ca)

	topology, err := b.networks.Topology(ctx, jobID)
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		runtime:         b.runtime,
		networks:        b.networks,
		log:             b.log.WithField("job_id", jobID),
		name:            ContainerName(jobID),
		ca:              ca,
		internalNetwork: topology.Internal.Name,
		externalNetwork: topology.External.Name,
	}

	defer func() {
		if err != nil {
			if shutdownErr := p.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
				p.log.WithError(shutdownErr).Warn("Failed to clean up proxy")
			}
		}
	}()

	id, err := b.runtime.Create(ctx, container.ContainerConfig{
		Image:      b.opts.Image,
		Name:       p.name,
		Env:        proxyEnv(jobID, jobToken, apiURL),
		Entrypoint: "sh",
		Cmd:        []string{"-c", "/usr/sbin/update-ca-certificates && /update-job-proxy"},
		Network:    topology.Internal.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("create proxy container: %w", err)
	}
	p.id = id

	if err := b.runtime.ConnectNetwork(ctx, topology.External.Name, id); err != nil {
		return nil, fmt.Errorf("connect proxy to %s: %w", topology.External.Name, err)
	}

	if err := b.service.StoreInput(ctx, id, configDir, configFile, cfg); err != nil {
		return nil, err
	}

	if caPath := b.customCAPath(); caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read custom CA: %w", err)
		}
		if err := b.service.StoreCert(ctx, id, customCADir, customCAFile, pem); err != nil {
			return nil, err
		}
	}

	if err := b.runtime.Start(ctx, id); err != nil {
		return nil, fmt.Errorf("start proxy container: %w", err)
	}
	p.start(ctx)

	p.log.WithField("container_id", string(id)).Info("Started proxy")
	return p, nil
}

func (b *Builder) customCAPath() string {
	if b.opts.CustomCAPath != "" {
		return b.opts.CustomCAPath
	}
	return os.Getenv(NodeExtraCACertsEnv)
}

func proxyEnv(jobID int64, jobToken, apiURL string) map[string]string {
	env := map[string]string{
		"JOB_ID":             fmt.Sprintf("%d", jobID),
		"JOB_TOKEN":          jobToken,
		"PROXY_CACHE":        "true",
		"DEPENDABOT_API_URL": apiURL,
	}
	for _, key := range forwardedEnv {
		if v := os.Getenv(key); v != "" {
			env[key] = v
		}
	}
	return env
}

// Proxy is a handle to a running proxy container.
type Proxy struct {
	runtime  container.Runtime
	networks *network.Manager
	log      *logrus.Entry

	name            string
	ca              CertificateAuthority
	internalNetwork string
	externalNetwork string

	mu       sync.Mutex
	id       container.ContainerID
	state    State
	url      string
	streamer *container.LogStreamer
}

func (p *Proxy) start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateRunning

	// the proxy outlives the caller's ctx only until Shutdown
	p.streamer = container.NewLogStreamer(p.id, p.runtime, p.log, "proxy")
	streamer := p.streamer
	go func() {
		if err := streamer.Start(context.WithoutCancel(ctx)); err != nil {
			p.log.WithError(err).Warn("Proxy log streaming ended with error")
		}
	}()
}

// ContainerID returns the proxy container id, empty until created.
func (p *Proxy) ContainerID() container.ContainerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// State returns the lifecycle state.
func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CACert is the PEM certificate the sandbox must trust.
func (p *Proxy) CACert() string {
	return p.ca.Cert
}

// InternalNetwork is the network a sandbox joins to reach the proxy.
func (p *Proxy) InternalNetwork() string {
	return p.internalNetwork
}

// ExternalNetwork is the network with egress.
func (p *Proxy) ExternalNetwork() string {
	return p.externalNetwork
}

// URL returns the proxy address on the internal network.
func (p *Proxy) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning {
		return "", ErrNotRunning
	}
	if p.url != "" {
		return p.url, nil
	}

	state, err := p.runtime.Inspect(ctx, p.id)
	if err != nil {
		return "", fmt.Errorf("inspect proxy: %w", err)
	}
	if !state.Running {
		return "", ErrNotRunning
	}
	ip := state.IPAddresses[p.internalNetwork]
	if ip == "" {
		return "", fmt.Errorf("proxy has no address on %s", p.internalNetwork)
	}

	p.url = fmt.Sprintf("http://%s:%d", ip, Port)
	return p.url, nil
}

// Shutdown stops and removes the proxy container and both job networks.
// Calling it again is a no-op.
func (p *Proxy) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return nil
	}
	wasRunning := p.state == StateRunning
	p.state = StateStopped
	p.url = ""
	id := p.id
	streamer := p.streamer
	p.mu.Unlock()

	var errs []error
	if id != "" {
		if wasRunning {
			if err := p.runtime.Stop(ctx, id, stopTimeout); err != nil && !container.IsNotFound(err) {
				errs = append(errs, fmt.Errorf("stop proxy: %w", err))
			}
		}
		if streamer != nil {
			streamer.Stop()
		}
		if err := p.runtime.Remove(ctx, id); err != nil && !container.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("remove proxy: %w", err))
		}
	}
	if err := p.networks.Remove(ctx, p.internalNetwork, p.externalNetwork); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.log.Debug("Proxy shut down")
	return nil
}
