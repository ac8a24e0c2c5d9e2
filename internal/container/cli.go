package container

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CLIManager implements Runtime using the docker/podman CLI.
type CLIManager struct {
	runtime string // "docker" or "podman"
	runner  Runner
}

// NewCLIManager creates a Runtime using the specified runtime binary.
// Use DetectRuntime() to find an available runtime first.
func NewCLIManager(runtime string) *CLIManager {
	return NewCLIManagerWithRunner(runtime, NewRunner(runtime))
}

// NewCLIManagerWithRunner creates a CLIManager that issues commands through
// runner. Intended for tests.
func NewCLIManagerWithRunner(runtime string, runner Runner) *CLIManager {
	return &CLIManager{runtime: runtime, runner: runner}
}

// Create creates a new container but does not start it. Environment values
// are handed to the CLI through its own environment so they never show up in
// the process list.
func (m *CLIManager) Create(ctx context.Context, cfg ContainerConfig) (ContainerID, error) {
	args := []string{"create", "--name", cfg.Name}

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, "-e", k)
		env = append(env, k+"="+cfg.Env[k])
	}

	if cfg.WorkDir != "" {
		args = append(args, "-w", cfg.WorkDir)
	}
	if cfg.Network != "" {
		args = append(args, "--network", cfg.Network)
	}
	if cfg.Memory > 0 {
		args = append(args, "--memory", strconv.FormatInt(cfg.Memory, 10))
	}
	for _, bind := range cfg.Binds {
		args = append(args, "-v", bind)
	}
	if cfg.Entrypoint != "" {
		args = append(args, "--entrypoint", cfg.Entrypoint)
	}

	// Image and command come last
	args = append(args, cfg.Image)
	args = append(args, cfg.Cmd...)

	output, err := m.runner.ExecWithEnv(ctx, env, args...)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	return ContainerID(strings.TrimSpace(output)), nil
}

// Start starts a previously created container.
func (m *CLIManager) Start(ctx context.Context, id ContainerID) error {
	if _, err := m.runner.Exec(ctx, "start", string(id)); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	return nil
}

// Wait blocks until the container exits and returns the exit code.
func (m *CLIManager) Wait(ctx context.Context, id ContainerID) (int, error) {
	output, err := m.runner.Exec(ctx, "wait", string(id))
	if err != nil {
		return -1, fmt.Errorf("failed to wait for container: %w", err)
	}

	exitCode, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return -1, fmt.Errorf("failed to parse exit code: %w", err)
	}

	return exitCode, nil
}

// Logs follows the container output until the container exits or ctx is
// cancelled.
func (m *CLIManager) Logs(ctx context.Context, id ContainerID, stdout, stderr io.Writer) error {
	// -f follows the log output until container exits
	if err := m.runner.Stream(ctx, stdout, stderr, "logs", "-f", string(id)); err != nil {
		return fmt.Errorf("failed to stream logs: %w", err)
	}
	return nil
}

// Stop stops a running container with the specified timeout.
func (m *CLIManager) Stop(ctx context.Context, id ContainerID, timeout time.Duration) error {
	timeoutSecs := int(timeout.Seconds())
	if _, err := m.runner.Exec(ctx, "stop", "-t", strconv.Itoa(timeoutSecs), string(id)); err != nil {
		return fmt.Errorf("failed to stop container: %w", notFound(err, string(id)))
	}

	return nil
}

// Remove force-removes a container and its anonymous volumes.
func (m *CLIManager) Remove(ctx context.Context, id ContainerID) error {
	if _, err := m.runner.Exec(ctx, "rm", "-f", "-v", string(id)); err != nil {
		return fmt.Errorf("failed to remove container: %w", notFound(err, string(id)))
	}

	return nil
}

// CopyTo extracts archive into dir inside the container.
func (m *CLIManager) CopyTo(ctx context.Context, id ContainerID, dir string, archive io.Reader) error {
	if _, err := m.runner.ExecWithStdin(ctx, archive, "cp", "-", string(id)+":"+dir); err != nil {
		return fmt.Errorf("failed to copy into container: %w", err)
	}
	return nil
}

type inspectedContainer struct {
	State struct {
		Running  bool `json:"Running"`
		ExitCode int  `json:"ExitCode"`
	} `json:"State"`
	NetworkSettings struct {
		Networks map[string]struct {
			IPAddress string `json:"IPAddress"`
		} `json:"Networks"`
	} `json:"NetworkSettings"`
}

// Inspect returns the current state of the container.
func (m *CLIManager) Inspect(ctx context.Context, id ContainerID) (ContainerState, error) {
	output, err := m.runner.Exec(ctx, "container", "inspect", string(id))
	if err != nil {
		return ContainerState{}, fmt.Errorf("failed to inspect container: %w", notFound(err, string(id)))
	}

	var inspected []inspectedContainer
	if err := json.Unmarshal([]byte(output), &inspected); err != nil {
		return ContainerState{}, fmt.Errorf("failed to parse container inspect output: %w", err)
	}
	if len(inspected) == 0 {
		return ContainerState{}, fmt.Errorf("failed to inspect container: %s: %w", id, ErrNotFound)
	}

	state := ContainerState{
		Running:     inspected[0].State.Running,
		ExitCode:    inspected[0].State.ExitCode,
		IPAddresses: make(map[string]string, len(inspected[0].NetworkSettings.Networks)),
	}
	for name, network := range inspected[0].NetworkSettings.Networks {
		state.IPAddresses[name] = network.IPAddress
	}
	return state, nil
}

type inspectedNetwork struct {
	ID       string `json:"Id"`
	Name     string `json:"Name"`
	Internal bool   `json:"Internal"`
}

// InspectNetwork looks up a network by name.
func (m *CLIManager) InspectNetwork(ctx context.Context, name string) (NetworkInfo, error) {
	output, err := m.runner.Exec(ctx, "network", "inspect", name)
	if err != nil {
		return NetworkInfo{}, fmt.Errorf("failed to inspect network: %w", notFound(err, name))
	}

	var inspected []inspectedNetwork
	if err := json.Unmarshal([]byte(output), &inspected); err != nil {
		return NetworkInfo{}, fmt.Errorf("failed to parse network inspect output: %w", err)
	}
	if len(inspected) == 0 {
		return NetworkInfo{}, fmt.Errorf("failed to inspect network: %s: %w", name, ErrNotFound)
	}
	return NetworkInfo(inspected[0]), nil
}

// CreateNetwork creates a bridge network.
func (m *CLIManager) CreateNetwork(ctx context.Context, name string, internal bool) (NetworkInfo, error) {
	args := []string{"network", "create"}
	if internal {
		args = append(args, "--internal")
	}
	args = append(args, name)

	output, err := m.runner.Exec(ctx, args...)
	if err != nil {
		return NetworkInfo{}, fmt.Errorf("failed to create network: %w", err)
	}
	return NetworkInfo{ID: strings.TrimSpace(output), Name: name, Internal: internal}, nil
}

// ConnectNetwork attaches a container to an additional network.
func (m *CLIManager) ConnectNetwork(ctx context.Context, network string, id ContainerID) error {
	if _, err := m.runner.Exec(ctx, "network", "connect", network, string(id)); err != nil {
		return fmt.Errorf("failed to connect network: %w", err)
	}
	return nil
}

// RemoveNetwork removes a network by name.
func (m *CLIManager) RemoveNetwork(ctx context.Context, name string) error {
	if _, err := m.runner.Exec(ctx, "network", "rm", name); err != nil {
		return fmt.Errorf("failed to remove network: %w", notFound(err, name))
	}
	return nil
}

// InspectImage checks whether ref is present locally.
func (m *CLIManager) InspectImage(ctx context.Context, ref string) error {
	if _, err := m.runner.Exec(ctx, "image", "inspect", ref); err != nil {
		return fmt.Errorf("failed to inspect image: %w", notFound(err, ref))
	}
	return nil
}

// PullImage pulls ref from its registry.
func (m *CLIManager) PullImage(ctx context.Context, ref string) error {
	if _, err := m.runner.Exec(ctx, "pull", "--quiet", ref); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	return nil
}

// Verify CLIManager implements Runtime interface
var _ Runtime = (*CLIManager)(nil)
