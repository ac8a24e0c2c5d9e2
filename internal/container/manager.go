package container

import (
	"context"
	"io"
	"time"
)

// Manager provides container lifecycle management.
// Implementations must be safe for concurrent use.
type Manager interface {
	// Create creates a new container but does not start it.
	// Returns the container ID on success.
	Create(ctx context.Context, cfg ContainerConfig) (ContainerID, error)

	// Start starts a previously created container.
	Start(ctx context.Context, id ContainerID) error

	// Wait blocks until the container exits and returns the exit code.
	// Returns an error if the container doesn't exist or wait fails.
	Wait(ctx context.Context, id ContainerID) (exitCode int, err error)

	// Logs follows the container output until it exits, writing stdout and
	// stderr to the corresponding writers.
	Logs(ctx context.Context, id ContainerID, stdout, stderr io.Writer) error

	// Stop stops a running container. Sends SIGTERM, waits for timeout,
	// then sends SIGKILL if still running.
	Stop(ctx context.Context, id ContainerID, timeout time.Duration) error

	// Remove force-removes a container together with its anonymous volumes.
	Remove(ctx context.Context, id ContainerID) error

	// CopyTo extracts a tar archive into dir inside the container.
	CopyTo(ctx context.Context, id ContainerID, dir string, archive io.Reader) error

	// Inspect returns the current state of the container.
	Inspect(ctx context.Context, id ContainerID) (ContainerState, error)
}

// Networks manages container networks.
type Networks interface {
	// InspectNetwork returns ErrNotFound when the network does not exist.
	InspectNetwork(ctx context.Context, name string) (NetworkInfo, error)

	// CreateNetwork creates a network. Internal networks have no route to
	// the outside world.
	CreateNetwork(ctx context.Context, name string, internal bool) (NetworkInfo, error)

	// ConnectNetwork attaches a container to an additional network.
	ConnectNetwork(ctx context.Context, network string, id ContainerID) error

	// RemoveNetwork returns ErrNotFound when the network does not exist.
	RemoveNetwork(ctx context.Context, name string) error
}

// Images manages local images.
type Images interface {
	// InspectImage returns ErrNotFound when the image is not present locally.
	InspectImage(ctx context.Context, ref string) error

	// PullImage fetches ref from its registry.
	PullImage(ctx context.Context, ref string) error
}

// Runtime is the complete container runtime surface.
type Runtime interface {
	Manager
	Networks
	Images
}
