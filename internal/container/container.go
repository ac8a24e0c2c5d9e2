package container

// ContainerID is a unique identifier for a container.
// This is the full container ID returned by `docker create`, not the short form.
type ContainerID string

// ContainerConfig specifies container creation parameters.
type ContainerConfig struct {
	// Image is the container image (e.g., "ghcr.io/dependabot/dependabot-updater-npm:latest")
	Image string

	// Name is the container name (e.g., "dependabot-job-42-proxy")
	Name string

	// Env contains environment variables to set in the container.
	// Values never appear on the runtime command line.
	Env map[string]string

	// Entrypoint overrides the image entrypoint
	Entrypoint string

	// Cmd is the command and arguments to run
	Cmd []string

	// WorkDir is the working directory inside the container
	WorkDir string

	// Network is the network the container is attached to at creation
	Network string

	// Memory limits the container memory in bytes (0 = unlimited)
	Memory int64

	// Binds are host mounts in "host:container[:mode]" form
	Binds []string
}

// ContainerState is the observed state of a container.
type ContainerState struct {
	Running  bool
	ExitCode int

	// IPAddresses maps each attached network to the container's address on it
	IPAddresses map[string]string
}

// NetworkInfo describes an existing network.
type NetworkInfo struct {
	ID       string
	Name     string
	Internal bool
}
