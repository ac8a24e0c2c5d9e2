// Package containertest provides an in-memory container runtime for tests.
package containertest

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/RevCBH/jobrunner/internal/container"
)

// Container is the fake's record of a created container.
type Container struct {
	ID       container.ContainerID
	Config   container.ContainerConfig
	Networks []string
	Running  bool
	Started  bool
	Stopped  bool
	Removed  bool

	// Files holds every file copied into the container, keyed by absolute path.
	Files map[string][]byte

	seq int
}

// Runtime is an in-memory container.Runtime. The zero value is not usable;
// call New.
type Runtime struct {
	mu sync.Mutex

	containers map[container.ContainerID]*Container
	byName     map[string]*Container
	networks   map[string]container.NetworkInfo
	images     map[string]bool
	pullErrs   map[string][]error
	failures   map[string]error
	nextID     int
	calls      []string

	// ExitCodes maps a container name to the code Wait returns.
	ExitCodes map[string]int

	// Output maps a container name to what Logs writes to stdout.
	Output map[string]string

	// FollowLogs makes Logs for the named containers block until its
	// context ends, like logs -f on a container that keeps running.
	FollowLogs map[string]bool

	// OnStart runs when a container starts, before Wait returns. Use it to
	// emulate what the workload writes to its bind mounts.
	OnStart func(c *Container) error
}

// New returns an empty fake runtime.
func New() *Runtime {
	return &Runtime{
		containers: make(map[container.ContainerID]*Container),
		byName:     make(map[string]*Container),
		networks:   make(map[string]container.NetworkInfo),
		images:     make(map[string]bool),
		pullErrs:   make(map[string][]error),
		failures:   make(map[string]error),
		ExitCodes:  make(map[string]int),
		Output:     make(map[string]string),
		FollowLogs: make(map[string]bool),
	}
}

var _ container.Runtime = (*Runtime)(nil)

// FailOn makes op fail with err for target, which is a container name,
// network name or image reference. Ops are create, start, wait, logs, stop,
// remove, copy, inspect, network-inspect, network-create, network-connect,
// network-rm, image-inspect and pull.
func (r *Runtime) FailOn(op, target string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op+" "+target] = err
}

// AddImage marks ref as present locally.
func (r *Runtime) AddImage(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[ref] = true
}

// HasImage reports whether ref is present locally.
func (r *Runtime) HasImage(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.images[ref]
}

// QueuePullErrors makes the next pulls of ref fail with errs, in order.
func (r *Runtime) QueuePullErrors(ref string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pullErrs[ref] = append(r.pullErrs[ref], errs...)
}

// AddNetwork registers an existing network.
func (r *Runtime) AddNetwork(name string, internal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks[name] = container.NetworkInfo{ID: "net-" + name, Name: name, Internal: internal}
}

// Network returns a network by name.
func (r *Runtime) Network(name string) (container.NetworkInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.networks[name]
	return n, ok
}

// Container returns a container by name, including removed ones.
func (r *Runtime) Container(name string) (*Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[name]
	return c, ok
}

// Calls returns every operation performed, in order, as "op target".
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// CallCount counts calls equal to call.
func (r *Runtime) CallCount(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// record logs the call and returns the injected failure, if any. Callers
// hold r.mu.
func (r *Runtime) record(op, target string) error {
	r.calls = append(r.calls, op+" "+target)
	return r.failures[op+" "+target]
}

func (r *Runtime) lookup(id container.ContainerID) (*Container, error) {
	c, ok := r.containers[id]
	if !ok || c.Removed {
		return nil, fmt.Errorf("no such container %s: %w", id, container.ErrNotFound)
	}
	return c, nil
}

func (r *Runtime) Create(ctx context.Context, cfg container.ContainerConfig) (container.ContainerID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("create", cfg.Name); err != nil {
		return "", err
	}
	if existing, ok := r.byName[cfg.Name]; ok && !existing.Removed {
		return "", fmt.Errorf("container name %q is already in use", cfg.Name)
	}
	if cfg.Network != "" {
		if _, ok := r.networks[cfg.Network]; !ok {
			return "", fmt.Errorf("network %s not found", cfg.Network)
		}
	}

	r.nextID++
	c := &Container{
		ID:     container.ContainerID(fmt.Sprintf("c%04d", r.nextID)),
		Config: cfg,
		Files:  make(map[string][]byte),
		seq:    r.nextID,
	}
	if cfg.Network != "" {
		c.Networks = append(c.Networks, cfg.Network)
	}
	r.containers[c.ID] = c
	r.byName[cfg.Name] = c
	return c.ID, nil
}

func (r *Runtime) Start(ctx context.Context, id container.ContainerID) error {
	r.mu.Lock()
	c, err := r.lookup(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if err := r.record("start", c.Config.Name); err != nil {
		r.mu.Unlock()
		return err
	}
	c.Running = true
	c.Started = true
	hook := r.OnStart
	r.mu.Unlock()

	if hook != nil {
		return hook(c)
	}
	return nil
}

func (r *Runtime) Wait(ctx context.Context, id container.ContainerID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(id)
	if err != nil {
		return -1, err
	}
	if err := r.record("wait", c.Config.Name); err != nil {
		return -1, err
	}
	c.Running = false
	return r.ExitCodes[c.Config.Name], nil
}

func (r *Runtime) Logs(ctx context.Context, id container.ContainerID, stdout, stderr io.Writer) error {
	r.mu.Lock()
	c, err := r.lookup(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if err := r.record("logs", c.Config.Name); err != nil {
		r.mu.Unlock()
		return err
	}
	out := r.Output[c.Config.Name]
	follow := r.FollowLogs[c.Config.Name]
	r.mu.Unlock()

	if _, err := io.WriteString(stdout, out); err != nil {
		return err
	}
	if follow {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context, id container.ContainerID, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := r.record("stop", c.Config.Name); err != nil {
		return err
	}
	c.Running = false
	c.Stopped = true
	return nil
}

func (r *Runtime) Remove(ctx context.Context, id container.ContainerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := r.record("remove", c.Config.Name); err != nil {
		return err
	}
	c.Running = false
	c.Removed = true
	return nil
}

func (r *Runtime) CopyTo(ctx context.Context, id container.ContainerID, dir string, archive io.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := r.record("copy", c.Config.Name); err != nil {
		return err
	}

	tr := tar.NewReader(archive)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("read archive entry: %w", err)
		}
		c.Files[path.Join(dir, hdr.Name)] = data
	}
}

func (r *Runtime) Inspect(ctx context.Context, id container.ContainerID) (container.ContainerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(id)
	if err != nil {
		return container.ContainerState{}, err
	}
	if err := r.record("inspect", c.Config.Name); err != nil {
		return container.ContainerState{}, err
	}

	state := container.ContainerState{Running: c.Running, IPAddresses: make(map[string]string)}
	if c.Started {
		for i, network := range c.Networks {
			state.IPAddresses[network] = fmt.Sprintf("172.20.%d.%d", i, c.seq+1)
		}
	}
	return state, nil
}

func (r *Runtime) InspectNetwork(ctx context.Context, name string) (container.NetworkInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("network-inspect", name); err != nil {
		return container.NetworkInfo{}, err
	}
	n, ok := r.networks[name]
	if !ok {
		return container.NetworkInfo{}, fmt.Errorf("network %s: %w", name, container.ErrNotFound)
	}
	return n, nil
}

func (r *Runtime) CreateNetwork(ctx context.Context, name string, internal bool) (container.NetworkInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("network-create", name); err != nil {
		return container.NetworkInfo{}, err
	}
	if _, ok := r.networks[name]; ok {
		return container.NetworkInfo{}, fmt.Errorf("network with name %s already exists", name)
	}
	n := container.NetworkInfo{ID: "net-" + name, Name: name, Internal: internal}
	r.networks[name] = n
	return n, nil
}

func (r *Runtime) ConnectNetwork(ctx context.Context, network string, id container.ContainerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := r.record("network-connect", network+" "+c.Config.Name); err != nil {
		return err
	}
	if _, ok := r.networks[network]; !ok {
		return fmt.Errorf("network %s: %w", network, container.ErrNotFound)
	}
	c.Networks = append(c.Networks, network)
	return nil
}

func (r *Runtime) RemoveNetwork(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("network-rm", name); err != nil {
		return err
	}
	if _, ok := r.networks[name]; !ok {
		return fmt.Errorf("network %s: %w", name, container.ErrNotFound)
	}
	for _, c := range r.containers {
		if c.Removed {
			continue
		}
		for _, n := range c.Networks {
			if n == name {
				return fmt.Errorf("error while removing network: network %s has active endpoints", name)
			}
		}
	}
	delete(r.networks, name)
	return nil
}

func (r *Runtime) InspectImage(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("image-inspect", ref); err != nil {
		return err
	}
	if !r.images[ref] {
		return fmt.Errorf("no such image: %s: %w", ref, container.ErrNotFound)
	}
	return nil
}

func (r *Runtime) PullImage(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("pull", ref); err != nil {
		return err
	}
	if queue := r.pullErrs[ref]; len(queue) > 0 {
		r.pullErrs[ref] = queue[1:]
		return queue[0]
	}
	r.images[ref] = true
	return nil
}
