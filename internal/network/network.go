// Package network maintains the per-job container networks: an external
// network with egress and an internal network without.
package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/RevCBH/jobrunner/internal/container"
	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/sirupsen/logrus"
)

// ErrIsolationMismatch is returned when an existing network does not have
// the requested internal setting.
var ErrIsolationMismatch = errors.New("network exists with a different internal setting")

// Topology names the two networks of a job.
type Topology struct {
	External container.NetworkInfo
	Internal container.NetworkInfo
}

// ExternalName is the network through which the proxy reaches the internet.
func ExternalName(jobID int64) string {
	return fmt.Sprintf("dependabot-job-%d-external-network", jobID)
}

// InternalName is the network shared by the proxy and the sandbox.
func InternalName(jobID int64) string {
	return fmt.Sprintf("dependabot-job-%d-internal-network", jobID)
}

// Manager creates and removes job networks.
type Manager struct {
	networks container.Networks
	log      *logrus.Entry
}

// NewManager creates a Manager. A nil log discards output.
func NewManager(networks container.Networks, log *logrus.Entry) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{networks: networks, log: log}
}

// Ensure returns the named network, creating it if it does not exist. An
// existing network is reused only when its internal setting matches.
func (m *Manager) Ensure(ctx context.Context, name string, internal bool) (container.NetworkInfo, error) {
	existing, err := m.networks.InspectNetwork(ctx, name)
	if err == nil {
		if existing.Internal != internal {
			return container.NetworkInfo{}, fmt.Errorf("network %s (internal=%t, want %t): %w",
				name, existing.Internal, internal, ErrIsolationMismatch)
		}
		return existing, nil
	}
	if !container.IsNotFound(err) {
		return container.NetworkInfo{}, fmt.Errorf("inspect network %s: %w", name, err)
	}

	created, err := m.networks.CreateNetwork(ctx, name, internal)
	if err != nil {
		return container.NetworkInfo{}, fmt.Errorf("create network %s: %w", name, err)
	}
	m.log.WithField("network", name).WithField("internal", internal).Debug("Created network")
	return created, nil
}

// Topology ensures both networks of a job exist.
func (m *Manager) Topology(ctx context.Context, jobID int64) (Topology, error) {
	external, err := m.Ensure(ctx, ExternalName(jobID), false)
	if err != nil {
		return Topology{}, err
	}
	internal, err := m.Ensure(ctx, InternalName(jobID), true)
	if err != nil {
		return Topology{}, err
	}
	return Topology{External: external, Internal: internal}, nil
}

// Remove removes networks in order. Missing networks are not an error.
func (m *Manager) Remove(ctx context.Context, names ...string) error {
	var errs []error
	for _, name := range names {
		if err := m.networks.RemoveNetwork(ctx, name); err != nil && !container.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("remove network %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
