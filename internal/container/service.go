package container

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/sirupsen/logrus"
)

// Service runs workload containers to completion and feeds them input files.
type Service struct {
	manager Manager
	log     *logrus.Entry
}

// NewService creates a Service over manager.
func NewService(manager Manager, log *logrus.Entry) *Service {
	return &Service{manager: manager, log: log}
}

// Run starts the created container, streams its output with the given
// prefix, and waits for it to exit. The container is removed exactly once on
// every path. A non-zero exit yields *RuntimeError, and an output streaming
// failure is returned after a clean exit; a removal failure is returned only
// when nothing else failed.
func (s *Service) Run(ctx context.Context, id ContainerID, prefix string) (err error) {
	log := s.log.WithField("container_id", string(id))

	defer func() {
		// removal must happen even when ctx was cancelled
		if rmErr := s.manager.Remove(context.WithoutCancel(ctx), id); rmErr != nil {
			log.WithError(rmErr).Warn("Failed to remove container")
			if err == nil {
				err = fmt.Errorf("remove container: %w", rmErr)
			}
		}
	}()

	if err := s.manager.Start(ctx, id); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	log.Debug("Started container")

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	streamer := NewLogStreamer(id, s.manager, s.log, prefix)
	go func() {
		_ = streamer.Start(streamCtx)
	}()

	exitCode, waitErr := s.manager.Wait(ctx, id)
	if waitErr != nil {
		// the container may still be running, so logs -f would never end
		cancelStream()
		<-streamer.Done()
		return fmt.Errorf("wait for container: %w", waitErr)
	}
	<-streamer.Done()

	log.WithField("exit_code", exitCode).Debug("Container exited")
	if exitCode != 0 {
		return &RuntimeError{Container: prefix, ExitCode: exitCode}
	}
	if err := streamer.Err(); err != nil {
		return fmt.Errorf("stream container output: %w", err)
	}
	return nil
}

// StoreInput JSON-encodes v and copies it to dir/name inside the container.
func (s *Service) StoreInput(ctx context.Context, id ContainerID, dir, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.store(ctx, id, dir, name, data)
}

// StoreCert copies a PEM certificate to dir/name inside the container.
func (s *Service) StoreCert(ctx context.Context, id ContainerID, dir, name string, pem []byte) error {
	return s.store(ctx, id, dir, name, pem)
}

func (s *Service) store(ctx context.Context, id ContainerID, dir, name string, data []byte) error {
	archive, err := Archive(File{Name: name, Content: data})
	if err != nil {
		return err
	}
	if err := s.manager.CopyTo(ctx, id, dir, archive); err != nil {
		return fmt.Errorf("store %s: %w", path.Join(dir, name), err)
	}
	return nil
}
