package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogStreamer copies a container's stdout and stderr into a logger, one log
// entry per line, tagged with a short container prefix.
type LogStreamer struct {
	containerID ContainerID
	manager     Manager
	log         *logrus.Entry

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	done    chan struct{}
	err     error
}

// NewLogStreamer creates a log streamer for a container.
func NewLogStreamer(id ContainerID, manager Manager, log *logrus.Entry, prefix string) *LogStreamer {
	return &LogStreamer{
		containerID: id,
		manager:     manager,
		log:         log.WithField("container", prefix),
		done:        make(chan struct{}),
	}
}

// Start streams logs until the container exits, ctx is cancelled, or Stop is
// called. It blocks; run it in a goroutine for background streaming.
func (s *LogStreamer) Start(ctx context.Context) error {
	var cancel context.CancelFunc
	ctx, cancel = context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	if s.stopped {
		cancel()
	}
	s.mu.Unlock()

	defer close(s.done)
	defer cancel()

	stdout := s.log.WithField("stream", "stdout").WriterLevel(logrus.InfoLevel)
	stderr := s.log.WithField("stream", "stderr").WriterLevel(logrus.InfoLevel)
	defer stdout.Close()
	defer stderr.Close()

	err := s.manager.Logs(ctx, s.containerID, stdout, stderr)
	if err != nil && ctx.Err() == nil {
		err = fmt.Errorf("failed to get container logs: %w", err)
	} else {
		err = nil
	}

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return err
}

// Stop halts log streaming. A Stop before Start makes Start return at once.
func (s *LogStreamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Done returns a channel that closes when streaming completes.
func (s *LogStreamer) Done() <-chan struct{} {
	return s.done
}

// Err returns the streaming error once Done is closed.
func (s *LogStreamer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
