package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// SignalHandler cancels a job's context on SIGINT or SIGTERM. Cancellation
// interrupts retry waits and container waits; cleanup still runs because it
// uses contexts that survive cancellation.
type SignalHandler struct {
	signals  chan os.Signal
	shutdown chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	log      logrus.FieldLogger

	mu         sync.Mutex
	onShutdown []func()
	received   os.Signal
}

// NewSignalHandler creates a signal handler that calls cancel on interrupt.
func NewSignalHandler(cancel context.CancelFunc, log logrus.FieldLogger) *SignalHandler {
	return &SignalHandler{
		signals:  make(chan os.Signal, 1),
		shutdown: make(chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		cancel:   cancel,
		log:      log,
	}
}

// Start begins listening for signals
func (h *SignalHandler) Start() {
	h.start(true)
}

// start optionally skips signal.Notify so tests can feed h.signals directly.
func (h *SignalHandler) start(notify bool) {
	if notify {
		signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	}

	go func() {
		defer close(h.done)
		select {
		case sig := <-h.signals:
			h.handle(sig)
		case <-h.stopCh:
		}
	}()
}

func (h *SignalHandler) handle(sig os.Signal) {
	h.log.WithField("signal", sig.String()).Warn("Received signal, cancelling job")
	if h.cancel != nil {
		h.cancel()
	}

	h.mu.Lock()
	h.received = sig
	callbacks := append([]func(){}, h.onShutdown...)
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	close(h.shutdown)
}

// OnShutdown registers a callback to run after cancellation
func (h *SignalHandler) OnShutdown(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onShutdown = append(h.onShutdown, fn)
}

// Received returns the signal that triggered shutdown, or nil.
func (h *SignalHandler) Received() os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.received
}

// Shutdown is closed once a signal has been handled.
func (h *SignalHandler) Shutdown() <-chan struct{} {
	return h.shutdown
}

// Stop stops listening. It waits for an in-flight signal to be handled.
func (h *SignalHandler) Stop() {
	signal.Stop(h.signals)
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	<-h.done
}
