package container_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RevCBH/jobrunner/internal/container"
	"github.com/RevCBH/jobrunner/internal/container/containertest"
	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertRemovedOnce(t *testing.T, rt *containertest.Runtime, name string) {
	t.Helper()
	assert.Equal(t, 1, rt.CallCount("remove "+name))
}

// runWithin fails the test instead of hanging when Run does not return.
func runWithin(t *testing.T, svc *container.Service, id container.ContainerID) error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- svc.Run(context.Background(), id, "updater") }()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func newService(t *testing.T) (*container.Service, *containertest.Runtime) {
	t.Helper()
	rt := containertest.New()
	return container.NewService(rt, logging.Discard()), rt
}

func create(t *testing.T, rt *containertest.Runtime, name string) container.ContainerID {
	t.Helper()
	id, err := rt.Create(context.Background(), container.ContainerConfig{Name: name, Image: "ghcr.io/dependabot/x:1"})
	require.NoError(t, err)
	return id
}

func TestService_RunSuccessRemovesContainer(t *testing.T) {
	svc, rt := newService(t)
	id := create(t, rt, "worker")

	require.NoError(t, svc.Run(context.Background(), id, "updater"))

	c, _ := rt.Container("worker")
	assert.True(t, c.Started)
	assertRemovedOnce(t, rt, "worker")
}

func TestService_RunNonZeroExit(t *testing.T) {
	svc, rt := newService(t)
	id := create(t, rt, "worker")
	rt.ExitCodes["worker"] = 1

	err := svc.Run(context.Background(), id, "updater")
	require.Error(t, err)

	var runtimeErr *container.RuntimeError
	require.ErrorAs(t, err, &runtimeErr)
	assert.Equal(t, 1, runtimeErr.ExitCode)
	assert.Equal(t, "the workload encountered one or more errors", err.Error())

	assertRemovedOnce(t, rt, "worker")
}

func TestService_RunStartFailureStillRemoves(t *testing.T) {
	svc, rt := newService(t)
	id := create(t, rt, "worker")
	rt.FailOn("start", "worker", errors.New("cannot start"))

	err := svc.Run(context.Background(), id, "updater")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot start")

	assertRemovedOnce(t, rt, "worker")
}

func TestService_RunRemovesAfterCancellation(t *testing.T) {
	svc, rt := newService(t)
	id := create(t, rt, "worker")
	rt.FailOn("wait", "worker", context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Run(ctx, id, "updater")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assertRemovedOnce(t, rt, "worker")
}

func TestService_RunWaitFailureWhileStillRunning(t *testing.T) {
	svc, rt := newService(t)
	id := create(t, rt, "worker")
	rt.FailOn("wait", "worker", errors.New("daemon hiccup"))
	rt.FollowLogs["worker"] = true

	err := runWithin(t, svc, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon hiccup")
	assertRemovedOnce(t, rt, "worker")
}

func TestService_RunStreamFailure(t *testing.T) {
	svc, rt := newService(t)
	id := create(t, rt, "worker")
	rt.FailOn("logs", "worker", errors.New("attach refused"))

	err := runWithin(t, svc, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attach refused")
	assertRemovedOnce(t, rt, "worker")
}

func TestService_RunStreamFailureAfterNonZeroExit(t *testing.T) {
	svc, rt := newService(t)
	id := create(t, rt, "worker")
	rt.ExitCodes["worker"] = 3
	rt.FailOn("logs", "worker", errors.New("attach refused"))

	err := runWithin(t, svc, id)
	var runtimeErr *container.RuntimeError
	require.ErrorAs(t, err, &runtimeErr)
	assert.Equal(t, 3, runtimeErr.ExitCode)
	assertRemovedOnce(t, rt, "worker")
}

func TestLogStreamer_StopBeforeStart(t *testing.T) {
	rt := containertest.New()
	id := create(t, rt, "worker")
	rt.FollowLogs["worker"] = true

	streamer := container.NewLogStreamer(id, rt, logging.Discard(), "updater")
	streamer.Stop()

	done := make(chan error, 1)
	go func() { done <- streamer.Start(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestService_RunRemovalErrorOnlyWhenNothingElseFailed(t *testing.T) {
	t.Run("success path surfaces removal error", func(t *testing.T) {
		svc, rt := newService(t)
		id := create(t, rt, "worker")
		rt.FailOn("remove", "worker", errors.New("device busy"))

		err := svc.Run(context.Background(), id, "updater")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "device busy")
	})

	t.Run("workload failure wins", func(t *testing.T) {
		svc, rt := newService(t)
		id := create(t, rt, "worker")
		rt.ExitCodes["worker"] = 2
		rt.FailOn("remove", "worker", errors.New("device busy"))

		err := svc.Run(context.Background(), id, "updater")
		var runtimeErr *container.RuntimeError
		require.ErrorAs(t, err, &runtimeErr)
		assert.NotContains(t, err.Error(), "device busy")
	})
}

func TestService_RunStreamsRedactedOutput(t *testing.T) {
	rt := containertest.New()
	redactor := logging.NewRedactor()
	redactor.AddSecret("hunter2")

	buf := &syncBuffer{}
	logger, err := logging.New(logging.Options{Format: logging.FormatJSON, Output: buf}, redactor)
	require.NoError(t, err)

	svc := container.NewService(rt, logrus.NewEntry(logger))
	id := create(t, rt, "worker")
	rt.Output["worker"] = "fetching with token hunter2\n"

	require.NoError(t, svc.Run(context.Background(), id, "updater"))

	// the pipe writer logs asynchronously
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "fetching with token")
	}, time.Second, 10*time.Millisecond)
	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), `"container":"updater"`)
}

func TestService_StoreInput(t *testing.T) {
	svc, rt := newService(t)
	id := create(t, rt, "worker")

	err := svc.StoreInput(context.Background(), id, "/home/dependabot/dependabot-updater", "job.json", map[string]any{"job": map[string]any{"id": 1}})
	require.NoError(t, err)
	require.NoError(t, svc.StoreCert(context.Background(), id, "/usr/local/share/ca-certificates", "dbot-ca.crt", []byte("PEM")))

	c, _ := rt.Container("worker")
	assert.JSONEq(t, `{"job":{"id":1}}`, string(c.Files["/home/dependabot/dependabot-updater/job.json"]))
	assert.Equal(t, "PEM", string(c.Files["/usr/local/share/ca-certificates/dbot-ca.crt"]))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
