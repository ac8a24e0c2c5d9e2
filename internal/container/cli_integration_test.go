package container

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func integrationManager(t *testing.T) *CLIManager {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	runtime, err := DetectRuntime()
	if err != nil {
		t.Skip("no container runtime available")
	}
	return NewCLIManager(runtime)
}

func TestCLIManager_FullLifecycle(t *testing.T) {
	mgr := integrationManager(t)
	ctx := context.Background()

	cfg := ContainerConfig{
		Image: "alpine:latest",
		Name:  fmt.Sprintf("test-%d", time.Now().UnixNano()),
		Cmd:   []string{"sh", "-c", "echo hello && exit 42"},
	}

	// Create
	id, err := mgr.Create(ctx, cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() {
		mgr.Remove(context.Background(), id)
	})

	if id == "" {
		t.Error("Create returned empty container ID")
	}

	// Start
	if err := mgr.Start(ctx, id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait
	exitCode, err := mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if exitCode != 42 {
		t.Errorf("expected exit code 42, got %d", exitCode)
	}
}

func TestCLIManager_EnvAndLogStreams(t *testing.T) {
	mgr := integrationManager(t)
	ctx := context.Background()

	cfg := ContainerConfig{
		Image:   "alpine:latest",
		Name:    fmt.Sprintf("test-env-%d", time.Now().UnixNano()),
		Env:     map[string]string{"TEST_VAR": "test_value"},
		WorkDir: "/tmp",
		Cmd:     []string{"sh", "-c", "echo $TEST_VAR && pwd && echo oops >&2"},
	}

	id, err := mgr.Create(ctx, cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() {
		mgr.Remove(context.Background(), id)
	})

	if err := mgr.Start(ctx, id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	mgr.Wait(ctx, id)

	var stdout, stderr bytes.Buffer
	if err := mgr.Logs(ctx, id, &stdout, &stderr); err != nil {
		t.Fatalf("Logs failed: %v", err)
	}

	if !strings.Contains(stdout.String(), "test_value") {
		t.Error("environment variable not set correctly")
	}
	if !strings.Contains(stdout.String(), "/tmp") {
		t.Error("working directory not set correctly")
	}
	if !strings.Contains(stderr.String(), "oops") {
		t.Error("stderr not demultiplexed")
	}
}

func TestCLIManager_CopyToAndInspect(t *testing.T) {
	mgr := integrationManager(t)
	ctx := context.Background()

	cfg := ContainerConfig{
		Image: "alpine:latest",
		Name:  fmt.Sprintf("test-cp-%d", time.Now().UnixNano()),
		Cmd:   []string{"cat", "/tmp/input.json"},
	}

	id, err := mgr.Create(ctx, cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() {
		mgr.Remove(context.Background(), id)
	})

	archive, err := Archive(File{Name: "input.json", Content: []byte(`{"job":1}`)})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if err := mgr.CopyTo(ctx, id, "/tmp", archive); err != nil {
		t.Fatalf("CopyTo failed: %v", err)
	}

	if err := mgr.Start(ctx, id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if code, err := mgr.Wait(ctx, id); err != nil || code != 0 {
		t.Fatalf("Wait: code=%d err=%v", code, err)
	}

	state, err := mgr.Inspect(ctx, id)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if state.Running {
		t.Error("expected container to have exited")
	}

	var stdout, stderr bytes.Buffer
	if err := mgr.Logs(ctx, id, &stdout, &stderr); err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if !strings.Contains(stdout.String(), `{"job":1}`) {
		t.Errorf("copied file not readable, got %q", stdout.String())
	}
}

func TestCLIManager_StopContainer(t *testing.T) {
	mgr := integrationManager(t)
	ctx := context.Background()

	cfg := ContainerConfig{
		Image: "alpine:latest",
		Name:  fmt.Sprintf("test-stop-%d", time.Now().UnixNano()),
		Cmd:   []string{"sleep", "300"},
	}

	id, err := mgr.Create(ctx, cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() {
		mgr.Remove(context.Background(), id)
	})

	if err := mgr.Start(ctx, id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Stop with short timeout
	if err := mgr.Stop(ctx, id, 1*time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Container should now be stopped, Remove should work
	if err := mgr.Remove(ctx, id); err != nil {
		t.Errorf("Remove after stop failed: %v", err)
	}
}

func TestCLIManager_NetworkLifecycle(t *testing.T) {
	mgr := integrationManager(t)
	ctx := context.Background()
	name := fmt.Sprintf("test-net-%d", time.Now().UnixNano())

	if _, err := mgr.InspectNetwork(ctx, name); !IsNotFound(err) {
		t.Fatalf("expected not found before create, got %v", err)
	}

	info, err := mgr.CreateNetwork(ctx, name, true)
	if err != nil {
		t.Fatalf("CreateNetwork failed: %v", err)
	}
	t.Cleanup(func() {
		mgr.RemoveNetwork(context.Background(), name)
	})

	inspected, err := mgr.InspectNetwork(ctx, name)
	if err != nil {
		t.Fatalf("InspectNetwork failed: %v", err)
	}
	if !inspected.Internal {
		t.Error("expected internal network")
	}
	if info.Name != name {
		t.Errorf("expected name %s, got %s", name, info.Name)
	}

	if err := mgr.RemoveNetwork(ctx, name); err != nil {
		t.Fatalf("RemoveNetwork failed: %v", err)
	}
}
