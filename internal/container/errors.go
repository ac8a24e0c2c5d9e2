package container

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a container, network or image does not exist.
var ErrNotFound = errors.New("not found")

// CommandError is returned when a runtime command exits unsuccessfully.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: %v\nstderr: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Stderr))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the object does not exist, either as
// ErrNotFound or as the runtime's "no such ..." message.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such") || strings.Contains(msg, "not found") || strings.Contains(msg, "not known")
}

// notFound converts runtime "no such" failures into ErrNotFound.
func notFound(err error, what string) error {
	if IsNotFound(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// RuntimeError is returned when a workload container exits non-zero.
type RuntimeError struct {
	Container string
	ExitCode  int
}

func (e *RuntimeError) Error() string {
	return "the workload encountered one or more errors"
}
