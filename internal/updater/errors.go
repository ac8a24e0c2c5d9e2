package updater

import (
	"errors"
	"fmt"
)

// ErrNoOutput means the fetch phase exited without writing output.json.
var ErrNoOutput = errors.New("no output produced by the sandbox container")

// OutputError wraps an output.json that could not be decoded.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("invalid sandbox output %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error {
	return e.Err
}
