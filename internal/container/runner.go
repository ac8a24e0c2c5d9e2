package container

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
)

// Runner executes runtime CLI commands.
type Runner interface {
	Exec(ctx context.Context, args ...string) (string, error)
	ExecWithStdin(ctx context.Context, stdin io.Reader, args ...string) (string, error)

	// ExecWithEnv adds env ("NAME=value") to the command's environment.
	ExecWithEnv(ctx context.Context, env []string, args ...string) (string, error)

	// Stream copies the command's output to stdout and stderr as it arrives.
	Stream(ctx context.Context, stdout, stderr io.Writer, args ...string) error
}

// osRunner executes real runtime commands via exec.CommandContext.
type osRunner struct {
	bin string
}

// NewRunner returns a Runner invoking the given runtime binary.
func NewRunner(bin string) Runner {
	return osRunner{bin: bin}
}

func (r osRunner) run(cmd *exec.Cmd, args []string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{Args: append([]string{r.bin}, args...), Stderr: stderr.String(), Err: err}
	}

	return stdout.String(), nil
}

func (r osRunner) Exec(ctx context.Context, args ...string) (string, error) {
	return r.run(exec.CommandContext(ctx, r.bin, args...), args)
}

func (r osRunner) ExecWithStdin(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdin = stdin
	return r.run(cmd, args)
}

func (r osRunner) ExecWithEnv(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Env = append(os.Environ(), env...)
	return r.run(cmd, args)
}

func (r osRunner) Stream(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	var errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, &limitedBuffer{buf: &errBuf, max: 4096})

	if err := cmd.Run(); err != nil {
		return &CommandError{Args: append([]string{r.bin}, args...), Stderr: errBuf.String(), Err: err}
	}
	return nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}
