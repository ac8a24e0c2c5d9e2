package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// StubRunner is a scripted container runtime command runner. Responses are
// keyed by the space-joined argument list.
type StubRunner struct {
	mu       sync.Mutex
	stubs    map[string][]stubResponse
	defaults map[string]stubResponse
	calls    []Call
}

// Call is one recorded invocation.
type Call struct {
	Args  string
	Env   []string
	Stdin []byte
}

type stubResponse struct {
	out string
	err error
}

func NewStubRunner() *StubRunner {
	return &StubRunner{
		stubs:    make(map[string][]stubResponse),
		defaults: make(map[string]stubResponse),
	}
}

func (s *StubRunner) Stub(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[args] = append(s.stubs[args], stubResponse{out: out, err: err})
}

func (s *StubRunner) StubDefault(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[args] = stubResponse{out: out, err: err}
}

func (s *StubRunner) respond(call Call) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	queue := s.stubs[call.Args]
	if len(queue) == 0 {
		if resp, ok := s.defaults[call.Args]; ok {
			return resp.out, resp.err
		}
		return "", fmt.Errorf("unexpected runtime call: %s", call.Args)
	}
	resp := queue[0]
	s.stubs[call.Args] = queue[1:]
	return resp.out, resp.err
}

func (s *StubRunner) Exec(ctx context.Context, args ...string) (string, error) {
	return s.respond(Call{Args: strings.Join(args, " ")})
}

func (s *StubRunner) ExecWithStdin(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return s.respond(Call{Args: strings.Join(args, " "), Stdin: data})
}

func (s *StubRunner) ExecWithEnv(ctx context.Context, env []string, args ...string) (string, error) {
	return s.respond(Call{Args: strings.Join(args, " "), Env: append([]string(nil), env...)})
}

// Stream writes the stubbed output to stdout.
func (s *StubRunner) Stream(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	out, err := s.respond(Call{Args: strings.Join(args, " ")})
	if out != "" {
		_, _ = io.WriteString(stdout, out)
	}
	return err
}

func (s *StubRunner) CallsFor(args ...string) int {
	key := strings.Join(args, " ")
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if call.Args == key {
			count++
		}
	}
	return count
}

// Calls returns every recorded invocation in order.
func (s *StubRunner) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
