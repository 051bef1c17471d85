// Package exectest provides a scripted exec.CommandRunner for tests.
package exectest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/NielsdaWheelz/dockstrap/internal/exec"
)

// Call records one invocation of the fake runner.
type Call struct {
	Name string
	Args []string
	Opts exec.RunOpts
}

// Key returns the lookup key for the call ("name arg1 arg2").
func (c Call) Key() string {
	return Key(c.Name, c.Args)
}

// HandlerFunc produces the outcome of a call. It may have side effects
// (creating files, reading stdin) to simulate the real command.
type HandlerFunc func(call Call) (exec.CmdResult, error)

// FakeRunner implements exec.CommandRunner from a table of scripted responses.
// Unconfigured commands fail as if the binary were not on PATH.
type FakeRunner struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []Call
}

// New creates an empty FakeRunner.
func New() *FakeRunner {
	return &FakeRunner{handlers: make(map[string]HandlerFunc)}
}

// Key joins a command name and its args the way FakeRunner matches them.
func Key(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

// On scripts a fixed result for name+args.
func (f *FakeRunner) On(name string, args []string, result exec.CmdResult, err error) {
	f.OnFunc(name, args, func(Call) (exec.CmdResult, error) { return result, err })
}

// OnFunc scripts a handler for name+args.
func (f *FakeRunner) OnFunc(name string, args []string, fn HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[Key(name, args)] = fn
}

// Run implements exec.CommandRunner.
func (f *FakeRunner) Run(ctx context.Context, name string, args []string, opts exec.RunOpts) (exec.CmdResult, error) {
	call := Call{Name: name, Args: append([]string(nil), args...), Opts: opts}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	fn, ok := f.handlers[call.Key()]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return exec.CmdResult{ExitCode: -1}, err
	}
	if !ok {
		return exec.CmdResult{}, fmt.Errorf("exec: %q: executable file not found in $PATH (fake: %s)", name, call.Key())
	}

	result, err := fn(call)
	if err == nil {
		if opts.Stdout != nil && result.Stdout != "" {
			_, _ = opts.Stdout.Write([]byte(result.Stdout))
		}
		if opts.Stderr != nil && result.Stderr != "" {
			_, _ = opts.Stderr.Write([]byte(result.Stderr))
		}
	}
	return result, err
}

// Calls returns a copy of the recorded calls in order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Keys returns the keys of the recorded calls in order.
func (f *FakeRunner) Keys() []string {
	calls := f.Calls()
	keys := make([]string, len(calls))
	for i, c := range calls {
		keys[i] = c.Key()
	}
	return keys
}

// Reset forgets recorded calls but keeps the scripted handlers.
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
