// Package launcher drives the container toolchain: build and start the
// services, apply migrations, then create the admin account interactively.
package launcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/NielsdaWheelz/dockstrap/internal/core"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/exec"
)

// Stdio is the terminal the delegated commands are attached to.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Launcher runs compose commands in a project directory.
type Launcher struct {
	cr         exec.CommandRunner
	compose    []string
	app        string
	stdio      Stdio
	isTerminal func() bool
}

// New creates a Launcher. compose is the compose invocation (e.g.
// ["docker", "compose"]) and app the service running the project.
func New(cr exec.CommandRunner, compose []string, app string, stdio Stdio) *Launcher {
	return &Launcher{
		cr:         cr,
		compose:    compose,
		app:        app,
		stdio:      stdio,
		isTerminal: func() bool { return isTerminal(stdio.In) },
	}
}

// SetIsTerminal overrides TTY detection for testing.
func (l *Launcher) SetIsTerminal(fn func() bool) {
	l.isTerminal = fn
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// UpArgs returns the arguments that build and start the services detached.
func (l *Launcher) UpArgs() []string {
	return l.args("up", "-d", "--build")
}

// ManageArgs returns the arguments that run a manage.py command in a
// throwaway app container. -T is added when stdin is not a terminal.
func (l *Launcher) ManageArgs(command ...string) []string {
	run := []string{"run", "--rm"}
	if !l.isTerminal() {
		run = append(run, "-T")
	}
	run = append(run, l.app, "python", "manage.py")
	return l.args(append(run, command...)...)
}

func (l *Launcher) args(rest ...string) []string {
	out := append([]string{}, l.compose[1:]...)
	return append(out, rest...)
}

func (l *Launcher) run(ctx context.Context, dir string, args []string, stdin io.Reader) (exec.CmdResult, error) {
	if l.stdio.Out != nil {
		fmt.Fprintf(l.stdio.Out, "$ %s\n", core.CommandLine(l.compose[0], args))
	}
	return l.cr.Run(ctx, l.compose[0], args, exec.RunOpts{
		Dir:    dir,
		Stdin:  stdin,
		Stdout: l.stdio.Out,
		Stderr: l.stdio.Err,
	})
}

func (l *Launcher) failure(code errors.Code, msg, dir string, args []string, res exec.CmdResult, err error) error {
	details := map[string]string{
		"command": core.InDir(dir, core.CommandLine(l.compose[0], args)),
	}
	if err == nil {
		details["exit_code"] = fmt.Sprint(res.ExitCode)
	}
	if tail := core.TailLines(res.Stderr, 5); tail != "" {
		details["stderr"] = tail
	}
	return errors.WrapWithDetails(code, msg, err, details)
}

// Up builds the image and starts the services.
func (l *Launcher) Up(ctx context.Context, dir string) error {
	args := l.UpArgs()
	res, err := l.run(ctx, dir, args, nil)
	if err != nil || res.ExitCode != 0 {
		return l.failure(errors.EComposeUpFailed, "docker compose failed to build and start the services", dir, args, res, err)
	}
	return nil
}

// Migrate applies database migrations.
func (l *Launcher) Migrate(ctx context.Context, dir string) error {
	args := l.ManageArgs("migrate")
	res, err := l.run(ctx, dir, args, nil)
	if err != nil || res.ExitCode != 0 {
		return l.failure(errors.EMigrateFailed, "database migration failed", dir, args, res, err)
	}
	return nil
}

// CreateSuperuser runs the interactive admin account prompt with the
// user's terminal attached. An interrupted prompt yields E_INPUT_ABORTED.
func (l *Launcher) CreateSuperuser(ctx context.Context, dir string) error {
	args := l.ManageArgs("createsuperuser")
	res, err := l.run(ctx, dir, args, l.stdio.In)

	switch {
	case err != nil && (stderrors.Is(err, context.Canceled) || ctx.Err() != nil):
		return l.failure(errors.EInputAborted, "admin account creation was interrupted", dir, args, res, err)
	case err == nil && aborted(res):
		return l.failure(errors.EInputAborted, "admin account creation was interrupted", dir, args, res, nil)
	case err != nil || res.ExitCode != 0:
		return l.failure(errors.ESuperuserFailed, "admin account creation failed", dir, args, res, err)
	}
	return nil
}

// aborted recognises an interrupted prompt: SIGINT's exit status, or
// Django's own message for a KeyboardInterrupt.
func aborted(res exec.CmdResult) bool {
	if res.ExitCode == exec.ExitInterrupted {
		return true
	}
	return res.ExitCode != 0 && strings.Contains(res.Stderr, "Operation cancelled.")
}

// Launch runs Up, Migrate and, when superuser is set, CreateSuperuser.
func (l *Launcher) Launch(ctx context.Context, dir string, superuser bool) error {
	if err := l.Up(ctx, dir); err != nil {
		return err
	}
	if err := l.Migrate(ctx, dir); err != nil {
		return err
	}
	if !superuser {
		return nil
	}
	return l.CreateSuperuser(ctx, dir)
}
