// Package venv provisions the isolated Python environment the project is
// generated from, and exposes it to child processes as an explicit overlay.
package venv

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/NielsdaWheelz/dockstrap/internal/core"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/exec"
	"github.com/NielsdaWheelz/dockstrap/internal/fs"
)

// Env is an activated virtual environment. Child processes see it through
// Overlay; nothing is exported into the calling process.
type Env struct {
	Dir    string // absolute venv directory
	BinDir string // bin/ or Scripts/
	goos   string
	active bool
}

// Activate returns an active Env rooted at dir for the given GOOS.
func Activate(dir, goos string) *Env {
	return &Env{Dir: dir, BinDir: filepath.Join(dir, binDirName(goos)), goos: goos, active: true}
}

// Active reports whether the environment is still activated.
func (e *Env) Active() bool { return e != nil && e.active }

// Deactivate drops the activation. Further Overlay calls return nil.
func (e *Env) Deactivate() {
	if e != nil {
		e.active = false
	}
}

// Bin returns the path to an executable inside the environment.
func (e *Env) Bin(name string) string {
	if e.goos == "windows" {
		name += ".exe"
	}
	return filepath.Join(e.BinDir, name)
}

// ActivationScript is the path of the shell activation entry point.
func (e *Env) ActivationScript() string {
	return filepath.Join(e.BinDir, "activate")
}

// Overlay returns the environment variables that activation would set.
func (e *Env) Overlay() map[string]string {
	if !e.Active() {
		return nil
	}
	return map[string]string{
		"VIRTUAL_ENV": e.Dir,
		"PATH":        e.BinDir + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
}

func binDirName(goos string) string {
	if goos == "windows" {
		return "Scripts"
	}
	return "bin"
}

// Provisioner creates and populates virtual environments.
type Provisioner struct {
	cr          exec.CommandRunner
	fs          fs.FS
	interpreter string
	goos        string

	// Stdout and Stderr receive streamed output of pip. Optional.
	Stdout io.Writer
	Stderr io.Writer
}

// NewProvisioner creates a Provisioner that builds environments with interpreter.
func NewProvisioner(cr exec.CommandRunner, fsys fs.FS, interpreter string) *Provisioner {
	return &Provisioner{cr: cr, fs: fsys, interpreter: interpreter, goos: runtime.GOOS}
}

// Result describes what Ensure did.
type Result struct {
	Env     *Env
	Created bool
}

// Ensure makes sure <baseDir>/<venvDir> holds a usable environment and
// returns it activated. A directory this call created is deleted again if
// creation or the activation check fails; a pre-existing one is never touched.
func (p *Provisioner) Ensure(ctx context.Context, baseDir, venvDir string) (Result, error) {
	dir := filepath.Join(baseDir, venvDir)
	env := Activate(dir, p.goos)

	existed, err := fs.Exists(p.fs, dir)
	if err != nil {
		return Result{}, errors.Wrap(errors.EEnvCreateFailed, "failed to stat "+dir, err)
	}
	if existed {
		isDir, err := fs.IsDir(p.fs, dir)
		if err != nil {
			return Result{}, errors.Wrap(errors.EEnvCreateFailed, "failed to stat "+dir, err)
		}
		if !isDir {
			return Result{}, errors.NewWithDetails(errors.EEnvCreateFailed,
				dir+" exists and is not a directory", map[string]string{"path": dir})
		}
	} else {
		args := []string{"-m", "venv", venvDir}
		res, err := p.cr.Run(ctx, p.interpreter, args, exec.RunOpts{Dir: baseDir})
		if err != nil || res.ExitCode != 0 {
			p.discard(dir)
			details := map[string]string{
				"command": core.InDir(baseDir, core.CommandLine(p.interpreter, args)),
				"hint":    "the python3-venv package may be missing (e.g. apt install python3-venv)",
			}
			if tail := core.TailLines(res.Stderr, 5); tail != "" {
				details["stderr"] = tail
			}
			return Result{}, errors.WrapWithDetails(errors.EEnvCreateFailed,
				"failed to create virtual environment at "+dir, err, details)
		}
	}

	ok, err := fs.Exists(p.fs, env.ActivationScript())
	if err != nil || !ok {
		if !existed {
			p.discard(dir)
		}
		return Result{}, errors.WrapWithDetails(errors.EEnvActivationMissing,
			"virtual environment has no activation script", err,
			map[string]string{"path": env.ActivationScript()})
	}

	return Result{Env: env, Created: !existed}, nil
}

func (p *Provisioner) discard(dir string) {
	_ = p.fs.RemoveAll(dir)
}

// Install runs pip install for packages inside env.
func (p *Provisioner) Install(ctx context.Context, env *Env, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"install"}, packages...)
	res, err := p.cr.Run(ctx, env.Bin("pip"), args, exec.RunOpts{
		Env:    env.Overlay(),
		Stdout: p.Stdout,
		Stderr: p.Stderr,
	})
	if err != nil || res.ExitCode != 0 {
		return errors.WrapWithDetails(errors.EDependencyInstallFailed,
			"pip install failed: "+strings.Join(packages, " "), err, failureDetails(env.Bin("pip"), args, res))
	}
	return nil
}

// Freeze returns the output of pip freeze inside env.
func (p *Provisioner) Freeze(ctx context.Context, env *Env) (string, error) {
	args := []string{"freeze"}
	res, err := p.cr.Run(ctx, env.Bin("pip"), args, exec.RunOpts{Env: env.Overlay()})
	if err != nil || res.ExitCode != 0 {
		return "", errors.WrapWithDetails(errors.EFreezeFailed,
			"pip freeze failed", err, failureDetails(env.Bin("pip"), args, res))
	}
	return res.Stdout, nil
}

func failureDetails(name string, args []string, res exec.CmdResult) map[string]string {
	d := map[string]string{"command": core.CommandLine(name, args)}
	if tail := core.TailLines(res.Stderr, 5); tail != "" {
		d["stderr"] = tail
	}
	return d
}
