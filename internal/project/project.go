// Package project materialises the Django project skeleton with the
// framework's own generator.
package project

import (
	"context"
	"io"
	"path/filepath"

	"github.com/NielsdaWheelz/dockstrap/internal/config"
	"github.com/NielsdaWheelz/dockstrap/internal/core"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/exec"
	"github.com/NielsdaWheelz/dockstrap/internal/fs"
	"github.com/NielsdaWheelz/dockstrap/internal/venv"
)

// Layout holds the paths of a materialised project.
type Layout struct {
	Name         string
	Dir          string // <base>/<name>, holds manage.py and the emitted artifacts
	PackageDir   string // <base>/<name>/<name>
	SettingsPath string // <base>/<name>/<name>/settings.py
}

// LayoutFor computes the project paths without touching the filesystem.
func LayoutFor(baseDir, name string) Layout {
	dir := filepath.Join(baseDir, name)
	pkg := filepath.Join(dir, name)
	return Layout{
		Name:         name,
		Dir:          dir,
		PackageDir:   pkg,
		SettingsPath: filepath.Join(pkg, "settings.py"),
	}
}

// Materializer runs the project generator.
type Materializer struct {
	cr        exec.CommandRunner
	fs        fs.FS
	generator string

	Stdout io.Writer
	Stderr io.Writer
}

// NewMaterializer creates a Materializer invoking generator (e.g. django-admin)
// from the active virtual environment.
func NewMaterializer(cr exec.CommandRunner, fsys fs.FS, generator string) *Materializer {
	return &Materializer{cr: cr, fs: fsys, generator: generator}
}

// Result describes what Materialize did.
type Result struct {
	Layout  Layout
	Created bool
}

// Materialize creates <baseDir>/<name> with "startproject" unless it already
// exists, then checks that settings.py is in place. The working directory of
// the calling process is never changed.
func (m *Materializer) Materialize(ctx context.Context, baseDir, name string, env *venv.Env) (Result, error) {
	if !config.ValidProjectName(name) {
		return Result{}, errors.NewWithDetails(errors.EConfigInvalid,
			"project name must be a valid Python identifier: "+name,
			map[string]string{"field": "project.name"})
	}

	layout := LayoutFor(baseDir, name)
	exists, err := fs.Exists(m.fs, layout.Dir)
	if err != nil {
		return Result{}, errors.Wrap(errors.EGeneratorFailed, "failed to stat "+layout.Dir, err)
	}

	created := false
	if exists {
		isDir, err := fs.IsDir(m.fs, layout.Dir)
		if err != nil || !isDir {
			return Result{}, errors.WrapWithDetails(errors.EGeneratorFailed,
				layout.Dir+" exists and is not a directory", err, map[string]string{"path": layout.Dir})
		}
	} else {
		bin := m.generator
		var overlay map[string]string
		if env.Active() {
			bin = env.Bin(m.generator)
			overlay = env.Overlay()
		}
		args := []string{"startproject", name}
		res, err := m.cr.Run(ctx, bin, args, exec.RunOpts{
			Dir:    baseDir,
			Env:    overlay,
			Stdout: m.Stdout,
			Stderr: m.Stderr,
		})
		if err != nil || res.ExitCode != 0 {
			details := map[string]string{"command": core.InDir(baseDir, core.CommandLine(bin, args))}
			if tail := core.TailLines(res.Stderr, 5); tail != "" {
				details["stderr"] = tail
			}
			return Result{}, errors.WrapWithDetails(errors.EGeneratorFailed,
				"project generator failed for "+name, err, details)
		}
		created = true
	}

	ok, err := fs.Exists(m.fs, layout.SettingsPath)
	if err != nil || !ok {
		return Result{}, errors.WrapWithDetails(errors.ESettingsNotFound,
			"settings module not found after materialising "+name, err,
			map[string]string{"path": layout.SettingsPath})
	}

	return Result{Layout: layout, Created: created}, nil
}
