// Package commands implements dockstrap CLI commands.
package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/NielsdaWheelz/dockstrap/internal/config"
	"github.com/NielsdaWheelz/dockstrap/internal/exec"
	"github.com/NielsdaWheelz/dockstrap/internal/preflight"
	"github.com/NielsdaWheelz/dockstrap/internal/render"
)

// DoctorOpts holds the inputs of the doctor command.
type DoctorOpts struct {
	BaseDir    string
	ConfigFile string // empty when no file was loaded
	JSON       bool
}

// Doctor implements `dockstrap doctor`: it probes the required tools and
// the daemon and prints a key: value report. Nothing is written to disk.
// A nil daemon skips the daemon check.
func Doctor(ctx context.Context, cr exec.CommandRunner, daemon preflight.DaemonPinger, cfg *config.Config, opts DoctorOpts, stdout io.Writer) error {
	report, err := preflight.NewChecker(cr, daemon).Check(ctx, preflight.RequiredTools(cfg))

	if opts.JSON {
		summary := render.SummarizeDoctor(opts.BaseDir, opts.ConfigFile, cfg.Project.Name, report)
		if werr := render.WriteJSON(stdout, summary, err); werr != nil && err == nil {
			return werr
		}
		return err
	}

	writeDoctorOutput(stdout, opts, cfg, report, err == nil)
	return err
}

func writeDoctorOutput(w io.Writer, opts DoctorOpts, cfg *config.Config, r preflight.Report, ok bool) {
	fmt.Fprintf(w, "base_dir: %s\n", opts.BaseDir)
	fmt.Fprintf(w, "config_file: %s\n", orNone(opts.ConfigFile))
	fmt.Fprintf(w, "project_name: %s\n", cfg.Project.Name)

	for _, ts := range r.Tools {
		version := ts.Version
		if ts.Missing {
			version = "missing"
		}
		fmt.Fprintf(w, "%s_version: %s\n", reportKey(ts.Tool.Name), version)
	}

	if r.DaemonChecked {
		fmt.Fprintf(w, "daemon_api_version: %s\n", orNone(r.DaemonAPIVersion))
	} else {
		fmt.Fprintln(w, "daemon_api_version: skipped")
	}

	if ok {
		fmt.Fprintln(w, "status: ok")
	}
}

// reportKey turns a tool name like "docker compose" into "docker_compose".
func reportKey(name string) string {
	return strings.Join(strings.Fields(name), "_")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
