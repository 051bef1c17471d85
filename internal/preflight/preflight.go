// Package preflight verifies that the external tools the bootstrap delegates
// to are installed, before anything on disk is touched.
package preflight

import (
	"context"
	"strings"
	"time"

	"github.com/NielsdaWheelz/dockstrap/internal/config"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/exec"
)

// DefaultPingTimeout bounds the docker daemon ping.
const DefaultPingTimeout = 5 * time.Second

// Tool is a required external command and the probe used to detect it.
type Tool struct {
	Name    string   // display name, e.g. "docker compose"
	Command string   // executable
	Args    []string // version probe arguments
	Hint    string   // how to install it
}

// ToolStatus is the probe outcome for one tool.
type ToolStatus struct {
	Tool    Tool
	Version string // first line of the probe output; empty when missing
	Missing bool
}

// Report summarises a preflight run.
type Report struct {
	Tools            []ToolStatus
	DaemonChecked    bool
	DaemonAPIVersion string
}

// Missing returns the names of the tools that failed their probe.
func (r Report) Missing() []string {
	var names []string
	for _, ts := range r.Tools {
		if ts.Missing {
			names = append(names, ts.Tool.Name)
		}
	}
	return names
}

// DaemonPinger reports the API version of a reachable container daemon.
type DaemonPinger interface {
	Ping(ctx context.Context) (apiVersion string, err error)
}

// Checker runs the preflight probes.
type Checker struct {
	cr          exec.CommandRunner
	daemon      DaemonPinger
	pingTimeout time.Duration
}

// NewChecker creates a Checker. A nil daemon skips the daemon check.
func NewChecker(cr exec.CommandRunner, daemon DaemonPinger) *Checker {
	return &Checker{cr: cr, daemon: daemon, pingTimeout: DefaultPingTimeout}
}

// RequiredTools lists the tools a bootstrap run needs under cfg.
func RequiredTools(cfg *config.Config) []Tool {
	compose := cfg.Compose.Command
	composeArgs := append(append([]string{}, compose[1:]...), "version")

	return []Tool{
		{
			Name:    cfg.Python.Interpreter,
			Command: cfg.Python.Interpreter,
			Args:    []string{"--version"},
			Hint:    "install Python 3 with the venv module (e.g. apt install python3 python3-venv)",
		},
		{
			Name:    "docker",
			Command: "docker",
			Args:    []string{"--version"},
			Hint:    "install Docker from https://docs.docker.com/get-docker/",
		},
		{
			Name:    strings.Join(compose, " "),
			Command: compose[0],
			Args:    composeArgs,
			Hint:    "install the Docker Compose plugin (https://docs.docker.com/compose/install/)",
		},
	}
}

// Check probes every tool, then the daemon. All missing tools are reported
// together in a single E_TOOL_MISSING error; the daemon is only pinged when
// every tool is present.
func (c *Checker) Check(ctx context.Context, tools []Tool) (Report, error) {
	var report Report
	var hints []string

	for _, tool := range tools {
		status := ToolStatus{Tool: tool}
		result, err := c.cr.Run(ctx, tool.Command, tool.Args, exec.RunOpts{})
		if err != nil || result.ExitCode != 0 {
			status.Missing = true
			hints = append(hints, tool.Name+": "+tool.Hint)
		} else {
			status.Version = firstLine(result.Stdout)
			if status.Version == "" {
				status.Version = firstLine(result.Stderr)
			}
		}
		report.Tools = append(report.Tools, status)
	}

	if missing := report.Missing(); len(missing) > 0 {
		return report, errors.NewWithDetails(errors.EToolMissing,
			"required tools missing or not on PATH: "+strings.Join(missing, ", "),
			map[string]string{"hint": strings.Join(hints, "; ")})
	}

	if c.daemon == nil {
		return report, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	report.DaemonChecked = true
	apiVersion, err := c.daemon.Ping(pingCtx)
	if err != nil {
		return report, errors.WrapWithDetails(errors.EDockerUnavailable,
			"docker daemon is not reachable", err,
			map[string]string{"hint": "start the Docker daemon or set DOCKER_HOST"})
	}
	report.DaemonAPIVersion = apiVersion
	return report, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
