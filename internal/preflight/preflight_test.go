package preflight

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/dockstrap/internal/config"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/exec"
	"github.com/NielsdaWheelz/dockstrap/internal/exec/exectest"
)

type fakeDaemon struct {
	version string
	err     error
	pinged  int
}

func (d *fakeDaemon) Ping(ctx context.Context) (string, error) {
	d.pinged++
	if _, ok := ctx.Deadline(); !ok {
		return "", stderrors.New("ping without deadline")
	}
	return d.version, d.err
}

func allToolsRunner() *exectest.FakeRunner {
	r := exectest.New()
	r.On("python3", []string{"--version"}, exec.CmdResult{Stdout: "Python 3.11.4\n"}, nil)
	r.On("docker", []string{"--version"}, exec.CmdResult{Stdout: "Docker version 27.3.1, build ce12230\n"}, nil)
	r.On("docker", []string{"compose", "version"}, exec.CmdResult{Stdout: "Docker Compose version v2.29.7\n"}, nil)
	return r
}

func TestRequiredTools_Defaults(t *testing.T) {
	tools := RequiredTools(config.Default())
	require.Len(t, tools, 3)

	assert.Equal(t, "python3", tools[0].Name)
	assert.Equal(t, []string{"--version"}, tools[0].Args)
	assert.Equal(t, "docker", tools[1].Name)
	assert.Equal(t, "docker compose", tools[2].Name)
	assert.Equal(t, "docker", tools[2].Command)
	assert.Equal(t, []string{"compose", "version"}, tools[2].Args)
}

func TestRequiredTools_DoesNotAliasComposeCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Compose.Command = make([]string, 2, 8)
	copy(cfg.Compose.Command, []string{"docker", "compose"})

	_ = RequiredTools(cfg)
	assert.Equal(t, []string{"docker", "compose"}, cfg.Compose.Command)
	assert.Equal(t, "", cfg.Compose.Command[:3][2])
}

func TestCheck_AllPresent(t *testing.T) {
	daemon := &fakeDaemon{version: "1.47"}
	c := NewChecker(allToolsRunner(), daemon)

	report, err := c.Check(context.Background(), RequiredTools(config.Default()))
	require.NoError(t, err)

	assert.Empty(t, report.Missing())
	assert.Equal(t, "Python 3.11.4", report.Tools[0].Version)
	assert.Equal(t, "Docker Compose version v2.29.7", report.Tools[2].Version)
	assert.True(t, report.DaemonChecked)
	assert.Equal(t, "1.47", report.DaemonAPIVersion)
	assert.Equal(t, 1, daemon.pinged)
}

func TestCheck_VersionOnStderr(t *testing.T) {
	r := allToolsRunner()
	r.On("python3", []string{"--version"}, exec.CmdResult{Stderr: "Python 2.7.18\n"}, nil)

	report, err := NewChecker(r, nil).Check(context.Background(), RequiredTools(config.Default()))
	require.NoError(t, err)
	assert.Equal(t, "Python 2.7.18", report.Tools[0].Version)
}

func TestCheck_ReportsEveryMissingTool(t *testing.T) {
	r := exectest.New()
	r.On("python3", []string{"--version"}, exec.CmdResult{Stdout: "Python 3.12.1\n"}, nil)
	// docker absent entirely; compose plugin probe exits non-zero
	r.On("docker", []string{"compose", "version"}, exec.CmdResult{ExitCode: 125}, nil)

	daemon := &fakeDaemon{version: "1.47"}
	report, err := NewChecker(r, daemon).Check(context.Background(), RequiredTools(config.Default()))
	require.Error(t, err)

	assert.Equal(t, errors.EToolMissing, errors.GetCode(err))
	assert.Equal(t, []string{"docker", "docker compose"}, report.Missing())
	assert.Contains(t, err.Error(), "docker, docker compose")

	be, ok := errors.AsBootError(err)
	require.True(t, ok)
	assert.Contains(t, be.Details["hint"], "docs.docker.com/get-docker")
	assert.Contains(t, be.Details["hint"], "Compose plugin")

	assert.Zero(t, daemon.pinged, "daemon must not be pinged when tools are missing")
	assert.Equal(t, 1, errors.ExitCode(err))
}

func TestCheck_DaemonUnavailable(t *testing.T) {
	daemon := &fakeDaemon{err: stderrors.New("Cannot connect to the Docker daemon")}

	report, err := NewChecker(allToolsRunner(), daemon).Check(context.Background(), RequiredTools(config.Default()))
	require.Error(t, err)

	assert.Equal(t, errors.EDockerUnavailable, errors.GetCode(err))
	assert.True(t, report.DaemonChecked)
	assert.ErrorIs(t, err, daemon.err)
}

func TestCheck_NilDaemonSkipsPing(t *testing.T) {
	report, err := NewChecker(allToolsRunner(), nil).Check(context.Background(), RequiredTools(config.Default()))
	require.NoError(t, err)
	assert.False(t, report.DaemonChecked)
}

func TestCheck_ProbesOnlyVersionCommands(t *testing.T) {
	r := allToolsRunner()
	_, err := NewChecker(r, nil).Check(context.Background(), RequiredTools(config.Default()))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"python3 --version",
		"docker --version",
		"docker compose version",
	}, r.Keys())
}
