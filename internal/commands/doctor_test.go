package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/dockstrap/internal/config"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/exec"
	"github.com/NielsdaWheelz/dockstrap/internal/exec/exectest"
	"github.com/NielsdaWheelz/dockstrap/internal/render"
)

type stubDaemon struct {
	version string
	err     error
}

func (d stubDaemon) Ping(context.Context) (string, error) { return d.version, d.err }

func toolsRunner() *exectest.FakeRunner {
	r := exectest.New()
	r.On("python3", []string{"--version"}, exec.CmdResult{Stdout: "Python 3.11.9\n"}, nil)
	r.On("docker", []string{"--version"}, exec.CmdResult{Stdout: "Docker version 27.3.1, build ce12230\n"}, nil)
	r.On("docker", []string{"compose", "version"}, exec.CmdResult{Stdout: "Docker Compose version v2.29.7\n"}, nil)
	return r
}

func TestDoctor_Report(t *testing.T) {
	var out bytes.Buffer
	err := Doctor(context.Background(), toolsRunner(), stubDaemon{version: "1.47"}, config.Default(),
		DoctorOpts{BaseDir: "/srv"}, &out)
	require.NoError(t, err)

	want := "base_dir: /srv\n" +
		"config_file: none\n" +
		"project_name: my_docker_django_app\n" +
		"python3_version: Python 3.11.9\n" +
		"docker_version: Docker version 27.3.1, build ce12230\n" +
		"docker_compose_version: Docker Compose version v2.29.7\n" +
		"daemon_api_version: 1.47\n" +
		"status: ok\n"
	assert.Equal(t, want, out.String())
}

func TestDoctor_NoDaemon(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Doctor(context.Background(), toolsRunner(), nil, config.Default(), DoctorOpts{BaseDir: "/srv"}, &out))
	assert.Contains(t, out.String(), "daemon_api_version: skipped\n")
}

func TestDoctor_MissingTool(t *testing.T) {
	r := exectest.New()
	r.On("python3", []string{"--version"}, exec.CmdResult{Stdout: "Python 3.11.9\n"}, nil)

	var out bytes.Buffer
	err := Doctor(context.Background(), r, stubDaemon{}, config.Default(), DoctorOpts{BaseDir: "/srv"}, &out)
	assert.Equal(t, errors.EToolMissing, errors.GetCode(err))
	assert.Contains(t, out.String(), "docker_version: missing\n")
	assert.Contains(t, out.String(), "docker_compose_version: missing\n")
	assert.NotContains(t, out.String(), "status: ok")
}

func TestDoctor_DaemonDown(t *testing.T) {
	var out bytes.Buffer
	err := Doctor(context.Background(), toolsRunner(), stubDaemon{err: assert.AnError}, config.Default(), DoctorOpts{}, &out)
	assert.Equal(t, errors.EDockerUnavailable, errors.GetCode(err))
}

func TestDoctor_JSON(t *testing.T) {
	var out bytes.Buffer
	err := Doctor(context.Background(), toolsRunner(), stubDaemon{version: "1.47"}, config.Default(),
		DoctorOpts{BaseDir: "/srv", ConfigFile: "/etc/dockstrap.yaml", JSON: true}, &out)
	require.NoError(t, err)

	var env struct {
		Data  render.DoctorSummary `json:"data"`
		Error *render.ErrorSummary `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &env))
	assert.Nil(t, env.Error)
	assert.Len(t, env.Data.Tools, 3)
	require.NotNil(t, env.Data.ConfigFile)
	assert.Equal(t, "/etc/dockstrap.yaml", *env.Data.ConfigFile)
	assert.True(t, env.Data.DaemonChecked)
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	Version(&out)
	assert.Equal(t, "dockstrap dev\n", out.String())
}
