package render

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/dockstrap/internal/emit"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/pipeline"
	"github.com/NielsdaWheelz/dockstrap/internal/preflight"
	"github.com/NielsdaWheelz/dockstrap/internal/settings"
)

func TestWriteJSON_RunSuccess(t *testing.T) {
	st := &pipeline.State{
		RunID:        "run-1",
		Mode:         pipeline.ModeBootstrap,
		Stage:        pipeline.StageDone,
		BaseDir:      "/srv",
		ProjectDir:   "/srv/site",
		VenvCreated:  true,
		Emitted:      []emit.FileResult{{Name: "Dockerfile", Path: "/srv/site/Dockerfile", Changed: true}},
		SecretSource: emit.SecretFromGenerator,
		Settings:     settings.Result{DatabasesAppended: true},
		Launched:     true,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, SummarizeRun(st), nil))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "1.0", got["schema_version"])
	assert.Nil(t, got["error"])

	data := got["data"].(map[string]any)
	assert.Equal(t, "run-1", data["run_id"])
	assert.Equal(t, "DONE", data["stage"])
	assert.Nil(t, data["failed_stage"])
	assert.Equal(t, "generated", data["secret_source"])
	assert.Equal(t, true, data["settings_changed"])
	assert.Len(t, data["files"], 1)
}

func TestWriteJSON_RunFailure(t *testing.T) {
	st := &pipeline.State{
		RunID:       "run-2",
		Mode:        pipeline.ModeEmit,
		Stage:       pipeline.StageFailed,
		FailedStage: pipeline.StageProvisioningEnv,
		BaseDir:     "/srv",
	}
	runErr := errors.NewWithDetails(errors.EEnvActivationMissing, "no virtual environment", map[string]string{"path": "/srv/venv"})

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, SummarizeRun(st), runErr))

	var got struct {
		Data  RunSummary    `json:"data"`
		Error *ErrorSummary `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.NotNil(t, got.Error)
	assert.Equal(t, "E_ENV_ACTIVATION_MISSING", got.Error.Code)
	assert.Equal(t, "/srv/venv", got.Error.Details["path"])
	require.NotNil(t, got.Data.FailedStage)
	assert.Equal(t, "PROVISIONING_ENV", *got.Data.FailedStage)
	assert.Nil(t, got.Data.ProjectDir)
	assert.Empty(t, got.Data.Files)
}

func TestSummarizeError_Uncoded(t *testing.T) {
	s := SummarizeError(assert.AnError)
	assert.Equal(t, "E_INTERNAL", s.Code)
	assert.Nil(t, SummarizeError(nil))
}

func TestSummarizeDoctor(t *testing.T) {
	r := preflight.Report{
		Tools: []preflight.ToolStatus{
			{Tool: preflight.Tool{Name: "python3"}, Version: "Python 3.11.9"},
			{Tool: preflight.Tool{Name: "docker", Hint: "install Docker"}, Missing: true},
		},
	}
	s := SummarizeDoctor("/srv", "", "my_docker_django_app", r)
	assert.Nil(t, s.ConfigFile)
	assert.Nil(t, s.DaemonAPIVersion)
	assert.Equal(t, []ToolSummary{
		{Name: "python3", Found: true, Version: "Python 3.11.9"},
		{Name: "docker", Found: false, Hint: "install Docker"},
	}, s.Tools)
}
