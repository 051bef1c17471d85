// Package render provides output formatting for dockstrap commands.
package render

import (
	"encoding/json"
	"io"

	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/pipeline"
	"github.com/NielsdaWheelz/dockstrap/internal/preflight"
)

// SchemaVersion is the version of every --json envelope.
const SchemaVersion = "1.0"

// Envelope is the stable JSON output format for --json.
type Envelope struct {
	SchemaVersion string        `json:"schema_version"`
	Data          any           `json:"data"`
	Error         *ErrorSummary `json:"error"`
}

// ErrorSummary is the JSON form of a failure.
type ErrorSummary struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// FileSummary reports one emitted file.
type FileSummary struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Changed bool   `json:"changed"`
}

// RunSummary is the public contract for the result of a bootstrap or emit run.
type RunSummary struct {
	RunID string `json:"run_id"`
	Mode  string `json:"mode"`

	// Stage is DONE or FAILED.
	Stage string `json:"stage"`

	// FailedStage is the stage that failed (null on success).
	FailedStage *string `json:"failed_stage"`

	BaseDir    string  `json:"base_dir"`
	ProjectDir *string `json:"project_dir"`

	VenvCreated     bool          `json:"venv_created"`
	ProjectCreated  bool          `json:"project_created"`
	Files           []FileSummary `json:"files"`
	SecretSource    *string       `json:"secret_source"`
	SettingsChanged bool          `json:"settings_changed"`
	Launched        bool          `json:"launched"`
}

// ToolSummary reports one probed tool.
type ToolSummary struct {
	Name    string `json:"name"`
	Found   bool   `json:"found"`
	Version string `json:"version,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// DoctorSummary is the public contract for doctor --json.
type DoctorSummary struct {
	BaseDir          string        `json:"base_dir"`
	ConfigFile       *string       `json:"config_file"`
	ProjectName      string        `json:"project_name"`
	Tools            []ToolSummary `json:"tools"`
	DaemonChecked    bool          `json:"daemon_checked"`
	DaemonAPIVersion *string       `json:"daemon_api_version"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SummarizeRun converts a pipeline state into its JSON form.
func SummarizeRun(st *pipeline.State) RunSummary {
	s := RunSummary{
		RunID:           st.RunID,
		Mode:            string(st.Mode),
		Stage:           string(st.Stage),
		FailedStage:     strPtr(string(st.FailedStage)),
		BaseDir:         st.BaseDir,
		ProjectDir:      strPtr(st.ProjectDir),
		VenvCreated:     st.VenvCreated,
		ProjectCreated:  st.ProjectCreated,
		Files:           []FileSummary{},
		SecretSource:    strPtr(st.SecretSource),
		SettingsChanged: st.Settings.Changed(),
		Launched:        st.Launched,
	}
	for _, f := range st.Emitted {
		s.Files = append(s.Files, FileSummary{Name: f.Name, Path: f.Path, Changed: f.Changed})
	}
	return s
}

// SummarizeDoctor converts a preflight report into its JSON form.
func SummarizeDoctor(baseDir, configFile, projectName string, r preflight.Report) DoctorSummary {
	s := DoctorSummary{
		BaseDir:          baseDir,
		ConfigFile:       strPtr(configFile),
		ProjectName:      projectName,
		Tools:            []ToolSummary{},
		DaemonChecked:    r.DaemonChecked,
		DaemonAPIVersion: strPtr(r.DaemonAPIVersion),
	}
	for _, ts := range r.Tools {
		t := ToolSummary{Name: ts.Tool.Name, Found: !ts.Missing, Version: ts.Version}
		if ts.Missing {
			t.Hint = ts.Tool.Hint
		}
		s.Tools = append(s.Tools, t)
	}
	return s
}

// SummarizeError converts err into its JSON form. Returns nil for nil.
func SummarizeError(err error) *ErrorSummary {
	if err == nil {
		return nil
	}
	be, ok := errors.AsBootError(err)
	if !ok {
		return &ErrorSummary{Code: string(errors.EInternal), Message: err.Error()}
	}
	return &ErrorSummary{Code: string(be.Code), Message: be.Msg, Details: be.Details}
}

// WriteJSON writes data and err as an indented envelope.
func WriteJSON(w io.Writer, data any, err error) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Envelope{
		SchemaVersion: SchemaVersion,
		Data:          data,
		Error:         SummarizeError(err),
	})
}
