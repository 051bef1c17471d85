package config

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/NielsdaWheelz/dockstrap/internal/errors"
)

// ValidationError represents a single validation error with field context.
type ValidationError struct {
	Field string
	Msg   string
}

func (v *ValidationError) Error() string {
	if v.Field != "" {
		return v.Field + ": " + v.Msg
	}
	return v.Msg
}

var (
	pythonIdent  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	composeIdent = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)
)

// pythonKeywords are names django-admin refuses as project names.
var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true, "assert": true,
	"async": true, "await": true, "break": true, "class": true, "continue": true,
	"def": true, "del": true, "elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true, "yield": true,
	"django": true, "test": true,
}

// ValidProjectName reports whether name can be used as a Django project name:
// a Python identifier that does not shadow a keyword or a well-known module.
func ValidProjectName(name string) bool {
	return pythonIdent.MatchString(name) && !pythonKeywords[name]
}

// Validate checks the configuration. It returns nil or an E_CONFIG_INVALID
// error whose cause is the first *ValidationError found.
func Validate(cfg *Config) error {
	if v := validate(cfg); v != nil {
		return errors.WrapWithDetails(errors.EConfigInvalid, "invalid configuration: "+v.Error(), v,
			map[string]string{"field": v.Field})
	}
	return nil
}

func validate(cfg *Config) *ValidationError {
	name := cfg.Project.Name
	if name == "" {
		return &ValidationError{Field: "project.name", Msg: "must not be empty"}
	}
	if !ValidProjectName(name) {
		return &ValidationError{Field: "project.name", Msg: "must be a valid Python identifier (letters, digits, underscores), got " + name}
	}

	if cfg.Python.Interpreter == "" || containsWhitespace(cfg.Python.Interpreter) {
		return &ValidationError{Field: "python.interpreter", Msg: "must be a single executable name"}
	}
	if cfg.Python.VenvDir == "" || filepath.IsAbs(cfg.Python.VenvDir) || strings.HasPrefix(filepath.Clean(cfg.Python.VenvDir), "..") {
		return &ValidationError{Field: "python.venv_dir", Msg: "must be a relative path inside the base directory"}
	}
	if cfg.Python.Generator == "" {
		return &ValidationError{Field: "python.generator", Msg: "must not be empty"}
	}
	if cfg.Python.FrameworkRequirement == "" {
		return &ValidationError{Field: "python.framework_requirement", Msg: "must not be empty"}
	}

	if cfg.Image.BaseImage == "" {
		return &ValidationError{Field: "image.base_image", Msg: "must not be empty"}
	}
	if !strings.HasPrefix(cfg.Image.Workdir, "/") {
		return &ValidationError{Field: "image.workdir", Msg: "must be an absolute container path"}
	}
	if cfg.Image.Port < 1 || cfg.Image.Port > 65535 {
		return &ValidationError{Field: "image.port", Msg: "must be between 1 and 65535"}
	}
	if cfg.Image.Workers < 1 {
		return &ValidationError{Field: "image.workers", Msg: "must be at least 1"}
	}
	if cfg.Image.BindHost == "" {
		return &ValidationError{Field: "image.bind_host", Msg: "must not be empty"}
	}
	if cfg.Image.User == "" || cfg.Image.User == "root" {
		return &ValidationError{Field: "image.user", Msg: "must name a non-root user"}
	}

	if len(cfg.Compose.Command) == 0 || cfg.Compose.Command[0] == "" {
		return &ValidationError{Field: "compose.command", Msg: "must not be empty"}
	}
	for field, svc := range map[string]string{
		"compose.app_service": cfg.Compose.AppService,
		"compose.db_service":  cfg.Compose.DBService,
		"compose.db_volume":   cfg.Compose.DBVolume,
	} {
		if !composeIdent.MatchString(svc) {
			return &ValidationError{Field: field, Msg: "must be lowercase letters, digits, '_', '.' or '-', got " + svc}
		}
	}
	if cfg.Compose.AppService == cfg.Compose.DBService {
		return &ValidationError{Field: "compose.app_service", Msg: "must differ from compose.db_service"}
	}
	if cfg.Compose.DBImage == "" {
		return &ValidationError{Field: "compose.db_image", Msg: "must not be empty"}
	}

	if cfg.Database.Engine == "" {
		return &ValidationError{Field: "database.engine", Msg: "must not be empty"}
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return &ValidationError{Field: "database.port", Msg: "must be between 1 and 65535"}
	}

	if strings.ContainsAny(cfg.Django.SecretKey, "\n\r") {
		return &ValidationError{Field: "django.secret_key", Msg: "must be a single line"}
	}
	if strings.ContainsAny(cfg.Django.SecretKeyFallback, "'\\\n") {
		return &ValidationError{Field: "django.secret_key_fallback", Msg: "must not contain quotes, backslashes or newlines"}
	}

	if cfg.Django.DebugFallback != "0" && cfg.Django.DebugFallback != "1" {
		return &ValidationError{Field: "django.debug_fallback", Msg: "must be \"0\" or \"1\""}
	}

	return nil
}

// containsWhitespace returns true if s contains any whitespace character.
func containsWhitespace(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// LoadAndValidate loads configuration and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, errors.Wrap(errors.EConfigInvalid, "failed to load configuration", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
