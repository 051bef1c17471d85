// Package settings rewrites the generated Django settings module so that
// secrets, debug mode and the database connection come from the environment.
package settings

import (
	"fmt"
	"strings"

	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/fs"
)

// Marker precedes the appended DATABASES block. Its presence means the block
// has already been applied.
const Marker = "# dockstrap: database settings from environment"

// Params are the literal fallbacks baked into the patched module.
type Params struct {
	SecretKeyFallback string
	DebugFallback     string // "0" or "1"
	DB                DBDefaults
}

// DBDefaults are the fallbacks of the DATABASES block.
type DBDefaults struct {
	Engine   string
	Name     string
	User     string
	Password string
	Host     string
	Port     string
}

// Result reports what Patch changed.
type Result struct {
	ImportAdded        bool
	SecretKeyReplaced  bool
	DebugReplaced      bool
	DatabasesAppended  bool
	GeneratedDBRemoved bool
	EnvReads           []string // environment keys read anywhere in the patched module
	PatchKeys          []string // environment keys read by the statements Patch writes
}

// Changed reports whether the source was modified.
func (r Result) Changed() bool {
	return r.ImportAdded || r.SecretKeyReplaced || r.DebugReplaced || r.DatabasesAppended
}

func pyString(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

func envGet(key, fallback string) string {
	return "os.environ.get(" + pyString(key) + ", " + pyString(fallback) + ")"
}

// SecretKeyLine is the replacement for the generated SECRET_KEY assignment.
func SecretKeyLine(fallback string) string {
	return "SECRET_KEY = " + envGet("SECRET_KEY", fallback)
}

// DebugLine is the replacement for the generated DEBUG assignment.
func DebugLine(fallback string) string {
	return "DEBUG = " + envGet("DEBUG", fallback) + " == '1'"
}

// DatabasesBlock renders the env-driven DATABASES assignment.
func DatabasesBlock(db DBDefaults) string {
	fields := []struct{ name, key, fallback string }{
		{"ENGINE", "DB_ENGINE", db.Engine},
		{"NAME", "DB_NAME", db.Name},
		{"USER", "DB_USER", db.User},
		{"PASSWORD", "DB_PASSWORD", db.Password},
		{"HOST", "DB_HOST", db.Host},
		{"PORT", "DB_PORT", db.Port},
	}
	var b strings.Builder
	b.WriteString("DATABASES = {\n    'default': {\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "        %s: %s,\n", pyString(f.name), envGet(f.key, f.fallback))
	}
	b.WriteString("    }\n}")
	return b.String()
}

// Patch applies the environment rewrite to src. Applying it to its own
// output returns the output unchanged.
func Patch(src string, p Params) (string, Result, error) {
	var res Result

	m, err := Parse(src)
	if err != nil {
		return "", res, errors.Wrap(errors.ESettingsPatchFailed, "cannot parse settings module", err)
	}

	secret := m.Find("SECRET_KEY")
	if secret < 0 {
		return "", res, errors.New(errors.ESettingsPatchFailed, "settings module has no SECRET_KEY assignment")
	}
	debug := m.Find("DEBUG")
	if debug < 0 {
		return "", res, errors.New(errors.ESettingsPatchFailed, "settings module has no DEBUG assignment")
	}

	if want := SecretKeyLine(p.SecretKeyFallback); m.Statements[secret].Text != want {
		m.Statements[secret].Text = want
		res.SecretKeyReplaced = true
	}
	if want := DebugLine(p.DebugFallback); m.Statements[debug].Text != want {
		m.Statements[debug].Text = want
		res.DebugReplaced = true
	}

	if !m.HasComment(Marker) {
		if i := m.Find("DATABASES"); i >= 0 {
			m.Remove(i)
			res.GeneratedDBRemoved = true
		}
		m.Append(Statement{Text: Marker}, Statement{Text: DatabasesBlock(p.DB)})
		res.DatabasesAppended = true
	}

	if !m.ImportsOS() {
		m.Insert(m.importPosition(), Statement{Text: "import os"})
		res.ImportAdded = true
	}

	if n := m.Count("DATABASES"); n != 1 {
		return "", res, errors.New(errors.ESettingsPatchFailed,
			fmt.Sprintf("settings module assigns DATABASES %d times after patching", n))
	}

	res.EnvReads = m.EnvReads()
	res.PatchKeys = envReadsOf(SecretKeyLine(p.SecretKeyFallback), DebugLine(p.DebugFallback), DatabasesBlock(p.DB))
	return m.String(), res, nil
}

// PatchFile patches the settings module at path in place. The file is
// rewritten atomically, and only when the patch changed it.
func PatchFile(fsys fs.FS, path string, p Params) (Result, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return Result{}, errors.WrapWithDetails(errors.ESettingsNotFound,
			"cannot read settings module", err, map[string]string{"path": path})
	}

	out, res, err := Patch(string(data), p)
	if err != nil {
		if be, ok := errors.AsBootError(err); ok {
			be.Details = map[string]string{"path": path}
		}
		return res, err
	}

	if _, err := fs.WriteIfChanged(fsys, path, []byte(out), 0o644); err != nil {
		return res, errors.WrapWithDetails(errors.EPersistFailed,
			"failed to write settings module", err, map[string]string{"path": path})
	}
	return res, nil
}
