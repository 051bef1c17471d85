// Package scaffold maintains the small support files dockstrap adds next to
// the generated project.
package scaffold

import (
	"os"
	"strings"

	"github.com/NielsdaWheelz/dockstrap/internal/fs"
)

// IgnoreResult indicates what happened to an ignore file.
type IgnoreResult string

const (
	IgnoreCreated   IgnoreResult = "created"
	IgnoreUpdated   IgnoreResult = "updated"
	IgnoreUnchanged IgnoreResult = "unchanged"
)

// DockerIgnoreEntries keep local state and secrets out of the build context.
var DockerIgnoreEntries = []string{".env", ".git/", "__pycache__/", "*.pyc", "db.sqlite3"}

// GitIgnoreEntries keep secrets and byte-code out of version control.
var GitIgnoreEntries = []string{".env", "__pycache__/", "*.pyc", "db.sqlite3"}

// EnsureIgnoreEntries makes sure every entry is listed in the ignore file at
// path (.gitignore or .dockerignore syntax). The file is created if missing;
// existing lines are kept in place and missing entries are appended once.
// "dir" and "dir/" count as the same entry.
func EnsureIgnoreEntries(fsys fs.FS, path string, entries []string) (IgnoreResult, error) {
	content, err := fsys.ReadFile(path)
	created := false
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		created = true
	}

	text := string(content)
	present := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		present[normalizeEntry(line)] = true
	}

	var missing []string
	for _, e := range entries {
		key := normalizeEntry(e)
		if key == "" || present[key] {
			continue
		}
		present[key] = true
		missing = append(missing, e)
	}

	if len(missing) == 0 && (len(text) == 0 || strings.HasSuffix(text, "\n")) {
		return IgnoreUnchanged, nil
	}

	if len(text) > 0 && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	for _, e := range missing {
		text += e + "\n"
	}

	if err := fs.WriteFileAtomic(fsys, path, []byte(text), 0o644); err != nil {
		return "", err
	}
	if created {
		return IgnoreCreated, nil
	}
	return IgnoreUpdated, nil
}

func normalizeEntry(line string) string {
	return strings.TrimSuffix(strings.TrimSpace(line), "/")
}
