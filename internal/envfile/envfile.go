// Package envfile models the .env file shared by the compose file and the
// patched settings module.
package envfile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// Entry is one KEY=value assignment.
type Entry struct {
	Key   string
	Value string
}

// File is an ordered set of assignments. Keys are unique.
type File struct {
	Entries []Entry
}

var validKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Set assigns key, keeping its position if it already exists.
func (f *File) Set(key, value string) {
	for i := range f.Entries {
		if f.Entries[i].Key == key {
			f.Entries[i].Value = value
			return
		}
	}
	f.Entries = append(f.Entries, Entry{Key: key, Value: value})
}

// Get returns the value of key.
func (f *File) Get(key string) (string, bool) {
	for _, e := range f.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Keys returns the keys in file order.
func (f *File) Keys() []string {
	keys := make([]string, len(f.Entries))
	for i, e := range f.Entries {
		keys[i] = e.Key
	}
	return keys
}

// Has reports whether key is defined.
func (f *File) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Validate rejects malformed keys and values that cannot be written on one line.
func (f *File) Validate() error {
	seen := map[string]bool{}
	for _, e := range f.Entries {
		if !validKey.MatchString(e.Key) {
			return fmt.Errorf("envfile: invalid key %q", e.Key)
		}
		if seen[e.Key] {
			return fmt.Errorf("envfile: duplicate key %q", e.Key)
		}
		seen[e.Key] = true
		if strings.ContainsAny(e.Value, "\n\r") {
			return fmt.Errorf("envfile: value of %s spans multiple lines", e.Key)
		}
	}
	return nil
}

// Render writes one KEY=value line per entry in order. Values that the
// compose and dotenv parsers would otherwise reinterpret are double-quoted.
func (f *File) Render() []byte {
	var b strings.Builder
	for _, e := range f.Entries {
		b.WriteString(e.Key)
		b.WriteByte('=')
		b.WriteString(quote(e.Value))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func quote(v string) string {
	if !strings.ContainsAny(v, " \t#\"'\\$`") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")
	return `"` + r.Replace(v) + `"`
}

// Parse reads an existing .env. Ordering follows first appearance in data;
// values are unquoted the way docker compose and python-dotenv do.
func Parse(data []byte) (*File, error) {
	values, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, fmt.Errorf("envfile: %w", err)
	}

	f := &File{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexAny(line, "=:")
		if line == "" || strings.HasPrefix(line, "#") || i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		if v, ok := values[key]; ok && !f.Has(key) {
			f.Entries = append(f.Entries, Entry{Key: key, Value: v})
		}
	}
	return f, nil
}
