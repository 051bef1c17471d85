// Package manifest models the dependency manifest (requirements.txt) built
// from the output of pip freeze.
package manifest

import (
	"regexp"
	"strings"
)

// Requirement is one line of the manifest.
type Requirement struct {
	Name string // project name as written, e.g. "Django"
	Spec string // version specifier, e.g. "==5.0.6"; empty for bare names
	Raw  string // original line (trimmed)
}

// Key returns the normalised project name used for comparisons.
func (r Requirement) Key() string {
	return NormalizeName(r.Name)
}

// String renders the requirement as a manifest line.
func (r Requirement) String() string {
	return r.Raw
}

// Manifest is an ordered list of requirements.
type Manifest struct {
	Requirements []Requirement
}

var (
	nameSep = regexp.MustCompile(`[-_.]+`)
	// name, then optional extras/specifier/markers
	reqLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(.*)$`)
)

// NormalizeName applies PEP 503 normalisation: lowercase, runs of -_. become -.
func NormalizeName(name string) string {
	return nameSep.ReplaceAllString(strings.ToLower(name), "-")
}

// ParseRequirement parses a single manifest line. Lines that do not start
// with a project name (editable installs, URLs) keep an empty Name.
func ParseRequirement(line string) Requirement {
	line = strings.TrimSpace(line)
	r := Requirement{Raw: line}
	if m := reqLine.FindStringSubmatch(line); m != nil {
		r.Name = m[1]
		r.Spec = strings.TrimSpace(m[2])
	}
	return r
}

// Parse reads freeze output. Blank lines and comments are dropped; order is
// preserved.
func Parse(freeze string) *Manifest {
	m := &Manifest{}
	for _, line := range strings.Split(freeze, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.Requirements = append(m.Requirements, ParseRequirement(line))
	}
	return m
}

// matches reports whether r and other denote the same line, comparing names
// in normalised form.
func (r Requirement) matches(other Requirement) bool {
	if r.Name == "" || other.Name == "" {
		return r.Raw == other.Raw
	}
	return r.Key() == other.Key() && strings.ReplaceAll(r.Spec, " ", "") == strings.ReplaceAll(other.Spec, " ", "")
}

// RemoveDenied drops every requirement equal to a denylist entry and returns
// the removed lines.
func (m *Manifest) RemoveDenied(denylist []string) []string {
	denied := make([]Requirement, len(denylist))
	for i, d := range denylist {
		denied[i] = ParseRequirement(d)
	}

	var removed []string
	kept := m.Requirements[:0]
	for _, r := range m.Requirements {
		drop := false
		for _, d := range denied {
			if r.matches(d) {
				drop = true
				break
			}
		}
		if drop {
			removed = append(removed, r.Raw)
			continue
		}
		kept = append(kept, r)
	}
	m.Requirements = kept
	return removed
}

// Has reports whether a requirement for name (any version) is present.
func (m *Manifest) Has(name string) bool {
	key := NormalizeName(name)
	for _, r := range m.Requirements {
		if r.Name != "" && r.Key() == key {
			return true
		}
	}
	return false
}

// EnsureFramework appends line (e.g. "Django>=4.2") unless a requirement for
// the same project is already present. Reports whether it appended.
func (m *Manifest) EnsureFramework(line string) bool {
	req := ParseRequirement(line)
	if m.Has(req.Name) {
		return false
	}
	m.Requirements = append(m.Requirements, req)
	return true
}

// Contains reports whether an entry equal to line is present.
func (m *Manifest) Contains(line string) bool {
	want := ParseRequirement(line)
	for _, r := range m.Requirements {
		if r.matches(want) {
			return true
		}
	}
	return false
}

// Render returns the manifest text, one requirement per line with a
// trailing newline.
func (m *Manifest) Render() []byte {
	var b strings.Builder
	for _, r := range m.Requirements {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Build runs the full manifest policy: parse, strip denylisted entries,
// guarantee the framework line. It returns the removed lines and whether
// the framework line was appended.
func Build(freeze string, denylist []string, framework string) (m *Manifest, removed []string, frameworkAdded bool) {
	m = Parse(freeze)
	removed = m.RemoveDenied(denylist)
	frameworkAdded = m.EnsureFramework(framework)
	return m, removed, frameworkAdded
}
