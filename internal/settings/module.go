package settings

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Statement is one top-level statement of a Python module. Bracketed
// continuations, backslash continuations, multi-line strings and indented
// blocks are grouped with the line that opens them.
type Statement struct {
	Text string // source without the final newline; may span lines
}

var (
	assignTarget = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(?::[^=\n]+)?=(?:[^=]|$)`)
	importStmt   = regexp.MustCompile(`^import\s+([^#\n]+)`)
	envRead      = regexp.MustCompile(`os\.(?:environ\.get\(|getenv\(|environ\[)\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]`)
)

// Target returns the name bound by a simple assignment, or "".
func (s Statement) Target() string {
	if m := assignTarget.FindStringSubmatch(s.Text); m != nil {
		return m[1]
	}
	return ""
}

// Trivia reports whether the statement is blank or a comment.
func (s Statement) Trivia() bool {
	t := strings.TrimSpace(s.Text)
	return t == "" || strings.HasPrefix(t, "#")
}

// ImportsOS reports whether the statement binds the name os.
func (s Statement) ImportsOS() bool {
	m := importStmt.FindStringSubmatch(s.Text)
	if m == nil {
		return false
	}
	for _, name := range strings.Split(m[1], ",") {
		name = strings.TrimSpace(name)
		if name == "os" || strings.HasPrefix(name, "os.") && !strings.Contains(name, " as ") {
			return true
		}
	}
	return false
}

func (s Statement) isImport() bool {
	return strings.HasPrefix(s.Text, "import ") ||
		strings.HasPrefix(s.Text, "from ") && !strings.HasPrefix(s.Text, "from __future__")
}

// Module is a parsed Python source file.
type Module struct {
	Statements      []Statement
	trailingNewline bool
	crlf            bool // source used \r\n; statements hold \n
}

// Parse splits src into top-level statements. It fails on unbalanced
// brackets or unterminated strings. A CRLF source is normalised to LF and
// String restores CRLF on every line.
func Parse(src string) (*Module, error) {
	crlf := strings.Contains(src, "\r\n")
	if crlf {
		src = strings.ReplaceAll(src, "\r\n", "\n")
	}
	m := &Module{trailingNewline: strings.HasSuffix(src, "\n"), crlf: crlf}
	body := strings.TrimSuffix(src, "\n")
	if body == "" && !m.trailingNewline {
		return m, nil
	}

	var lines []string
	depth := 0
	quote := ""
	start := 0
	line := 1

	for i := 0; i < len(body); {
		c := body[i]
		if quote != "" {
			switch {
			case c == '\\':
				if i+1 < len(body) && body[i+1] == '\n' {
					line++
				}
				i += 2
			case strings.HasPrefix(body[i:], quote):
				i += len(quote)
				quote = ""
			case c == '\n' && len(quote) == 1:
				return nil, fmt.Errorf("line %d: unterminated string", line)
			default:
				if c == '\n' {
					line++
				}
				i++
			}
			continue
		}

		switch c {
		case '#':
			if j := strings.IndexByte(body[i:], '\n'); j >= 0 {
				i += j
			} else {
				i = len(body)
			}
			continue
		case '\'', '"':
			triple := strings.Repeat(string(c), 3)
			if strings.HasPrefix(body[i:], triple) {
				quote = triple
			} else {
				quote = string(c)
			}
			i += len(quote)
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("line %d: unbalanced %q", line, c)
			}
		case '\\':
			if i+1 < len(body) && body[i+1] == '\n' {
				line++
				i += 2
				continue
			}
		case '\n':
			line++
			if depth == 0 {
				lines = append(lines, body[start:i])
				start = i + 1
			}
		}
		i++
	}
	if quote != "" {
		return nil, fmt.Errorf("line %d: unterminated string", line)
	}
	if depth != 0 {
		return nil, fmt.Errorf("line %d: unclosed bracket", line)
	}
	lines = append(lines, body[start:])

	for _, l := range lines {
		st := Statement{Text: l}
		if indented(l) && len(m.Statements) > 0 {
			m.absorb(st)
			continue
		}
		m.Statements = append(m.Statements, st)
	}
	return m, nil
}

func indented(l string) bool {
	return strings.TrimSpace(l) != "" && (l[0] == ' ' || l[0] == '\t')
}

// absorb folds an indented line, and any blank or comment lines before it,
// into the preceding compound statement.
func (m *Module) absorb(st Statement) {
	var pending []string
	n := len(m.Statements)
	for n > 1 && m.Statements[n-1].Trivia() {
		pending = append([]string{m.Statements[n-1].Text}, pending...)
		n--
	}
	m.Statements = m.Statements[:n]
	owner := &m.Statements[n-1]
	parts := append(append([]string{owner.Text}, pending...), st.Text)
	owner.Text = strings.Join(parts, "\n")
}

// String re-serialises the module.
func (m *Module) String() string {
	texts := make([]string, len(m.Statements))
	for i, s := range m.Statements {
		texts[i] = s.Text
	}
	out := strings.Join(texts, "\n")
	if m.trailingNewline {
		out += "\n"
	}
	if m.crlf {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	return out
}

// Find returns the index of the first assignment to name, or -1.
func (m *Module) Find(name string) int {
	for i, s := range m.Statements {
		if s.Target() == name {
			return i
		}
	}
	return -1
}

// Count returns how many statements assign name.
func (m *Module) Count(name string) int {
	n := 0
	for _, s := range m.Statements {
		if s.Target() == name {
			n++
		}
	}
	return n
}

// HasComment reports whether a standalone comment line equal to c exists.
func (m *Module) HasComment(c string) bool {
	for _, s := range m.Statements {
		if strings.TrimSpace(s.Text) == c {
			return true
		}
	}
	return false
}

// ImportsOS reports whether any top-level statement binds os.
func (m *Module) ImportsOS() bool {
	for _, s := range m.Statements {
		if s.ImportsOS() {
			return true
		}
	}
	return false
}

// Insert places st at index i.
func (m *Module) Insert(i int, st Statement) {
	m.Statements = append(m.Statements, Statement{})
	copy(m.Statements[i+1:], m.Statements[i:])
	m.Statements[i] = st
}

// Remove deletes the statement at index i.
func (m *Module) Remove(i int) {
	m.Statements = append(m.Statements[:i], m.Statements[i+1:]...)
}

// Append adds statements at the end, separated from existing code by one
// blank line.
func (m *Module) Append(sts ...Statement) {
	if n := len(m.Statements); n > 0 && strings.TrimSpace(m.Statements[n-1].Text) != "" {
		m.Statements = append(m.Statements, Statement{})
	}
	m.Statements = append(m.Statements, sts...)
	m.trailingNewline = true
}

// importPosition returns where a new import belongs: before the first
// import, else after a leading docstring, else at the top.
func (m *Module) importPosition() int {
	for i, s := range m.Statements {
		if s.isImport() {
			return i
		}
	}
	for i, s := range m.Statements {
		if s.Trivia() {
			continue
		}
		if t := s.Text; strings.HasPrefix(t, `"""`) || strings.HasPrefix(t, `'''`) ||
			strings.HasPrefix(t, `"`) || strings.HasPrefix(t, `'`) {
			return i + 1
		}
		break
	}
	return 0
}

// EnvReads returns the sorted environment variable names the module reads.
func (m *Module) EnvReads() []string {
	texts := make([]string, len(m.Statements))
	for i, s := range m.Statements {
		texts[i] = s.Text
	}
	return envReadsOf(texts...)
}

func envReadsOf(texts ...string) []string {
	seen := map[string]bool{}
	for _, t := range texts {
		for _, mm := range envRead.FindAllStringSubmatch(t, -1) {
			seen[mm[1]] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
