package compose

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Instruction is one Dockerfile instruction.
type Instruction struct {
	Op   string   // FROM, ENV, RUN, ...
	Args []string // shell form: joined with spaces; exec form: JSON array
	Exec bool
}

// String renders the instruction as a single line.
func (i Instruction) String() string {
	if i.Exec {
		data, _ := json.Marshal(i.Args)
		return i.Op + " " + string(data)
	}
	return i.Op + " " + strings.Join(i.Args, " ")
}

// Dockerfile is an ordered list of instructions.
type Dockerfile struct {
	Instructions []Instruction
}

// ImageParams are the substitution points of the image build file.
type ImageParams struct {
	BaseImage string
	Workdir   string
	Port      int
	Workers   int
	BindHost  string
	User      string
	Module    string // project module name, e.g. my_docker_django_app
}

// WSGITarget returns the gunicorn application reference for module.
func WSGITarget(module string) string {
	return module + ".wsgi:application"
}

// NewDockerfile builds the image definition for a gunicorn-served project.
func NewDockerfile(p ImageParams) *Dockerfile {
	workdir := strings.TrimSuffix(p.Workdir, "/") + "/"
	return &Dockerfile{Instructions: []Instruction{
		{Op: "FROM", Args: []string{p.BaseImage}},
		{Op: "ENV", Args: []string{"PYTHONDONTWRITEBYTECODE=1"}},
		{Op: "ENV", Args: []string{"PYTHONUNBUFFERED=1"}},
		{Op: "WORKDIR", Args: []string{p.Workdir}},
		{Op: "COPY", Args: []string{"requirements.txt", workdir}},
		{Op: "RUN", Args: []string{"pip", "install", "--no-cache-dir", "-r", "requirements.txt"}},
		{Op: "COPY", Args: []string{".", workdir}},
		{Op: "RUN", Args: []string{"useradd", "--create-home", p.User, "&&", "chown", "-R", p.User, p.Workdir}},
		{Op: "USER", Args: []string{p.User}},
		{Op: "EXPOSE", Args: []string{strconv.Itoa(p.Port)}},
		{Op: "CMD", Exec: true, Args: []string{
			"gunicorn",
			"--workers", strconv.Itoa(p.Workers),
			"--bind", p.BindHost + ":" + strconv.Itoa(p.Port),
			WSGITarget(p.Module),
		}},
	}}
}

// Render returns the Dockerfile text, one instruction per line.
func (d *Dockerfile) Render() []byte {
	var b strings.Builder
	for _, in := range d.Instructions {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Find returns the instructions with the given op, in order.
func (d *Dockerfile) Find(op string) []Instruction {
	var out []Instruction
	for _, in := range d.Instructions {
		if in.Op == op {
			out = append(out, in)
		}
	}
	return out
}

// Validate checks that the image serves module and exposes port.
func (d *Dockerfile) Validate(module string, port int) error {
	if len(d.Instructions) == 0 || d.Instructions[0].Op != "FROM" {
		return fmt.Errorf("dockerfile: first instruction must be FROM")
	}

	cmds := d.Find("CMD")
	if len(cmds) != 1 {
		return fmt.Errorf("dockerfile: want exactly one CMD, got %d", len(cmds))
	}
	target := WSGITarget(module)
	found := false
	for _, a := range cmds[0].Args {
		if a == target {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("dockerfile: CMD does not serve %s", target)
	}

	exposes := d.Find("EXPOSE")
	if len(exposes) != 1 || len(exposes[0].Args) != 1 || exposes[0].Args[0] != strconv.Itoa(port) {
		return fmt.Errorf("dockerfile: EXPOSE must be exactly %d", port)
	}
	return nil
}
