// Package compose models the container artifacts: the image build file and
// the multi-service orchestration file.
package compose

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// File is the subset of the Compose specification dockstrap emits.
type File struct {
	Services map[string]Service `yaml:"services"`
	Volumes  map[string]Volume  `yaml:"volumes,omitempty"`
}

// Service is a single compose service.
type Service struct {
	Image       string            `yaml:"image,omitempty"`
	Build       string            `yaml:"build,omitempty"`
	Restart     string            `yaml:"restart,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty"`
}

// Volume is a named volume with default driver settings.
type Volume struct{}

// Params are the substitution points of the orchestration file.
type Params struct {
	AppService string
	DBService  string
	DBImage    string
	DBVolume   string
	Port       int
	// AppEnv lists the variables passed through to the app service.
	AppEnv []string
	// DBEnv maps database image variables to the env keys feeding them,
	// e.g. POSTGRES_DB -> DB_NAME.
	DBEnv map[string]string
}

// DefaultDBEnv wires the postgres image variables to the project env keys.
func DefaultDBEnv() map[string]string {
	return map[string]string{
		"POSTGRES_DB":       "DB_NAME",
		"POSTGRES_USER":     "DB_USER",
		"POSTGRES_PASSWORD": "DB_PASSWORD",
	}
}

// Ref returns the interpolation reference for key.
func Ref(key string) string {
	return "${" + key + "}"
}

// New builds the two-service orchestration model.
func New(p Params) *File {
	appEnv := make(map[string]string, len(p.AppEnv))
	for _, k := range p.AppEnv {
		appEnv[k] = Ref(k)
	}
	dbEnv := make(map[string]string, len(p.DBEnv))
	for k, v := range p.DBEnv {
		dbEnv[k] = Ref(v)
	}
	port := strconv.Itoa(p.Port)

	return &File{
		Services: map[string]Service{
			p.DBService: {
				Image:       p.DBImage,
				Restart:     "unless-stopped",
				Volumes:     []string{p.DBVolume + ":/var/lib/postgresql/data"},
				Environment: dbEnv,
			},
			p.AppService: {
				Build:       ".",
				Restart:     "unless-stopped",
				Ports:       []string{port + ":" + port},
				Environment: appEnv,
				DependsOn:   []string{p.DBService},
			},
		},
		Volumes: map[string]Volume{p.DBVolume: {}},
	}
}

// Render serialises the model. Map keys are emitted sorted, so output is
// deterministic.
func (f *File) Render() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode compose file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode compose file: %w", err)
	}
	return buf.Bytes(), nil
}

var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:[:?-][^}]*)?\}`)

// VarRefs returns the sorted, de-duplicated variable names referenced with
// ${VAR} anywhere in the services.
func (f *File) VarRefs() []string {
	seen := map[string]bool{}
	scan := func(s string) {
		for _, m := range varRef.FindAllStringSubmatch(s, -1) {
			seen[m[1]] = true
		}
	}
	for _, svc := range f.Services {
		scan(svc.Image)
		scan(svc.Build)
		for _, v := range svc.Volumes {
			scan(v)
		}
		for _, p := range svc.Ports {
			scan(p)
		}
		for _, v := range svc.Environment {
			scan(v)
		}
	}
	refs := make([]string, 0, len(seen))
	for k := range seen {
		refs = append(refs, k)
	}
	sort.Strings(refs)
	return refs
}

// Validate checks the structural invariants: the app service publishes port,
// depends on the database service, and the db volume is declared.
func (f *File) Validate(p Params) error {
	app, ok := f.Services[p.AppService]
	if !ok {
		return fmt.Errorf("compose: service %q missing", p.AppService)
	}
	if _, ok := f.Services[p.DBService]; !ok {
		return fmt.Errorf("compose: service %q missing", p.DBService)
	}

	published := false
	for _, spec := range app.Ports {
		mappings, err := nat.ParsePortSpec(spec)
		if err != nil {
			return fmt.Errorf("compose: service %q: invalid port %q: %w", p.AppService, spec, err)
		}
		for _, m := range mappings {
			if m.Port.Int() == p.Port {
				published = true
			}
		}
	}
	if !published {
		return fmt.Errorf("compose: service %q does not publish container port %d", p.AppService, p.Port)
	}

	dependsOnDB := false
	for _, d := range app.DependsOn {
		if d == p.DBService {
			dependsOnDB = true
		}
	}
	if !dependsOnDB {
		return fmt.Errorf("compose: service %q must depend on %q", p.AppService, p.DBService)
	}

	if _, ok := f.Volumes[p.DBVolume]; !ok {
		return fmt.Errorf("compose: volume %q not declared", p.DBVolume)
	}
	return nil
}
