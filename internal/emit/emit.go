// Package emit builds the container artifacts of a project from structured
// models, checks them against each other, and writes them.
package emit

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"

	"github.com/NielsdaWheelz/dockstrap/internal/compose"
	"github.com/NielsdaWheelz/dockstrap/internal/config"
	"github.com/NielsdaWheelz/dockstrap/internal/envfile"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/fs"
	"github.com/NielsdaWheelz/dockstrap/internal/manifest"
	"github.com/NielsdaWheelz/dockstrap/internal/scaffold"
)

// Artifact file names, relative to the project directory.
const (
	RequirementsFile = "requirements.txt"
	DockerfileFile   = "Dockerfile"
	ComposeFile      = "docker-compose.yml"
	EnvFile          = ".env"
	DockerIgnoreFile = ".dockerignore"
	GitIgnoreFile    = ".gitignore"
)

// EnvKeys are the variables defined in .env, in file order.
var EnvKeys = []string{"SECRET_KEY", "DEBUG", "DB_ENGINE", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT"}

// Secret key sources.
const (
	SecretFromConfig    = "config"
	SecretFromEnvFile   = "existing"
	SecretFromGenerator = "generated"
)

// Artifacts is the structured form of everything written to the project.
type Artifacts struct {
	Requirements *manifest.Manifest
	Dockerfile   *compose.Dockerfile
	Compose      *compose.File
	Env          *envfile.File

	DeniedRemoved  []string
	FrameworkAdded bool
	SecretSource   string
}

// FileResult reports one written file.
type FileResult struct {
	Name    string
	Path    string
	Changed bool
}

// Result is the outcome of Emit.
type Result struct {
	Artifacts *Artifacts
	Files     []FileResult
}

// Emitter builds and writes artifacts for one configuration.
type Emitter struct {
	fs        fs.FS
	cfg       *config.Config
	newSecret func() (string, error)
}

// New creates an Emitter.
func New(fsys fs.FS, cfg *config.Config) *Emitter {
	return &Emitter{fs: fsys, cfg: cfg, newSecret: GenerateSecretKey}
}

// secretChars is Django's secret key alphabet without '#' and '$', which
// dotenv parsers treat specially.
const secretChars = "abcdefghijklmnopqrstuvwxyz0123456789!@%^&*(-_=+)"

// GenerateSecretKey returns a random 50 character secret key.
func GenerateSecretKey() (string, error) {
	b := make([]byte, 50)
	limit := big.NewInt(int64(len(secretChars)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = secretChars[n.Int64()]
	}
	return string(b), nil
}

// ComposeParams derives the orchestration parameters from cfg.
func ComposeParams(cfg *config.Config) compose.Params {
	return compose.Params{
		AppService: cfg.Compose.AppService,
		DBService:  cfg.Compose.DBService,
		DBImage:    cfg.Compose.DBImage,
		DBVolume:   cfg.Compose.DBVolume,
		Port:       cfg.Image.Port,
		AppEnv:     EnvKeys,
		DBEnv:      compose.DefaultDBEnv(),
	}
}

// ImageParams derives the image parameters from cfg.
func ImageParams(cfg *config.Config) compose.ImageParams {
	return compose.ImageParams{
		BaseImage: cfg.Image.BaseImage,
		Workdir:   cfg.Image.Workdir,
		Port:      cfg.Image.Port,
		Workers:   cfg.Image.Workers,
		BindHost:  cfg.Image.BindHost,
		User:      cfg.Image.User,
		Module:    cfg.Project.Name,
	}
}

// readExistingEnv returns the .env already in projectDir, or nil.
func (e *Emitter) readExistingEnv(projectDir string) (*envfile.File, error) {
	data, err := e.fs.ReadFile(filepath.Join(projectDir, EnvFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return envfile.Parse(data)
}

// Build assembles the artifacts. SECRET_KEY comes from the configuration,
// else from the .env already in projectDir, else it is generated.
func (e *Emitter) Build(projectDir, freeze string) (*Artifacts, error) {
	cfg := e.cfg
	a := &Artifacts{}

	a.Requirements, a.DeniedRemoved, a.FrameworkAdded = manifest.Build(freeze, cfg.Python.Denylist, cfg.Python.FrameworkRequirement)

	a.Dockerfile = compose.NewDockerfile(ImageParams(cfg))
	a.Compose = compose.New(ComposeParams(cfg))

	secret := cfg.Django.SecretKey
	a.SecretSource = SecretFromConfig
	if secret == "" {
		existing, err := e.readExistingEnv(projectDir)
		if err != nil {
			return nil, errors.WrapWithDetails(errors.EConfigInconsistent,
				"cannot read existing environment file", err,
				map[string]string{"path": filepath.Join(projectDir, EnvFile)})
		}
		if existing != nil {
			if v, ok := existing.Get("SECRET_KEY"); ok && v != "" {
				secret = v
				a.SecretSource = SecretFromEnvFile
			}
		}
	}
	if secret == "" {
		generated, err := e.newSecret()
		if err != nil {
			return nil, errors.Wrap(errors.EInternal, "failed to generate secret key", err)
		}
		secret = generated
		a.SecretSource = SecretFromGenerator
	}

	debug := "0"
	if cfg.Django.Debug {
		debug = "1"
	}

	env := &envfile.File{}
	env.Set("SECRET_KEY", secret)
	env.Set("DEBUG", debug)
	env.Set("DB_ENGINE", cfg.Database.Engine)
	env.Set("DB_NAME", cfg.Database.Name)
	env.Set("DB_USER", cfg.Database.User)
	env.Set("DB_PASSWORD", cfg.Database.Password)
	env.Set("DB_HOST", cfg.Database.Host)
	env.Set("DB_PORT", strconv.Itoa(cfg.Database.Port))
	a.Env = env

	return a, nil
}

func inconsistent(msg string, err error) error {
	return errors.WrapWithDetails(errors.EConfigInconsistent, msg, err,
		map[string]string{"hint": "check the image, compose and database configuration"})
}

// Check verifies the cross-artifact invariants on the structured form:
// every variable referenced by the compose file or read by the patched
// settings statements is defined in .env, the database host is the compose
// database service, the image serves the project module on the
// configured port, and the manifest honours the denylist and carries the
// framework requirement.
func (e *Emitter) Check(a *Artifacts, settingsKeys []string) error {
	cfg := e.cfg

	if err := a.Env.Validate(); err != nil {
		return inconsistent("environment file is malformed", err)
	}
	for _, ref := range a.Compose.VarRefs() {
		if !a.Env.Has(ref) {
			return inconsistent(fmt.Sprintf("compose file references ${%s}, which .env does not define", ref), nil)
		}
	}
	for _, key := range settingsKeys {
		if !a.Env.Has(key) {
			return inconsistent(fmt.Sprintf("settings module reads %s, which .env does not define", key), nil)
		}
	}
	if err := a.Dockerfile.Validate(cfg.Project.Name, cfg.Image.Port); err != nil {
		return inconsistent("image definition does not match the project", err)
	}
	if err := a.Compose.Validate(ComposeParams(cfg)); err != nil {
		return inconsistent("compose file is inconsistent", err)
	}
	if host, _ := a.Env.Get("DB_HOST"); host != cfg.Compose.DBService {
		return errors.NewWithDetails(errors.EConfigInconsistent,
			fmt.Sprintf("database host %q does not name the compose database service %q", host, cfg.Compose.DBService),
			map[string]string{"hint": "set database.host to compose.db_service"})
	}
	for _, denied := range cfg.Python.Denylist {
		if a.Requirements.Contains(denied) {
			return inconsistent("dependency manifest contains denylisted entry "+denied, nil)
		}
	}
	if !a.Requirements.Has(manifest.ParseRequirement(cfg.Python.FrameworkRequirement).Name) {
		return inconsistent("dependency manifest lacks "+cfg.Python.FrameworkRequirement, nil)
	}
	return nil
}

// Write renders and writes every artifact into projectDir, replacing what
// is there. Each file is written atomically. Ignore files are merged rather
// than replaced.
func (e *Emitter) Write(projectDir string, a *Artifacts) ([]FileResult, error) {
	composeData, err := a.Compose.Render()
	if err != nil {
		return nil, errors.Wrap(errors.EInternal, "failed to render compose file", err)
	}

	files := []struct {
		name string
		data []byte
		perm os.FileMode
	}{
		{RequirementsFile, a.Requirements.Render(), 0o644},
		{DockerfileFile, a.Dockerfile.Render(), 0o644},
		{ComposeFile, composeData, 0o644},
		{EnvFile, a.Env.Render(), 0o600},
	}

	var results []FileResult
	for _, f := range files {
		path := filepath.Join(projectDir, f.name)
		prev, _ := e.fs.ReadFile(path)
		if err := fs.WriteFileAtomic(e.fs, path, f.data, f.perm); err != nil {
			return results, errors.WrapWithDetails(errors.EPersistFailed,
				"failed to write "+f.name, err, map[string]string{"path": path})
		}
		results = append(results, FileResult{Name: f.name, Path: path, Changed: string(prev) != string(f.data)})
	}

	for _, ig := range []struct {
		name    string
		entries []string
	}{
		{DockerIgnoreFile, scaffold.DockerIgnoreEntries},
		{GitIgnoreFile, scaffold.GitIgnoreEntries},
	} {
		path := filepath.Join(projectDir, ig.name)
		res, err := scaffold.EnsureIgnoreEntries(e.fs, path, ig.entries)
		if err != nil {
			return results, errors.WrapWithDetails(errors.EPersistFailed,
				"failed to update "+ig.name, err, map[string]string{"path": path})
		}
		results = append(results, FileResult{Name: ig.name, Path: path, Changed: res != scaffold.IgnoreUnchanged})
	}

	return results, nil
}

// Emit builds, checks and writes the artifacts. Nothing is written when the
// check fails.
func (e *Emitter) Emit(projectDir, freeze string, settingsKeys []string) (Result, error) {
	a, err := e.Build(projectDir, freeze)
	if err != nil {
		return Result{}, err
	}
	if err := e.Check(a, settingsKeys); err != nil {
		return Result{Artifacts: a}, err
	}
	files, err := e.Write(projectDir, a)
	return Result{Artifacts: a, Files: files}, err
}
