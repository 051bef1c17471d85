// Package bootservice provides the concrete implementation of
// pipeline.Service. It wires the preflight checker, the environment
// provisioner, the project materializer, the emitter, the settings patcher
// and the launcher into the bootstrap stages.
package bootservice

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/NielsdaWheelz/dockstrap/internal/config"
	"github.com/NielsdaWheelz/dockstrap/internal/emit"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/exec"
	"github.com/NielsdaWheelz/dockstrap/internal/fs"
	"github.com/NielsdaWheelz/dockstrap/internal/launcher"
	"github.com/NielsdaWheelz/dockstrap/internal/lock"
	"github.com/NielsdaWheelz/dockstrap/internal/pipeline"
	"github.com/NielsdaWheelz/dockstrap/internal/preflight"
	"github.com/NielsdaWheelz/dockstrap/internal/project"
	"github.com/NielsdaWheelz/dockstrap/internal/settings"
	"github.com/NielsdaWheelz/dockstrap/internal/venv"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Runner exec.CommandRunner
	FS     fs.FS
	// Daemon is pinged during CHECKING. Nil skips the daemon check.
	Daemon preflight.DaemonPinger
	Stdio  launcher.Stdio
	Log    *zap.Logger
	// IsTerminal overrides TTY detection of Stdio.In. Optional.
	IsTerminal func() bool
}

// Service is the production implementation of pipeline.Service.
type Service struct {
	cfg  *config.Config
	deps Deps
	out  io.Writer
	log  *zap.Logger

	provisioner  *venv.Provisioner
	materializer *project.Materializer
	emitter      *emit.Emitter
	launcher     *launcher.Launcher
}

// New creates a Service for cfg.
func New(cfg *config.Config, d Deps) *Service {
	out := d.Stdio.Out
	if out == nil {
		out = io.Discard
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	prov := venv.NewProvisioner(d.Runner, d.FS, cfg.Python.Interpreter)
	prov.Stdout, prov.Stderr = d.Stdio.Out, d.Stdio.Err

	mat := project.NewMaterializer(d.Runner, d.FS, cfg.Python.Generator)
	mat.Stdout, mat.Stderr = d.Stdio.Out, d.Stdio.Err

	l := launcher.New(d.Runner, cfg.Compose.Command, cfg.Compose.AppService, d.Stdio)
	if d.IsTerminal != nil {
		l.SetIsTerminal(d.IsTerminal)
	}

	return &Service{
		cfg:          cfg,
		deps:         d,
		out:          out,
		log:          log,
		provisioner:  prov,
		materializer: mat,
		emitter:      emit.New(d.FS, cfg),
		launcher:     l,
	}
}

// SettingsParams derives the settings patch fallbacks from cfg.
func SettingsParams(cfg *config.Config) settings.Params {
	return settings.Params{
		SecretKeyFallback: cfg.Django.SecretKeyFallback,
		DebugFallback:     cfg.Django.DebugFallback,
		DB: settings.DBDefaults{
			Engine:   cfg.Database.Engine,
			Name:     cfg.Database.Name,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Host:     cfg.Database.Host,
			Port:     strconv.Itoa(cfg.Database.Port),
		},
	}
}

func (s *Service) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// Check verifies the required tools (and the daemon), then takes the base
// directory lock. Nothing is written before the tools check passes.
func (s *Service) Check(ctx context.Context, st *pipeline.State) error {
	tools := preflight.RequiredTools(s.cfg)
	daemon := s.deps.Daemon
	if st.Mode == pipeline.ModeEmit {
		// emit only needs the interpreter; compose is not invoked
		tools = tools[:1]
		daemon = nil
	}

	report, err := preflight.NewChecker(s.deps.Runner, daemon).Check(ctx, tools)
	st.Preflight = report
	for _, ts := range report.Tools {
		if ts.Missing {
			s.printf("  missing: %s (%s)\n", ts.Tool.Name, ts.Tool.Hint)
		}
	}
	if err != nil {
		return err
	}

	unlock, err := lock.New(st.BaseDir).Acquire(st.RunID, string(st.Mode))
	if err != nil {
		return err
	}
	st.Unlock = unlock
	return nil
}

// ProvisionEnv ensures the virtual environment, installs the packages and
// captures the freeze output. Emit mode requires an existing environment
// and installs nothing.
func (s *Service) ProvisionEnv(ctx context.Context, st *pipeline.State) error {
	if st.Mode == pipeline.ModeEmit {
		if err := s.requireDir(st.BaseDir, s.cfg.Python.VenvDir, errors.EEnvActivationMissing,
			"no virtual environment to emit from"); err != nil {
			return err
		}
	}

	res, err := s.provisioner.Ensure(ctx, st.BaseDir, s.cfg.Python.VenvDir)
	if err != nil {
		return err
	}
	st.Env = res.Env
	st.VenvCreated = res.Created
	if res.Created {
		s.printf("  created virtual environment %s\n", res.Env.Dir)
	} else {
		s.printf("  using virtual environment %s\n", res.Env.Dir)
	}

	if st.Mode == pipeline.ModeBootstrap {
		if err := s.provisioner.Install(ctx, res.Env, s.cfg.Python.Packages); err != nil {
			return err
		}
	}

	freeze, err := s.provisioner.Freeze(ctx, res.Env)
	if err != nil {
		return err
	}
	st.Freeze = freeze
	s.log.Debug("environment ready", zap.String("venv", res.Env.Dir), zap.Bool("created", res.Created))
	return nil
}

// MaterializeProject generates the project unless it exists. Emit mode
// requires an existing project.
func (s *Service) MaterializeProject(ctx context.Context, st *pipeline.State) error {
	name := s.cfg.Project.Name
	if st.Mode == pipeline.ModeEmit {
		if err := s.requireDir(st.BaseDir, name, errors.ESettingsNotFound,
			"no project to emit for"); err != nil {
			return err
		}
	}

	res, err := s.materializer.Materialize(ctx, st.BaseDir, name, st.Env)
	if err != nil {
		return err
	}
	st.ProjectDir = res.Layout.Dir
	st.SettingsPath = res.Layout.SettingsPath
	st.ProjectCreated = res.Created
	if res.Created {
		s.printf("  created project %s\n", res.Layout.Dir)
	} else {
		s.printf("  project %s exists, skipping generation\n", res.Layout.Dir)
	}
	return nil
}

// EmitConfig writes the dependency manifest, image file, compose file,
// environment file and ignore files. The keys the settings patch will read
// are computed first so the emitter can check them against .env.
func (s *Service) EmitConfig(ctx context.Context, st *pipeline.State) error {
	src, err := s.deps.FS.ReadFile(st.SettingsPath)
	if err != nil {
		return errors.WrapWithDetails(errors.ESettingsNotFound, "cannot read settings module", err,
			map[string]string{"path": st.SettingsPath})
	}
	_, planned, err := settings.Patch(string(src), SettingsParams(s.cfg))
	if err != nil {
		return err
	}

	res, err := s.emitter.Emit(st.ProjectDir, st.Freeze, planned.PatchKeys)
	if err != nil {
		return err
	}
	st.Emitted = res.Files
	st.SecretSource = res.Artifacts.SecretSource
	for _, f := range res.Files {
		verb := "unchanged"
		if f.Changed {
			verb = "wrote"
		}
		s.printf("  %s %s\n", verb, f.Name)
	}
	for _, denied := range res.Artifacts.DeniedRemoved {
		s.printf("  dropped %s from %s\n", denied, emit.RequirementsFile)
	}
	return nil
}

// PatchSettings rewrites settings.py to read its configuration from the
// environment.
func (s *Service) PatchSettings(ctx context.Context, st *pipeline.State) error {
	res, err := settings.PatchFile(s.deps.FS, st.SettingsPath, SettingsParams(s.cfg))
	if err != nil {
		return err
	}
	st.Settings = res
	if res.Changed() {
		s.printf("  patched %s\n", st.SettingsPath)
	} else {
		s.printf("  %s already patched\n", st.SettingsPath)
	}
	return nil
}

// Launch builds and starts the services, migrates, and creates the admin
// account.
func (s *Service) Launch(ctx context.Context, st *pipeline.State) error {
	if err := s.launcher.Launch(ctx, st.ProjectDir, s.cfg.Launch.Superuser); err != nil {
		return err
	}
	st.Launched = true
	return nil
}

// Cleanup deactivates the environment and releases the lock.
func (s *Service) Cleanup(st *pipeline.State) error {
	st.Env.Deactivate()
	if st.Unlock == nil {
		return nil
	}
	err := st.Unlock()
	st.Unlock = nil
	return err
}

func (s *Service) requireDir(base, rel string, code errors.Code, msg string) error {
	path := filepath.Join(base, rel)
	ok, err := fs.IsDir(s.deps.FS, path)
	if err != nil || !ok {
		return errors.WrapWithDetails(code, msg+": "+path+" not found", err,
			map[string]string{"path": path, "hint": "run dockstrap without a subcommand to bootstrap first"})
	}
	return nil
}
