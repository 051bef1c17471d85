// Package cli wires the dockstrap command tree.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NielsdaWheelz/dockstrap/internal/bootservice"
	"github.com/NielsdaWheelz/dockstrap/internal/commands"
	"github.com/NielsdaWheelz/dockstrap/internal/config"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/exec"
	"github.com/NielsdaWheelz/dockstrap/internal/fs"
	"github.com/NielsdaWheelz/dockstrap/internal/launcher"
	"github.com/NielsdaWheelz/dockstrap/internal/logging"
	"github.com/NielsdaWheelz/dockstrap/internal/paths"
	"github.com/NielsdaWheelz/dockstrap/internal/pipeline"
	"github.com/NielsdaWheelz/dockstrap/internal/preflight"
	"github.com/NielsdaWheelz/dockstrap/internal/version"
)

// Daemon is a daemon handle that must be closed after use.
type Daemon interface {
	preflight.DaemonPinger
	Close() error
}

// App holds the process-level collaborators of the command tree. Nil fields
// fall back to the production implementations.
type App struct {
	Runner     exec.CommandRunner
	FS         fs.FS
	NewDaemon  func(host string) (Daemon, error)
	Getenv     func(key string) string
	HomeDir    func() (string, error)
	Getwd      func() (string, error)
	IsTerminal func() bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

type globalFlags struct {
	configFile string
	dir        string
	logLevel   string
	json       bool
	skipLaunch bool
}

// session is the resolved per-invocation context shared by all commands.
type session struct {
	cfg        *config.Config
	configFile string
	baseDir    string
	log        *zap.Logger
}

// Run executes the command line args against the real environment.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	app := &App{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return app.Execute(ctx, args)
}

func (a *App) defaults() {
	if a.Runner == nil {
		a.Runner = exec.NewRealRunner()
	}
	if a.FS == nil {
		a.FS = fs.NewRealFS()
	}
	if a.NewDaemon == nil {
		a.NewDaemon = func(host string) (Daemon, error) { return preflight.NewDockerDaemon(host) }
	}
	if a.Getenv == nil {
		a.Getenv = os.Getenv
	}
	if a.HomeDir == nil {
		a.HomeDir = os.UserHomeDir
	}
	if a.Getwd == nil {
		a.Getwd = os.Getwd
	}
	if a.Stdin == nil {
		a.Stdin = os.Stdin
	}
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}
}

// Execute parses args and runs the selected command. Parse failures are
// returned as E_USAGE.
func (a *App) Execute(ctx context.Context, args []string) error {
	a.defaults()

	var flags globalFlags
	root := a.newRootCmd(&flags)
	root.SetArgs(args)
	root.SetIn(a.Stdin)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)

	err := root.ExecuteContext(ctx)
	if err != nil && errors.GetCode(err) == "" {
		return errors.Wrap(errors.EUsage, err.Error(), err)
	}
	return err
}

func (a *App) newRootCmd(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "dockstrap",
		Short: "Bootstrap a containerised Django project",
		Long: `dockstrap creates a virtual environment, generates a Django project,
emits requirements.txt, Dockerfile, docker-compose.yml and .env, rewrites
settings.py to read from the environment, and starts the stack with
docker compose.`,
		Args:          cobra.NoArgs,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(cmd, flags, pipeline.ModeBootstrap)
		},
	}
	root.SetVersionTemplate("dockstrap {{.Version}}\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Wrap(errors.EUsage, err.Error(), err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "path to config file (YAML)")
	pf.StringVar(&flags.dir, "dir", "", "base directory (default: config base_dir, then the working directory)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.BoolVar(&flags.json, "json", false, "print the final result as JSON")
	pf.BoolVar(&flags.skipLaunch, "skip-launch", false, "stop after patching settings; do not run docker compose")

	root.AddCommand(
		&cobra.Command{
			Use:   "doctor",
			Short: "Check prerequisites and show resolved settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runDoctor(cmd, flags)
			},
		},
		&cobra.Command{
			Use:   "emit",
			Short: "Regenerate artifacts and patch settings for an existing project",
			Long: `emit rewrites requirements.txt, Dockerfile, docker-compose.yml, .env and
the ignore files, and patches settings.py, for a project whose virtual
environment and project directory already exist. It installs nothing and
does not start containers.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runPipeline(cmd, flags, pipeline.ModeEmit)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				commands.Version(cmd.OutOrStdout())
				return nil
			},
		},
	)
	return root
}

// setup loads the configuration, resolves the base directory and builds
// the logger.
func (a *App) setup(cmd *cobra.Command, flags *globalFlags) (*session, error) {
	configFile := flags.configFile
	if configFile == "" {
		if home, err := a.HomeDir(); err == nil {
			candidate := paths.DefaultConfigFile(envFunc(a.Getenv), home)
			if ok, _ := fs.Exists(a.FS, candidate); ok {
				configFile = candidate
			}
		}
	}

	cfg, err := config.LoadAndValidate(configFile)
	if err != nil {
		if configFile != "" {
			if be, ok := errors.AsBootError(err); ok && be.Details == nil {
				be.Details = map[string]string{"config_file": configFile}
			}
		}
		return nil, err
	}

	level := cfg.Log.Level
	if cmd.Flags().Changed("log-level") {
		level = flags.logLevel
	}
	log, _, err := logging.New(level)
	if err != nil {
		log = logging.Nop()
	}

	baseDir, err := a.resolveBaseDir(flags.dir, cfg.BaseDir)
	if err != nil {
		return nil, err
	}

	log.Debug("configuration loaded",
		zap.String("config_file", configFile),
		zap.String("base_dir", baseDir),
		zap.String("project", cfg.Project.Name))

	return &session{cfg: cfg, configFile: configFile, baseDir: baseDir, log: log}, nil
}

func (a *App) resolveBaseDir(flagDir, cfgDir string) (string, error) {
	dir := flagDir
	if dir == "" {
		dir = cfgDir
	}
	if dir == "" {
		wd, err := a.Getwd()
		if err != nil {
			return "", errors.Wrap(errors.EInternal, "failed to get working directory", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(errors.EConfigInvalid, "invalid base directory "+dir, err)
	}
	ok, err := fs.IsDir(a.FS, abs)
	if err != nil || !ok {
		return "", errors.WrapWithDetails(errors.EConfigInvalid, "base directory does not exist: "+abs, err,
			map[string]string{"field": "base_dir"})
	}
	return abs, nil
}

func (a *App) daemon(cfg *config.Config) (Daemon, error) {
	if !cfg.Preflight.CheckDaemon {
		return nil, nil
	}
	d, err := a.NewDaemon(cfg.Preflight.DockerHost)
	if err != nil {
		return nil, errors.WrapWithDetails(errors.EDockerUnavailable, "cannot create docker client", err,
			map[string]string{"hint": "check DOCKER_HOST or preflight.docker_host"})
	}
	return d, nil
}

func (a *App) runDoctor(cmd *cobra.Command, flags *globalFlags) error {
	s, err := a.setup(cmd, flags)
	if err != nil {
		return err
	}
	defer func() { _ = s.log.Sync() }()

	d, err := a.daemon(s.cfg)
	if err != nil {
		return err
	}
	var pinger preflight.DaemonPinger
	if d != nil {
		defer func() { _ = d.Close() }()
		pinger = d
	}

	return commands.Doctor(cmd.Context(), a.Runner, pinger, s.cfg, commands.DoctorOpts{
		BaseDir:    s.baseDir,
		ConfigFile: s.configFile,
		JSON:       flags.json,
	}, cmd.OutOrStdout())
}

func (a *App) runPipeline(cmd *cobra.Command, flags *globalFlags, mode pipeline.Mode) error {
	s, err := a.setup(cmd, flags)
	if err != nil {
		return err
	}
	defer func() { _ = s.log.Sync() }()

	deps := bootservice.Deps{
		Runner:     a.Runner,
		FS:         a.FS,
		Stdio:      launcher.Stdio{In: a.Stdin, Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()},
		Log:        s.log,
		IsTerminal: a.IsTerminal,
	}
	if mode == pipeline.ModeBootstrap {
		d, err := a.daemon(s.cfg)
		if err != nil {
			return err
		}
		if d != nil {
			defer func() { _ = d.Close() }()
			deps.Daemon = d
		}
	}

	return commands.Bootstrap(cmd.Context(), s.cfg, deps, commands.BootstrapOpts{
		BaseDir:    s.baseDir,
		Mode:       mode,
		SkipLaunch: flags.skipLaunch || s.cfg.Launch.Skip,
		JSON:       flags.json,
	}, cmd.OutOrStdout())
}

// envFunc adapts a getenv function to paths.Env.
type envFunc func(string) string

func (f envFunc) Get(key string) string { return f(key) }
