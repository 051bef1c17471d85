// Package pipeline drives a bootstrap run through its stages. Stages run in
// a fixed order, the first error short-circuits the run, and coded errors
// keep their code.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NielsdaWheelz/dockstrap/internal/emit"
	"github.com/NielsdaWheelz/dockstrap/internal/errors"
	"github.com/NielsdaWheelz/dockstrap/internal/preflight"
	"github.com/NielsdaWheelz/dockstrap/internal/settings"
	"github.com/NielsdaWheelz/dockstrap/internal/venv"
)

// Stage is a pipeline state.
type Stage string

const (
	StageChecking             Stage = "CHECKING"
	StageProvisioningEnv      Stage = "PROVISIONING_ENV"
	StageMaterializingProject Stage = "MATERIALIZING_PROJECT"
	StageEmittingConfig       Stage = "EMITTING_CONFIG"
	StagePatchingSettings     Stage = "PATCHING_SETTINGS"
	StageLaunching            Stage = "LAUNCHING"
	StageDone                 Stage = "DONE"
	StageFailed               Stage = "FAILED"
)

// Mode selects what a run is allowed to create.
type Mode string

const (
	// ModeBootstrap creates whatever is missing and launches the services.
	ModeBootstrap Mode = "bootstrap"
	// ModeEmit regenerates artifacts for an existing environment and project.
	ModeEmit Mode = "emit"
)

// Options are the inputs of a run.
type Options struct {
	BaseDir    string // absolute
	Mode       Mode
	SkipLaunch bool
}

// State is threaded through every stage. Stages read what earlier stages
// produced from here, never from the process working directory.
type State struct {
	RunID      string
	Mode       Mode
	BaseDir    string
	SkipLaunch bool

	Stage       Stage
	FailedStage Stage

	// CHECKING
	Preflight preflight.Report
	Unlock    func() error

	// PROVISIONING_ENV
	Env         *venv.Env
	VenvCreated bool
	Freeze      string

	// MATERIALIZING_PROJECT
	ProjectDir     string
	SettingsPath   string
	ProjectCreated bool

	// EMITTING_CONFIG
	Emitted      []emit.FileResult
	SecretSource string

	// PATCHING_SETTINGS
	Settings settings.Result

	// LAUNCHING
	Launched bool
}

// Service implements the stages.
type Service interface {
	Check(ctx context.Context, st *State) error
	ProvisionEnv(ctx context.Context, st *State) error
	MaterializeProject(ctx context.Context, st *State) error
	EmitConfig(ctx context.Context, st *State) error
	PatchSettings(ctx context.Context, st *State) error
	Launch(ctx context.Context, st *State) error
	// Cleanup runs once after the last stage, on success and on failure.
	Cleanup(st *State) error
}

// Pipeline runs the stages of a Service in order.
type Pipeline struct {
	svc   Service
	out   io.Writer
	log   *zap.Logger
	newID func() string
	now   func() time.Time
}

// New creates a Pipeline. Stage announcements go to out.
func New(svc Service, out io.Writer, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{svc: svc, out: out, log: log, newID: uuid.NewString, now: time.Now}
}

// SetIDFunc overrides run id generation for testing.
func (p *Pipeline) SetIDFunc(fn func() string) {
	p.newID = fn
}

type step struct {
	stage Stage
	run   func(context.Context, *State) error
}

func (p *Pipeline) steps(st *State) []step {
	steps := []step{
		{StageChecking, p.svc.Check},
		{StageProvisioningEnv, p.svc.ProvisionEnv},
		{StageMaterializingProject, p.svc.MaterializeProject},
		{StageEmittingConfig, p.svc.EmitConfig},
		{StagePatchingSettings, p.svc.PatchSettings},
	}
	if st.Mode == ModeBootstrap && !st.SkipLaunch {
		steps = append(steps, step{StageLaunching, p.svc.Launch})
	}
	return steps
}

// Run executes the stages in order:
//
//	CHECKING -> PROVISIONING_ENV -> MATERIALIZING_PROJECT -> EMITTING_CONFIG
//	-> PATCHING_SETTINGS -> LAUNCHING -> DONE
//
// LAUNCHING is skipped in emit mode and with SkipLaunch. The first failing
// stage moves the state to FAILED and ends the run; nothing is retried or
// rolled back. The returned state is never nil.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*State, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeBootstrap
	}
	st := &State{
		RunID:      p.newID(),
		Mode:       mode,
		BaseDir:    opts.BaseDir,
		SkipLaunch: opts.SkipLaunch,
	}
	log := p.log.With(zap.String("run_id", st.RunID), zap.String("mode", string(mode)))
	log.Info("run started", zap.String("base_dir", st.BaseDir))

	err := p.runSteps(ctx, st, log)
	if cerr := p.svc.Cleanup(st); cerr != nil {
		log.Warn("cleanup failed", zap.Error(cerr))
	}
	if err != nil {
		log.Error("run failed",
			zap.String("stage", string(st.FailedStage)),
			zap.String("error_code", string(errors.GetCode(err))),
			zap.Error(err))
		return st, err
	}

	st.Stage = StageDone
	p.announce(StageDone)
	log.Info("run finished")
	return st, nil
}

func (p *Pipeline) runSteps(ctx context.Context, st *State, log *zap.Logger) error {
	for _, s := range p.steps(st) {
		st.Stage = s.stage
		p.announce(s.stage)

		start := p.now()
		err := s.run(ctx, st)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			st.FailedStage = s.stage
			st.Stage = StageFailed
			return wrapStageError(err, s.stage)
		}
		log.Debug("stage finished", zap.String("stage", string(s.stage)), zap.Duration("took", p.now().Sub(start)))
	}
	return nil
}

func (p *Pipeline) announce(s Stage) {
	if p.out != nil {
		fmt.Fprintf(p.out, "==> %s\n", s)
	}
}

// wrapStageError makes sure the error is coded. A *BootError keeps its code
// and message and gains a "stage" detail; cancellation becomes E_INPUT_ABORTED
// and anything else E_INTERNAL.
func wrapStageError(err error, stage Stage) error {
	if be, ok := errors.AsBootError(err); ok {
		if be.Details == nil {
			be.Details = map[string]string{}
		}
		if _, set := be.Details["stage"]; !set {
			be.Details["stage"] = string(stage)
		}
		return err
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.WrapWithDetails(errors.EInputAborted, "interrupted", err,
			map[string]string{"stage": string(stage)})
	}
	return errors.WrapWithDetails(errors.EInternal, "internal error", err,
		map[string]string{"stage": string(stage)})
}
