package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/NielsdaWheelz/dockstrap/internal/bootservice"
	"github.com/NielsdaWheelz/dockstrap/internal/config"
	"github.com/NielsdaWheelz/dockstrap/internal/pipeline"
	"github.com/NielsdaWheelz/dockstrap/internal/render"
)

// BootstrapOpts holds the inputs of the bootstrap and emit commands.
type BootstrapOpts struct {
	BaseDir    string
	Mode       pipeline.Mode
	SkipLaunch bool
	JSON       bool
}

// Bootstrap implements `dockstrap` (ModeBootstrap) and `dockstrap emit`
// (ModeEmit). Progress goes to deps.Stdio.Out, or to deps.Stdio.Err when
// JSON output is requested so that stdout carries only the envelope.
func Bootstrap(ctx context.Context, cfg *config.Config, deps bootservice.Deps, opts BootstrapOpts, stdout io.Writer) error {
	progress := deps.Stdio.Out
	if opts.JSON {
		progress = deps.Stdio.Err
		deps.Stdio.Out = deps.Stdio.Err
	}

	p := pipeline.New(bootservice.New(cfg, deps), progress, deps.Log)
	st, err := p.Run(ctx, pipeline.Options{
		BaseDir:    opts.BaseDir,
		Mode:       opts.Mode,
		SkipLaunch: opts.SkipLaunch,
	})

	if opts.JSON {
		if werr := render.WriteJSON(stdout, render.SummarizeRun(st), err); werr != nil && err == nil {
			return werr
		}
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "project_dir: %s\n", st.ProjectDir)
	if st.Launched {
		fmt.Fprintf(stdout, "app: http://localhost:%d/\n", cfg.Image.Port)
	}
	return nil
}
