// Package installer drives an external project's make based build and
// install, then copies the installed tree next to the caller.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/rafaelmartins/nn2-install/internal/config"
	"github.com/rafaelmartins/nn2-install/internal/executils"
	"github.com/rafaelmartins/nn2-install/internal/fs"
	"github.com/rafaelmartins/nn2-install/internal/git"
	"github.com/rafaelmartins/nn2-install/internal/runners"
)

const (
	StepConfig  = "config"
	StepLocate  = "locate"
	StepBuild   = "build"
	StepInstall = "install"
	StepCopy    = "copy"
)

type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %s", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ExitCode is the exit status of the failed command, or 1 when the step
// failed for another reason.
func (e *StepError) ExitCode() int {
	var cmdErr *executils.CommandError
	if errors.As(e.Err, &cmdErr) {
		return cmdErr.ExitCode()
	}
	return 1
}

type Options struct {
	// WorkDir receives the install directory. Defaults to the current
	// directory.
	WorkDir string
	Config  *config.Config

	// Progress, if not nil, receives a progress bar for the copy step.
	Progress io.Writer
}

type Result struct {
	ProjectDir string
	Version    string
	InstallDir string
	Files      int64
}

func Run(ctx context.Context, opts *Options) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	conf := opts.Config
	if conf == nil {
		conf = config.Default()
	}
	if err := conf.Validate(); err != nil {
		return nil, &StepError{Step: StepConfig, Err: err}
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, &StepError{Step: StepLocate, Err: eris.Wrap(err, "failed to resolve work directory")}
	}

	makeArgs, err := conf.SplitMakeArgs()
	if err != nil {
		return nil, &StepError{Step: StepConfig, Err: err}
	}

	rc := &runners.Ctx{
		SrcDir:   conf.ResolveProjectDir(workDir),
		Make:     conf.Make,
		MakeArgs: makeArgs,
		Jobs:     conf.Jobs,
	}

	run, err := runners.Get(rc)
	if err != nil {
		return nil, &StepError{Step: StepLocate, Err: err}
	}

	rv := &Result{
		ProjectDir: rc.SrcDir,
		Version:    git.Version(ctx, rc.SrcDir),
		InstallDir: filepath.Join(workDir, conf.InstallDir),
	}

	logger.Info().Msg("Starting nn2-install ...")
	logger.Info().Str("runner", run.Name()).Msg("    Runner")
	logger.Info().Str("dir", rc.SrcDir).Str("version", rv.Version).Msg("    Project")
	logger.Info().Str("dir", workDir).Msg("    Work directory")
	logger.Info().
		Str("cpu", cpuid.CPU.BrandName).
		Int("logical_cores", cpuid.CPU.LogicalCores).
		Str("arch", runtime.GOARCH).
		Msg("    Host")

	if err := run.Build(ctx, rc, conf.BuildTarget); err != nil {
		return nil, &StepError{Step: StepBuild, Err: err}
	}

	if err := run.Install(ctx, rc, conf.InstallTarget); err != nil {
		return nil, &StepError{Step: StepInstall, Err: err}
	}

	src := filepath.Join(rc.SrcDir, conf.InstallDir)
	logger.Info().Str("src", src).Str("dst", rv.InstallDir).Msg("Step: Copy")

	if !fs.IsDir(src) {
		return nil, &StepError{
			Step: StepCopy,
			Err:  eris.Errorf("install target %s did not produce %s", conf.InstallTarget, src),
		}
	}

	total, err := fs.CountFiles(src)
	if err != nil {
		return nil, &StepError{Step: StepCopy, Err: eris.Wrapf(err, "failed to scan %s", src)}
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("copying "+conf.InstallDir),
			progressbar.OptionShowCount(),
		)
	}

	err = fs.CopyTree(ctx, src, rv.InstallDir, func(rel string) {
		rv.Files++
		logger.Debug().Str("file", rel).Msg("          Copied")
		if bar != nil {
			bar.Add(1)
		}
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, &StepError{Step: StepCopy, Err: err}
	}

	logger.Info().Int64("files", rv.Files).Msg("All done! \\o/")

	return rv, nil
}
