package runners

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/rs/zerolog"

	"github.com/rafaelmartins/nn2-install/internal/config"
	"github.com/rafaelmartins/nn2-install/internal/executils"
	"github.com/rafaelmartins/nn2-install/internal/fs"
)

type makeRunner struct{}

// AutoJobs is the job count used for config.JobsAuto.
func AutoJobs() int {
	cores := cpuid.CPU.LogicalCores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	return cores + 1
}

func makeArgs(rc *Ctx, target string) []string {
	var args []string

	jobs := rc.Jobs
	if jobs == config.JobsAuto {
		jobs = AutoJobs()
	}
	if jobs > 0 {
		args = append(args, fmt.Sprintf("-j%d", jobs))
	}

	args = append(args, rc.MakeArgs...)
	return append(args, target)
}

func (r *makeRunner) Name() string {
	return "make"
}

// selectsMakefile reports whether args point make at a makefile or
// directory of their own, which makes the project root makefile optional.
func selectsMakefile(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		for _, opt := range []string{"--file", "--makefile", "--directory"} {
			if arg == opt || strings.HasPrefix(arg, opt+"=") {
				return true
			}
		}
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		// short options may be bundled, e.g. -sf build.mk
		for _, c := range arg[1:] {
			if c == 'f' || c == 'C' {
				return true
			}
			// the rest of the word is this option's argument
			if strings.ContainsRune("IjlOoW", c) {
				break
			}
		}
	}
	return false
}

func (r *makeRunner) Detect(rc *Ctx) bool {
	return selectsMakefile(rc.MakeArgs) || fs.FindMakefile(rc.SrcDir) != ""
}

func (r *makeRunner) run(ctx context.Context, rc *Ctx, target string) error {
	return executils.Run(ctx, executils.Cmd(ctx, rc.SrcDir, rc.Make, makeArgs(rc, target)...))
}

func (r *makeRunner) Build(ctx context.Context, rc *Ctx, target string) error {
	zerolog.Ctx(ctx).Info().Str("target", target).Msg("Step: Build (Runner: make)")
	return r.run(ctx, rc, target)
}

func (r *makeRunner) Install(ctx context.Context, rc *Ctx, target string) error {
	zerolog.Ctx(ctx).Info().Str("target", target).Msg("Step: Install (Runner: make)")
	return r.run(ctx, rc, target)
}
