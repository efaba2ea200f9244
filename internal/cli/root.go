// Package cli implements the nn2-install command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rafaelmartins/nn2-install/internal/config"
	"github.com/rafaelmartins/nn2-install/internal/executils"
	"github.com/rafaelmartins/nn2-install/internal/installer"
	"github.com/rafaelmartins/nn2-install/internal/logging"
)

// Set from main, which gets them through ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

type flags struct {
	configFile    string
	workDir       string
	projectDir    string
	buildTarget   string
	installTarget string
	installDir    string
	makeCmd       string
	jobs          int
	progress      bool
	verbose       bool
}

// NewRootCommand builds the command. Logs go to stderr; stdout only ever
// receives the final install path.
func NewRootCommand(stdout io.Writer, stderr io.Writer) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "nn2-install",
		Short: "Build and install csi-nn2, then copy its install tree here",
		Long: `nn2-install runs "make nn2_ref_x86" and "make install_nn2" in the sibling
csi-nn2 checkout (../csi-nn2), copies csi-nn2/install_nn2 into the current
directory and prints the absolute path of the copy.

Defaults may be overridden in .nn2-install.yml or with flags.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, stdout, stderr)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	fl := cmd.Flags()
	fl.StringVar(&f.configFile, "config", "", "config file (default: <workdir>/"+config.FileName+")")
	fl.StringVarP(&f.workDir, "workdir", "w", "", "directory receiving the install tree (default: current directory)")
	fl.StringVarP(&f.projectDir, "project-dir", "C", config.DefaultProjectDir, "csi-nn2 checkout, relative to the work directory")
	fl.StringVar(&f.buildTarget, "build-target", config.DefaultBuildTarget, "make target building the library")
	fl.StringVar(&f.installTarget, "install-target", config.DefaultInstallTarget, "make target installing the library")
	fl.StringVar(&f.installDir, "install-dir", config.DefaultInstallDir, "directory produced by the install target")
	fl.StringVar(&f.makeCmd, "make", config.DefaultMake, "make command")
	fl.IntVarP(&f.jobs, "jobs", "j", 0, "parallel make jobs (0: make default, -1: one per core plus one)")
	fl.BoolVar(&f.progress, "progress", false, "show a progress bar while copying")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func loadConfig(cmd *cobra.Command, f *flags, workDir string) (*config.Config, error) {
	configFile := f.configFile
	if configFile == "" {
		configFile = filepath.Join(workDir, config.FileName)
	}

	conf, err := config.Read(configFile)
	if err != nil {
		return nil, err
	}

	fl := cmd.Flags()
	if fl.Changed("project-dir") {
		conf.ProjectDir = f.projectDir
	}
	if fl.Changed("build-target") {
		conf.BuildTarget = f.buildTarget
	}
	if fl.Changed("install-target") {
		conf.InstallTarget = f.installTarget
	}
	if fl.Changed("install-dir") {
		conf.InstallDir = f.installDir
	}
	if fl.Changed("make") {
		conf.Make = f.makeCmd
	}
	if fl.Changed("jobs") {
		conf.Jobs = f.jobs
	}

	return conf, nil
}

func run(cmd *cobra.Command, f *flags, stdout io.Writer, stderr io.Writer) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(stderr, f.verbose)
	ctx = logger.WithContext(ctx)

	workDir := f.workDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workDir = wd
	}

	conf, err := loadConfig(cmd, f, workDir)
	if err != nil {
		return &installer.StepError{Step: installer.StepConfig, Err: err}
	}

	opts := &installer.Options{
		WorkDir: workDir,
		Config:  conf,
	}
	if f.progress {
		opts.Progress = stderr
	}

	rv, err := installer.Run(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, rv.InstallDir)
	return nil
}

// Execute runs cmd and returns the process exit code.
func Execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true})
	logger.Error().Err(err).Msg("!!! FAILED !!!")

	if errors.Is(err, context.Canceled) {
		return executils.ExitInterrupted
	}

	var stepErr *installer.StepError
	if errors.As(err, &stepErr) {
		return stepErr.ExitCode()
	}
	return 1
}
