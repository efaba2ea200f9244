package executils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ExitNotStarted mirrors the shell's "command not found" status.
const ExitNotStarted = 127

// ExitInterrupted is what a shell reports for a run stopped by SIGINT.
const ExitInterrupted = 128 + int(syscall.SIGINT)

// killDelay is how long an interrupted command gets before it is killed.
const killDelay = 10 * time.Second

type CommandError struct {
	Args []string
	Dir  string
	Code int
	Err  error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed with exit code %d: %s", strings.Join(e.Args, " "), e.Code, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode is the status a shell would report for this failure, never 0.
func (e *CommandError) ExitCode() int {
	if e.Code <= 0 {
		return 1
	}
	return e.Code
}

func Cmd(ctx context.Context, dir string, name string, arg ...string) *exec.Cmd {
	rv := exec.CommandContext(ctx, name, arg...)
	rv.Dir = dir
	// let make clean up its partial targets, as it would on Ctrl-C
	rv.Cancel = func() error {
		return rv.Process.Signal(os.Interrupt)
	}
	rv.WaitDelay = killDelay
	return rv
}

// Run executes cmd, logging it to the logger carried by ctx. Output not
// otherwise redirected goes to stderr: stdout belongs to the caller.
func Run(ctx context.Context, cmd *exec.Cmd) error {
	logger := zerolog.Ctx(ctx)

	logger.Info().Strs("args", cmd.Args).Msg("    Running command")
	if cmd.Dir != "" {
		logger.Info().Str("dir", cmd.Dir).Msg("          Directory")
	}

	if cmd.Stdout == nil {
		cmd.Stdout = os.Stderr
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	err := cmd.Run()

	code := ExitCode(err)
	if err != nil && ctx.Err() != nil {
		code = ExitInterrupted
	}
	logger.Info().Int("code", code).Msg("          Exit code")

	if err != nil {
		return &CommandError{
			Args: cmd.Args,
			Dir:  cmd.Dir,
			Code: code,
			Err:  err,
		}
	}
	return nil
}

// ExitCode converts the error returned by exec.Cmd.Run into a shell-like
// exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
		return 1
	}

	return ExitNotStarted
}
