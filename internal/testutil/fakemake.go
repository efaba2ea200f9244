// Package testutil provides a scripted stand-in for make, used by tests that
// exercise real process execution.
package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type FakeMake struct {
	// FailTarget exits with FailCode when passed as an argument.
	FailTarget string
	FailCode   int

	// InstallTarget creates InstallDir in the working directory.
	InstallTarget string
	InstallDir    string
}

const fakeMakeTemplate = `#!/bin/sh
echo "$(pwd) $*" >> %[1]q
for arg in "$@"; do
	if [ "$arg" = %[2]q ]; then
		echo "fake make: target $arg failed" >&2
		exit %[3]d
	fi
	if [ "$arg" = %[4]q ]; then
		mkdir -p %[5]q/lib %[5]q/include
		echo "elf" > %[5]q/lib/libshl_ref_x86.a
		echo "header" > %[5]q/include/csi_nn.h
	fi
done
exit 0
`

// RequireShell skips the test when no POSIX shell is available.
func RequireShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

// Write installs the fake make into a temporary directory and returns the
// path of the script and the path of the log it appends invocations to.
func (f FakeMake) Write(t *testing.T) (string, string) {
	t.Helper()
	RequireShell(t)

	dir := t.TempDir()
	script := filepath.Join(dir, "make")
	log := filepath.Join(dir, "make.log")

	code := f.FailCode
	if code == 0 {
		code = 2
	}
	failTarget := f.FailTarget
	if failTarget == "" {
		failTarget = "__fake_make_unset__"
	}
	installTarget := f.InstallTarget
	if installTarget == "" {
		installTarget = "__fake_make_unset__"
	}
	installDir := f.InstallDir
	if installDir == "" {
		installDir = "install_nn2"
	}

	content := fmt.Sprintf(fakeMakeTemplate, log, failTarget, code, installTarget, installDir)
	require.NoError(t, os.WriteFile(script, []byte(content), 0755))

	return script, log
}

// Invocations returns one entry per fake make call: the working directory
// followed by the arguments, space separated.
func Invocations(t *testing.T, log string) []string {
	t.Helper()

	content, err := os.ReadFile(log)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	return strings.Split(strings.TrimRight(string(content), "\n"), "\n")
}

// Project creates a directory holding a Makefile, like a csi-nn2 checkout.
func Project(t *testing.T, parent string, name string) string {
	t.Helper()

	dir := filepath.Join(parent, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Makefile"), []byte("nn2_ref_x86:\ninstall_nn2:\n"), 0644))
	return dir
}
