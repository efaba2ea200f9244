package git

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const UnknownVersion = "UNKNOWN"

// Version describes the checkout at repoDir, e.g. "2.0.3.5-1a2b" for
// "v2.0.3-5-g1a2b".
//
// A directory that is not the top level of its own checkout, such as a plain
// copy inside another repository, has no version of its own.
func Version(ctx context.Context, repoDir string) string {
	top, err := gitOutput(ctx, repoDir, "rev-parse", "--show-toplevel")
	if err != nil || !sameDir(top, repoDir) {
		return UnknownVersion
	}

	out, err := gitOutput(ctx, repoDir, "describe", "--tags", "--abbrev=4", "HEAD")
	if err != nil {
		return UnknownVersion
	}

	return formatVersion(out)
}

func gitOutput(ctx context.Context, repoDir string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoDir
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func sameDir(a string, b string) bool {
	sa, err := os.Stat(filepath.FromSlash(a))
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

func formatVersion(version string) string {
	version = strings.Trim(version, " \t\n")

	// remove prefix 'v'
	version = strings.TrimPrefix(version, "v")

	// replace first '-' with '.'
	version = strings.Replace(version, "-", ".", 1)

	// remove prefix 'g' from git hash
	version = strings.Replace(version, "-g", "-", 1)

	if version == "" {
		return UnknownVersion
	}
	return version
}
