package fs

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// installTree lays out something shaped like a csi-nn2 install directory.
func installTree(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "install_nn2")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "include", "shl"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "include", "shl", "csi_nn.h"), []byte("header\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "libshl_ref_x86.so.2"), []byte("elf\n"), 0755))
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink("libshl_ref_x86.so.2", filepath.Join(dir, "lib", "libshl_ref_x86.so")))
	}
	return dir
}

func TestFindMakefile(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", FindMakefile(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Makefile"), nil, 0644))
	assert.Equal(t, "Makefile", FindMakefile(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "GNUmakefile"), nil, 0644))
	assert.Equal(t, "GNUmakefile", FindMakefile(dir))
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(filepath.Join(dir, "missing")))

	f := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(f, nil, 0644))
	assert.False(t, IsDir(f))
}

func TestCopyTree(t *testing.T) {
	src := installTree(t)
	dst := filepath.Join(t.TempDir(), "install_nn2")

	var copied []string
	err := CopyTree(context.Background(), src, dst, func(rel string) {
		copied = append(copied, filepath.ToSlash(rel))
	})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dst, "include", "shl", "csi_nn.h"))
	require.NoError(t, err)
	assert.Equal(t, "header\n", string(content))

	expected := []string{"include/shl/csi_nn.h", "lib/libshl_ref_x86.so.2"}

	if runtime.GOOS != "windows" {
		st, err := os.Stat(filepath.Join(dst, "lib", "libshl_ref_x86.so.2"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0755), st.Mode().Perm())

		link, err := os.Readlink(filepath.Join(dst, "lib", "libshl_ref_x86.so"))
		require.NoError(t, err)
		assert.Equal(t, "libshl_ref_x86.so.2", link)

		expected = append(expected, "lib/libshl_ref_x86.so")
	}

	sort.Strings(copied)
	sort.Strings(expected)
	assert.Equal(t, expected, copied)

	count, err := CountFiles(src)
	require.NoError(t, err)
	assert.Equal(t, int64(len(expected)), count)
}

func TestCopyTreeMergesIntoExisting(t *testing.T) {
	src := installTree(t)
	dst := filepath.Join(t.TempDir(), "install_nn2")

	require.NoError(t, os.MkdirAll(filepath.Join(dst, "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("keep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "include.txt"), []byte("keep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "lib", "libshl_ref_x86.so.2"), []byte("old and longer\n"), 0644))

	// twice, the second run overwrites the first copy
	require.NoError(t, CopyTree(context.Background(), src, dst, nil))
	require.NoError(t, CopyTree(context.Background(), src, dst, nil))

	content, err := os.ReadFile(filepath.Join(dst, "lib", "libshl_ref_x86.so.2"))
	require.NoError(t, err)
	assert.Equal(t, "elf\n", string(content))

	content, err = os.ReadFile(filepath.Join(dst, "stale.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(content))
}

func TestCopyTreeDestinationIsFile(t *testing.T) {
	src := installTree(t)
	dst := filepath.Join(t.TempDir(), "install_nn2")
	require.NoError(t, os.WriteFile(dst, []byte("file"), 0644))

	err := CopyTree(context.Background(), src, dst, nil)
	assert.Error(t, err)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "file", string(content))
}

func TestCopyTreeMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "install_nn2")

	err := CopyTree(context.Background(), filepath.Join(t.TempDir(), "missing"), dst, nil)
	assert.Error(t, err)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCopyTreeCanceled(t *testing.T) {
	src := installTree(t)
	dst := filepath.Join(t.TempDir(), "install_nn2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := CopyTree(ctx, src, dst, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCopyTreeOntoItself(t *testing.T) {
	src := installTree(t)

	err := CopyTree(context.Background(), src, src, nil)
	require.Error(t, err)

	content, err := os.ReadFile(filepath.Join(src, "include", "shl", "csi_nn.h"))
	require.NoError(t, err)
	assert.Equal(t, "header\n", string(content))
}

func TestCopyTreeIntoOwnSubdirectory(t *testing.T) {
	src := installTree(t)

	err := CopyTree(context.Background(), src, filepath.Join(src, "lib", "install_nn2"), nil)
	assert.Error(t, err)
	assert.NoDirExists(t, filepath.Join(src, "lib", "install_nn2"))
}

func TestCopyTreeThroughSymlinkedDestination(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires symlinks")
	}

	src := installTree(t)
	dst := filepath.Join(t.TempDir(), "install_nn2")
	require.NoError(t, os.Symlink(src, dst))

	err := CopyTree(context.Background(), src, dst, nil)
	require.Error(t, err)

	content, err := os.ReadFile(filepath.Join(src, "lib", "libshl_ref_x86.so.2"))
	require.NoError(t, err)
	assert.Equal(t, "elf\n", string(content))
}

func TestCopyFileSameFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "csi_nn.h")
	require.NoError(t, os.WriteFile(f, []byte("header\n"), 0644))

	assert.Error(t, CopyFile(f, f, 0644))

	content, err := os.ReadFile(f)
	require.NoError(t, err)
	assert.Equal(t, "header\n", string(content))
}

func TestCopyTreeKeepsDirectoryModes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires POSIX permissions")
	}

	src := installTree(t)
	dst := filepath.Join(t.TempDir(), "install_nn2")

	include := filepath.Join(src, "include")
	require.NoError(t, os.Chmod(include, 0555))
	t.Cleanup(func() {
		os.Chmod(include, 0755)
		os.Chmod(filepath.Join(dst, "include"), 0755)
	})

	// the second copy merges into the read-only directory left by the first
	require.NoError(t, CopyTree(context.Background(), src, dst, nil))
	require.NoError(t, CopyTree(context.Background(), src, dst, nil))

	st, err := os.Stat(filepath.Join(dst, "include"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0555), st.Mode().Perm())

	st, err = os.Stat(filepath.Join(dst, "lib"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), st.Mode().Perm())

	assert.FileExists(t, filepath.Join(dst, "include", "shl", "csi_nn.h"))
}
