package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

var makefiles = []string{
	"GNUmakefile",
	"makefile",
	"Makefile",
}

// FindMakefile returns the name of the makefile make would pick in dir, or
// an empty string.
func FindMakefile(dir string) string {
	for _, entry := range makefiles {
		if st, err := os.Stat(filepath.Join(dir, entry)); err == nil && st.Mode().IsRegular() {
			return entry
		}
	}
	return ""
}

func IsDir(dir string) bool {
	st, err := os.Stat(dir)
	return err == nil && st.IsDir()
}

func CopyFile(srcName string, dstName string, mode os.FileMode) error {
	src, err := os.Open(srcName)
	if err != nil {
		return err
	}
	defer src.Close()

	if srcSt, err := src.Stat(); err == nil {
		if dstSt, err := os.Stat(dstName); err == nil && os.SameFile(srcSt, dstSt) {
			return eris.Errorf("%s and %s are the same file", srcName, dstName)
		}
	}

	// an existing symlink or read-only file is replaced, like cp -r over a
	// previous copy
	if st, err := os.Lstat(dstName); err == nil && (!st.Mode().IsRegular() || st.Mode().Perm()&0200 == 0) {
		if st.IsDir() {
			return eris.Errorf("cannot overwrite directory %s with a file", dstName)
		}
		if err := os.Remove(dstName); err != nil {
			return err
		}
	}

	dst, err := os.OpenFile(dstName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}

	if err := dst.Close(); err != nil {
		return err
	}

	return os.Chmod(dstName, mode.Perm())
}

func copySymlink(srcName string, dstName string) error {
	target, err := os.Readlink(srcName)
	if err != nil {
		return err
	}

	if st, err := os.Lstat(dstName); err == nil {
		if st.IsDir() {
			return eris.Errorf("cannot overwrite directory %s with a symlink", dstName)
		}
		if err := os.Remove(dstName); err != nil {
			return err
		}
	}

	return os.Symlink(target, dstName)
}

// resolvePath resolves symlinks in path, which may not exist yet.
func resolvePath(path string) (string, error) {
	rv, err := filepath.EvalSymlinks(path)
	if err == nil {
		return rv, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent, err := resolvePath(filepath.Dir(path))
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, filepath.Base(path)), nil
}

func isWithin(dir string, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// CountFiles returns the number of non-directory entries below dir.
func CountFiles(dir string) (int64, error) {
	var rv int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rv++
		}
		return nil
	})
	return rv, err
}

// CopyTree copies the directory src to dst recursively, merging into dst if
// it already exists. Symlinks are copied as symlinks. onFile, if not nil, is
// called after every non-directory entry is copied.
func CopyTree(ctx context.Context, src string, dst string, onFile func(rel string)) error {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return eris.Wrapf(err, "failed to resolve %s", src)
	}
	src = resolved
	if !IsDir(src) {
		return eris.Errorf("not a directory: %s", src)
	}

	if st, err := os.Lstat(dst); err == nil && !st.IsDir() {
		return eris.Errorf("cannot overwrite non-directory %s with a directory", dst)
	}

	resolvedDst, err := resolvePath(dst)
	if err != nil {
		return eris.Wrapf(err, "failed to resolve %s", dst)
	}
	if isWithin(src, resolvedDst) {
		return eris.Errorf("cannot copy %s into itself (%s)", src, dst)
	}

	// directory modes are applied once their content is in place
	type dirMode struct {
		path string
		mode os.FileMode
	}
	var dirs []dirMode

	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return eris.Wrapf(err, "failed to create directory %s", target)
			}
			if err := os.Chmod(target, info.Mode().Perm()|0700); err != nil {
				return err
			}
			dirs = append(dirs, dirMode{path: target, mode: info.Mode().Perm()})
			return nil

		case info.Mode()&os.ModeSymlink != 0:
			if err := copySymlink(path, target); err != nil {
				return eris.Wrapf(err, "failed to copy symlink %s", path)
			}

		case info.Mode().IsRegular():
			if err := CopyFile(path, target, info.Mode()); err != nil {
				return eris.Wrapf(err, "failed to copy %s", path)
			}

		default:
			// sockets, fifos and devices are not part of an install tree
			return nil
		}

		if onFile != nil {
			onFile(rel)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Chmod(dirs[i].path, dirs[i].mode); err != nil {
			return eris.Wrapf(err, "failed to set mode of %s", dirs[i].path)
		}
	}
	return nil
}
