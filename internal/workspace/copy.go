// Package workspace copies shared files from a language's _common directory
// into a benchmark directory and removes them afterwards.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// CommonDir is the sibling directory holding files shared by all variants of a language.
const CommonDir = "_common"

// CopySpec copies Src (relative to the common directory) to Dst (relative to the
// benchmark directory).
type CopySpec struct {
	Src string
	Dst string
}

// CopyFiles copies every spec from <dir>/../_common into dir, creating parent
// directories as needed.
func CopyFiles(dir string, files []CopySpec) error {
	for _, f := range files {
		src := filepath.Join(dir, "..", CommonDir, f.Src)
		dst := filepath.Join(dir, f.Dst)

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", dst, err)
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
		slog.Info("copied file", "src", filepath.Join(CommonDir, f.Src), "dst", f.Dst)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// DeleteCopiedFiles removes the destinations of files and then any directories
// left empty, walking up towards dir.
func DeleteCopiedFiles(dir string, files []CopySpec) error {
	var errs []error
	for _, f := range files {
		dst := filepath.Join(dir, f.Dst)
		if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", dst, err))
			continue
		}
		slog.Info("removed copied file", "path", f.Dst)

		if err := removeEmptyParents(filepath.Dir(dst), dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func removeEmptyParents(path, root string) error {
	root = filepath.Clean(root)
	for path = filepath.Clean(path); path != root; path = filepath.Dir(path) {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return nil
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return fmt.Errorf("failed to read directory %s: %w", path, err)
		}
		if len(entries) > 0 {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove directory %s: %w", path, err)
		}
		slog.Info("removed empty directory", "path", rel)
	}
	return nil
}
