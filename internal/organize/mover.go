package organize

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ingressd/internal/errors"
)

// Mover relocates a single file.
type Mover interface {
	// Move renames src to dst, replacing dst if it exists. The parent of dst
	// is created when missing.
	Move(src, dst string) error
}

// FileMover renames within a volume and falls back to copy and delete
// across volumes.
type FileMover struct {
	rename func(oldpath, newpath string) error
}

// NewFileMover returns the default Mover.
func NewFileMover() *FileMover {
	return &FileMover{rename: os.Rename}
}

// Move implements Mover.
func (m *FileMover) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.FromOS("failed to create destination directory", filepath.Dir(dst), err)
	}

	rename := m.rename
	if rename == nil {
		rename = os.Rename
	}

	err := rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.IsCrossDevice(err) {
		return errors.FromOS("failed to move file", src, err)
	}
	return copyAcross(src, dst)
}

// copyAcross copies src into a temporary file next to dst, renames it into
// place and only then removes src. On failure nothing is left at dst.
func copyAcross(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return errors.FromOS("failed to open source file", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.FromOS("failed to stat source file", src, err)
	}
	if !info.Mode().IsRegular() {
		return errors.NewFileError("cannot copy non-regular file", src, errors.InvalidPath, nil)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".partial-*")
	if err != nil {
		return errors.FromOS("failed to create temporary file", filepath.Dir(dst), err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return errors.FromOS("failed to copy file contents", dst, err)
	}
	if err = tmp.Sync(); err != nil {
		return errors.FromOS("failed to flush copied file", dst, err)
	}
	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		return errors.FromOS("failed to set file mode", dst, err)
	}
	if err = tmp.Close(); err != nil {
		return errors.FromOS("failed to close copied file", dst, err)
	}
	if err = os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return errors.FromOS("failed to preserve modification time", dst, err)
	}

	// The temporary file shares a directory with dst, so this rename never
	// crosses devices.
	if err = os.Rename(tmpName, dst); err != nil {
		return errors.FromOS("failed to move copied file into place", dst, err)
	}

	if rmErr := os.Remove(src); rmErr != nil {
		return errors.FromOS(fmt.Sprintf("copied to %s but failed to remove source", dst), src, rmErr)
	}
	return nil
}
