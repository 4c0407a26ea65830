// Package utils provides small filesystem helpers for the disk based storages.
package utils

import (
	"fmt"
	"os"
	"runtime"
)

// EnsureDirectory makes sure that a directory with the given permissions
// exists at path. A file at path is replaced by the directory. Missing
// parent directories are created with the same permissions.
func EnsureDirectory(path string, perm os.FileMode) error {
	isDir, mode, err := removeIfFile(path)
	if err != nil {
		return err
	}

	if !isDir {
		if err := os.MkdirAll(path, perm); err != nil {
			return fmt.Errorf("could not create dir %s: %w", path, err)
		}
		return nil
	}

	// permissions are not enforced on windows
	if mode.Perm() != perm && runtime.GOOS != "windows" {
		return os.Chmod(path, perm)
	}
	return nil
}

func removeIfFile(path string) (isDir bool, mode os.FileMode, err error) {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return false, 0, nil
	case err != nil:
		return false, 0, fmt.Errorf("failed to access %s: %w", path, err)
	case info.IsDir():
		return true, info.Mode(), nil
	}

	if err := os.Remove(path); err != nil {
		return false, 0, fmt.Errorf("could not remove file %s to place dir: %w", path, err)
	}
	return false, 0, nil
}
