// Package store owns every on-disk artifact of the manager: the JSON
// settings store, the fully-managed native config, and the enforced prefix
// of the user-owned native config.
//
// All writes go through an atomic write-with-backup: on every exit path the
// target file is either fully the old content or fully the new content,
// never a partial write, and the previous content survives as a timestamped
// backup.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteFileAtomic writes data to path atomically. The new content lands in
// a temporary file first, any existing file is kept as a timestamped
// backup, and a rename completes the swap.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Any failure past this point must not leave the temp file behind.
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		backup := BackupName(path, time.Now())
		if err := copyFile(path, backup, perm); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("backing up %s: %w", path, err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swapping %s into place: %w", path, err)
	}
	return nil
}

// BackupName returns the timestamped backup path for a file.
func BackupName(path string, at time.Time) string {
	return fmt.Sprintf("%s.bak.%d", path, at.Unix())
}

func copyFile(src, dst string, perm os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, perm)
}
