// Package storage implements the partitioned NDJSON output layer: atomic
// single-file writes, partition index allocation, and the size-rotated
// gzip-compressed record log.
package storage

import (
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path such that readers observe either no
// file or the complete payload, never a partial one. The payload goes to a
// sibling temp file, is fsynced, then renamed into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".part-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
