package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// SQLiteFiles returns the database path together with its write-ahead log and
// shared-memory sidecars, which hold uncheckpointed pages while the store is open.
func SQLiteFiles(dbPath string) []string {
	if dbPath == "" || dbPath == ":memory:" {
		return nil
	}
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}

// DiskUsageBytes sums the sizes of the given files and directory trees.
// Empty and missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, root := range paths {
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// StoreFootprint reports the bytes held by the document database and the
// vector snapshot.
func StoreFootprint(dbPath, snapshotPath string) (int64, error) {
	return DiskUsageBytes(append(SQLiteFiles(dbPath), snapshotPath)...)
}
