package lsm

import (
	"fmt"
	"path/filepath"
)

func sstPath(dir string, id uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%05d.sst", id))
}

func walPath(dir string, id uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%05d.wal", id))
}

func manifestPath(dir string) string {
	return filepath.Join(dir, "MANIFEST")
}
