// Package uio carries the small filesystem helpers the rest of this corpus
// leans on for log rotation and similar bookkeeping - not a general purpose
// I/O toolkit, just the handful of primitives ulog's WriteManager needs.
package uio

import (
	"os"
	"sort"
)

// FileExists reports whether file can be stat'd.
func FileExists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}

type filesByModTime_ []os.FileInfo

func (f filesByModTime_) Len() int      { return len(f) }
func (f filesByModTime_) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f filesByModTime_) Less(i, j int) bool {
	return f[i].ModTime().Before(f[j].ModTime())
}

// SortByModTime sorts files oldest to newest, in place.
func SortByModTime(files []os.FileInfo) {
	if 1 < len(files) {
		sort.Sort(filesByModTime_(files))
	}
}
