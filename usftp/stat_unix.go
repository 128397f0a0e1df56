//go:build !windows

package usftp

import (
	"os"
	"syscall"
)

// attrsFromInfoOs adds the unix-only attribute fields to a wire record
// being built from an os.FileInfo: ownership, when the info came from a
// real stat call and so carries a *syscall.Stat_t.  Synthesized infos (in
// memory backends, fixtures) simply get no uid/gid field.
func attrsFromInfoOs(fi os.FileInfo, flags *uint32, fs *FileStat) {
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		*flags |= sshFileXferAttrUIDGID
		fs.UID = sys.Uid
		fs.GID = sys.Gid
	}
}
