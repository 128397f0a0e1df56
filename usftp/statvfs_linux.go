//go:build linux

package usftp

import "golang.org/x/sys/unix"

// LocalStatVFS fills a StatVFS from the local filesystem containing pathN,
// for Handler implementations that serve a real directory tree and want to
// answer statvfs@openssh.com truthfully.  Favail is reported as Ffree
// since statfs(2) does not distinguish them.
func LocalStatVFS(pathN string) (*StatVFS, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(pathN, &st); err != nil {
		return nil, err
	}
	return &StatVFS{
		Bsize:   uint64(st.Bsize),
		Frsize:  uint64(st.Frsize),
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Favail:  st.Ffree,
		Flag:    uint64(st.Flags),
		Namemax: uint64(st.Namelen),
	}, nil
}
