package usftp

import (
	"io"
	"io/fs"
	"path"
)

// FS is the subset of the io/fs interfaces a remote session can serve
// without caching: open-for-read, stat, and directory listing.
type FS interface {
	fs.FS
	fs.ReadDirFS
	fs.StatFS
}

// AsFS adapts the Client to the standard io/fs interfaces, for handing a
// remote tree to code that only knows how to walk an fs.FS (fs.WalkDir,
// template loading, and the like).  Every call is a live round trip; nothing
// is cached between calls.
func (c *Client) AsFS() FS {
	return &remoteFS_{c: c}
}

type remoteFS_ struct {
	c *Client
}

// Open opens name for reading.  A directory comes back as an
// fs.ReadDirFile whose ReadDir pages through the remote listing.
func (rfs *remoteFS_) Open(name string) (fs.File, error) {
	attrs, err := rfs.c.Stat(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if attrs.IsDir() {
		return &remoteDir_{c: rfs.c, pathN: name}, nil
	}
	f, err := rfs.c.OpenRead(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	f.attrs = *attrs
	return &remoteFile_{f: f}, nil
}

// Stat implements fs.StatFS.
func (rfs *remoteFS_) Stat(name string) (fs.FileInfo, error) {
	attrs, err := rfs.c.Stat(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return FileInfoFromStat(attrs, path.Base(name)), nil
}

// ReadDir implements fs.ReadDirFS.
func (rfs *remoteFS_) ReadDir(dirN string) (entries []fs.DirEntry, err error) {
	files, err := rfs.c.ReadDir(dirN, 0, nil)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: dirN, Err: err}
	}
	entries = make([]fs.DirEntry, len(files))
	for i, f := range files {
		entries[i] = &remoteEntry_{f: f}
	}
	return
}

// remoteEntry_ is an fs.DirEntry over a File produced by ReadDir, which
// already carries the attrs from the listing - Info never re-stats.
type remoteEntry_ struct {
	f *File
}

func (e *remoteEntry_) Name() string      { return e.f.BaseName() }
func (e *remoteEntry_) IsDir() bool       { return e.f.IsDir() }
func (e *remoteEntry_) Type() fs.FileMode { return e.info().Mode().Type() }
func (e *remoteEntry_) Info() (fs.FileInfo, error) {
	return e.info(), nil
}
func (e *remoteEntry_) info() fs.FileInfo {
	return FileInfoFromStat(&e.f.attrs, e.f.BaseName())
}

// remoteFile_ is the fs.File face of an open remote file.
type remoteFile_ struct {
	f *File
}

func (rf *remoteFile_) Read(b []byte) (int, error) { return rf.f.Read(b) }
func (rf *remoteFile_) Close() error               { return rf.f.Close() }
func (rf *remoteFile_) Stat() (fs.FileInfo, error) {
	attrs, err := rf.f.Stat()
	if err != nil {
		return nil, err
	}
	return FileInfoFromStat(attrs, rf.f.BaseName()), nil
}

// remoteDir_ is the fs.ReadDirFile face of a remote directory.  The full
// listing is fetched on first use; n-at-a-time reads page through it.
type remoteDir_ struct {
	c       *Client
	pathN   string
	listing []fs.DirEntry
	listed  bool
}

func (rd *remoteDir_) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: rd.pathN, Err: fs.ErrInvalid}
}

func (rd *remoteDir_) Close() error { return nil }

func (rd *remoteDir_) Stat() (fs.FileInfo, error) {
	attrs, err := rd.c.Stat(rd.pathN)
	if err != nil {
		return nil, err
	}
	return FileInfoFromStat(attrs, path.Base(rd.pathN)), nil
}

func (rd *remoteDir_) ReadDir(n int) (entries []fs.DirEntry, err error) {
	if !rd.listed {
		rd.listed = true
		files, err := rd.c.ReadDir(rd.pathN, 0, nil)
		if err != nil {
			return nil, err
		}
		rd.listing = make([]fs.DirEntry, len(files))
		for i, f := range files {
			rd.listing[i] = &remoteEntry_{f: f}
		}
	}
	if n <= 0 {
		entries = rd.listing
		rd.listing = nil
		return entries, nil
	}
	if 0 == len(rd.listing) {
		return nil, io.EOF
	}
	if n > len(rd.listing) {
		n = len(rd.listing)
	}
	entries, rd.listing = rd.listing[:n], rd.listing[n:]
	return entries, nil
}
