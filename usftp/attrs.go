package usftp

// The SFTPv3 attribute record is the one wire structure both halves of this
// package handle constantly: every *STAT and READDIR reply carries one, and
// OPEN/SETSTAT/FSETSTAT/MKDIR requests end with one.  The record is
// conditional - a flags word announces which optional fields follow - so
// the whole concern lives here beside the FileStat type: the flags, the
// encoder and decoder, and the conversions to and from os file modes.
//
// https://filezilla-project.org/specs/draft-ietf-secsh-filexfer-02.txt section 5

import (
	"os"
	"time"
)

// bits of the attrs flags word
const (
	sshFileXferAttrSize        = 0x00000001
	sshFileXferAttrUIDGID      = 0x00000002 // uid and gid travel as a pair
	sshFileXferAttrPermissions = 0x00000004
	sshFileXferAttrACmodTime   = 0x00000008 // atime and mtime travel as a pair
	sshFileXferAttrExtended    = 0x80000000

	sshFileXferAttrAll = sshFileXferAttrSize | sshFileXferAttrUIDGID |
		sshFileXferAttrPermissions | sshFileXferAttrACmodTime |
		sshFileXferAttrExtended
)

// FileStat is a decoded attribute record.
//
// The client surfaces these from Stat/Lstat/Fstat and ReadDir; a server
// Handler returns them from its *Stat methods and receives them (alongside
// the request's own flags word) on Open, SetStat, FSetStat and MkDir.
type FileStat struct {
	Size     uint64
	Mode     uint32 // unix type + permission bits, see FileMode
	Mtime    uint32
	Atime    uint32
	UID      uint32
	GID      uint32
	Extended []StatExtended
}

// StatExtended is one (type, data) pair of vendor extension attribute data.
type StatExtended struct {
	ExtType string
	ExtData string
}

// attrFlags reports which fields of fs an encoded record will carry:
// size, permissions, and times always; uid/gid and extended pairs only when
// populated, since their zero values are indistinguishable from real data
// ("root owns it", no extensions).
func (fs *FileStat) attrFlags() uint32 {
	flags := uint32(sshFileXferAttrSize |
		sshFileXferAttrPermissions | sshFileXferAttrACmodTime)
	if 0 != fs.UID || 0 != fs.GID {
		flags |= sshFileXferAttrUIDGID
	}
	if 0 != len(fs.Extended) {
		flags |= sshFileXferAttrExtended
	}
	return flags
}

// FileMode returns the type and permission bits
func (fs *FileStat) FileMode() FileMode { return FileMode(fs.Mode) }

// FileType returns just the type bits
func (fs *FileStat) FileType() FileMode { return FileMode(fs.Mode) & ModeType }

func (fs *FileStat) IsRegular() bool {
	return ModeRegular == FileMode(fs.Mode)&ModeType
}

func (fs *FileStat) IsDir() bool {
	return ModeDir == FileMode(fs.Mode)&ModeType
}

// ModTime returns Mtime as a time.Time
func (fs *FileStat) ModTime() time.Time { return time.Unix(int64(fs.Mtime), 0) }

// AccessTime returns Atime as a time.Time
func (fs *FileStat) AccessTime() time.Time { return time.Unix(int64(fs.Atime), 0) }

// OsFileMode returns Mode converted to an os.FileMode
func (fs *FileStat) OsFileMode() os.FileMode { return osFileMode(fs.Mode) }

//
// wire codec
//

// appendAttrs encodes the fields of fs selected by flags, in wire order.
// The flags word itself is encoded by the caller - requests carry it as
// their own field, replies get it from attrFlags.
func appendAttrs(b []byte, flags uint32, fs *FileStat) []byte {
	if 0 != flags&sshFileXferAttrSize {
		b = be_.AppendUint64(b, fs.Size)
	}
	if 0 != flags&sshFileXferAttrUIDGID {
		b = be_.AppendUint32(b, fs.UID)
		b = be_.AppendUint32(b, fs.GID)
	}
	if 0 != flags&sshFileXferAttrPermissions {
		b = be_.AppendUint32(b, fs.Mode)
	}
	if 0 != flags&sshFileXferAttrACmodTime {
		b = be_.AppendUint32(b, fs.Atime)
		b = be_.AppendUint32(b, fs.Mtime)
	}
	if 0 != flags&sshFileXferAttrExtended {
		b = be_.AppendUint32(b, uint32(len(fs.Extended)))
		for _, ext := range fs.Extended {
			b = appendString(b, ext.ExtType)
			b = appendString(b, ext.ExtData)
		}
	}
	return b
}

// readAttrs decodes the fields selected by flags from b, returning the
// remainder of b.  Truncation at any field is errShortPacket, never a panic.
func readAttrs(flags uint32, b []byte) (fs *FileStat, rest []byte, err error) {
	fs = &FileStat{}
	if 0 != flags&sshFileXferAttrSize {
		if fs.Size, b, err = readUint64(b); err != nil {
			return nil, b, err
		}
	}
	if 0 != flags&sshFileXferAttrUIDGID {
		if fs.UID, b, err = readUint32(b); err != nil {
			return nil, b, err
		}
		if fs.GID, b, err = readUint32(b); err != nil {
			return nil, b, err
		}
	}
	if 0 != flags&sshFileXferAttrPermissions {
		if fs.Mode, b, err = readUint32(b); err != nil {
			return nil, b, err
		}
	}
	if 0 != flags&sshFileXferAttrACmodTime {
		if fs.Atime, b, err = readUint32(b); err != nil {
			return nil, b, err
		}
		if fs.Mtime, b, err = readUint32(b); err != nil {
			return nil, b, err
		}
	}
	if 0 != flags&sshFileXferAttrExtended {
		var count uint32
		if count, b, err = readUint32(b); err != nil {
			return nil, b, err
		}
		fs.Extended = make([]StatExtended, count)
		for i := range fs.Extended {
			if fs.Extended[i].ExtType, b, err = readString(b); err != nil {
				return nil, b, err
			}
			if fs.Extended[i].ExtData, b, err = readString(b); err != nil {
				return nil, b, err
			}
		}
	}
	return fs, b, nil
}

// readFlaggedAttrs decodes a record whose flags word is in-band, the form
// replies use.
func readFlaggedAttrs(b []byte) (*FileStat, []byte, error) {
	flags, b, err := readUint32(b)
	if err != nil {
		return nil, b, err
	}
	return readAttrs(flags, b)
}

// appendInfoAttrs encodes a full record (flags word included) from an
// os.FileInfo, for Handler implementations backed by a real filesystem.
func appendInfoAttrs(b []byte, fi os.FileInfo) []byte {
	flags, fs := attrsFromInfo(fi)
	b = be_.AppendUint32(b, flags)
	return appendAttrs(b, flags, fs)
}

//
// os.FileInfo bridging
//

// statInfo_ adapts a FileStat to os.FileInfo.
type statInfo_ struct {
	name string
	stat *FileStat
}

func (fi *statInfo_) Name() string       { return fi.name }
func (fi *statInfo_) Size() int64        { return int64(fi.stat.Size) }
func (fi *statInfo_) Mode() os.FileMode  { return fi.stat.OsFileMode() }
func (fi *statInfo_) ModTime() time.Time { return fi.stat.ModTime() }
func (fi *statInfo_) IsDir() bool        { return fi.stat.IsDir() }
func (fi *statInfo_) Sys() any           { return fi.stat }

// FileInfoFromStat adapts a FileStat and a name to an os.FileInfo.
// Sys() exposes the underlying *FileStat.
func FileInfoFromStat(stat *FileStat, name string) os.FileInfo {
	return &statInfo_{name: name, stat: stat}
}

// FileInfoUidGid is an os.FileInfo that can also report ownership, for
// sources that track it without a *syscall.Stat_t (archives, test fixtures).
type FileInfoUidGid interface {
	os.FileInfo
	Uid() uint32
	Gid() uint32
}

// FileInfoExtendedData is an os.FileInfo that carries extension attribute
// pairs to be sent alongside the standard fields.
type FileInfoExtendedData interface {
	os.FileInfo
	Extended() []StatExtended
}

// attrsFromInfo converts an os.FileInfo to a wire record plus the flags
// word describing it.  Ownership comes from the platform Sys() value where
// available (see attrsFromInfoOs), or from the FileInfoUidGid extension.
func attrsFromInfo(fi os.FileInfo) (flags uint32, fs *FileStat) {
	mtime := fi.ModTime().Unix()
	flags = sshFileXferAttrSize |
		sshFileXferAttrPermissions |
		sshFileXferAttrACmodTime
	fs = &FileStat{
		Size:  uint64(fi.Size()),
		Mode:  wireFileMode(fi.Mode()),
		Mtime: uint32(mtime),
		Atime: uint32(mtime),
	}

	attrsFromInfoOs(fi, &flags, fs)

	if ext, ok := fi.(FileInfoUidGid); ok {
		flags |= sshFileXferAttrUIDGID
		fs.UID = ext.Uid()
		fs.GID = ext.Gid()
	}
	if ext, ok := fi.(FileInfoExtendedData); ok {
		fs.Extended = ext.Extended()
		if 0 != len(fs.Extended) {
			flags |= sshFileXferAttrExtended
		}
	}
	return
}

//
// modes
//

// FileMode holds unix type and permission bits as SFTPv3 transmits them.
// These are the POSIX values regardless of what the local OS uses.
type FileMode uint32

const (
	ModePerm   FileMode = 0o0777
	ModeSetUID FileMode = 0o4000
	ModeSetGID FileMode = 0o2000
	ModeSticky FileMode = 0o1000

	ModeType       FileMode = 0xF000 // mask of the type bits below
	ModeNamedPipe  FileMode = 0x1000
	ModeCharDevice FileMode = 0x2000
	ModeDir        FileMode = 0x4000
	ModeDevice     FileMode = 0x6000
	ModeRegular    FileMode = 0x8000
	ModeSymlink    FileMode = 0xA000
	ModeSocket     FileMode = 0xC000
)

func (m FileMode) IsDir() bool     { return ModeDir == m&ModeType }
func (m FileMode) IsRegular() bool { return ModeRegular == m&ModeType }

// Perm returns just the permission bits
func (m FileMode) Perm() FileMode { return m & ModePerm }

// Type returns just the type bits
func (m FileMode) Type() FileMode { return m & ModeType }

// osFileMode converts wire mode bits to an os.FileMode
func osFileMode(mode uint32) os.FileMode {
	fm := os.FileMode(mode & 0o777)

	switch FileMode(mode) & ModeType {
	case ModeDir:
		fm |= os.ModeDir
	case ModeSymlink:
		fm |= os.ModeSymlink
	case ModeDevice:
		fm |= os.ModeDevice
	case ModeCharDevice:
		fm |= os.ModeDevice | os.ModeCharDevice
	case ModeNamedPipe:
		fm |= os.ModeNamedPipe
	case ModeSocket:
		fm |= os.ModeSocket
	case ModeRegular:
		// no os bit for regular
	}

	if 0 != FileMode(mode)&ModeSetUID {
		fm |= os.ModeSetuid
	}
	if 0 != FileMode(mode)&ModeSetGID {
		fm |= os.ModeSetgid
	}
	if 0 != FileMode(mode)&ModeSticky {
		fm |= os.ModeSticky
	}
	return fm
}

// wireFileMode converts an os.FileMode to wire mode bits
func wireFileMode(mode os.FileMode) uint32 {
	rv := FileMode(mode & os.ModePerm)

	switch mode & os.ModeType {
	case 0:
		rv |= ModeRegular
	case os.ModeDir:
		rv |= ModeDir
	case os.ModeSymlink:
		rv |= ModeSymlink
	case os.ModeDevice | os.ModeCharDevice:
		rv |= ModeCharDevice
	case os.ModeDevice:
		rv |= ModeDevice
	case os.ModeNamedPipe:
		rv |= ModeNamedPipe
	case os.ModeSocket:
		rv |= ModeSocket
	}

	if 0 != mode&os.ModeSetuid {
		rv |= ModeSetUID
	}
	if 0 != mode&os.ModeSetgid {
		rv |= ModeSetGID
	}
	if 0 != mode&os.ModeSticky {
		rv |= ModeSticky
	}
	return uint32(rv)
}

const (
	s_ISUID = uint32(ModeSetUID)
	s_ISGID = uint32(ModeSetGID)
	s_ISVTX = uint32(ModeSticky)
)
