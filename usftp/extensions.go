package usftp

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// extension names advertised in the SSH_FXP_VERSION exchange (component C).
//
// https://github.com/openssh/openssh-portable/blob/master/PROTOCOL
const (
	extFsync      = "fsync@openssh.com"
	extStatvfs    = "statvfs@openssh.com"
	extHardlink   = "hardlink@openssh.com"
	extPosixRenam = "posix-rename@openssh.com"
	extLimits     = "limits@openssh.com"
)

// extensionSnapshot captures what the server advertised at Init time, so
// later calls can gate themselves (HasExtension) without re-querying, and so
// maxReadLen/maxWriteLen/maxOpenHandle default sensibly when the server
// never sent limits@openssh.com.
type extensionSnapshot struct {
	fsync   bool
	statvfs bool
	hardlnk bool

	maxReadLen    uint64
	maxWriteLen   uint64
	maxOpenHandle uint64
}

func newExtensionSnapshot(ext map[string]string) extensionSnapshot {
	s := extensionSnapshot{
		maxReadLen:    defaultMaxReadWriteLen,
		maxWriteLen:   defaultMaxReadWriteLen,
		maxOpenHandle: 0, // 0 == unlimited
	}
	_, s.fsync = ext[extFsync]
	_, s.statvfs = ext[extStatvfs]
	_, s.hardlnk = ext[extHardlink]
	return s
}

// sshFxpExtendedGenericPacket carries an extended request whose name isn't
// one of the four this package decodes natively (statvfs/fsync/hardlink/
// posix-rename) or limits@openssh.com. It's handed to Handler.Extended so a
// server can advertise and answer an extension this package knows nothing
// about.
type sshFxpExtendedGenericPacket struct {
	idPkt_
	ExtendedRequest string
	Payload         []byte
}

func (p *sshFxpExtendedGenericPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpExtended)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.ExtendedRequest)
	outB = append(outB, p.Payload...)
	return
}

func (p *sshFxpExtendedGenericPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	}
	if p.ExtendedRequest, b, err = readString(b); err != nil {
		return err
	}
	p.Payload = b
	return nil
}

// sshFxpLimitsPacket requests the limits@openssh.com extension.
type sshFxpLimitsPacket struct {
	idPkt_
}

func (p *sshFxpLimitsPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpExtended)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, extLimits)
	return
}

// limitsReply is the extended-reply payload for limits@openssh.com:
// uint64 max-packet-length, uint64 max-read-length, uint64 max-write-length,
// uint64 max-open-handles.
type limitsReply struct {
	MaxPacketLength uint64
	MaxReadLength   uint64
	MaxWriteLength  uint64
	MaxOpenHandles  uint64
}

func readLimits(buff []byte) (*limitsReply, error) {
	var rv limitsReply
	err := binary.Read(bytes.NewReader(buff), binary.BigEndian, &rv)
	if err != nil {
		return nil, errors.New("sftp: cannot parse limits@openssh.com reply")
	}
	return &rv, nil
}

func (r *limitsReply) appendTo(id uint32, inB []byte) []byte {
	outB := append(inB, byte(sshFxpExtendedReply))
	outB = be_.AppendUint32(outB, id)
	outB = be_.AppendUint64(outB, r.MaxPacketLength)
	outB = be_.AppendUint64(outB, r.MaxReadLength)
	outB = be_.AppendUint64(outB, r.MaxWriteLength)
	outB = be_.AppendUint64(outB, r.MaxOpenHandles)
	return outB
}

// A StatVFS contains statistics about a filesystem.
type StatVFS struct {
	ID      uint32
	Bsize   uint64 // file system block size
	Frsize  uint64 // fundamental fs block size
	Blocks  uint64 // number of blocks (unit f_frsize)
	Bfree   uint64 // free blocks in file system
	Bavail  uint64 // free blocks for non-root
	Files   uint64 // total file inodes
	Ffree   uint64 // free file inodes
	Favail  uint64 // free file inodes for to non-root
	Fsid    uint64 // file system id
	Flag    uint64 // bit mask of f_flag values
	Namemax uint64 // maximum filename length
}

// TotalSpace calculates the amount of total space in a filesystem.
func (p *StatVFS) TotalSpace() uint64 {
	return p.Frsize * p.Blocks
}

// FreeSpace calculates the amount of free space in a filesystem.
func (p *StatVFS) FreeSpace() uint64 {
	return p.Frsize * p.Bfree
}

// appendTo marshals the statvfs@openssh.com extended reply: type byte, id
// (from p.ID), then the eleven uint64 fields in wire order.
func (p *StatVFS) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpExtendedReply)
	outB = be_.AppendUint32(outB, p.ID)
	outB = be_.AppendUint64(outB, p.Bsize)
	outB = be_.AppendUint64(outB, p.Frsize)
	outB = be_.AppendUint64(outB, p.Blocks)
	outB = be_.AppendUint64(outB, p.Bfree)
	outB = be_.AppendUint64(outB, p.Bavail)
	outB = be_.AppendUint64(outB, p.Files)
	outB = be_.AppendUint64(outB, p.Ffree)
	outB = be_.AppendUint64(outB, p.Favail)
	outB = be_.AppendUint64(outB, p.Fsid)
	outB = be_.AppendUint64(outB, p.Flag)
	outB = be_.AppendUint64(outB, p.Namemax)
	return
}

