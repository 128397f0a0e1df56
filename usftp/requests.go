package usftp

// The request half of the packet catalog: every SSH_FXP_* request the
// protocol defines, each knowing how to frame itself (appendTo, used by the
// client mux) and how to decode itself from a frame body (parse, used by
// the server dispatch).  Reply packets live in reply.go, the extension
// sub-packets' replies in extensions.go.

import (
	"os"
)

func marshalIDStringPacket(
	packetType byte,
	id uint32,
	str string,
	inB []byte,
) (outB []byte, err error) {

	outB = append(inB, packetType)
	outB = be_.AppendUint32(outB, id)
	outB = appendString(outB, str)
	return
}

func readIDString(b []byte, id *uint32, str *string) error {
	var err error
	*id, b, err = readUint32(b)
	if err != nil {
		return err
	}
	*str, _, err = readString(b)
	return err
}

type sshFxpReaddirPacket struct {
	idPkt_
	Handle string
}

func (p *sshFxpReaddirPacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpReaddir, p.ID, p.Handle, inB)
}

func (p *sshFxpReaddirPacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Handle)
}

type sshFxpOpendirPacket struct {
	idPkt_
	Path string
}

func (p *sshFxpOpendirPacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpOpendir, p.ID, p.Path, inB)
}

func (p *sshFxpOpendirPacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Path)
}

type sshFxpLstatPacket struct {
	idPkt_
	Path string
}

func (p *sshFxpLstatPacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpLstat, p.ID, p.Path, inB)
}

func (p *sshFxpLstatPacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Path)
}

type sshFxpStatPacket struct {
	idPkt_
	Path string
}

func (p *sshFxpStatPacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpStat, p.ID, p.Path, inB)
}

func (p *sshFxpStatPacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Path)
}

type sshFxpFstatPacket struct {
	idPkt_
	Handle string
}

func (p *sshFxpFstatPacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpFstat, p.ID, p.Handle, inB)
}

func (p *sshFxpFstatPacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Handle)
}

type sshFxpClosePacket struct {
	idPkt_
	Handle string
}

func (p *sshFxpClosePacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpClose, p.ID, p.Handle, inB)
}

func (p *sshFxpClosePacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Handle)
}

type sshFxpRemovePacket struct {
	idPkt_
	Filename string
}

func (p *sshFxpRemovePacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpRemove, p.ID, p.Filename, inB)
}

func (p *sshFxpRemovePacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Filename)
}

type sshFxpRmdirPacket struct {
	idPkt_
	Path string
}

func (p *sshFxpRmdirPacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpRmdir, p.ID, p.Path, inB)
}

func (p *sshFxpRmdirPacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Path)
}

type sshFxpSymlinkPacket struct {
	idPkt_

	// The order of the arguments to the SSH_FXP_SYMLINK method was inadvertently reversed.
	// Unfortunately, the reversal was not noticed until the server was widely deployed.
	// Covered in Section 4.1 of https://github.com/openssh/openssh-portable/blob/master/PROTOCOL

	Targetpath string
	Linkpath   string
}

func (p *sshFxpSymlinkPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpSymlink)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.Targetpath)
	outB = appendString(outB, p.Linkpath)
	return
}

func (p *sshFxpSymlinkPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if p.Targetpath, b, err = readString(b); err != nil {
		return err
	} else if p.Linkpath, _, err = readString(b); err != nil {
		return err
	}
	return nil
}

type sshFxpHardlinkPacket struct {
	idPkt_
	Oldpath string
	Newpath string
}

func (p *sshFxpHardlinkPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpExtended)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, extHardlink)
	outB = appendString(outB, p.Oldpath)
	outB = appendString(outB, p.Newpath)
	return
}

type sshFxpReadlinkPacket struct {
	idPkt_
	Path string
}

func (p *sshFxpReadlinkPacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpReadlink, p.ID, p.Path, inB)
}

func (p *sshFxpReadlinkPacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Path)
}

type sshFxpRealpathPacket struct {
	idPkt_
	Path string
}

func (p *sshFxpRealpathPacket) appendTo(inB []byte) ([]byte, error) {
	return marshalIDStringPacket(sshFxpRealpath, p.ID, p.Path, inB)
}

func (p *sshFxpRealpathPacket) parse(b []byte) error {
	return readIDString(b, &p.ID, &p.Path)
}

type sshFxpOpenPacket struct {
	idPkt_
	Path   string
	Pflags uint32
	Flags  uint32
	Attrs  interface{}
}

func (p *sshFxpOpenPacket) appendTo(inB []byte) (outB []byte, err error) {

	outB = append(inB, sshFxpOpen)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.Path)
	outB = be_.AppendUint32(outB, p.Pflags)
	outB = be_.AppendUint32(outB, p.Flags)

	switch attrs := p.Attrs.(type) {
	case []byte:
		return append(outB, attrs...), nil // raw attrs captured by parse
	case os.FileInfo:
		_, fs := attrsFromInfo(attrs) // the packet's own Flags word governs, not the derived one
		return appendAttrs(outB, p.Flags, fs), nil
	case *FileStat:
		return appendAttrs(outB, p.Flags, attrs), nil
	}

	return appendAny(outB, p.Attrs), nil
}

func (p *sshFxpOpenPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if p.Path, b, err = readString(b); err != nil {
		return err
	} else if p.Pflags, b, err = readUint32(b); err != nil {
		return err
	} else if p.Flags, b, err = readUint32(b); err != nil {
		return err
	}
	p.Attrs = b
	return nil
}

type sshFxpReadPacket struct {
	idPkt_
	Len    uint32
	Offset uint64
	Handle string
}

func (p *sshFxpReadPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpRead)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.Handle)
	outB = be_.AppendUint64(outB, p.Offset)
	outB = be_.AppendUint32(outB, p.Len)
	return
}

func (p *sshFxpReadPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if p.Handle, b, err = readString(b); err != nil {
		return err
	} else if p.Offset, b, err = readUint64(b); err != nil {
		return err
	} else if p.Len, _, err = readUint32(b); err != nil {
		return err
	}
	return nil
}

type sshFxpRenamePacket struct {
	idPkt_
	Oldpath string
	Newpath string
}

func (p *sshFxpRenamePacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpRename)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.Oldpath)
	outB = appendString(outB, p.Newpath)
	return
}
func (p *sshFxpRenamePacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if p.Oldpath, b, err = readString(b); err != nil {
		return err
	} else if p.Newpath, _, err = readString(b); err != nil {
		return err
	}
	return nil
}

type sshFxpPosixRenamePacket struct {
	idPkt_
	Oldpath string
	Newpath string
}

func (p *sshFxpPosixRenamePacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpExtended)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, extPosixRenam)
	outB = appendString(outB, p.Oldpath)
	outB = appendString(outB, p.Newpath)
	return
}

type sshFxpWritePacket struct {
	idPkt_
	Length uint32
	Offset uint64
	Handle string
	Data   []byte // not written by appendTo - see sendWritePacket
}

func (p *sshFxpWritePacket) appendTo(inB []byte) (outB []byte, err error) {

	outB = append(inB, sshFxpWrite)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.Handle)
	outB = be_.AppendUint64(outB, p.Offset)
	outB = be_.AppendUint32(outB, p.Length)
	return
}

func (p *sshFxpWritePacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if p.Handle, b, err = readString(b); err != nil {
		return err
	} else if p.Offset, b, err = readUint64(b); err != nil {
		return err
	} else if p.Length, b, err = readUint32(b); err != nil {
		return err
	} else if uint32(len(b)) < p.Length {
		return errShortPacket
	}

	p.Data = b[:p.Length]
	return nil
}

type sshFxpMkdirPacket struct {
	idPkt_
	Flags uint32 // the client we drive always sends 0 (no attrs follow)
	Path  string
	Attrs interface{} // raw bytes captured server side, see fileStat()
}

func (p *sshFxpMkdirPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpMkdir)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.Path)
	outB = be_.AppendUint32(outB, p.Flags)
	return
}

func (p *sshFxpMkdirPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if p.Path, b, err = readString(b); err != nil {
		return err
	} else if p.Flags, b, err = readUint32(b); err != nil {
		return err
	}
	p.Attrs = b
	return nil
}

// fileStat decodes the raw attrs payload captured by parse, the
// same way Setstat/Fsetstat/Open do.
func (p *sshFxpMkdirPacket) fileStat() (*FileStat, error) {
	b, _ := p.Attrs.([]byte)
	fs, _, err := readAttrs(p.Flags, b)
	return fs, err
}

type sshFxpSetstatPacket struct {
	idPkt_
	Flags uint32
	Path  string
	Attrs interface{}
}

type sshFxpFsetstatPacket struct {
	idPkt_
	Flags  uint32
	Handle string
	Attrs  interface{}
}

func (p *sshFxpSetstatPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpSetstat)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.Path)
	outB = be_.AppendUint32(outB, p.Flags)

	switch attrs := p.Attrs.(type) {
	case []byte:
		return append(outB, attrs...), nil // raw attrs captured by parse
	case os.FileInfo:
		_, fs := attrsFromInfo(attrs) // the packet's own Flags word governs, not the derived one
		return appendAttrs(outB, p.Flags, fs), nil
	case *FileStat:
		return appendAttrs(outB, p.Flags, attrs), nil
	}

	return appendAny(outB, p.Attrs), nil
}

func (p *sshFxpFsetstatPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpFsetstat)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.Handle)
	outB = be_.AppendUint32(outB, p.Flags)

	switch attrs := p.Attrs.(type) {
	case []byte:
		return append(outB, attrs...), nil // raw attrs captured by parse
	case os.FileInfo:
		_, fs := attrsFromInfo(attrs) // the packet's own Flags word governs, not the derived one
		return appendAttrs(outB, p.Flags, fs), nil
	case *FileStat:
		return appendAttrs(outB, p.Flags, attrs), nil
	}

	return appendAny(outB, p.Attrs), nil
}

func (p *sshFxpSetstatPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if p.Path, b, err = readString(b); err != nil {
		return err
	} else if p.Flags, b, err = readUint32(b); err != nil {
		return err
	}
	p.Attrs = b
	return nil
}

func (p *sshFxpFsetstatPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if p.Handle, b, err = readString(b); err != nil {
		return err
	} else if p.Flags, b, err = readUint32(b); err != nil {
		return err
	}
	p.Attrs = b
	return nil
}

type sshFxpStatvfsPacket struct {
	idPkt_
	Path string
}

func (p *sshFxpStatvfsPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpExtended)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, extStatvfs)
	outB = appendString(outB, p.Path)
	return
}

type sshFxpFsyncPacket struct {
	idPkt_
	Handle string
}

func (p *sshFxpFsyncPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpExtended)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, extFsync)
	outB = appendString(outB, p.Handle)
	return
}


