package usftp

import "fmt"

// The reply half of the packet catalog: the packets a server emits
// (HANDLE, STATUS, DATA, NAME, ATTRS, and the extension replies), plus
// decodePacket/decodeExtended, the dispatch tables the server uses to turn
// an inbound frame body into a concrete request packet.

type sshFxpHandlePacket struct {
	idPkt_
	Handle string
}

func (p *sshFxpHandlePacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpHandle)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendString(outB, p.Handle)
	return
}

type sshFxpStatusPacket struct {
	idPkt_
	StatusError
}

func (p *sshFxpStatusPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpStatus)
	outB = be_.AppendUint32(outB, p.ID)
	outB = appendStatus(outB, p.StatusError)
	return
}

type sshFxpDataPacket struct {
	idPkt_
	Data []byte
}

func (p *sshFxpDataPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpData)
	outB = be_.AppendUint32(outB, p.ID)
	outB = be_.AppendUint32(outB, uint32(len(p.Data)))
	outB = append(outB, p.Data...)
	return
}

type sshFxpNameAttr struct {
	Name     string
	LongName string
	Attrs    *FileStat
}

func (na *sshFxpNameAttr) appendTo(inB []byte) (outB []byte, err error) {
	outB = appendString(inB, na.Name)
	outB = appendString(outB, na.LongName)
	if nil == na.Attrs {
		outB = be_.AppendUint32(outB, 0)
		return
	}
	flags := na.Attrs.attrFlags()
	outB = be_.AppendUint32(outB, flags)
	outB = appendAttrs(outB, flags, na.Attrs)
	return
}

type sshFxpNamePacket struct {
	idPkt_
	NameAttrs []*sshFxpNameAttr
}

func (p *sshFxpNamePacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpName)
	outB = be_.AppendUint32(outB, p.ID)
	outB = be_.AppendUint32(outB, uint32(len(p.NameAttrs)))
	for _, na := range p.NameAttrs {
		outB, err = na.appendTo(outB)
		if err != nil {
			return
		}
	}
	return
}

type sshFxpAttrsPacket struct {
	idPkt_
	Attrs *FileStat
}

func (p *sshFxpAttrsPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpAttrs)
	outB = be_.AppendUint32(outB, p.ID)
	flags := p.Attrs.attrFlags()
	outB = be_.AppendUint32(outB, flags)
	outB = appendAttrs(outB, flags, p.Attrs)
	return
}

//
// server-side decoders for the extension sub-request packets
//

func (p *sshFxpStatvfsPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if _, b, err = readString(b); err != nil { // extended-request name
		return err
	} else if p.Path, _, err = readString(b); err != nil {
		return err
	}
	return nil
}

func (p *sshFxpFsyncPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if _, b, err = readString(b); err != nil {
		return err
	} else if p.Handle, _, err = readString(b); err != nil {
		return err
	}
	return nil
}

func (p *sshFxpHardlinkPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if _, b, err = readString(b); err != nil {
		return err
	} else if p.Oldpath, b, err = readString(b); err != nil {
		return err
	} else if p.Newpath, _, err = readString(b); err != nil {
		return err
	}
	return nil
}

func (p *sshFxpPosixRenamePacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if _, b, err = readString(b); err != nil {
		return err
	} else if p.Oldpath, b, err = readString(b); err != nil {
		return err
	} else if p.Newpath, _, err = readString(b); err != nil {
		return err
	}
	return nil
}

func (p *sshFxpLimitsPacket) parse(b []byte) error {
	var err error
	if p.ID, b, err = readUint32(b); err != nil {
		return err
	} else if _, _, err = readString(b); err != nil {
		return err
	}
	return nil
}

// requestPacket is what decodePacket hands the server dispatch loop: any of
// the 18 base request types, one of the 5 extended sub-requests this package
// decodes natively, or a generic extended request routed to Handler.Extended.
type requestPacket interface {
	idAwarePkt_
}

// decodePacket dispatches on the SFTP packet type byte exactly per the
// type-code table in component B, decoding the remainder of the frame into
// the matching concrete request type. An unknown type, or a truncated
// payload, yields a *StatusError{Code: sshFxBadMessage}.
func decodePacket(typ uint8, body []byte) (req requestPacket, err error) {
	switch typ {
	case sshFxpOpen:
		req = &sshFxpOpenPacket{}
	case sshFxpClose:
		req = &sshFxpClosePacket{}
	case sshFxpRead:
		req = &sshFxpReadPacket{}
	case sshFxpWrite:
		req = &sshFxpWritePacket{}
	case sshFxpLstat:
		req = &sshFxpLstatPacket{}
	case sshFxpFstat:
		req = &sshFxpFstatPacket{}
	case sshFxpSetstat:
		req = &sshFxpSetstatPacket{}
	case sshFxpFsetstat:
		req = &sshFxpFsetstatPacket{}
	case sshFxpOpendir:
		req = &sshFxpOpendirPacket{}
	case sshFxpReaddir:
		req = &sshFxpReaddirPacket{}
	case sshFxpRemove:
		req = &sshFxpRemovePacket{}
	case sshFxpMkdir:
		req = &sshFxpMkdirPacket{}
	case sshFxpRmdir:
		req = &sshFxpRmdirPacket{}
	case sshFxpRealpath:
		req = &sshFxpRealpathPacket{}
	case sshFxpStat:
		req = &sshFxpStatPacket{}
	case sshFxpRename:
		req = &sshFxpRenamePacket{}
	case sshFxpReadlink:
		req = &sshFxpReadlinkPacket{}
	case sshFxpSymlink:
		req = &sshFxpSymlinkPacket{}
	case sshFxpExtended:
		return decodeExtended(body)
	default:
		return nil, &StatusError{Code: sshFxBadMessage,
			msg: fmt.Sprintf("unknown packet type %d", typ)}
	}

	type parser_ interface {
		parse([]byte) error
	}
	if err = req.(parser_).parse(body); err != nil {
		return nil, &StatusError{Code: sshFxBadMessage, msg: err.Error()}
	}
	return req, nil
}

// decodeExtended peeks the extended-request name (the field right after the
// id) to pick which extension sub-packet to decode into. A name this package
// doesn't know natively decodes into sshFxpExtendedGenericPacket and is
// routed to Handler.Extended, rather than being rejected outright - the
// server may have advertised it.
func decodeExtended(body []byte) (req requestPacket, err error) {
	_, rest, err := readUint32(body) // id
	if err != nil {
		return nil, &StatusError{Code: sshFxBadMessage, msg: err.Error()}
	}
	name, _, err := readString(rest)
	if err != nil {
		return nil, &StatusError{Code: sshFxBadMessage, msg: err.Error()}
	}

	switch name {
	case extStatvfs:
		req = &sshFxpStatvfsPacket{}
	case extFsync:
		req = &sshFxpFsyncPacket{}
	case extHardlink:
		req = &sshFxpHardlinkPacket{}
	case extPosixRenam:
		req = &sshFxpPosixRenamePacket{}
	case extLimits:
		req = &sshFxpLimitsPacket{}
	default:
		req = &sshFxpExtendedGenericPacket{}
	}

	type parser_ interface {
		parse([]byte) error
	}
	if err = req.(parser_).parse(body); err != nil {
		return nil, &StatusError{Code: sshFxBadMessage, msg: err.Error()}
	}
	return req, nil
}

// fileStat decodes the raw attrs payload captured by parse into a
// *FileStat, using the flags word already parsed alongside it. Used
// server-side by Setstat/Fsetstat/Open handlers.
func (p *sshFxpSetstatPacket) fileStat() (*FileStat, error) {
	b, _ := p.Attrs.([]byte)
	fs, _, err := readAttrs(p.Flags, b)
	return fs, err
}

func (p *sshFxpFsetstatPacket) fileStat() (*FileStat, error) {
	b, _ := p.Attrs.([]byte)
	fs, _, err := readAttrs(p.Flags, b)
	return fs, err
}

func (p *sshFxpOpenPacket) fileStat() (*FileStat, error) {
	b, _ := p.Attrs.([]byte)
	fs, _, err := readAttrs(p.Flags, b)
	return fs, err
}
