package usftp

import (
	"errors"
	"io"

	"github.com/tredeske/sftp/uerr"
	"github.com/tredeske/sftp/ulog"
)

// Server drives the SFTPv3 request/reply loop on one connection (component
// G). It owns no filesystem state of its own - it reads one frame at a
// time, decodes it, hands it to a Handler, and writes back whatever the
// Handler produced. All handle bookkeeping (component H's handle table) is
// the Handler's job; Server only ever relays handle strings verbatim.
//
// Grounded on the read/decode/dispatch/marshal loop and handle-table idiom
// of github.com/pkg/sftp's server.go, adapted to dispatch against a
// one-method-per-request Handler interface instead of a filesystem-backed
// file abstraction.
type Server struct {
	rd      io.Reader
	wr      io.Writer
	handler Handler

	maxClientPacketLen uint32
	writeBuf           []byte
}

// ServerOption configures a Server, mirroring the ClientOption pattern used
// on the client side.
type ServerOption func(*Server)

// WithMaxClientPacketLen bounds how large an inbound request frame the
// server will accept before refusing to read it further (default 1 MiB).
func WithMaxClientPacketLen(n uint32) ServerOption {
	return func(s *Server) { s.maxClientPacketLen = n }
}

// WithMaxServerTxPacket bounds the scratch buffer used to marshal outbound
// replies; it should be at least as large as any single reply this server
// will produce (default: defaultMaxReadWriteLen, plus framing headroom).
func WithMaxServerTxPacket(n uint32) ServerOption {
	return func(s *Server) { s.writeBuf = make([]byte, n+64) }
}

// NewServer wires up a Server that reads requests from rd, writes replies
// to wr, and dispatches every request to handler.
func NewServer(rd io.Reader, wr io.Writer, handler Handler, opts ...ServerOption) *Server {
	s := &Server{
		rd:                 rd,
		wr:                 wr,
		handler:            handler,
		maxClientPacketLen: defaultMaxServerPacketLen,
		writeBuf:           make([]byte, defaultMaxReadWriteLen+64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve reads and dispatches requests until the peer closes the connection
// or an unrecoverable transport error occurs. A clean EOF returns nil.
func (s *Server) Serve() error {
	for {
		body, err := readPacket(s.rd, s.maxClientPacketLen)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return uerr.Chainf(err, "sftp server: reading request frame")
		}
		if err = s.handleFrame(body); err != nil {
			return uerr.Chainf(err, "sftp server: writing reply")
		}
	}
}

func (s *Server) handleFrame(body []byte) error {
	if 0 == len(body) {
		return s.reply(&sshFxpStatusPacket{StatusError: StatusError{Code: sshFxBadMessage}})
	}

	typ, rest := body[0], body[1:]

	if sshFxpInit == typ {
		return s.handleInit(rest)
	}

	req, err := decodePacket(typ, rest)
	if err != nil {
		ulog.Warnf("sftp server: bad request (type %d): %s", typ, err)
		return s.reply(&sshFxpStatusPacket{StatusError: StatusError{Code: sshFxBadMessage}})
	}
	return s.dispatch(req)
}

func (s *Server) handleInit(body []byte) error {
	var init sshFxInitPacket
	if err := init.parse(body); err != nil {
		return s.reply(&sshFxpStatusPacket{StatusError: StatusError{Code: sshFxBadMessage}})
	}
	ext := s.handler.Init()
	reply := &sshFxVersionPacket{Version: sftpProtocolVersion}
	for name, data := range ext {
		reply.Extensions = append(reply.Extensions, extensionPair{Name: name, Data: data})
	}
	return s.reply(reply)
}

func (s *Server) reply(pkt appendable_) error {
	return sendPacket(s.wr, s.writeBuf, pkt)
}

func (s *Server) status(id uint32, err error) error {
	return s.reply(&sshFxpStatusPacket{idPkt_: idPkt_{ID: id}, StatusError: statusFromError(err)})
}

// dispatch is the central switch: one case per concrete request type that
// decodePacket can hand back, each invoking the matching Handler method and
// translating its result into the appropriate reply packet.
func (s *Server) dispatch(req requestPacket) error {
	id := req.id()
	h := s.handler

	switch p := req.(type) {

	case *sshFxpOpenPacket:
		attrs, _ := p.fileStat()
		handle, err := h.Open(p.Path, p.Pflags, attrs)
		if err != nil {
			return s.status(id, err)
		}
		return s.reply(&sshFxpHandlePacket{idPkt_: idPkt_{ID: id}, Handle: handle})

	case *sshFxpClosePacket:
		return s.status(id, h.Close(p.Handle))

	case *sshFxpReadPacket:
		data, err := h.Read(p.Handle, p.Offset, p.Len)
		if 0 != len(data) {
			return s.reply(&sshFxpDataPacket{idPkt_: idPkt_{ID: id}, Data: data})
		}
		if nil == err {
			err = io.EOF
		}
		return s.status(id, err)

	case *sshFxpWritePacket:
		return s.status(id, h.Write(p.Handle, p.Offset, p.Data))

	case *sshFxpLstatPacket:
		fs, err := h.Lstat(p.Path)
		return s.statAttrs(id, fs, err)

	case *sshFxpStatPacket:
		fs, err := h.Stat(p.Path)
		return s.statAttrs(id, fs, err)

	case *sshFxpFstatPacket:
		fs, err := h.Fstat(p.Handle)
		return s.statAttrs(id, fs, err)

	case *sshFxpSetstatPacket:
		attrs, _ := p.fileStat()
		return s.status(id, h.SetStat(p.Path, p.Flags, attrs))

	case *sshFxpFsetstatPacket:
		attrs, _ := p.fileStat()
		return s.status(id, h.FSetStat(p.Handle, p.Flags, attrs))

	case *sshFxpOpendirPacket:
		handle, err := h.OpenDir(p.Path)
		if err != nil {
			return s.status(id, err)
		}
		return s.reply(&sshFxpHandlePacket{idPkt_: idPkt_{ID: id}, Handle: handle})

	case *sshFxpReaddirPacket:
		entries, err := h.ReadDir(p.Handle)
		if 0 != len(entries) {
			return s.reply(&sshFxpNamePacket{idPkt_: idPkt_{ID: id}, NameAttrs: toNameAttrs(entries)})
		}
		if nil == err {
			err = io.EOF
		}
		return s.status(id, err)

	case *sshFxpRemovePacket:
		return s.status(id, h.Remove(p.Filename))

	case *sshFxpMkdirPacket:
		attrs, _ := p.fileStat()
		return s.status(id, h.MkDir(p.Path, attrs))

	case *sshFxpRmdirPacket:
		return s.status(id, h.RmDir(p.Path))

	case *sshFxpRealpathPacket:
		target, err := h.RealPath(p.Path)
		if err != nil {
			return s.status(id, err)
		}
		return s.reply(&sshFxpNamePacket{idPkt_: idPkt_{ID: id},
			NameAttrs: []*sshFxpNameAttr{{Name: target, LongName: target, Attrs: &FileStat{}}}})

	case *sshFxpRenamePacket:
		return s.status(id, h.Rename(p.Oldpath, p.Newpath))

	case *sshFxpReadlinkPacket:
		target, err := h.ReadLink(p.Path)
		if err != nil {
			return s.status(id, err)
		}
		return s.reply(&sshFxpNamePacket{idPkt_: idPkt_{ID: id},
			NameAttrs: []*sshFxpNameAttr{{Name: target, LongName: target, Attrs: &FileStat{}}}})

	case *sshFxpSymlinkPacket:
		return s.status(id, h.Symlink(p.Targetpath, p.Linkpath))

	case *sshFxpFsyncPacket:
		return s.status(id, h.Fsync(p.Handle))

	case *sshFxpStatvfsPacket:
		vfs, err := h.StatVFS(p.Path)
		if err != nil {
			return s.status(id, err)
		}
		vfs.ID = id
		return s.reply(vfs)

	case *sshFxpHardlinkPacket:
		return s.status(id, h.HardLink(p.Oldpath, p.Newpath))

	case *sshFxpPosixRenamePacket:
		return s.status(id, h.PosixRename(p.Oldpath, p.Newpath))

	case *sshFxpExtendedGenericPacket:
		data, err := h.Extended(p.ExtendedRequest, p.Payload)
		if err != nil {
			return s.status(id, err)
		}
		if nil == data {
			return s.status(id, nil)
		}
		return s.reply(rawReplyFunc(func(b []byte) ([]byte, error) {
			outB := append(b, sshFxpExtendedReply)
			outB = be_.AppendUint32(outB, id)
			outB = append(outB, data...)
			return outB, nil
		}))

	case *sshFxpLimitsPacket:
		limits := &limitsReply{
			MaxPacketLength: uint64(s.maxClientPacketLen),
			MaxReadLength:   defaultMaxReadWriteLen,
			MaxWriteLength:  defaultMaxReadWriteLen,
			MaxOpenHandles:  0,
		}
		return s.reply(rawReplyFunc(func(b []byte) ([]byte, error) {
			return limits.appendTo(id, b), nil
		}))

	default:
		return s.status(id, &StatusError{Code: sshFxOPUnsupported})
	}
}

func (s *Server) statAttrs(id uint32, attrs *FileStat, err error) error {
	if err != nil {
		return s.status(id, err)
	}
	return s.reply(&sshFxpAttrsPacket{idPkt_: idPkt_{ID: id}, Attrs: attrs})
}

func toNameAttrs(entries []NamedAttrs) []*sshFxpNameAttr {
	out := make([]*sshFxpNameAttr, len(entries))
	for i, e := range entries {
		long := e.LongName
		if 0 == len(long) {
			long = longname(e.Name, e.Attrs)
		}
		out[i] = &sshFxpNameAttr{Name: e.Name, LongName: long, Attrs: e.Attrs}
	}
	return out
}

// rawReplyFunc adapts a closure to appendable_, for limitsReply.appendTo,
// which already knows how to write its own type byte and id.
type rawReplyFunc func(b []byte) ([]byte, error)

func (f rawReplyFunc) appendTo(b []byte) ([]byte, error) { return f(b) }
