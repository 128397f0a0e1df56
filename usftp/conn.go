package usftp

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/tredeske/sftp/uerr"
	"github.com/tredeske/sftp/ulog"
	"github.com/tredeske/sftp/usync"
)

// mux_ drives one side of an SFTP stream for the Client: any number of
// caller goroutines submit requests, a single writer goroutine frames them
// onto the wire in submission order, and a single reader goroutine matches
// each arriving reply to its waiting request by id.
//
// The only state shared between those parties is the pending table, a
// lock-free hashmap keyed by request id.  A request is published there
// before its bytes ever hit the wire and leaves it by exactly one of three
// doors: its reply arrives (reader), its caller times out (Cancel), or the
// conn tears down (drainPending).
//
// https://filezilla-project.org/specs/draft-ietf-secsh-filexfer-02.txt
type mux_ struct {
	r io.Reader
	w io.WriteCloser

	sendQ chan *muxReq_ // callers -> writer goroutine

	nextId  atomic.Uint32                   // id generator, block-reserved in enqueue
	pending *hashmap.Map[uint32, *muxReq_]  // in-flight reqs, one key per owned id

	maxPacket int

	// reader-owned receive window over the stream
	backing []byte
	buff    []byte

	closed atomic.Bool
	client *Client
}

// autoResp_ picks who completes a request when its reply arrives: the
// reader itself (auto: it ensures the payload is buffered, runs onResp, and
// hands onResp's error to onError), or the request's own onResp closure
// (manual: for zero-copy and multi-reply flows that pace themselves).
type autoResp_ bool

const (
	autoRespond_   autoResp_ = true
	manualRespond_ autoResp_ = false
)

// muxReq_ is one in-flight request: what to send, what reply type to
// expect, and how to deliver the outcome.
type muxReq_ struct {
	id         uint32    // first id of the reserved block, set by enqueue
	expectPkts uint32    // how many wire pkts (and replies) this req spans
	expectType uint8     // reply type other than STATUS that is acceptable
	autoResp   autoResp_

	// the single packet to send, when nextPkt is nil
	pkt idAwarePkt_

	// for multi packet requests (File chunked I/O): called by the writer
	// goroutine once per id in the reserved block to produce each packet
	nextPkt func(id uint32) idAwarePkt_

	// called by the reader goroutine for each reply belonging to this req
	onResp func(id, length uint32, typ uint8) error

	// delivery of failures (and, for autoResp, of onResp's result).  May be
	// nil for fire-and-forget requests.  Runs on the reader or writer
	// goroutine.
	onError func(error)
}

func newMuxReq(
	pkt idAwarePkt_,
	expectType uint8,
	autoResp autoResp_,
	onResp func(id, length uint32, typ uint8) error,
	onError func(error),
) *muxReq_ {
	return &muxReq_{
		expectPkts: 1,
		expectType: expectType,
		autoResp:   autoResp,
		pkt:        pkt,
		onResp:     onResp,
		onError:    onError,
	}
}

func (conn *mux_) construct(r io.Reader, w io.WriteCloser, c *Client) {
	conn.client = c
	conn.maxPacket = c.maxPacket
	conn.r = r
	conn.w = w
	conn.sendQ = make(chan *muxReq_, 2048)
	conn.pending = hashmap.New[uint32, *muxReq_]()
	// a little headroom: data pkts carry 4+1+4+4 bytes beyond maxPacket
	conn.backing = make([]byte, conn.maxPacket+16)
	conn.buff = conn.backing[:0]
	conn.closed.Store(true) // not usable until Start
}

func (conn *mux_) Close() error {
	conn.shutdown()
	return nil
}

// shutdown closes the send queue exactly once; the writer goroutine drains
// out and closes the stream's write half behind it.
func (conn *mux_) shutdown() (wasClosed bool) {
	if conn.closed.CompareAndSwap(false, true) {
		close(conn.sendQ)
		return false
	}
	return true
}

// Start performs the version handshake and then launches the writer and
// reader goroutines.  INIT/VERSION are the only packets with no id, so they
// are exchanged synchronously here, before the id-keyed machinery exists.
func (conn *mux_) Start() (exts map[string]string, err error) {
	err = sendPacket(conn.w, make([]byte, 0, 4096),
		&sshFxInitPacket{Version: sftpProtocolVersion})
	if err != nil {
		return
	}

	length, typ, err := conn.readHeader()
	if err != nil {
		return
	}
	if err = conn.ensure(int(length)); err != nil {
		return
	}
	if sshFxpVersion != typ {
		return nil, &unexpectedPacketErr{sshFxpVersion, typ}
	}

	version, _, err := readUint32(conn.buff)
	if err != nil {
		return
	}
	conn.bump(4)
	length -= 4

	if sftpProtocolVersion != version {
		return nil, &unexpectedVersionErr{sftpProtocolVersion, version}
	}

	// whatever follows the version number is the server's extension list
	if 0 != length {
		exts = make(map[string]string)
	}
	for 0 != length {
		var ext extensionPair
		var rest []byte
		ext, rest, err = readExtPair(conn.buff)
		if err != nil {
			return
		}
		exts[ext.Name] = ext.Data
		amount := len(conn.buff) - len(rest)
		conn.bump(amount)
		length -= uint32(amount)
	}

	conn.closed.Store(false)
	go conn.writer()
	go conn.reader()
	return
}

// StartWithTimeout behaves like Start, but gives up if the handshake - the
// one exchange that happens before the goroutines exist to enforce
// per-request deadlines - takes longer than timeout.  A timeout here leaves
// the stream mid-handshake, so the caller must treat the conn as dead.
func (conn *mux_) StartWithTimeout(timeout time.Duration) (
	exts map[string]string, err error,
) {
	if timeout <= 0 {
		return conn.Start()
	}

	type result struct {
		exts map[string]string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		exts, err := conn.Start()
		done <- result{exts, err}
	}()

	select {
	case r := <-done:
		return r.exts, r.err
	case <-time.After(timeout):
		return nil, errTimeout("sftp: init handshake timed out after %s", timeout)
	}
}

func (conn *mux_) submit(
	pkt idAwarePkt_,
	expectType uint8,
	autoResp autoResp_,
	onResp func(id, length uint32, typ uint8) error,
	onError func(error),
) (
	req *muxReq_,
	err error,
) {
	req = newMuxReq(pkt, expectType, autoResp, onResp, onError)
	err = conn.enqueue(req)
	return
}

// enqueue reserves req's id block, publishes it in the pending table, and
// hands it to the writer.  Publication happens before the handoff so a
// reply - or a Cancel - can find the req the instant either is possible.
func (conn *mux_) enqueue(req *muxReq_) (err error) {
	const errClosed = uerr.Const("sftp conn closed")
	if conn.closed.Load() {
		return errClosed
	}

	// reserve a contiguous id block with one atomic add, so concurrent
	// callers never collide even though the writer serializes the wire
	n := req.expectPkts
	if 0 == n {
		n = 1
		req.expectPkts = 1
	}
	req.id = conn.nextId.Add(n) - n + 1

	conn.publish(req)
	defer func() {
		if err != nil {
			conn.forget(req)
		}
	}()

	// the send queue may be closed out from under us by shutdown
	defer usync.BareIgnoreClosedChanPanic()
	err = errClosed
	conn.sendQ <- req
	err = nil
	return
}

// publish registers req in the pending table under every id it owns.
func (conn *mux_) publish(req *muxReq_) {
	for i := uint32(0); i < req.expectPkts; i++ {
		conn.pending.Set(req.id+i, req)
	}
}

// forget removes every id req owns from the pending table.
func (conn *mux_) forget(req *muxReq_) {
	for i := uint32(0); i < req.expectPkts; i++ {
		conn.pending.Del(req.id + i)
	}
}

// take claims the single id from the pending table.  Del's return value
// arbitrates the race between the reader and a timing-out caller's Cancel:
// only one of them observes the delete, so a req is completed exactly once.
// A multi packet req stays registered under its other ids.
func (conn *mux_) take(id uint32) (req *muxReq_, ok bool) {
	req, ok = conn.pending.Get(id)
	if !ok || !conn.pending.Del(id) {
		return nil, false
	}
	return req, true
}

// Cancel forgets req entirely.  Used by a caller that gave up waiting
// (timeout) so a late reply can no longer be matched to it and the entries
// do not linger.  A no-op if the reply already arrived or the conn is down.
func (conn *mux_) Cancel(req *muxReq_) {
	conn.forget(req)
}

// drainPending fails every still-pending req, exactly once each (a multi
// packet req appears under several ids).  Called when either goroutine
// gives up on the conn.
func (conn *mux_) drainPending() {
	lost := &StatusError{
		Code: sshFxConnectionLost,
		msg:  "cancelled",
	}

	notified := make(map[*muxReq_]struct{})
	conn.pending.Range(func(id uint32, req *muxReq_) bool {
		if conn.pending.Del(id) {
			if _, already := notified[req]; !already {
				notified[req] = struct{}{}
				if nil != req.onError {
					req.onError(lost)
				}
			}
		}
		return true
	})
}

// writer drains the send queue onto the wire, one framed packet at a time.
func (conn *mux_) writer() {
	var err error
	buff := make([]byte, 8192)

	fail := func(req *muxReq_) {
		conn.forget(req)
		if nil != req.onError {
			req.onError(err)
		}
	}

	defer func() {
		wasClosed := conn.shutdown()
		conn.w.Close() // peer sees EOF and can wind down cleanly
		if !wasClosed && err != nil {
			err = uerr.Chainf(err, "SFTP writer")
			conn.client.reportError(err)
		}
		conn.drainPending()
	}()

	for req := range conn.sendQ {
		if nil == req.nextPkt {
			req.pkt.setId(req.id)
			if err = conn.send(buff, req.pkt); err != nil {
				fail(req)
				return
			}
			continue
		}

		// chunked File I/O: one packet per reserved id
		for i := uint32(0); i < req.expectPkts; i++ {
			if err = conn.send(buff, req.nextPkt(req.id+i)); err != nil {
				fail(req)
				return
			}
		}
	}
}

// send frames pkt onto the wire.  SSH_FXP_WRITE goes through
// sendWritePacket, which fixes the frame length to cover the data bytes
// written separately from the marshaled header.
func (conn *mux_) send(buff []byte, pkt appendable_) error {
	if writePkt, ok := pkt.(*sshFxpWritePacket); ok {
		return sendWritePacket(conn.w, buff, writePkt)
	}
	return sendPacket(conn.w, buff, pkt)
}

// reader decodes reply frames and completes the matching pending reqs.
func (conn *mux_) reader() {
	const errDupVersion = uerr.Const("duplicate SFTP version pkt")
	var err error
	var length uint32
	var typ uint8
	var req *muxReq_

	defer func() {
		wasClosed := conn.shutdown()

		if nil != req {
			conn.forget(req) // so drainPending cannot notify it a 2nd time
			if nil != req.onError {
				req.onError(err)
			}
		}

		if !wasClosed && err != nil {
			err = uerr.Chainf(err, "SFTP reader")
			conn.client.reportError(err)
		}
		conn.drainPending()
	}()

	for {
		// every reply frame: u32 len, u8 type, u32 id
		if err = conn.ensure(9); err != nil {
			return
		}

		length, typ, err = conn.readHeader()
		if err != nil {
			return
		} else if sshFxpVersion == typ {
			// exactly one version pkt allowed, and Start already saw it
			err = errDupVersion
			return
		} else if length < 4 {
			err = errShortPacket
			return
		}
		id, _ := takeUint32(conn.buff)
		conn.bump(4)
		length -= 4

		var ok bool
		req, ok = conn.take(id)
		if !ok {
			// the caller gave up (timeout) and cancelled the req - the
			// late reply is discarded, not fatal
			ulog.Warnf("sftp client: discarding reply for unknown req id %d (type %d)",
				id, typ)
			if err = conn.ensure(int(length)); err != nil {
				return
			}
			conn.bump(int(length))
			continue
		}

		if req.expectType != typ && sshFxpStatus != typ {
			err = fmt.Errorf("expected packet type %d, but got %d",
				req.expectType, typ)
			return
		}
		if req.autoResp || sshFxpStatus == typ {
			if err = conn.ensure(int(length)); err != nil {
				return
			}
		}
		respErr := req.onResp(id, length, typ)
		if req.autoResp && nil != req.onError {
			req.onError(respErr) // delivered whether nil or not
		}
		req = nil // completed; disable the defer's onError

		// release whatever of the payload onResp left in the window
		if int(length) > len(conn.buff) {
			conn.buff = conn.backing[:0]
		} else {
			conn.bump(int(length))
		}
	}
}

// readHeader consumes the u32 frame length and u8 type, bounding the
// length against the receive window before anything is allocated or read.
func (conn *mux_) readHeader() (length uint32, typ uint8, err error) {
	if err = conn.ensure(5); err != nil {
		return
	}
	length, _ = takeUint32(conn.buff)
	if length > uint32(len(conn.backing)) {
		err = fmt.Errorf("recv pkt: %d bytes, but max is %d",
			length, len(conn.backing))
		return
	} else if 0 == length {
		err = errShortPacket
		return
	}
	length-- // the type byte is included in the wire length
	typ = conn.buff[4]
	conn.bump(5)
	return
}

// ensure makes at least amount bytes available in conn.buff, reading from
// the stream if the window doesn't already hold them.
func (conn *mux_) ensure(amount int) (err error) { // help inline
	if amount <= len(conn.buff) {
		return
	}
	return conn.ensureRead(amount)
}

// only call from ensure()
func (conn *mux_) ensureRead(amount int) (err error) {
	if 0 != len(conn.buff) {
		// slide the unconsumed tail to the front of backing
		amount -= len(conn.buff)
		copy(conn.backing, conn.buff)
		conn.buff = conn.backing[:len(conn.buff)]
	}
	if amount > len(conn.backing)-len(conn.buff) {
		return fmt.Errorf("cannot ensure space for %d when remaining backing is %d",
			amount, len(conn.backing)-len(conn.buff))
	}
	nread, err := io.ReadAtLeast(conn.r, conn.backing[len(conn.buff):], amount)
	if err != nil {
		return
	}
	conn.buff = conn.backing[:nread+len(conn.buff)]
	return
}

// bump consumes amount bytes from the front of the window.
func (conn *mux_) bump(amount int) {
	conn.buff = conn.buff[amount:]
}
