package usftp

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tredeske/sftp/uerr"
	"github.com/tredeske/sftp/uexec"
	"github.com/tredeske/sftp/ulog"
	"golang.org/x/crypto/ssh"
)

// A ClientOption is a function which applies configuration to a Client.
type ClientOption func(*Client) error

// WithMaxPacket sets the payload chunk size (bytes) for reads and writes.
// Bigger chunks amortize framing better; 32768 (the default) is the
// smallest any compliant server must accept, and what a server's
// limits@openssh.com advertises at Init may narrow this further.
func WithMaxPacket(size int) ClientOption {
	return func(c *Client) error {
		if size < 8192 {
			return errors.New("maxPacket must be greater or equal to 8192")
		}
		c.maxPacket = size
		return nil
	}
}

// Client is one SFTP session over a duplex byte stream - usually an "sftp"
// subsystem channel of an *ssh.Client, but anything byte-duplex works (see
// NewClientPipe).  A Client is safe for concurrent use; independent
// requests interleave over the one stream via the mux.
type Client struct {
	conn mux_

	waiterPool sync.Pool // recycled one-shot reply channels

	ext  map[string]string // extensions advertised by the server, verbatim
	exts extensionSnapshot // the same, digested at Init (gates + limits)

	maxPacket      int    // payload chunk ceiling for reads and writes
	maxOpenHandles uint64 // 0 == unlimited; caller-configured ceiling
	handleCount    atomic.Int64

	timeout time.Duration // 0 disables the per-request deadline

	cmd *uexec.Child // set by NewClientCommand, reaped on Close
}

// defaultRequestTimeout is the per-request deadline a Client applies when
// SetTimeout has never been called, including to the initial handshake.
const defaultRequestTimeout = 10 * time.Second

// SetTimeout changes the per-request deadline applied to every request this
// Client issues from now on. secs <= 0 disables the deadline entirely. A
// request that times out returns a *ClientError{Kind: Timeout}; any reply
// that arrives afterward is discarded.
func (c *Client) SetTimeout(secs int) {
	if secs <= 0 {
		c.timeout = 0
		return
	}
	c.timeout = time.Duration(secs) * time.Second
}

// WithMaxOpenHandles caps how many file/dir handles this Client will have
// open concurrently; Open/OpenRead/opendir fail with a *ClientError{Kind:
// Limited} once the cap is reached. The default, 0, is unlimited.
func WithMaxOpenHandles(n uint64) ClientOption {
	return func(c *Client) error {
		c.maxOpenHandles = n
		return nil
	}
}

// NewClient creates a new SFTP client on conn, using zero or more option
// functions.
func NewClient(conn *ssh.Client, opts ...ClientOption) (*Client, error) {
	s, err := conn.NewSession()
	if err != nil {
		return nil, err
	}
	if err := s.RequestSubsystem("sftp"); err != nil {
		return nil, err
	}
	pw, err := s.StdinPipe()
	if err != nil {
		return nil, err
	}
	pr, err := s.StdoutPipe()
	if err != nil {
		return nil, err
	}

	return NewClientPipe(pr, pw, opts...)
}

// NewClientCommand spawns args as a child process and wraps its stdin/stdout
// as the duplex stream for an SFTP session - the idiom NewClientPipe's doc
// comment points at ("by using the system's ssh client program"), e.g.
//
//	NewClientCommand(nil, "ssh", "user@host", "-s", "sftp")
//
// The child is reaped from Close, using github.com/tredeske/sftp/uexec the
// same way the rest of this corpus shells out to helper processes rather
// than hand-rolling os/exec plumbing.
func NewClientCommand(opts []ClientOption, args ...string) (c *Client, err error) {
	child := uexec.NewChild(args...)
	if err = child.AddPipe(uexec.STDIN); err != nil {
		return
	}
	if err = child.AddPipe(uexec.STDOUT); err != nil {
		child.Close()
		return
	}
	if err = child.Start(); err != nil {
		child.Close()
		return
	}
	c, err = NewClientPipe(child.ParentIo[uexec.STDOUT], child.ParentIo[uexec.STDIN], opts...)
	if err != nil {
		child.Close()
		return
	}
	c.cmd = child
	return
}

// NewClientPipe creates a new SFTP client given a Reader and a WriteCloser.
// This can be used for connecting to an SFTP server over TCP/TLS or by using
// the system's ssh client program (e.g. via exec.Command).
func NewClientPipe(
	rd io.Reader,
	wr io.WriteCloser,
	opts ...ClientOption,
) (
	client *Client,
	err error,
) {
	client = &Client{
		maxPacket: 1 << 15, // 32768, min supported as per RFC
		timeout:   defaultRequestTimeout,
	}
	client.waiterPool.New = client.newWaiter

	defer func() {
		if err != nil {
			wr.Close()
		}
	}()

	for _, opt := range opts {
		err = opt(client)
		if err != nil {
			return
		}
	}

	client.conn.construct(rd, wr, client)

	client.ext, err = client.conn.StartWithTimeout(client.timeout)
	if err != nil {
		return
	}
	client.exts = newExtensionSnapshot(client.ext)

	if _, ok := client.ext[extLimits]; ok {
		if limits, lerr := client.limits(); lerr == nil {
			if 0 != limits.MaxReadLength {
				client.exts.maxReadLen = limits.MaxReadLength
			}
			if 0 != limits.MaxWriteLength {
				client.exts.maxWriteLen = limits.MaxWriteLength
			}
			client.exts.maxOpenHandle = limits.MaxOpenHandles
		}
	}

	return
}

type waiter_ struct {
	c      chan error
	client *Client
}

func (r *waiter_) onError(err error) { r.c <- err }
func (r *waiter_) await() (err error) {
	err = <-r.c
	r.client.waiterPool.Put(r)
	return
}

// awaitTimeoutCurrent behaves like awaitTimeout, but for a request that may
// be superseded by a later one while waiting (ReadDir's pagination issues a
// fresh req per page under the same waiter) - current always holds
// whichever req is outstanding right now, so a timeout cancels that one.
func (r *waiter_) awaitTimeoutCurrent(
	current *atomic.Pointer[muxReq_], timeout time.Duration,
) (err error) {
	if timeout <= 0 {
		return r.await()
	}
	select {
	case err = <-r.c:
		r.client.waiterPool.Put(r)
	case <-time.After(timeout):
		if req := current.Load(); nil != req {
			r.client.conn.Cancel(req)
		}
		err = errTimeout("sftp: request timed out after %s", timeout)
	}
	return
}

// awaitTimeout behaves like await, but gives up after timeout elapses
// (0 disables the deadline). On timeout, req is cancelled: its id(s) are
// removed from the conn's pending map before awaitTimeout returns, so a
// reply that never arrives cannot leave the entry behind forever. A reply
// that arrives concurrently with the timeout is absorbed harmlessly by the
// buffered channel; the waiter is simply not returned to the pool in
// that case, which only costs an allocation.
func (r *waiter_) awaitTimeout(req *muxReq_, timeout time.Duration) (err error) {
	if timeout <= 0 {
		return r.await()
	}
	select {
	case err = <-r.c:
		r.client.waiterPool.Put(r)
	case <-time.After(timeout):
		r.client.conn.Cancel(req)
		err = errTimeout("sftp: request timed out after %s", timeout)
	}
	return
}

func (c *Client) newWaiter() any {
	return &waiter_{
		c:      make(chan error, 1),
		client: c,
	}
}
func (c *Client) waiter() *waiter_ {
	return c.waiterPool.Get().(*waiter_)
}

// https://filezilla-project.org/specs/draft-ietf-secsh-filexfer-02.txt
const sftpProtocolVersion = 3

// HasExtension checks whether the server supports a named extension.
//
// The first return value is the extension data reported by the server
// (typically a version number).
func (c *Client) HasExtension(name string) (string, bool) {
	data, ok := c.ext[name]
	return data, ok
}
func (c *Client) Close() error {
	err := c.conn.Close()
	if nil != c.cmd {
		c.cmd.Wait() // reap the child spawned by NewClientCommand; exit status not interesting here
	}
	return err
}

// reportError is called by the driver task (reader/writer goroutines) when
// the connection dies for a reason other than an orderly Close - a local
// I/O error, a malformed reply, a version mismatch. There's no caller left
// to hand the error to directly, so it's logged.
func (c *Client) reportError(err error) {
	ulog.Errorf("sftp client: %s", err)
}

// limits fetches the limits@openssh.com extension, used at Init time to
// refine the default read/write chunk size and open-handle ceiling.
func (c *Client) limits() (rv *limitsReply, err error) {
	err = c.call(
		&sshFxpLimitsPacket{},
		sshFxpExtendedReply,
		func() (err error) {
			rv, err = readLimits(c.conn.buff)
			return
		})
	return
}

// Extended issues an arbitrary extended request and returns the raw
// SSH_FXP_EXTENDED_REPLY payload - the shape is extension specific, so
// interpreting it is the caller's business.  A Status reply (some servers
// answer extended requests that way) yields a nil payload on OK, an error
// otherwise.
func (c *Client) Extended(name string, payload []byte) (reply []byte, err error) {
	waiter := c.waiter()
	req, err := c.conn.submit(
		&sshFxpExtendedGenericPacket{ExtendedRequest: name, Payload: payload},
		sshFxpExtendedReply, autoRespond_,
		func(id, length uint32, typ uint8) (err error) {
			switch typ {
			case sshFxpExtendedReply:
				reply = append([]byte(nil), c.conn.buff[:length]...)
			case sshFxpStatus:
				err = errFromStatus(c.conn.buff) // may be nil
			default:
				panic("impossible!")
			}
			return
		},
		waiter.onError)
	if err != nil {
		return
	}
	err = waiter.awaitTimeout(req, c.timeout)
	if err != nil {
		reply = nil
	}
	return
}

// TryExists reports whether pathN exists, collapsing the no-such-file status
// into (false, nil) instead of propagating it as an error.
func (c *Client) TryExists(pathN string) (exists bool, err error) {
	_, err = c.Lstat(pathN)
	if nil == err {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	if se, ok := err.(*StatusError); ok && sshFxNoSuchFile == se.Code {
		return false, nil
	}
	return false, err
}

// ReadFile reads the entire contents of the named remote file.
func (c *Client) ReadFile(pathN string) (data []byte, err error) {
	f, err := c.OpenRead(pathN)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err = f.Stat(); err != nil {
		return
	}
	buff := bytes.NewBuffer(make([]byte, 0, f.Size()))
	_, err = f.WriteTo(buff)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buff.Bytes(), nil
}

// WriteFile writes data to the named remote file, creating it if necessary
// and truncating it first if it already exists.
func (c *Client) WriteFile(pathN string, data []byte) (err error) {
	f, err := c.Create(pathN)
	if err != nil {
		return
	}
	defer f.Close()
	_, err = f.WriteAt(data, 0)
	return
}

// FsInfo reports filesystem-level statistics for the filesystem containing
// pathN. It requires the server to support the statvfs@openssh.com
// extension; absent that, it returns a *ClientError{Kind: Limited}.
func (c *Client) FsInfo(pathN string) (*StatVFS, error) {
	if !c.exts.statvfs {
		return nil, errLimited("server does not support %s", extStatvfs)
	}
	return c.StatVFS(pathN)
}

type ReadDirFilter func(fileN string, attrs *FileStat) (allow, stop bool)

type ReadDirLimit struct {
	N int
}

func (rdl *ReadDirLimit) Filter(fileN string, attrs *FileStat) (allow, stop bool) {
	if 0 != rdl.N {
		rdl.N--
		return true, false
	}
	return false, true
}

// ReadDir lists dirN, returning one File per entry with its listing
// attributes cached.  "." and ".." never appear in the result.  The
// listing pages through as many READDIR round trips as the server needs,
// stopping at EOF status, at the optional deadline, or when filter says
// stop.
func (c *Client) ReadDir(
	dirN string,
	timeout time.Duration, // if positive, limit time to read dir
	filter ReadDirFilter, // if not nil, filter entries
) (
	entries []*File,
	err error,
) {
	var deadline time.Time
	if 0 < timeout {
		deadline = time.Now().Add(timeout)
	}

	handle, err := c.opendir(timeout, dirN)
	if err != nil {
		return
	}
	defer c.closeHandleAsync(handle, nil, nil)

	if 0 < timeout && time.Now().After(deadline) {
		return
	}

	waiter := c.waiter()
	var current atomic.Pointer[muxReq_]

	var readdirF func(id, length uint32, typ uint8) (err error)
	readdirF = func(id, length uint32, typ uint8) (err error) {
		done := false
		defer func() {
			if !done && nil == err && 0 < timeout && time.Now().After(deadline) {
				done = true // deadline passed: return the entries read so far
			}
			if !done && nil == err {
				var next *muxReq_
				next, err = c.conn.submit(
					&sshFxpReaddirPacket{Handle: handle},
					sshFxpName, manualRespond_,
					readdirF,
					waiter.onError)
				current.Store(next)
			}
			if done || nil != err {
				waiter.onError(err)
			}
		}()
		switch typ {
		case sshFxpName:
			err = c.conn.ensure(int(length))
			if err != nil {
				return
			}
			allow := true
			count, buff := takeUint32(c.conn.buff)
			for i := uint32(0); i < count && !done; i++ {
				var fileN string
				fileN, buff = takeString(buff)
				_, buff = takeString(buff) // discard longname
				var attrs *FileStat
				attrs, buff, err = readFlaggedAttrs(buff)
				if err != nil {
					return
				}
				if nil != filter {
					allow, done = filter(fileN, attrs)
				}
				if fileN == "." || fileN == ".." || !allow {
					continue
				}
				entries = append(entries, &File{
					c:     c,
					pathN: path.Join(dirN, fileN),
					attrs: *attrs,
				})
			}
		case sshFxpStatus:
			err = errFromStatus(c.conn.buff) // may be nil
			if 0 != len(entries) || io.EOF == err {
				err = nil // entries in hand beat a decode hiccup on the tail page
			}
			done = true
		default:
			panic("impossible!")
		}
		return
	}

	req, err := c.conn.submit(
		&sshFxpReaddirPacket{Handle: handle},
		sshFxpName, manualRespond_,
		readdirF,
		waiter.onError)
	if err != nil {
		return
	}
	current.Store(req)
	err = waiter.awaitTimeoutCurrent(&current, c.timeout)
	return
}

func (c *Client) opendir(
	timeout time.Duration,
	dirN string,
) (
	handle string,
	err error,
) {
	if err = c.acquireHandle(); err != nil {
		return
	}
	err = c.call(
		&sshFxpOpendirPacket{Path: dirN},
		sshFxpHandle,
		func() error {
			handle, _ = takeString(c.conn.buff)
			return nil
		})
	if err != nil {
		c.releaseHandle()
	}
	return
}

type AsyncResponse struct {
	Request any   // request info provided by caller
	Error   error // result (nil == success), failure (not nil)
}

// async call expecting a status response
func (c *Client) callAsyncStatus(
	pkt idAwarePkt_,
	onStatus func(error), // if not nil, call before dispatching to respC
	request any, // any request data to be returned with response - may be nil
	respC chan *AsyncResponse, // if nil, then toss any response
) (err error) {
	return c.callAsync(pkt, 0, nil, onStatus, request, respC)
}

// async call expecting a single response, either the expectType or status
func (c *Client) callAsync(
	pkt idAwarePkt_,
	expectType uint8,
	onExpect func() (err error),
	onStatus func(error),
	request any, // any request data to be returned with response
	respC chan *AsyncResponse, // if nil, then toss any response
) error {
	const errUnexpected = uerr.Const("Unexpected packet type 0")

	resp := &AsyncResponse{Request: request}
	_, err := c.conn.submit(
		pkt, expectType, manualRespond_, // the closure dispatches resp itself
		func(id, length uint32, typ uint8) error {
			defer func() {
				if nil != onStatus {
					onStatus(resp.Error)
				}
				if nil != respC {
					respC <- resp
				}
			}()
			resp.Error = c.conn.ensure(int(length))
			if resp.Error != nil {
				return nil
			}
			switch typ {
			case expectType:
				if nil != onExpect {
					resp.Error = onExpect()
				} else {
					resp.Error = errUnexpected
				}
			case sshFxpStatus:
				resp.Error = errFromStatus(c.conn.buff) // may be nil
			default:
				panic("impossible!")
			}
			return nil
		},
		func(err error) {
			resp.Error = err
			if nil != respC {
				respC <- resp
			}
		})
	return err
}

// perform invocation expecting a single response, either the expectType or
// status.  autoRespond_ has the reader deliver onResp's return value to the
// waiter, so the closure must return the real error, not swallow it.
func (c *Client) call(
	pkt idAwarePkt_,
	expectType uint8,
	onExpect func() error,
) (err error) {
	waiter := c.waiter()
	req, err := c.conn.submit(
		pkt, expectType, autoRespond_,
		func(id, length uint32, typ uint8) (err error) {
			switch typ {
			case expectType:
				err = onExpect()
			case sshFxpStatus:
				err = errFromStatus(c.conn.buff) // may be nil
			default:
				panic("impossible!")
			}
			return
		},
		waiter.onError)
	if err != nil {
		return
	}
	err = waiter.awaitTimeout(req, c.timeout)
	return
}

// invoke when expected resp is just a status
func (c *Client) callStatus(pkt idAwarePkt_) (err error) {
	waiter := c.waiter()
	req, err := c.conn.submit(
		pkt, sshFxpStatus, autoRespond_,
		func(id, length uint32, typ uint8) (err error) {
			switch typ {
			case sshFxpStatus:
				err = errFromStatus(c.conn.buff) // may be nil
			default:
				panic("impossible!")
			}
			return
		},
		waiter.onError)
	if err != nil {
		return
	}
	err = waiter.awaitTimeout(req, c.timeout)
	return
}

// Stat returns the attributes of the file at pathN, following symlinks.
// FileInfoFromStat converts the result to an os.FileInfo if needed.
func (c *Client) Stat(pathN string) (fs *FileStat, err error) {
	return c.stat(pathN)
}

// Lstat returns the attributes of the file at pathN without following a
// final symlink: a link's own attributes, not its target's.
func (c *Client) Lstat(pathN string) (attrs *FileStat, err error) {
	err = c.call(
		&sshFxpLstatPacket{Path: pathN},
		sshFxpAttrs,
		func() (err error) {
			attrs, _, err = readFlaggedAttrs(c.conn.buff)
			return
		})
	return
}

// ReadLink returns the target the symlink at pathN points to.
func (c *Client) ReadLink(pathN string) (target string, err error) {
	err = c.call(
		&sshFxpReadlinkPacket{Path: pathN},
		sshFxpName,
		func() (err error) {
			count, buff := takeUint32(c.conn.buff)
			if count != 1 {
				err = unexpectedCount(1, count)
			} else {
				target, _ = takeString(buff) // ignore dummy attributes
			}
			return
		})
	return
}

// Link creates a hard link at newname to the same inode as oldname, via
// the hardlink@openssh.com extension.
func (c *Client) Link(oldname, newname string) error {
	return c.callStatus(
		&sshFxpHardlinkPacket{
			Oldpath: oldname,
			Newpath: newname,
		})
}

// Symlink creates a symlink at newname pointing at oldname.
func (c *Client) Symlink(oldname, newname string) error {
	return c.callStatus(
		&sshFxpSymlinkPacket{
			Linkpath:   newname,
			Targetpath: oldname,
		})
}

func (c *Client) fsetstat(handle string, flags uint32, attrs any) error {
	return c.callStatus(
		&sshFxpFsetstatPacket{
			Handle: handle,
			Flags:  flags,
			Attrs:  attrs,
		})
}

// setstat changes the attribute fields of pathN selected by flags.
func (c *Client) setstat(pathN string, flags uint32, attrs any) error {
	return c.callStatus(
		&sshFxpSetstatPacket{
			Path:  pathN,
			Flags: flags,
			Attrs: attrs,
		})
}

// Chtimes sets the access and modification times of the named file.
func (c *Client) Chtimes(pathN string, atime time.Time, mtime time.Time) error {
	type times struct {
		Atime uint32
		Mtime uint32
	}
	attrs := times{uint32(atime.Unix()), uint32(mtime.Unix())}
	return c.setstat(pathN, sshFileXferAttrACmodTime, attrs)
}

// Chown sets the owning uid and gid of the named file.
func (c *Client) Chown(pathN string, uid, gid int) error {
	type owner struct {
		UID uint32
		GID uint32
	}
	attrs := owner{uint32(uid), uint32(gid)}
	return c.setstat(pathN, sshFileXferAttrUIDGID, attrs)
}

// Chmod sets the permissions of the named file.  No umask is applied -
// there is no portable, race-free way to even read one - so callers mask
// bits off themselves if they want that behavior.
func (c *Client) Chmod(pathN string, mode os.FileMode) error {
	return c.setstat(pathN, sshFileXferAttrPermissions, toChmodPerm(mode))
}

// Truncate sets the size of the named file.  Shrinking truncates; what a
// server does when growing is not pinned down by the protocol.
func (c *Client) Truncate(path string, size int64) error {
	return c.setstat(path, sshFileXferAttrSize, uint64(size))
}

// SetExtendedData sends vendor extension attribute pairs in a setstat
// request.  Names follow the "name@domain" convention; a server ignores
// pairs it does not understand.
func (c *Client) SetExtendedData(path string, extended []StatExtended) error {
	attrs := &FileStat{
		Extended: extended,
	}
	return c.setstat(path, sshFileXferAttrExtended, attrs)
}

// Create opens the named file read-write, creating it if absent and
// truncating it otherwise.  Servers that refuse read-write opens (some
// cloud gateways do) need Open with explicit write-only flags instead.
func (c *Client) Create(pathN string) (*File, error) {
	return c.open(&File{c: c, pathN: pathN},
		toPflags(os.O_RDWR|os.O_CREATE|os.O_TRUNC))
}

// OpenRead opens the named file for reading.
func (c *Client) OpenRead(pathN string) (*File, error) {
	return c.open(&File{c: c, pathN: pathN}, toPflags(os.O_RDONLY))
}

// Open opens the named file with os.OpenFile-style flags.
func (c *Client) Open(pathN string, flags int) (*File, error) {
	return c.open(&File{c: c, pathN: pathN}, toPflags(flags))
}

func (c *Client) open(f *File, pflags uint32) (rv *File, err error) {
	if err = c.acquireHandle(); err != nil {
		return
	}
	err = c.call(
		&sshFxpOpenPacket{
			Path:   f.pathN,
			Pflags: pflags,
		},
		sshFxpHandle,
		func() error {
			f.handle, _ = takeString(c.conn.buff)
			rv = f
			return nil
		})
	if err != nil {
		c.releaseHandle()
		err = uerr.Chainf(err, "open %s", f.pathN)
		return
	}
	f.armFinalizer()
	return
}

// acquireHandle enforces WithMaxOpenHandles (and the server's
// limits@openssh.com max-open-handles, if advertised) before a new
// SSH_FXP_OPEN/SSH_FXP_OPENDIR is ever sent.
func (c *Client) acquireHandle() error {
	max := c.maxOpenHandles
	if 0 != c.exts.maxOpenHandle && (0 == max || c.exts.maxOpenHandle < max) {
		max = c.exts.maxOpenHandle
	}
	if 0 != max && uint64(c.handleCount.Add(1)) > max {
		c.handleCount.Add(-1)
		return errLimited("open handle limit of %d reached", max)
	}
	return nil
}

func (c *Client) releaseHandle() { c.handleCount.Add(-1) }

func (c *Client) openAsync(
	f *File, pflags uint32, req any, respC chan *AsyncResponse,
) (
	err error,
) {
	if err = c.acquireHandle(); err != nil {
		return
	}
	err = c.callAsync(
		&sshFxpOpenPacket{
			Path:   f.pathN,
			Pflags: pflags,
		},
		sshFxpHandle,
		func() error {
			f.handle, _ = takeString(c.conn.buff)
			f.armFinalizer()
			return nil
		},
		func(status error) {
			if nil != status { // open failed, give the slot back
				c.releaseHandle()
			}
		},
		req, respC)
	if err != nil {
		c.releaseHandle()
		err = uerr.Chainf(err, "openAsync %s", f.pathN)
	}
	return
}

// close a handle handle previously returned in the response
// to SSH_FXP_OPEN or SSH_FXP_OPENDIR. The handle becomes invalid
// immediately after this request has been sent.
func (c *Client) closeHandleAsync(
	handle string,
	req any, // may be nil
	respC chan *AsyncResponse, // my be nil
) error {
	return c.callAsyncStatus(
		&sshFxpClosePacket{Handle: handle},
		func(err error) {
			if nil == err {
				c.releaseHandle()
			}
		},
		req, respC)
}

// synchronous - waits for any error
func (c *Client) closeHandle(handle string) (err error) {
	err = c.callStatus(&sshFxpClosePacket{Handle: handle})
	if nil == err {
		c.releaseHandle()
	}
	return
}

func (c *Client) stat(path string) (attr *FileStat, err error) {
	err = c.call(
		&sshFxpStatPacket{Path: path},
		sshFxpAttrs,
		func() (err error) {
			attr, _, err = readFlaggedAttrs(c.conn.buff)
			return
		})
	return
}

func (c *Client) fstat(handle string) (attr *FileStat, err error) {
	err = c.call(
		&sshFxpFstatPacket{Handle: handle},
		sshFxpAttrs,
		func() (err error) {
			attr, _, err = readFlaggedAttrs(c.conn.buff)
			return
		})
	return
}

// get VFS (file system) statistics from a remote host.
//
// Implement the statvfs@openssh.com SSH_FXP_EXTENDED feature from
// http://www.opensource.apple.com/source/OpenSSH/OpenSSH-175/openssh/PROTOCOL?txt.
func (c *Client) StatVFS(pathN string) (rv *StatVFS, err error) {
	err = c.call(
		&sshFxpStatvfsPacket{Path: pathN},
		sshFxpExtendedReply,
		func() (err error) {
			// the reply payload is eleven uint64s; the id was already
			// consumed by the reader, so StatVFS.ID is left zero
			rv = &StatVFS{}
			b := c.conn.buff
			for _, f := range []*uint64{
				&rv.Bsize, &rv.Frsize, &rv.Blocks, &rv.Bfree, &rv.Bavail,
				&rv.Files, &rv.Ffree, &rv.Favail, &rv.Fsid, &rv.Flag,
				&rv.Namemax,
			} {
				if *f, b, err = readUint64(b); err != nil {
					rv = nil
					return errors.New("can not parse StatVFS reply")
				}
			}
			return
		})
	return
}

// Remove deletes the named file or empty directory.  The protocol has
// separate requests for the two, and servers disagree about which status a
// remove-on-directory earns, so a failed file remove is retried as rmdir
// on the codes real servers are known to emit.
func (c *Client) Remove(pathN string) error {
	err := c.removeFile(pathN)
	if err, ok := err.(*StatusError); ok {
		switch err.Code {
		case sshFxFailure, sshFxFileIsADirectory:
			return c.RemoveDirectory(pathN)
		}
	}
	if os.IsPermission(err) {
		return c.RemoveDirectory(pathN)
	}
	return err
}

func (c *Client) removeFile(pathN string) error {
	return c.callStatus(&sshFxpRemovePacket{Filename: pathN})
}

func (c *Client) RemoveAsync(
	pathN string, req any, respC chan *AsyncResponse,
) error {
	return c.callAsyncStatus(
		&sshFxpRemovePacket{Filename: pathN},
		nil, req, respC)
}

// RemoveDirectory removes an (empty) directory.
func (c *Client) RemoveDirectory(pathN string) error {
	return c.callStatus(&sshFxpRmdirPacket{Path: pathN})
}

// Rename renames oldN to newN, failing if newN exists (use PosixRename to
// overwrite).
func (c *Client) Rename(oldN, newN string) error {
	return c.callStatus(
		&sshFxpRenamePacket{
			Oldpath: oldN,
			Newpath: newN,
		})
}

func (c *Client) RenameAsync(
	oldN, newN string,
	req any, respC chan *AsyncResponse,
) (err error) {
	return c.callAsyncStatus(
		&sshFxpRenamePacket{
			Oldpath: oldN,
			Newpath: newN,
		}, nil, req, respC)
}

// PosixRename renames a file using the posix-rename@openssh.com extension
// which will replace newname if it already exists.
func (c *Client) PosixRename(oldN, newN string) error {
	return c.callStatus(
		&sshFxpPosixRenamePacket{
			Oldpath: oldN,
			Newpath: newN,
		})
}

// PosixRename renames a file using the posix-rename@openssh.com extension
// which will replace newname if it already exists.
func (c *Client) PosixRenameAsync(
	oldN, newN string,
	req any, respC chan *AsyncResponse,
) (err error) {
	return c.callAsyncStatus(
		&sshFxpPosixRenamePacket{
			Oldpath: oldN,
			Newpath: newN,
		}, nil, req, respC)
}

// RealPath asks the server to canonicalize pathN to a cleaned absolute
// path - "." and ".." components resolved, one name per file.
func (c *Client) RealPath(pathN string) (canonN string, err error) {
	err = c.call(
		&sshFxpRealpathPacket{Path: pathN},
		sshFxpName,
		func() (err error) {
			count, buff := takeUint32(c.conn.buff)
			if count != 1 {
				err = unexpectedCount(1, count)
				return
			}
			canonN, _ = takeString(buff) // ignore attributes
			return
		})
	return
}

// Getwd reports the directory the server resolves relative paths against.
func (c *Client) Getwd() (string, error) {
	return c.RealPath(".")
}

// Mkdir creates one directory.  The parent must exist already; this is
// mkdir, not mkdir -p.
func (c *Client) Mkdir(path string) error {
	return c.callStatus(&sshFxpMkdirPacket{Path: path})
}

// errFromStatus decodes a STATUS payload into the error a Go caller
// expects: nil for Ok, the io/os sentinels for the codes that have one
// (so errors.Is works), and the StatusError itself for the rest.
func errFromStatus(buff []byte) error {
	err := takeStatus(buff).(*StatusError)
	switch err.Code {
	case sshFxEOF:
		return io.EOF
	case sshFxNoSuchFile:
		return os.ErrNotExist
	case sshFxPermissionDenied:
		return os.ErrPermission
	case sshFxOk:
		return nil
	default:
		return err
	}
}

// toPflags converts os.OpenFile-style flags to the SSH_FXF_* bit set,
// dropping flags the protocol has no bit for.
func toPflags(f int) uint32 {
	var out uint32
	switch f & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_RDONLY:
		out |= sshFxfRead
	case os.O_WRONLY:
		out |= sshFxfWrite
	case os.O_RDWR:
		out |= sshFxfRead | sshFxfWrite
	}
	if f&os.O_APPEND == os.O_APPEND {
		out |= sshFxfAppend
	}
	if f&os.O_CREATE == os.O_CREATE {
		out |= sshFxfCreat
	}
	if f&os.O_TRUNC == os.O_TRUNC {
		out |= sshFxfTrunc
	}
	if f&os.O_EXCL == os.O_EXCL {
		out |= sshFxfExcl
	}
	return out
}

// toChmodPerm converts Go permission bits to the POSIX permission bits a
// chmod-style setstat carries: rwx plus setuid/setgid/sticky, type bits
// masked off.
func toChmodPerm(m os.FileMode) (perm uint32) {
	const mask = os.ModePerm | os.FileMode(s_ISUID|s_ISGID|s_ISVTX)
	perm = uint32(m & mask)

	if m&os.ModeSetuid != 0 {
		perm |= s_ISUID
	}
	if m&os.ModeSetgid != 0 {
		perm |= s_ISGID
	}
	if m&os.ModeSticky != 0 {
		perm |= s_ISVTX
	}

	return perm
}
