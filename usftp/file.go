package usftp

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/tredeske/sftp/uerr"
)

// File represents a remote file, addressed either by path (before it has
// ever been opened) or by handle (once Open/Create has succeeded). Every
// I/O method is a blocking call from the caller's perspective, but
// internally it's realized the same way the rest of this package realizes
// "async": issue the request to the driver task, then block receiving on a
// one-shot waiter channel. There is no separate poll/ready state machine
// - the blocked channel receive *is* the suspension point.
type File struct {
	c      *Client
	pathN  string
	handle string   // empty if not open
	offset int64    // current offset within remote file
	attrs  FileStat // if Mode bits not set, then not populated

	// Stash is for caller use - untouched by File itself.
	Stash any
}

const ErrOpenned = uerr.Const("file already openned")

func (f *File) IsOpen() bool { return 0 != len(f.handle) }

// Closed reports whether the file has no open handle - either it was never
// opened, or Close has already run.
func (f *File) Closed() bool { return 0 == len(f.handle) }

func (f *File) Client() *Client { return f.c }

// SetClient moves this (closed) File to a different session, for reuse of
// the path and cached attrs across reconnects.
func (f *File) SetClient(c *Client) error {
	if 0 != len(f.handle) {
		return ErrOpenned
	}
	f.c = c
	return nil
}

// FileStat returns the cached attributes without a round trip.  Zero Mode
// bits mean nothing is cached yet; ReadDir and Stat populate the cache.
func (f *File) FileStat() FileStat { return f.attrs }

// ModTimeUnix is the cached mtime in unix seconds (unsigned 32 bit, so
// good past 2038)
func (f *File) ModTimeUnix() uint32 { return f.attrs.Mtime }

// ModTime is the cached mtime; allocates a time.Time per call
func (f *File) ModTime() time.Time { return time.Unix(int64(f.attrs.Mtime), 0) }

// Mode is the cached mode bits, zero when nothing is cached
func (f *File) Mode() FileMode { return f.attrs.FileMode() }

// AttrsCached reports whether the attrs cache is populated
func (f *File) AttrsCached() bool { return 0 != f.attrs.Mode }

// Size is the cached size, zero when nothing is cached
func (f *File) Size() uint64 { return f.attrs.Size }

// IsRegular checks the cached mode for a regular file
func (f *File) IsRegular() bool { return f.attrs.IsRegular() }

// IsDir checks the cached mode for a directory
func (f *File) IsDir() bool { return f.attrs.IsDir() }

// Name is the path this File addresses, as given to Open/Create/ReadDir.
func (f *File) Name() string { return f.pathN }

// SetName repoints this File at a different path (it does not rename the
// remote file - see Rename)
func (f *File) SetName(newN string) { f.pathN = newN }

// BaseName is the last element of the file's path
func (f *File) BaseName() string { return path.Base(f.pathN) }

// OpenRead opens the file for reading.
func (f *File) OpenRead() (err error) {
	if 0 != len(f.handle) {
		return ErrOpenned
	}
	_, err = f.c.open(f, toPflags(os.O_RDONLY))
	return
}

// OpenReadAsync opens the file for reading without blocking; the outcome
// arrives on respC.
func (f *File) OpenReadAsync(request any, respC chan *AsyncResponse) (err error) {
	if 0 != len(f.handle) {
		return ErrOpenned
	}
	err = f.c.openAsync(f, toPflags(os.O_RDONLY), request, respC)
	return
}

// Open opens the file with os.OpenFile-style flags.
func (f *File) Open(flags int) (err error) {
	if 0 != len(f.handle) {
		return ErrOpenned
	}
	_, err = f.c.open(f, toPflags(flags))
	return
}

// OpenAsync opens the file without blocking; the outcome arrives on respC.
func (f *File) OpenAsync(flags int, req any, respC chan *AsyncResponse) (err error) {
	if 0 != len(f.handle) {
		return ErrOpenned
	}
	err = f.c.openAsync(f, toPflags(flags), req, respC)
	return
}

// armFinalizer installs a best-effort runtime.SetFinalizer so a File that is
// garbage collected without an explicit Close still releases its handle
// slot and informs the server, rather than leaking both forever. Go has no
// equivalent of a deterministic Drop, so this is weaker: it runs at some
// unspecified point after the last reference disappears, never on a
// guaranteed schedule, and callers should still Close explicitly.
func (f *File) armFinalizer() {
	runtime.SetFinalizer(f, func(f *File) {
		if 0 != len(f.handle) {
			f.c.closeHandleAsync(f.handle, nil, nil)
		}
	})
}

// Close releases the server handle.  Safe to call on a never-opened or
// already-closed File.
func (f *File) Close() error {
	if 0 == len(f.handle) {
		return nil
	}
	handle := f.handle
	f.handle = ""
	runtime.SetFinalizer(f, nil)
	return f.c.closeHandle(handle)
}

// CloseAsync releases the server handle without waiting for the reply.
func (f *File) CloseAsync(request any, respC chan *AsyncResponse) error {
	if 0 == len(f.handle) {
		return nil
	}
	handle := f.handle
	f.handle = ""
	runtime.SetFinalizer(f, nil)
	return f.c.closeHandleAsync(handle, request, respC)
}

// Remove deletes the remote file by path; an open handle stays usable on
// most servers until closed.
func (f *File) Remove() (err error) {
	return f.c.Remove(f.pathN)
}

// RemoveAsync deletes the remote file by path without blocking.
func (f *File) RemoveAsync(req any, respC chan *AsyncResponse) (err error) {
	return f.c.RemoveAsync(f.pathN, req, respC)
}

// Rename renames the remote file and repoints this File at the new path.
func (f *File) Rename(newN string) (err error) {
	err = f.c.Rename(f.pathN, newN)
	if err != nil {
		return
	}
	f.pathN = newN
	return
}

// RenameAsync renames without blocking, repointing this File on success.
func (f *File) RenameAsync(newN string, req any, respC chan *AsyncResponse) error {
	return f.c.callAsyncStatus(
		&sshFxpRenamePacket{
			Oldpath: f.pathN,
			Newpath: newN,
		},
		func(status error) {
			if nil == status { // success
				f.pathN = newN
			}
		},
		req, respC)
}

// PosixRename renames with overwrite semantics, via posix-rename@openssh.com.
func (f *File) PosixRename(newN string) (err error) {
	err = f.c.PosixRename(f.pathN, newN)
	if err != nil {
		return
	}
	f.pathN = newN
	return
}

// PosixRenameAsync is PosixRename without blocking.
func (f *File) PosixRenameAsync(
	newN string, req any, respC chan *AsyncResponse,
) error {
	return f.c.callAsyncStatus(
		&sshFxpPosixRenamePacket{
			Oldpath: f.pathN,
			Newpath: newN,
		},
		func(status error) {
			if nil == status { // success
				f.pathN = newN
			}
		},
		req, respC)
}

// WriteTo copies the file, from the current offset to its end, into w,
// pipelining as many READ packets as the remaining size calls for.  The
// size comes from the cached attrs: a File from ReadDir has them already,
// any other needs a Stat first.
func (f *File) WriteTo(w io.Writer) (written int64, err error) {

	const errStat = uerr.Const("file has no attrs - run Stat prior to WriteTo")

	if 0 == len(f.handle) {
		return 0, os.ErrClosed
	} else if 0 == f.attrs.Mode {
		err = errStat
		return
	}
	amount := int64(f.attrs.Size) - f.offset
	if amount <= 0 {
		return
	}

	pkt := sshFxpReadPacket{}
	chunkSz, lastChunkSz, req := f.planRead(amount, f.offset, &pkt)
	conn := &f.c.conn
	waiter := f.c.waiter()
	req.onError = waiter.onError
	expectPkts := req.expectPkts

	first := true
	var expectId uint32
	req.onResp = func(id, length uint32, typ uint8) (err error) {
		defer func() {
			if err != nil || 0 == expectPkts {
				expectPkts = 0 // ignore any remaining pkts
				waiter.onError(err)
			}
		}()
		if 0 == expectPkts {
			return // ignore any pkts after error
		}
		expectPkts--

		//
		// detect out of order reads being returned by server
		//
		if first {
			first = false
			expectId = id
		} else if id != expectId {
			err = fmt.Errorf("WriteTo expecting pkt %d, got %d", expectId, id)
			return
		}
		expectId++

		switch typ {
		case sshFxpData:
			//
			// our next chunk of data
			//
			err = conn.ensure(4)
			if err != nil {
				return
			}
			dataSz, buff := takeUint32(conn.buff)
			length -= 4
			if dataSz != length {
				err = fmt.Errorf("dataSz is %d, but remaining is %d!", dataSz,
					length)
				return
			} else if (0 != expectPkts && length != chunkSz) ||
				(0 == expectPkts && length != lastChunkSz) {
				exp := chunkSz
				if 0 == expectPkts {
					exp = lastChunkSz
				}
				err = fmt.Errorf(
					"only got %d of %d bytes - may need to adjust MaxPacket",
					length, exp)
				return
			}
			if 0 == length {
				return
			}
			//
			// use up any already read by conn
			//
			var nwrote int
			if 0 != len(buff) {
				if int(length) < len(buff) {
					buff = buff[:length]
				}
				nwrote, err = w.Write(buff)
				written += int64(nwrote)
				if err != nil || int(length) == len(buff) {
					return // success if done
				}
				length -= uint32(len(buff))
			}

			//
			// copy the rest from the conn to the w
			//
			buff = conn.backing[:]
			for 0 != length {
				if int(length) < len(buff) {
					buff = buff[:length]
				}
				_, err = io.ReadFull(conn.r, buff)
				if err != nil {
					return
				}
				nwrote, err = w.Write(buff)
				written += int64(nwrote)
				if err != nil {
					return
				}
				length -= uint32(len(buff))
			}

		case sshFxpStatus:
			err = errFromStatus(conn.buff) // may be nil
		default:
			panic("impossible!")
		}
		return
	}

	err = conn.enqueue(req)
	if err != nil {
		return
	}
	err = waiter.awaitTimeout(req, f.c.timeout)
	if err != nil {
		return
	}
	f.offset += amount
	return
}

// planRead shapes a transfer of amount bytes into READ packets no larger
// than the chunk ceiling (maxPacket, narrowed by the server's advertised
// max-read-length).  One packet rides in the req directly; a longer
// transfer gets a nextPkt closure the mux writer milks for one packet per
// reserved id.
func (f *File) planRead(
	amount, offset int64,
	single *sshFxpReadPacket,
) (
	chunkSz, lastChunkSz uint32,
	req *muxReq_,
) {
	maxPkt := int64(f.c.maxPacket)
	if 0 != f.c.exts.maxReadLen && maxPkt > int64(f.c.exts.maxReadLen) {
		maxPkt = int64(f.c.exts.maxReadLen)
	}
	chunkSz = uint32(maxPkt)
	if maxPkt > amount {
		chunkSz = uint32(amount)
	}
	expectPkts := amount / maxPkt
	if amount != expectPkts*maxPkt {
		lastChunkSz = uint32(amount - expectPkts*maxPkt)
		expectPkts++
	} else {
		lastChunkSz = chunkSz
	}

	req = &muxReq_{
		expectType: sshFxpData,
		autoResp:   manualRespond_,
		expectPkts: uint32(expectPkts),
	}
	single.Handle = f.handle
	if 1 == expectPkts {
		single.Offset = uint64(offset)
		single.Len = chunkSz
		req.pkt = single
		req.expectPkts = 1
		return
	}

	req.nextPkt = func(id uint32) idAwarePkt_ {
		single.ID = id
		single.Offset = uint64(offset)
		offset += int64(chunkSz)
		expectPkts--
		if 0 == expectPkts {
			single.Len = lastChunkSz
		} else {
			single.Len = chunkSz
		}
		return single
	}
	return
}

// ReadAt reads into toBuff starting at offset. Unlike WriteTo, which
// pipelines a whole transfer across many in-flight packets, ReadAt issues
// exactly one SSH_FXP_READ and returns however much that single wire packet
// carries back - at most one server chunk (maxPacket, or the narrower
// limits@openssh.com max-read-length if the server advertised one). A
// caller wanting more than that loops, the same way io.ReaderAt callers
// already must when a reader chooses to return short reads.
func (f *File) ReadAt(toBuff []byte, offset int64) (nread int, err error) {
	if 0 == len(f.handle) {
		return 0, os.ErrClosed
	} else if 0 == len(toBuff) {
		return
	}

	maxPkt := f.c.maxPacket
	if 0 != f.c.exts.maxReadLen && maxPkt > int(f.c.exts.maxReadLen) {
		maxPkt = int(f.c.exts.maxReadLen)
	}
	if len(toBuff) > maxPkt {
		toBuff = toBuff[:maxPkt]
	}

	conn := &f.c.conn
	waiter := f.c.waiter()

	req := &muxReq_{
		expectType: sshFxpData,
		autoResp:   manualRespond_,
		onError:    waiter.onError,
		pkt: &sshFxpReadPacket{
			Handle: f.handle,
			Offset: uint64(offset),
			Len:    uint32(len(toBuff)),
		},
	}
	req.onResp = func(id, length uint32, typ uint8) (err error) {
		defer func() { waiter.onError(err) }()
		switch typ {
		case sshFxpData:
			//
			// which could be less than requested (even 0) if we're at the EOF
			//
			err = conn.ensure(4)
			if err != nil {
				return
			}
			dataSz, buff := takeUint32(conn.buff)
			length -= 4
			if dataSz != length {
				err = fmt.Errorf("dataSz is %d, but remaining is %d!",
					dataSz, length)
				return
			}
			if 0 == length {
				err = io.EOF
				return
			} else if int(length) > len(toBuff) {
				err = fmt.Errorf(
					"got back %d bytes, more than the %d requested",
					length, len(toBuff))
				return
			}
			//
			// use up any already read by conn
			//
			if 0 != len(buff) {
				if int(length) < len(buff) {
					buff = buff[:length]
				}
				ncopied := copy(toBuff, buff)
				nread += ncopied
				if uint32(ncopied) == length {
					return
				}
				toBuff = toBuff[ncopied:]
				length -= uint32(ncopied)
			}

			//
			// copy the rest from the conn
			//
			var ncopied int
			ncopied, err = io.ReadFull(conn.r, toBuff[:length])
			nread += ncopied

		case sshFxpStatus:
			err = errFromStatus(conn.buff) // may be nil
		default:
			panic("impossible!")
		}
		return
	}

	err = conn.enqueue(req)
	if err != nil {
		return
	}
	err = waiter.awaitTimeout(req, f.c.timeout)
	return
}

// Read reads up to len(b) bytes from the current offset, advancing it.
// Standard io.Reader semantics; at most one server chunk per call, so
// callers loop (or use WriteTo, which pipelines - io.Copy picks it
// automatically).
func (f *File) Read(b []byte) (nread int, err error) {
	nread, err = f.ReadAt(b, f.offset)
	f.offset += int64(nread)
	return
}

// Stat fetches the file's attributes (FSTAT when open, STAT by path when
// not) and refreshes the cache FileStat() serves from.
func (f *File) Stat() (attrs *FileStat, err error) {

	if 0 == len(f.handle) {
		attrs, err = f.c.stat(f.pathN)
	} else {
		attrs, err = f.c.fstat(f.handle)
	}
	if err != nil {
		return
	}
	f.attrs = *attrs
	return
}

// ReadFrom reads from r until EOF (or error) and writes each chunk to the
// file at the current offset, advancing it as it goes. It implements
// io.ReaderFrom.
//
// Unlike WriteTo and WriteAt, which fan a single call out across several
// concurrently in-flight packets via a nextPkt closure, this simply loops
// Write one chunk of up to maxPacket bytes at a time, a sequential chunked
// copy.
func (f *File) ReadFrom(r io.Reader) (ncopied int64, err error) {
	if 0 == len(f.handle) {
		return 0, os.ErrClosed
	}
	buff := make([]byte, f.c.maxPacket)
	for {
		var n int
		n, err = r.Read(buff)
		if n > 0 {
			nwrote, werr := f.Write(buff[:n])
			ncopied += int64(nwrote)
			if werr != nil {
				return ncopied, werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return ncopied, nil
			}
			return ncopied, err
		}
	}
}

// Write writes at the current offset, advancing it.  Chunking and limits
// are WriteAt's business.
func (f *File) Write(b []byte) (nwrote int, err error) {

	if 0 == len(f.handle) {
		return 0, os.ErrClosed
	}
	nwrote, err = f.WriteAt(b, f.offset)
	f.offset += int64(nwrote)
	return
}

// WriteAt writes b at offset, split into WRITE packets no larger than the
// chunk ceiling (maxPacket, narrowed by the server's advertised
// max-write-length), all in flight at once; one status reply is expected
// per packet.
func (f *File) WriteAt(b []byte, offset int64) (written int, err error) {

	if 0 == len(f.handle) {
		return 0, os.ErrClosed
	} else if 0 == len(b) {
		return
	}

	waiter := f.c.waiter()

	maxPacket := f.c.maxPacket
	if 0 != f.c.exts.maxWriteLen && int64(maxPacket) > int64(f.c.exts.maxWriteLen) {
		maxPacket = int(f.c.exts.maxWriteLen)
	}
	expectPkts := len(b) / maxPacket
	if len(b) != expectPkts*maxPacket {
		expectPkts++
	}

	req := &muxReq_{
		expectType: sshFxpStatus,
		autoResp:   manualRespond_,
		onError:    waiter.onError,
		expectPkts: uint32(expectPkts),
	}
	pkt := sshFxpWritePacket{Handle: f.handle}

	req.nextPkt = func(id uint32) idAwarePkt_ {
		pkt.ID = id
		amount := len(b)
		if 0 == amount {
			return nil
		} else if amount > maxPacket {
			amount = maxPacket
		}
		written += amount
		pkt.Offset = uint64(offset)
		offset += int64(amount)
		pkt.Length = uint32(amount)
		pkt.Data = b[:amount]
		b = b[amount:]
		return &pkt
	}

	conn := &f.c.conn

	req.onResp = func(id, length uint32, typ uint8) (err error) {
		expectPkts--
		if 0 > expectPkts {
			return fmt.Errorf("got back too many packets for write!")
		}
		switch typ {
		case sshFxpStatus:
			err = errFromStatus(conn.buff) // may be nil
		default:
			panic("impossible!")
		}
		if 0 == expectPkts { // all done
			waiter.onError(err)
		}
		return
	}

	err = conn.enqueue(req)
	if err != nil {
		return
	}
	err = waiter.awaitTimeout(req, f.c.timeout)
	return
}

// Seek sets the offset for the next Read or Write.  SeekEnd needs the file
// size, so it stats first unless attrs are already cached.  A resulting
// negative offset is os.ErrInvalid; seeking past EOF is the server's
// business.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if 0 == len(f.handle) {
		return 0, os.ErrClosed
	}

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.offset
	case io.SeekEnd:
		if 0 == f.attrs.Mode {
			_, err := f.Stat()
			if err != nil {
				return f.offset, err
			}
		}
		offset += int64(f.attrs.Size)
	default:
		return f.offset, unimplementedSeekWhence(whence)
	}

	if offset < 0 {
		return f.offset, os.ErrInvalid
	}

	f.offset = offset
	return f.offset, nil
}

// Chown sets the owning uid/gid (FSETSTAT when open, SETSTAT by path).
func (f *File) Chown(uid, gid int) error {
	fs := &FileStat{
		UID: uint32(uid),
		GID: uint32(gid),
	}
	if 0 == len(f.handle) {
		return f.c.setstat(f.pathN, sshFileXferAttrUIDGID, fs)
	} else {
		return f.c.fsetstat(f.handle, sshFileXferAttrUIDGID, fs)
	}
}

// Chmod sets the permission bits; see Client.Chmod about umask.
func (f *File) Chmod(mode os.FileMode) error {
	if 0 == len(f.handle) {
		return f.c.setstat(f.pathN, sshFileXferAttrPermissions, toChmodPerm(mode))
	} else {
		return f.c.fsetstat(f.handle, sshFileXferAttrPermissions, toChmodPerm(mode))
	}
}

// SetExtendedData sends vendor extension attribute pairs for this file;
// see Client.SetExtendedData.
func (f *File) SetExtendedData(path string, extended []StatExtended) error {
	attrs := &FileStat{Extended: extended}
	if 0 == len(f.handle) {
		return f.c.setstat(f.pathN, sshFileXferAttrExtended, attrs)
	} else {
		return f.c.fsetstat(f.handle, sshFileXferAttrExtended, attrs)
	}
}

// Truncate sets the file's size; see Client.Truncate about growing.
func (f *File) Truncate(size int64) error {

	if 0 == len(f.handle) {
		return f.c.setstat(f.pathN, sshFileXferAttrSize, uint64(size))
	} else {
		return f.c.fsetstat(f.handle, sshFileXferAttrSize, uint64(size))
	}
}

// Request a flush of the contents of a File to stable storage.
//
// Sync uses the fsync@openssh.com extension; if the server never advertised
// it, there is nothing to ask for and Sync succeeds as a no-op.
func (f *File) Sync() error {
	if 0 == len(f.handle) {
		return os.ErrClosed
	}
	if !f.c.exts.fsync {
		return nil
	}
	return f.c.callStatus(&sshFxpFsyncPacket{Handle: f.handle})
}

// Asynchronously request a flush of the contents of a File to stable storage.
//
// Requires the server to support the fsync@openssh.com extension.
func (f *File) SyncAsync(req any, respC chan *AsyncResponse) error {
	if 0 == len(f.handle) {
		return os.ErrClosed
	}
	return f.c.callAsyncStatus(
		&sshFxpFsyncPacket{Handle: f.handle}, nil, req, respC)
}
