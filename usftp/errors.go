package usftp

import (
	"fmt"
	"io"
	"os"

	"github.com/tredeske/sftp/uerr"
)

// StatusError is the protocol-level error carried by an SSH_FXP_STATUS
// reply.  It is returned (or wrapped) whenever the server responds to a
// request with anything other than success.
type StatusError struct {
	Code uint32
	msg  string
	lang string
}

func (e *StatusError) Error() string {
	if 0 != len(e.msg) {
		return fmt.Sprintf("sftp: %q (%v)", e.msg, fxerr(e.Code))
	}
	return fmt.Sprintf("sftp: %v", fxerr(e.Code))
}

// FxCode returns the underlying SSH_FX_* status code.
func (e *StatusError) FxCode() uint32 { return e.Code }

func appendStatus(b []byte, err StatusError) []byte {
	b = be_.AppendUint32(b, err.Code)
	b = appendString(b, err.msg)
	b = appendString(b, err.lang)
	return b
}

// takeStatus decodes an SSH_FXP_STATUS payload.  The message and language
// tag are optional on the wire (some servers omit them on Ok), so short
// input past the code is tolerated.
func takeStatus(b []byte) error {
	code, b := takeUint32(b)
	msg, b, _ := readString(b)
	lang, _, _ := readString(b)
	return &StatusError{
		Code: code,
		msg:  msg,
		lang: lang,
	}
}

// fxerr is an SSH_FX_* status code as a bare error.  Handler
// implementations return the ErrSSHFx* values below to pick the exact wire
// status for a reply instead of having statusFromError infer one from an
// os/io error; the client's errFromStatus likewise maps the common codes to
// their os/io equivalents so callers can use errors.Is.
type fxerr uint32

const (
	ErrSSHFxOk               = fxerr(sshFxOk)
	ErrSSHFxEOF              = fxerr(sshFxEOF)
	ErrSSHFxNoSuchFile       = fxerr(sshFxNoSuchFile)
	ErrSSHFxPermissionDenied = fxerr(sshFxPermissionDenied)
	ErrSSHFxFailure          = fxerr(sshFxFailure)
	ErrSSHFxBadMessage       = fxerr(sshFxBadMessage)
	ErrSSHFxNoConnection     = fxerr(sshFxNoConnection)
	ErrSSHFxConnectionLost   = fxerr(sshFxConnectionLost)
	ErrSSHFxOpUnsupported    = fxerr(sshFxOPUnsupported)
)

func (e fxerr) Error() string {
	switch e {
	case ErrSSHFxOk:
		return "OK"
	case ErrSSHFxEOF:
		return "EOF"
	case ErrSSHFxNoSuchFile:
		return "no such file"
	case ErrSSHFxPermissionDenied:
		return "permission denied"
	case ErrSSHFxBadMessage:
		return "bad message"
	case ErrSSHFxNoConnection:
		return "no connection"
	case ErrSSHFxConnectionLost:
		return "connection lost"
	case ErrSSHFxOpUnsupported:
		return "operation unsupported"
	default:
		return "failure"
	}
}

// ClientErrorKind classifies the reason a *ClientError occurred, mirroring
// the unified client-facing error kind described for this engine: a
// transport/usage failure is always one of these, with the SFTP protocol
// StatusError nested underneath when the kind is Status.
type ClientErrorKind int

const (
	// Status wraps a protocol level StatusError from the server.
	Status ClientErrorKind = iota
	// IO wraps a local transport read/write failure.
	IO
	// Timeout indicates a per-request deadline elapsed before a reply arrived.
	Timeout
	// Limited indicates a request was rejected locally without ever
	// reaching the wire: the open handle limit (server-advertised or
	// client-configured) was reached, or the server lacks an extension the
	// call needs.  Reads and writes longer than the advertised lengths are
	// not rejected; File splits them into chunks.
	Limited
	// UnexpectedPacket indicates a reply of the wrong packet type arrived.
	UnexpectedPacket
	// UnexpectedBehavior indicates an internal invariant was violated.
	UnexpectedBehavior
)

func (k ClientErrorKind) String() string {
	switch k {
	case Status:
		return "status"
	case IO:
		return "io"
	case Timeout:
		return "timeout"
	case Limited:
		return "limited"
	case UnexpectedPacket:
		return "unexpected packet"
	case UnexpectedBehavior:
		return "unexpected behavior"
	default:
		return "unknown"
	}
}

// ClientError is the unified error type returned from Client and File
// operations for anything that is not a plain protocol StatusError.  It
// embeds uerr.UError so errors.Is/errors.As and uerr.Cast continue to work
// the way the rest of this corpus expects.
type ClientError struct {
	uerr.UError
	Kind ClientErrorKind
}

func newClientError(kind ClientErrorKind, cause error, format string, args ...any) *ClientError {
	err := &ClientError{Kind: kind}
	uerr.Recast(err, cause, format, args...)
	return err
}

// errLimited builds the *ClientError of kind Limited returned when a request
// is rejected locally, without ever touching the wire.
func errLimited(format string, args ...any) *ClientError {
	return newClientError(Limited, nil, format, args...)
}

func errTimeout(format string, args ...any) *ClientError {
	return newClientError(Timeout, nil, format, args...)
}

type unexpectedPacketErr struct {
	want, got uint8
}

func (u *unexpectedPacketErr) Error() string {
	return fmt.Sprintf("sftp: unexpected packet: want %v, got %v", u.want, u.got)
}

type unexpectedVersionErr struct {
	want, got uint32
}

func (u *unexpectedVersionErr) Error() string {
	return fmt.Sprintf("sftp: unexpected server version: want %v, got %v", u.want, u.got)
}

func unexpectedCount(want, got uint32) error {
	return fmt.Errorf("sftp: unexpected count: want %v, got %v", want, got)
}

func unimplementedSeekWhence(whence int) error {
	return fmt.Errorf("sftp: unsupported whence %v", whence)
}

// statusFromError converts a Handler-returned error into the StatusError
// that should be sent back over the wire, mirroring errFromStatus's mapping
// but in the opposite direction (server side, not client side).
func statusFromError(err error) StatusError {
	if nil == err {
		return StatusError{Code: sshFxOk}
	}
	if se, ok := err.(*StatusError); ok {
		return *se
	}
	if fx, ok := err.(fxerr); ok {
		return StatusError{Code: uint32(fx), msg: fx.Error()}
	}
	switch {
	case err == io.EOF:
		return StatusError{Code: sshFxEOF, msg: "EOF"}
	case os.IsNotExist(err):
		return StatusError{Code: sshFxNoSuchFile, msg: err.Error()}
	case os.IsPermission(err):
		return StatusError{Code: sshFxPermissionDenied, msg: err.Error()}
	default:
		return StatusError{Code: sshFxFailure, msg: err.Error()}
	}
}
