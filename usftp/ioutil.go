package usftp

import (
	"fmt"
	"io"
)

// defaultMaxReadWriteLen is the read/write length limit assumed when the
// server's limits@openssh.com extension is absent or reports zero (File
// chunks are the smaller of this and the Client's maxPacket), per the
// draft's guidance that 32KiB is the minimum any compliant server must
// accept while 256KiB (less a little framing overhead) is what OpenSSH
// actually advertises.
const defaultMaxReadWriteLen = 261120

// defaultMaxServerPacketLen bounds how large an inbound client frame the
// server dispatch loop will accept before refusing to read further.
const defaultMaxServerPacketLen = 1 << 20 // 1 MiB

// readPacket reads one length-prefixed SFTP frame (the 4-byte length plus
// exactly that many payload bytes) from r, enforcing maxLen on the
// advertised length before ever allocating or reading the payload.
//
// This is the server-side counterpart to mux_'s zero-copy ensure/bump
// buffering: the server processes one request at a time, so there is no
// benefit to the client's ring-buffer trick here.
func readPacket(r io.Reader, maxLen uint32) (payload []byte, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length, _ := takeUint32(lenBuf[:])
	if 0 == length {
		return nil, errShortPacket
	}
	if length > maxLen {
		return nil, fmt.Errorf("sftp: frame of %d bytes exceeds max of %d", length, maxLen)
	}
	payload = make([]byte, length)
	if _, err = io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
