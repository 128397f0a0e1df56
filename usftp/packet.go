package usftp

// Wire-level primitives shared by both halves of the package: the
// big-endian length-prefixed scalar and string codecs every packet is
// built from, the frame writers, and the INIT/VERSION handshake packets
// (the only two with no request id).

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
)

var (
	errShortPacket = errors.New("packet too short")

	be_ = binary.BigEndian
)

func appendString(b []byte, v string) []byte {
	return append(be_.AppendUint32(b, uint32(len(v))), v...)
}

func appendAny(b []byte, v any) []byte {
	switch v := v.(type) {
	case nil:
		return b
	case uint8:
		return append(b, v)
	case uint32:
		return be_.AppendUint32(b, v)
	case uint64:
		return be_.AppendUint64(b, v)
	case string:
		return appendString(b, v)
	case []byte:
		return append(b, v...)
	case os.FileInfo:
		return appendInfoAttrs(b, v)
	default:
		switch d := reflect.ValueOf(v); d.Kind() {
		case reflect.Struct:
			for i, n := 0, d.NumField(); i < n; i++ {
				b = appendAny(b, d.Field(i).Interface())
			}
			return b
		case reflect.Slice:
			for i, n := 0, d.Len(); i < n; i++ {
				b = appendAny(b, d.Index(i).Interface())
			}
			return b
		default:
			panic(fmt.Sprintf("appendAny(%#v): cannot handle type %T", v, v))
		}
	}
}

func takeUint32(b []byte) (v uint32, outB []byte) {
	v = binary.BigEndian.Uint32(b)
	return v, b[4:]
}

func readUint32(b []byte) (uint32, []byte, error) {
	var v uint32
	if len(b) < 4 {
		return 0, nil, errShortPacket
	}
	v, b = takeUint32(b)
	return v, b, nil
}

func takeUint64(b []byte) (v uint64, outB []byte) {
	v = binary.BigEndian.Uint64(b)
	return v, b[8:]
}

func readUint64(b []byte) (uint64, []byte, error) {
	var v uint64
	if len(b) < 8 {
		return 0, nil, errShortPacket
	}
	v, b = takeUint64(b)
	return v, b, nil
}

func takeString(b []byte) (string, []byte) {
	n, b := takeUint32(b)
	return string(b[:n]), b[n:]
}

func readString(b []byte) (string, []byte, error) {
	n, b, err := readUint32(b)
	if err != nil {
		return "", nil, err
	}
	if int64(n) > int64(len(b)) {
		return "", nil, errShortPacket
	}
	return string(b[:n]), b[n:], nil
}

type (
	appendable_ interface {
		appendTo([]byte) ([]byte, error)
	}

	idAwarePkt_ interface {
		appendable_
		id() uint32
		setId(id uint32)
	}

	idPkt_ struct {
		ID uint32
	}
)

func (p *idPkt_) id() uint32      { return p.ID }
func (p *idPkt_) setId(id uint32) { p.ID = id }

// sendPacket frames pkt onto w: u32 length, then the marshaled payload
// (type byte first).  buff is the caller's scratch; the marshaled frame
// normally lives there, and a payload that outgrows it is still framed
// correctly, just without the zero-copy.
func sendPacket(w io.Writer, buff []byte, pkt appendable_) (err error) {
	outBuff, err := pkt.appendTo(buff[4:4])
	if err != nil {
		return fmt.Errorf("binary marshaller failed: %w", err)
	}
	length := len(outBuff)
	if length <= cap(buff)-4 {
		// common case: the marshaled payload is still in buff, right after
		// the 4 bytes reserved for the length
		outBuff = buff[:4+length]
		binary.BigEndian.PutUint32(outBuff[:4], uint32(length))
		_, err = w.Write(outBuff)
	} else {
		// appendTo outgrew the scratch buff and relocated the payload
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(length))
		if _, err = w.Write(hdr[:]); nil == err {
			_, err = w.Write(outBuff)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to send packet: %w", err)
	}
	return
}

// sendWritePacket frames an SSH_FXP_WRITE.  The data bytes are written
// straight from the caller's buffer rather than copied through the scratch
// buff, so the frame length has to be fixed up to cover both the header and
// the data.
func sendWritePacket(w io.Writer, buff []byte, pkt *sshFxpWritePacket) (err error) {
	outBuff, err := pkt.appendTo(buff[4:4])
	if err != nil {
		return fmt.Errorf("binary marshaller failed: %w", err)
	}
	length := len(outBuff) + len(pkt.Data)
	if len(outBuff) <= cap(buff)-4 {
		outBuff = buff[:4+len(outBuff)]
		binary.BigEndian.PutUint32(outBuff[:4], uint32(length))
	} else {
		hdr := make([]byte, 4, 4+len(outBuff))
		binary.BigEndian.PutUint32(hdr, uint32(length))
		outBuff = append(hdr, outBuff...)
	}
	_, err = w.Write(outBuff)
	if err != nil {
		return fmt.Errorf("failed to send packet header: %w", err)
	}
	_, err = w.Write(pkt.Data)
	if err != nil {
		return fmt.Errorf("failed to send packet payload: %w", err)
	}
	return
}

type extensionPair struct {
	Name string
	Data string
}

func readExtPair(b []byte) (extensionPair, []byte, error) {
	var ep extensionPair
	var err error
	ep.Name, b, err = readString(b)
	if err != nil {
		return ep, b, err
	}
	ep.Data, b, err = readString(b)
	return ep, b, err
}

type sshFxInitPacket struct {
	Version    uint32
	Extensions []extensionPair
}

func (p *sshFxInitPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpInit)
	outB = be_.AppendUint32(outB, p.Version)

	for _, e := range p.Extensions {
		outB = appendString(outB, e.Name)
		outB = appendString(outB, e.Data)
	}
	return
}

func (p *sshFxInitPacket) parse(b []byte) error {
	var err error
	if p.Version, b, err = readUint32(b); err != nil {
		return err
	}
	for len(b) > 0 {
		var ep extensionPair
		ep, b, err = readExtPair(b)
		if err != nil {
			return err
		}
		p.Extensions = append(p.Extensions, ep)
	}
	return nil
}

type sshFxVersionPacket struct {
	Version    uint32
	Extensions []extensionPair
}

func (p *sshFxVersionPacket) appendTo(inB []byte) (outB []byte, err error) {
	outB = append(inB, sshFxpVersion)
	outB = be_.AppendUint32(outB, p.Version)

	for _, e := range p.Extensions {
		outB = appendString(outB, e.Name)
		outB = appendString(outB, e.Data)
	}
	return
}

