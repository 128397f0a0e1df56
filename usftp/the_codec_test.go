package usftp

import (
	"bytes"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestFileStatAttrRoundTripSubsets(t *testing.T) {
	cases := []struct {
		name  string
		flags uint32
		in    FileStat
	}{
		{"size only", sshFileXferAttrSize, FileStat{Size: 123456}},
		{"uidgid only", sshFileXferAttrUIDGID, FileStat{UID: 7, GID: 11}},
		{"perms only", sshFileXferAttrPermissions, FileStat{Mode: 0o644}},
		{"times only", sshFileXferAttrACmodTime, FileStat{Atime: 111, Mtime: 222}},
		{
			"everything",
			sshFileXferAttrAll,
			FileStat{
				Size: 9, UID: 1, GID: 2, Mode: 0o755, Atime: 10, Mtime: 20,
				Extended: []StatExtended{{ExtType: "foo@bar.com", ExtData: "v1"}},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			marshaled := appendAttrs(nil, c.flags, &c.in)
			got, rest, err := readAttrs(c.flags, marshaled)
			require.NoError(t, err)
			require.Empty(t, rest)
			require.Equal(t, c.in, *got)
		})
	}
}

func TestReadAttrsRejectsTruncatedPayload(t *testing.T) {
	full := appendAttrs(nil, sshFileXferAttrAll, &FileStat{
		Size: 1, UID: 2, GID: 3, Mode: 4, Atime: 5, Mtime: 6,
		Extended: []StatExtended{{ExtType: "a", ExtData: "b"}},
	})
	for n := 0; n < len(full); n++ {
		_, _, err := readAttrs(sshFileXferAttrAll, full[:n])
		require.Error(t, err, "truncated to %d of %d bytes should fail", n, len(full))
	}
}

func TestStringCodecRoundTrip(t *testing.T) {
	f := func(s string) bool {
		marshaled := appendString(nil, s)
		got, rest := takeString(marshaled)
		return got == s && 0 == len(rest)
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestReadPacketRejectsFrameLargerThanMax(t *testing.T) {
	var buf bytes.Buffer
	const maxLen = 64
	oversized := &sshFxpDataPacket{idPkt_: idPkt_{ID: 1}, Data: make([]byte, maxLen*2)}
	require.NoError(t, sendPacket(&buf, make([]byte, maxLen*2+64), oversized))

	_, err := readPacket(&buf, maxLen)
	require.Error(t, err)
}

func TestReadPacketRejectsZeroLengthFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})
	_, err := readPacket(&buf, 1<<20)
	require.Error(t, err)
}

func TestDecodePacketRoundTripsOpenRequest(t *testing.T) {
	want := &sshFxpOpenPacket{
		idPkt_: idPkt_{ID: 42},
		Path:   "/some/path",
		Pflags: sshFxfRead | sshFxfCreat,
	}
	marshaled, err := want.appendTo(nil)
	require.NoError(t, err)

	req, err := decodePacket(sshFxpOpen, marshaled[1:])
	require.NoError(t, err)

	got, ok := req.(*sshFxpOpenPacket)
	require.True(t, ok)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Path, got.Path)
	require.Equal(t, want.Pflags, got.Pflags)
}

func TestDecodePacketRejectsUnknownType(t *testing.T) {
	_, err := decodePacket(250, nil)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.EqualValues(t, sshFxBadMessage, se.FxCode())
}

func TestDecodeExtendedRoutesUnknownNameToGenericPacket(t *testing.T) {
	pkt := &sshFxpExtendedGenericPacket{
		idPkt_:          idPkt_{ID: 7},
		ExtendedRequest: "made-up@example.com",
		Payload:         []byte("payload"),
	}
	marshaled, err := pkt.appendTo(nil)
	require.NoError(t, err)

	req, err := decodeExtended(marshaled[1:])
	require.NoError(t, err)

	got, ok := req.(*sshFxpExtendedGenericPacket)
	require.True(t, ok)
	require.Equal(t, pkt.ExtendedRequest, got.ExtendedRequest)
	require.Equal(t, pkt.Payload, got.Payload)
}
