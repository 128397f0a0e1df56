package usync

import (
	"github.com/dchest/siphash"
	"github.com/tredeske/sftp/ustrings"
)

// fixed, process-wide siphash keys.  These exist only to make HashBytes/
// HashString deterministic within a process for map sharding and dedup -
// they are not secret and must not be used for anything security sensitive.
const (
	sipHashKey1_ = uint64(0x9ae16a3b2f90404f)
	sipHashKey2_ = uint64(0xc2b2ae3d27d4eb4f)
)

//
// compute a unique hash for a short byte slice
//
func HashBytes(b []byte) uintptr {
	return uintptr(siphash.Hash(sipHashKey1_, sipHashKey2_, b))
}

//
// compute a unique hash for a short string
//
// this saves about 80% compared to HashBytes([]byte(s)) and is more convenient
//
func HashString(s string) uintptr {
	return uintptr(siphash.Hash(sipHashKey1_, sipHashKey2_,
		ustrings.UnsafeStringToBytes(s)))
}
