package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("asidecache: corrupt entry")
	magic4     = [...]byte{'A', 'S', 'D', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Envelope is the decoded form of a stored entry. StoredAtMs/TTLSec make the
// entry self-describing: logical expiry is evaluated from these fields,
// independently of the backing store's own TTL enforcement.
type Envelope struct {
	StoredAtMs int64
	TTLSec     uint32
	Payload    []byte
}

// Expired reports whether the entry is logically invalid at now.
func (e Envelope) Expired(now time.Time) bool {
	return now.UnixMilli() >= e.StoredAtMs+int64(e.TTLSec)*1000
}

// layout: magic(4) | ver(1) | storedAtMs(u64 be) | ttlSec(u32 be) | vlen(u32 be) | payload(vlen)
func Encode(storedAtMs int64, ttlSec uint32, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 8 + 4 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(storedAtMs))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], ttlSec)
	buf.Write(u4[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func Decode(b []byte) (Envelope, error) {
	const hdr = 4 + 1 + 8 + 4 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Envelope{}, ErrCorrupt
	}

	off := 5

	storedAt := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	ttlSec := binary.BigEndian.Uint32(b[off : off+4])
	off += 4

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
		return Envelope{}, ErrCorrupt
	}

	return Envelope{
		StoredAtMs: storedAt,
		TTLSec:     ttlSec,
		Payload:    b[off : off+vlen],
	}, nil
}
