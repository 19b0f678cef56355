package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindRecord byte = 1
)

var (
	ErrCorrupt = errors.New("memocache: corrupt persisted record")
	magic4     = [...]byte{'M', 'E', 'M', 'O'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record is a persisted property slot: the dependency snapshot it was
// computed for and the encoded value.
type Record struct {
	SnapshotKey uint64 // content hash of the dependency values
	Snapshot    []byte // encoded dependency values, informational
	Payload     []byte // encoded property value
}

// magic(4) | ver(1) | kind(1=record) | snapKey(u64 be) | slen(u32 be) | snapshot(slen) | vlen(u32 be) | payload(vlen)
func EncodeRecord(r Record) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 4 + len(r.Snapshot) + 4 + len(r.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], r.SnapshotKey)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Snapshot)))
	buf.Write(u4[:])
	buf.Write(r.Snapshot)

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
	buf.Write(u4[:])
	buf.Write(r.Payload)
	return buf.Bytes()
}

// DecodeRecord parses a frame produced by EncodeRecord. The returned slices
// alias b. Trailing bytes are rejected.
func DecodeRecord(b []byte) (Record, error) {
	const hdr = 4 + 1 + 1 + 8
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return Record{}, ErrCorrupt
	}
	off := 6

	key := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	snap, off, err := chunk(b, off)
	if err != nil {
		return Record{}, err
	}
	payload, off, err := chunk(b, off)
	if err != nil {
		return Record{}, err
	}
	if off != len(b) {
		return Record{}, ErrCorrupt
	}
	return Record{SnapshotKey: key, Snapshot: snap, Payload: payload}, nil
}

// chunk reads a u32-length-prefixed byte run starting at off.
func chunk(b []byte, off int) ([]byte, int, error) {
	if off+4 > len(b) {
		return nil, off, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if n < 0 || n > len(b)-off { // overflow-safe bound check
		return nil, off, ErrCorrupt
	}
	return b[off : off+n], off + n, nil
}
