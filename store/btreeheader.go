package store

import (
	"encoding/binary"
	"fmt"

	"github.com/arbordb/arbor/common"
)

// btreeMagic guards a BTree2 header block (spec §6.3).
const btreeMagic uint32 = 0x42545232 // "BTR2"

type btreeHeader struct {
	keyType        string
	valueType      string
	entriesPerNode uint32
	rootOffset     uint64
}

func encodeBTreeHeader(h btreeHeader) []byte {
	buf := make([]byte, 0, 4+2+len(h.keyType)+2+len(h.valueType)+4+8)
	var magic [4]byte
	binary.BigEndian.PutUint32(magic[:], btreeMagic)
	buf = append(buf, magic[:]...)
	buf = appendSizedString(buf, h.keyType)
	buf = appendSizedString(buf, h.valueType)
	var rest [12]byte
	binary.BigEndian.PutUint32(rest[0:4], h.entriesPerNode)
	binary.BigEndian.PutUint64(rest[4:12], h.rootOffset)
	return append(buf, rest[:]...)
}

func decodeBTreeHeader(buf []byte) (btreeHeader, error) {
	if len(buf) < 4 {
		return btreeHeader{}, fmt.Errorf("store: short btree header: %w", common.ErrBTreeCorruption)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != btreeMagic {
		return btreeHeader{}, fmt.Errorf("store: bad btree header magic: %w", common.ErrBTreeCorruption)
	}
	rest := buf[4:]
	keyType, rest, err := readSizedString(rest)
	if err != nil {
		return btreeHeader{}, err
	}
	valueType, rest, err := readSizedString(rest)
	if err != nil {
		return btreeHeader{}, err
	}
	if len(rest) < 12 {
		return btreeHeader{}, fmt.Errorf("store: short btree header tail: %w", common.ErrBTreeCorruption)
	}
	return btreeHeader{
		keyType:        keyType,
		valueType:      valueType,
		entriesPerNode: binary.BigEndian.Uint32(rest[0:4]),
		rootOffset:     binary.BigEndian.Uint64(rest[4:12]),
	}, nil
}

func btreeHeaderSize(h btreeHeader) uint64 {
	return uint64(len(encodeBTreeHeader(h)))
}
