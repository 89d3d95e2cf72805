package store

import (
	"encoding/binary"
	"fmt"

	"github.com/arbordb/arbor/common"
)

// allocatorMagic identifies an arbor heap file, written once at offset 0
// by Create and checked by Open (spec §3.1, §7 BlockCorruption).
const allocatorMagic uint32 = 0x41524232 // "ARB2"

// allocatorHeaderSize is the fixed span reserved at the front of the
// file before the first block. Flags carries allocatorFlagFixed, which
// marks a heap that serves only fixed-size blocks.
const allocatorHeaderSize = 4 + 4 + 8 + 8 + 8 + 8

// allocatorHeader is the FileAllocator's persistent root (spec §3.1):
// blockSize is the single fixed-block footprint shared by every fixed
// allocation in this file (the allocator's own free-space B-Tree nodes
// included); freeBlockOffset heads the singly-linked fixed free list;
// btreeOffset is the header offset of the internal free-space B-Tree's
// root-pointer block; rootOffset is reserved for a caller-registered
// root block (e.g. a user BTree2's Header block).
type allocatorHeader struct {
	magic           uint32
	flags           uint32
	blockSize       uint64
	freeBlockOffset uint64
	btreeOffset     uint64
	rootOffset      uint64
}

func encodeAllocatorHeader(h allocatorHeader) []byte {
	buf := make([]byte, allocatorHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.magic)
	binary.BigEndian.PutUint32(buf[4:8], h.flags)
	binary.BigEndian.PutUint64(buf[8:16], h.blockSize)
	binary.BigEndian.PutUint64(buf[16:24], h.freeBlockOffset)
	binary.BigEndian.PutUint64(buf[24:32], h.btreeOffset)
	binary.BigEndian.PutUint64(buf[32:40], h.rootOffset)
	return buf
}

func decodeAllocatorHeader(buf []byte) (allocatorHeader, error) {
	if len(buf) < allocatorHeaderSize {
		return allocatorHeader{}, fmt.Errorf("store: short allocator header: %w", common.ErrBlockCorruption)
	}
	h := allocatorHeader{
		magic:           binary.BigEndian.Uint32(buf[0:4]),
		flags:           binary.BigEndian.Uint32(buf[4:8]),
		blockSize:       binary.BigEndian.Uint64(buf[8:16]),
		freeBlockOffset: binary.BigEndian.Uint64(buf[16:24]),
		btreeOffset:     binary.BigEndian.Uint64(buf[24:32]),
		rootOffset:      binary.BigEndian.Uint64(buf[32:40]),
	}
	if h.magic != allocatorMagic {
		return allocatorHeader{}, fmt.Errorf("store: bad allocator magic: %w", common.ErrBlockCorruption)
	}
	return h, nil
}

// noFreeBlock marks an empty fixed free list or an unset pointer field.
const noFreeBlock uint64 = 0
