package store

import (
	"encoding/binary"
	"fmt"

	"github.com/arbordb/arbor/common"
)

// Block flags (spec §3.1). A block is either in use or on a free list;
// FIXED distinguishes the fixed-size pool (singly-linked free list) from
// the variable-size heap (free-space B-Tree).
const (
	blockFlagFree  uint32 = 1 << 0
	blockFlagFixed uint32 = 1 << 1
)

// blockMagic is the 4-byte integrity sentinel carried in every header
// and footer (spec §6.2); a mismatch on read is BlockCorruption.
const blockMagic uint32 = 0x424c4b31 // "BLK1"

// blockHeaderSize and blockFooterSize are both {magic: u32, flags: u32,
// size: u64} = 16 bytes (spec §6.2). The header precedes the payload,
// the footer follows it, and both carry the same size so a block can be
// walked in either direction without consulting a neighbor.
const (
	blockHeaderSize = 4 + 4 + 8
	blockFooterSize = 4 + 4 + 8
)

// blockOverhead is the bytes of header+footer a payload of size n costs
// in addition to n itself.
const blockOverhead = blockHeaderSize + blockFooterSize

// minPayloadSize is the floor on a block's usable size: a free fixed
// block stores its free-list successor in the first 8 bytes of its
// payload (spec §6.2), so payload must be at least that large; the
// spec pins the floor at 32 for slack.
const minPayloadSize = 32

type blockHeader struct {
	flags uint32
	size  uint64
}

func (h blockHeader) free() bool  { return h.flags&blockFlagFree != 0 }
func (h blockHeader) fixed() bool { return h.flags&blockFlagFixed != 0 }

func encodeBlockHeader(h blockHeader) []byte {
	buf := make([]byte, blockHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], blockMagic)
	binary.BigEndian.PutUint32(buf[4:8], h.flags)
	binary.BigEndian.PutUint64(buf[8:16], h.size)
	return buf
}

func decodeBlockHeader(buf []byte) (blockHeader, error) {
	if len(buf) < blockHeaderSize {
		return blockHeader{}, fmt.Errorf("store: short block header: %w", common.ErrBlockCorruption)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != blockMagic {
		return blockHeader{}, fmt.Errorf("store: bad block header magic: %w", common.ErrBlockCorruption)
	}
	return blockHeader{
		flags: binary.BigEndian.Uint32(buf[4:8]),
		size:  binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}

// blockFooter mirrors blockHeader so Prev can be computed without
// re-reading the header at the candidate previous offset.
type blockFooter struct {
	flags uint32
	size  uint64
}

func encodeBlockFooter(f blockFooter) []byte {
	buf := make([]byte, blockFooterSize)
	binary.BigEndian.PutUint32(buf[0:4], blockMagic)
	binary.BigEndian.PutUint32(buf[4:8], f.flags)
	binary.BigEndian.PutUint64(buf[8:16], f.size)
	return buf
}

func decodeBlockFooter(buf []byte) (blockFooter, error) {
	if len(buf) < blockFooterSize {
		return blockFooter{}, fmt.Errorf("store: short block footer: %w", common.ErrBlockCorruption)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != blockMagic {
		return blockFooter{}, fmt.Errorf("store: bad block footer magic: %w", common.ErrBlockCorruption)
	}
	return blockFooter{
		flags: binary.BigEndian.Uint32(buf[4:8]),
		size:  binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}

// blockFootprint is the total on-disk span of a block whose payload is
// size bytes: header + payload + footer.
func blockFootprint(size uint64) uint64 {
	return blockHeaderSize + size + blockFooterSize
}

// blockPayloadOffset and blockFooterOffset locate the payload and
// footer of the block whose header begins at headerOffset.
func blockPayloadOffset(headerOffset uint64) uint64 {
	return headerOffset + blockHeaderSize
}

func blockFooterOffset(headerOffset, size uint64) uint64 {
	return headerOffset + blockHeaderSize + size
}

// blockNextOffset returns the header offset of the block immediately
// following the one described by header at headerOffset (spec §3.1
// linear Next navigation): skip header, payload, and footer.
func blockNextOffset(headerOffset uint64, h blockHeader) uint64 {
	return headerOffset + blockFootprint(h.size)
}

// blockPrevFooterOffset returns the offset at which the previous
// block's footer would lie, for Prev navigation. The caller must check
// this is >= the heap's first block offset before reading it.
func blockPrevFooterOffset(headerOffset uint64) uint64 {
	return headerOffset - blockFooterSize
}

// blockPrevHeaderOffset computes the previous block's header offset
// from its footer, once the footer has been read and its size known.
func blockPrevHeaderOffset(prevFooterOffset uint64, prevFooterSize uint64) uint64 {
	return prevFooterOffset - blockFooterSize - prevFooterSize
}
