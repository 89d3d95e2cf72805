package store

import (
	"errors"
	"testing"

	"github.com/arbordb/arbor/common"
	"github.com/stretchr/testify/require"
)

func TestBlockHeaderFooterRoundTrip(t *testing.T) {
	h := blockHeader{flags: blockFlagFixed, size: 128}
	buf := encodeBlockHeader(h)
	got, err := decodeBlockHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)

	f := blockFooter{flags: h.flags, size: h.size}
	fbuf := encodeBlockFooter(f)
	gotF, err := decodeBlockFooter(fbuf)
	require.NoError(t, err)
	require.Equal(t, f, gotF)
}

func TestBlockHeaderBadMagicIsCorruption(t *testing.T) {
	buf := encodeBlockHeader(blockHeader{size: 64})
	buf[0] ^= 0xff
	_, err := decodeBlockHeader(buf)
	require.True(t, errors.Is(err, common.ErrBlockCorruption))
}

func TestBlockNavigationOffsets(t *testing.T) {
	h := blockHeader{size: 100}
	headerOffset := uint64(40)
	next := blockNextOffset(headerOffset, h)
	require.Equal(t, headerOffset+blockFootprint(100), next)

	footerOffset := blockFooterOffset(headerOffset, h.size)
	require.Equal(t, headerOffset+blockHeaderSize+100, footerOffset)

	prevFooterOffset := blockPrevFooterOffset(next)
	require.Equal(t, footerOffset, prevFooterOffset)

	prevHeaderOffset := blockPrevHeaderOffset(prevFooterOffset, h.size)
	require.Equal(t, headerOffset, prevHeaderOffset)
}

func TestAllocatorHeaderRoundTrip(t *testing.T) {
	h := allocatorHeader{
		magic:           allocatorMagic,
		blockSize:       4096,
		freeBlockOffset: 88,
		btreeOffset:     40,
		rootOffset:      200,
	}
	buf := encodeAllocatorHeader(h)
	got, err := decodeAllocatorHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestAllocatorHeaderBadMagic(t *testing.T) {
	h := allocatorHeader{magic: 0xdeadbeef}
	buf := encodeAllocatorHeader(h)
	_, err := decodeAllocatorHeader(buf)
	require.True(t, errors.Is(err, common.ErrBlockCorruption))
}
