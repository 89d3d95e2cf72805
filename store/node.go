package store

import (
	"encoding/binary"
	"fmt"

	"github.com/arbordb/arbor/common"
)

// nodeMagic guards a B-Tree node block against misinterpretation as
// something else (spec §6.4).
const nodeMagic uint32 = 0x4254524e // "BTRN"

// nodeFixedHeaderSize is {magic, count, leftChildOffset, keyValueOffset}.
const nodeFixedHeaderSize = 4 + 4 + 8 + 8

// nodeEntrySize is {rightChildOffset} per slot.
const nodeEntrySize = 8

// nodeFootprint is the fixed on-disk payload size of a node with room
// for entriesPerNode entries (spec §3.2: "fixed on-disk footprint
// determined only by entriesPerNode"). This is the FileAllocator
// blockSize a tree sharing a given allocator must be built with.
func nodeFootprint(entriesPerNode int) uint64 {
	return uint64(nodeFixedHeaderSize + entriesPerNode*nodeEntrySize)
}

// nodeEntry is one (key, value, right-child) triple held in a node.
type nodeEntry struct {
	key   Key
	value Value
	right uint64
}

// node is the in-memory form of a B-Tree node (spec §3.3). entries is
// a plain slice rather than a fixed flexible array — Go has no
// equivalent memmove-in-place layout, but insert/remove still shift a
// contiguous slice the same way the teacher's array-backed node does.
type node struct {
	offset         uint64
	leftChild      uint64
	keyValueOffset uint64
	sideBlockCap   uint64 // allocated size of the side block, for in-place reuse
	entries        []nodeEntry
	dirty          bool
}

func newNode(offset uint64) *node {
	return &node{offset: offset}
}

func (n *node) count() int { return len(n.entries) }

// child returns the offset of the i-th child (0..count()).
func (n *node) child(i int) uint64 {
	if i == 0 {
		return n.leftChild
	}
	return n.entries[i-1].right
}

func (n *node) setChild(i int, offset uint64) {
	if i == 0 {
		n.leftChild = offset
		return
	}
	n.entries[i-1].right = offset
}

// search returns the index of the first entry whose key is >= target,
// and whether that entry is an exact match (spec §4.6: "all binary
// searches return the index of the first key >= the search key").
func (n *node) search(target Key) (int, bool) {
	lo, hi := 0, len(n.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.entries[mid].key.Compare(target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	exact := lo < len(n.entries) && n.entries[lo].key.Compare(target) == 0
	return lo, exact
}

// searchPrefix returns the index of the leftmost entry whose key has
// prefix as a prefix (spec §4.6).
func (n *node) searchPrefix(prefix Key) (int, bool) {
	lo, hi := 0, len(n.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if prefix.PrefixCompare(n.entries[mid].key) > 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	found := lo < len(n.entries) && prefix.PrefixCompare(n.entries[lo].key) == 0
	return lo, found
}

// insertAt shifts entries right starting at i and inserts e (the
// memmove of spec §4.6's flexible array, expressed as a slice splice).
func (n *node) insertAt(i int, e nodeEntry) {
	n.entries = append(n.entries, nodeEntry{})
	copy(n.entries[i+1:], n.entries[i:])
	n.entries[i] = e
	n.dirty = true
}

// removeAt deletes the entry at i and returns it.
func (n *node) removeAt(i int) nodeEntry {
	e := n.entries[i]
	copy(n.entries[i:], n.entries[i+1:])
	n.entries = n.entries[:len(n.entries)-1]
	n.dirty = true
	return e
}

func (n *node) isLeaf() bool {
	if n.leftChild != 0 {
		return false
	}
	for _, e := range n.entries {
		if e.right != 0 {
			return false
		}
	}
	return true
}

// encodeNodeFixed serializes the fixed part of a node (everything but
// key/value bytes) into a buffer of exactly nodeFootprint(entriesPerNode).
func encodeNodeFixed(n *node, entriesPerNode int) []byte {
	buf := make([]byte, nodeFootprint(entriesPerNode))
	binary.BigEndian.PutUint32(buf[0:4], nodeMagic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(n.entries)))
	binary.BigEndian.PutUint64(buf[8:16], n.leftChild)
	binary.BigEndian.PutUint64(buf[16:24], n.keyValueOffset)
	off := nodeFixedHeaderSize
	for i := 0; i < entriesPerNode; i++ {
		var right uint64
		if i < len(n.entries) {
			right = n.entries[i].right
		}
		binary.BigEndian.PutUint64(buf[off:off+8], right)
		off += 8
	}
	return buf
}

// decodeNodeFixed parses the fixed part of a node, leaving each
// entry's Key/Value nil (the caller fills them in from the side block).
func decodeNodeFixed(buf []byte, offset uint64, entriesPerNode int) (*node, error) {
	want := int(nodeFootprint(entriesPerNode))
	if len(buf) < want {
		return nil, fmt.Errorf("store: short node block: %w", common.ErrBTreeCorruption)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != nodeMagic {
		return nil, fmt.Errorf("store: bad node magic: %w", common.ErrBTreeCorruption)
	}
	count := int(binary.BigEndian.Uint32(buf[4:8]))
	if count > entriesPerNode {
		return nil, fmt.Errorf("store: node count %d exceeds entriesPerNode %d: %w", count, entriesPerNode, common.ErrBTreeCorruption)
	}
	n := &node{
		offset:         offset,
		leftChild:      binary.BigEndian.Uint64(buf[8:16]),
		keyValueOffset: binary.BigEndian.Uint64(buf[16:24]),
		entries:        make([]nodeEntry, count),
	}
	off := nodeFixedHeaderSize
	for i := 0; i < entriesPerNode; i++ {
		right := binary.BigEndian.Uint64(buf[off : off+8])
		if i < count {
			n.entries[i].right = right
		}
		off += 8
	}
	return n, nil
}

// encodeSideBlock serializes a node's key/value stream: count pairs of
// {keyVersion u16, keySize varint, keyBytes, valueVersion u16,
// valueSize varint, valueBytes} in entry order (spec §6.4).
func encodeSideBlock(n *node) ([]byte, error) {
	var buf []byte
	for _, e := range n.entries {
		buf = appendKeyOrValuePrelude(buf, e.key.Version(), e.key.Size())
		ks := e.key.Size()
		kbuf := make([]byte, ks)
		if err := e.key.Write(kbuf); err != nil {
			return nil, err
		}
		buf = append(buf, kbuf...)

		buf = appendKeyOrValuePrelude(buf, e.value.Version(), e.value.Size())
		vs := e.value.Size()
		vbuf := make([]byte, vs)
		if err := e.value.Write(vbuf); err != nil {
			return nil, err
		}
		buf = append(buf, vbuf...)
	}
	return buf, nil
}

func appendKeyOrValuePrelude(buf []byte, version uint16, size int) []byte {
	var v [2]byte
	binary.BigEndian.PutUint16(v[:], version)
	buf = append(buf, v[:]...)
	return appendUvarint(buf, uint64(size))
}

// decodeSideBlock reads count (key, value) pairs from buf using the
// registered factories for keyType/valueType.
func decodeSideBlock(buf []byte, count int, keyType, valueType string) ([]nodeEntry, error) {
	entries := make([]nodeEntry, count)
	for i := 0; i < count; i++ {
		if len(buf) < 2 {
			return nil, fmt.Errorf("store: truncated side block: %w", common.ErrBTreeCorruption)
		}
		buf = buf[2:] // key version, currently unused for migration
		ksize, rest, err := readUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("store: side block key size: %w", err)
		}
		if uint64(len(rest)) < ksize {
			return nil, fmt.Errorf("store: truncated side block key: %w", common.ErrBTreeCorruption)
		}
		key, err := newKey(keyType)
		if err != nil {
			return nil, err
		}
		if err := key.Read(rest[:ksize]); err != nil {
			return nil, err
		}
		buf = rest[ksize:]

		if len(buf) < 2 {
			return nil, fmt.Errorf("store: truncated side block: %w", common.ErrBTreeCorruption)
		}
		buf = buf[2:]
		vsize, rest2, err := readUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("store: side block value size: %w", err)
		}
		if uint64(len(rest2)) < vsize {
			return nil, fmt.Errorf("store: truncated side block value: %w", common.ErrBTreeCorruption)
		}
		value, err := newValue(valueType)
		if err != nil {
			return nil, err
		}
		if err := value.Read(rest2[:vsize]); err != nil {
			return nil, err
		}
		buf = rest2[vsize:]

		entries[i].key = key
		entries[i].value = value
	}
	return entries, nil
}

// sideBlockSize returns the byte length encodeSideBlock would produce.
func sideBlockSize(n *node) int {
	total := 0
	for _, e := range n.entries {
		total += 2 + varintSize(uint64(e.key.Size())) + e.key.Size()
		total += 2 + varintSize(uint64(e.value.Size())) + e.value.Size()
	}
	return total
}
