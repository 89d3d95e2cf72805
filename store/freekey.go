package store

import (
	"encoding/binary"
	"fmt"
)

// sizeOffsetKey is the key type of the internal free-space B-Tree (spec
// §4.4): ordered lexicographically on (size, offset) so that a search
// for the least key >= (size, 0) finds the smallest free block large
// enough to satisfy an allocation, with offset breaking ties between
// equal-sized free blocks. Always handled by pointer so it satisfies
// Key consistently with the other Read/Write-based types.
type sizeOffsetKey struct {
	size   uint64
	offset uint64
}

func (k *sizeOffsetKey) Compare(other Key) int {
	o := other.(*sizeOffsetKey)
	switch {
	case k.size != o.size:
		if k.size < o.size {
			return -1
		}
		return 1
	case k.offset != o.offset:
		if k.offset < o.offset {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// PrefixCompare is unused by the free-space tree (it never runs a
// prefix scan) but must satisfy Key.
func (k *sizeOffsetKey) PrefixCompare(other Key) int {
	return k.Compare(other)
}

func (k *sizeOffsetKey) Type() string    { return "sizeOffsetKey" }
func (k *sizeOffsetKey) Version() uint16 { return 1 }
func (k *sizeOffsetKey) Size() int       { return 16 }

func (k *sizeOffsetKey) Write(buf []byte) error {
	if len(buf) < 16 {
		return fmt.Errorf("store: sizeOffsetKey.Write: buffer too small")
	}
	binary.BigEndian.PutUint64(buf[0:8], k.size)
	binary.BigEndian.PutUint64(buf[8:16], k.offset)
	return nil
}

func (k *sizeOffsetKey) Read(buf []byte) error {
	if len(buf) < 16 {
		return fmt.Errorf("store: sizeOffsetKey.Read: buffer too small")
	}
	k.size = binary.BigEndian.Uint64(buf[0:8])
	k.offset = binary.BigEndian.Uint64(buf[8:16])
	return nil
}

// emptyValue is the Value used by the free-space B-Tree: its entries
// are keys only (spec §4.4: "there are no values").
type emptyValue struct{}

func (*emptyValue) Type() string       { return "emptyValue" }
func (*emptyValue) Version() uint16    { return 1 }
func (*emptyValue) Size() int          { return 0 }
func (*emptyValue) Write([]byte) error { return nil }
func (*emptyValue) Read([]byte) error  { return nil }

func init() {
	RegisterType("sizeOffsetKey", func() interface{} { return &sizeOffsetKey{} })
	RegisterType("emptyValue", func() interface{} { return &emptyValue{} })
}
