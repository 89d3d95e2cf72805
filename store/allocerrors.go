package store

import (
	"encoding/binary"
	"fmt"

	"github.com/arbordb/arbor/common"
)

var (
	errFreeListCorrupt = fmt.Errorf("store: fixed free list points at an in-use block: %w", common.ErrBlockCorruption)
	errDoubleFree      = fmt.Errorf("store: double free: %w", common.ErrLogicError)
)

func beUint64(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf)
}

func putBeUint64(buf []byte, v uint64) {
	binary.BigEndian.PutUint64(buf, v)
}
