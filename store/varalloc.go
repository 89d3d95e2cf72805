package store

import (
	"fmt"

	"github.com/arbordb/arbor/common"
)

// Variable-block allocation (spec §4.3 "Variable-block allocation
// algorithm"): best-fit via the internal free-space B-Tree, falling
// back to extending the file.

// Alloc reserves size bytes of payload from the variable-size heap and
// returns the offset of the new block's header. It is an error to call
// Alloc on a fixed-mode allocator.
func (a *FileAllocator) Alloc(size uint64) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkHealthy(); err != nil {
		return 0, err
	}
	if a.fixed() {
		return 0, fmt.Errorf("store: Alloc called on a fixed-mode allocator")
	}
	if size == 0 {
		return 0, fmt.Errorf("store: Alloc of zero bytes: %w", common.ErrLogicError)
	}
	if size < minPayloadSize {
		size = minPayloadSize
	}
	return a.allocVariableLocked(size)
}

// Free releases a block previously returned by Alloc.
func (a *FileAllocator) Free(offset uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkHealthy(); err != nil {
		return err
	}
	if a.fixed() {
		return fmt.Errorf("store: Free called on a fixed-mode allocator")
	}
	return a.freeVariableLocked(offset)
}

func (a *FileAllocator) allocVariableLocked(size uint64) (uint64, error) {
	if a.inFreeTreeOp || a.freeTree == nil {
		return a.extendLocked(size)
	}

	key := &sizeOffsetKey{size: size, offset: 0}
	found, ok, err := a.freeTree.findCeil(key)
	if err != nil {
		return 0, err
	}
	if ok {
		fk := found.(*sizeOffsetKey)
		if _, err := a.freeTree.deleteLocked(fk); err != nil {
			return 0, err
		}

		headerOffset := fk.offset
		blockSize := fk.size
		tailPayload := blockSize - size

		if tailPayload >= blockFootprint(minPayloadSize) {
			// Split: keep `size` bytes in the returned block, insert
			// the remainder back into the free tree as a new block.
			tailHeaderOffset := blockFooterOffset(headerOffset, size) + blockFooterSize
			tailSize := tailPayload - blockOverhead
			tailHeader := blockHeader{flags: blockFlagFree, size: tailSize}
			if err := a.writeBlockHeaderFooter(tailHeaderOffset, tailHeader); err != nil {
				return 0, err
			}
			if _, err := a.freeTree.addLocked(&sizeOffsetKey{size: tailSize, offset: tailHeaderOffset}, &emptyValue{}); err != nil {
				return 0, err
			}
		} else {
			size = blockSize
		}

		h := blockHeader{flags: 0, size: size}
		if err := a.writeBlockHeaderFooter(headerOffset, h); err != nil {
			return 0, err
		}
		a.metrics.blockAlloc()
		return headerOffset, nil
	}

	return a.extendLocked(size)
}

// extendLocked appends a new block of the given payload size at the
// end of the heap (spec §4.3 step 3: "extend the file; append a new
// block at the end").
func (a *FileAllocator) extendLocked(size uint64) (uint64, error) {
	headerOffset := a.bf.Size()
	a.bf.SetSize(headerOffset + blockFootprint(size))
	h := blockHeader{flags: 0, size: size}
	if err := a.writeBlockHeaderFooter(headerOffset, h); err != nil {
		return 0, err
	}
	a.metrics.blockAlloc()
	return headerOffset, nil
}

func (a *FileAllocator) freeVariableLocked(headerOffset uint64) error {
	h, err := a.getBlockInfo(headerOffset)
	if err != nil {
		return err
	}
	if h.free() {
		return a.poison(errDoubleFree)
	}

	mergedOffset := headerOffset
	mergedSize := h.size

	if prevOffset, prevHeader, ok, err := a.prev(headerOffset); err != nil {
		return err
	} else if ok && prevHeader.free() && !prevHeader.fixed() {
		if _, err := a.freeTree.deleteLocked(&sizeOffsetKey{size: prevHeader.size, offset: prevOffset}); err != nil {
			return err
		}
		mergedSize = prevHeader.size + blockOverhead + mergedSize
		mergedOffset = prevOffset
	}

	if nextOffset, nextHeader, ok, err := a.next(headerOffset, h); err != nil {
		return err
	} else if ok && nextHeader.free() && !nextHeader.fixed() {
		if _, err := a.freeTree.deleteLocked(&sizeOffsetKey{size: nextHeader.size, offset: nextOffset}); err != nil {
			return err
		}
		mergedSize = mergedSize + blockOverhead + nextHeader.size
	}

	mh := blockHeader{flags: blockFlagFree, size: mergedSize}
	if err := a.writeBlockHeaderFooter(mergedOffset, mh); err != nil {
		return err
	}
	a.metrics.blockFree()

	if blockNextOffset(mergedOffset, mh) >= a.bf.Size() {
		a.bf.SetSize(mergedOffset)
		return nil
	}

	_, err = a.freeTree.addLocked(&sizeOffsetKey{size: mergedSize, offset: mergedOffset}, &emptyValue{})
	return err
}
