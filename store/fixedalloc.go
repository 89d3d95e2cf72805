package store

// Fixed-block allocation (spec §4.5): the self-reference closure. This
// path never touches the free-space B-Tree, which is what makes it
// safe for the B-Tree's own nodes to be allocated through it.

// AllocBTreeNode allocates one block of exactly header.blockSize bytes
// from the singly-linked fixed free list, extending the file if the
// list is empty. Used for both the internal free-space B-Tree's nodes
// and any user BTree2 sharing this allocator.
func (a *FileAllocator) AllocBTreeNode() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkHealthy(); err != nil {
		return 0, err
	}
	return a.allocFixedLocked()
}

// FreeBTreeNode returns a node block to the fixed free list.
func (a *FileAllocator) FreeBTreeNode(offset uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkHealthy(); err != nil {
		return err
	}
	return a.freeFixedLocked(offset)
}

func (a *FileAllocator) allocFixedLocked() (uint64, error) {
	size := a.header.blockSize

	if a.header.freeBlockOffset != noFreeBlock {
		headerOffset := a.header.freeBlockOffset
		h, err := a.getBlockInfo(headerOffset)
		if err != nil {
			return 0, err
		}
		if !h.free() {
			return 0, a.poison(errFreeListCorrupt)
		}
		nextBuf := make([]byte, 8)
		if _, err := a.bf.Read(nextBuf, blockPayloadOffset(headerOffset)); err != nil {
			return 0, err
		}
		a.header.freeBlockOffset = beUint64(nextBuf)
		h.flags = blockFlagFixed
		if err := a.writeBlockHeaderFooter(headerOffset, h); err != nil {
			return 0, err
		}
		if err := a.writeHeader(); err != nil {
			return 0, err
		}
		a.metrics.blockAlloc()
		return headerOffset, nil
	}

	headerOffset := a.bf.Size()
	a.bf.SetSize(headerOffset + blockFootprint(size))
	h := blockHeader{flags: blockFlagFixed, size: size}
	if err := a.writeBlockHeaderFooter(headerOffset, h); err != nil {
		return 0, err
	}
	a.metrics.blockAlloc()
	return headerOffset, nil
}

func (a *FileAllocator) freeFixedLocked(headerOffset uint64) error {
	h, err := a.getBlockInfo(headerOffset)
	if err != nil {
		return err
	}
	if h.free() {
		return a.poison(errDoubleFree)
	}
	next := make([]byte, 8)
	putBeUint64(next, a.header.freeBlockOffset)
	if _, err := a.bf.Write(next, blockPayloadOffset(headerOffset)); err != nil {
		return err
	}
	h.flags = blockFlagFixed | blockFlagFree
	if err := a.writeBlockHeaderFooter(headerOffset, h); err != nil {
		return err
	}
	a.header.freeBlockOffset = headerOffset
	if err := a.writeHeader(); err != nil {
		return err
	}
	a.metrics.blockFree()
	return nil
}
