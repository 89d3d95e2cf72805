package store

// nodeStore is the allocation surface a BTree2 needs from underneath
// it. A user-facing tree is backed by a FileAllocator's public,
// self-locking methods; the allocator's own internal free-space tree
// is backed by internalNodeStore, which calls the non-locking variants
// directly because its caller already holds the allocator's mutex
// (spec §5: "its internal B-Tree is accessed only under this lock").
type nodeStore interface {
	allocNode() (uint64, error)
	freeNode(offset uint64) error
	allocBytes(size uint64) (uint64, error)
	freeBytes(offset uint64) error
	readAt(buf []byte, blockOffset uint64) (int, error)
	writeAt(buf []byte, blockOffset uint64) (int, error)
	blockSize(blockOffset uint64) (uint64, error)
	enlist(p participant)
}

func (a *FileAllocator) allocNode() (uint64, error)  { return a.AllocBTreeNode() }
func (a *FileAllocator) freeNode(offset uint64) error { return a.FreeBTreeNode(offset) }
func (a *FileAllocator) allocBytes(size uint64) (uint64, error) { return a.Alloc(size) }
func (a *FileAllocator) freeBytes(offset uint64) error { return a.Free(offset) }

func (a *FileAllocator) blockSize(offset uint64) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, err := a.getBlockInfo(offset)
	if err != nil {
		return 0, err
	}
	return h.size, nil
}

func (a *FileAllocator) readAt(buf []byte, blockOffset uint64) (int, error) {
	return a.bf.Read(buf, blockPayloadOffset(blockOffset))
}

func (a *FileAllocator) writeAt(buf []byte, blockOffset uint64) (int, error) {
	return a.bf.Write(buf, blockPayloadOffset(blockOffset))
}

func (a *FileAllocator) enlist(p participant) { a.bf.Enlist(p) }

// internalNodeStore backs the allocator's own free-space B-Tree. Every
// method assumes a.mu is already held by the caller.
type internalNodeStore struct {
	a *FileAllocator
}

func (s internalNodeStore) allocNode() (uint64, error)   { return s.a.allocFixedLocked() }
func (s internalNodeStore) freeNode(offset uint64) error { return s.a.freeFixedLocked(offset) }

func (s internalNodeStore) allocBytes(size uint64) (uint64, error) {
	prev := s.a.inFreeTreeOp
	s.a.inFreeTreeOp = true
	defer func() { s.a.inFreeTreeOp = prev }()
	if size < minPayloadSize {
		size = minPayloadSize
	}
	return s.a.allocVariableLocked(size)
}

func (s internalNodeStore) freeBytes(offset uint64) error {
	prev := s.a.inFreeTreeOp
	s.a.inFreeTreeOp = true
	defer func() { s.a.inFreeTreeOp = prev }()
	return s.a.freeVariableLocked(offset)
}

func (s internalNodeStore) readAt(buf []byte, blockOffset uint64) (int, error) {
	return s.a.bf.Read(buf, blockPayloadOffset(blockOffset))
}

func (s internalNodeStore) writeAt(buf []byte, blockOffset uint64) (int, error) {
	return s.a.bf.Write(buf, blockPayloadOffset(blockOffset))
}

func (s internalNodeStore) blockSize(offset uint64) (uint64, error) {
	h, err := s.a.getBlockInfo(offset)
	if err != nil {
		return 0, err
	}
	return h.size, nil
}

func (s internalNodeStore) enlist(p participant) { s.a.bf.Enlist(p) }
