package store

import (
	"fmt"
	"sync"
)

// BTree2 is the persistent B-Tree described in spec §4.4/§4.6: a
// classic (not B+) balanced tree where keys live at every level, nodes
// have a fixed on-disk footprint sized by entriesPerNode, and key/value
// bytes live in a separately allocated side block per node.
//
// A BTree2 is either "internal" — the free-space index owned by a
// FileAllocator, backed by internalNodeStore, guarded exclusively by
// the allocator's own mutex — or user-facing, backed by a
// FileAllocator's public locking surface and guarded by its own mu.
type BTree2 struct {
	mu sync.Mutex

	store    nodeStore
	internal bool

	headerOffset uint64
	header       btreeHeader

	cache *nodePool

	metrics *Metrics
}

// defaultNodeCacheCapacity bounds how many decoded nodes a tree keeps
// warm (spec §10.3's FixedPoolSize knob); SetCacheCapacity overrides it.
const defaultNodeCacheCapacity = 4096

// SetCacheCapacity resizes the tree's warm-node cache, rounding up to
// the next power of two.
func (bt *BTree2) SetCacheCapacity(n int) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.cache = newNodePool(n)
}

func (bt *BTree2) entriesPerNode() int { return int(bt.header.entriesPerNode) }

// HeaderOffset returns the block offset of this tree's header, the
// value a FileAllocator stores in its own header's btreeOffset slot
// (or that a caller persists as its own root-of-roots pointer).
func (bt *BTree2) HeaderOffset() uint64 { return bt.headerOffset }

// createBTree2 allocates a new, empty tree: a header block plus a nil
// root (spec §4.4: "a freshly created tree has root_offset == 0").
func createBTree2(store nodeStore, keyType, valueType string, entriesPerNode int, internal bool, metrics *Metrics) (*BTree2, error) {
	h := btreeHeader{
		keyType:        keyType,
		valueType:      valueType,
		entriesPerNode: uint32(entriesPerNode),
	}
	buf := encodeBTreeHeader(h)
	headerOffset, err := store.allocBytes(uint64(len(buf)))
	if err != nil {
		return nil, err
	}
	if _, err := store.writeAt(buf, headerOffset); err != nil {
		return nil, err
	}
	bt := &BTree2{
		store:        store,
		internal:     internal,
		headerOffset: headerOffset,
		header:       h,
		cache:        newNodePool(defaultNodeCacheCapacity),
		metrics:      metrics,
	}
	if !internal {
		store.enlist(bt)
	}
	return bt, nil
}

// openBTree2 reopens a tree whose header already lives at headerOffset.
func openBTree2(store nodeStore, headerOffset uint64, internal bool, metrics *Metrics) (*BTree2, error) {
	bt := &BTree2{
		store:        store,
		internal:     internal,
		headerOffset: headerOffset,
		cache:        newNodePool(defaultNodeCacheCapacity),
		metrics:      metrics,
	}
	if err := bt.reloadHeaderLocked(); err != nil {
		return nil, err
	}
	if !internal {
		store.enlist(bt)
	}
	return bt, nil
}

func (bt *BTree2) reloadHeaderLocked() error {
	sz, err := bt.store.blockSize(bt.headerOffset)
	if err != nil {
		return err
	}
	buf := make([]byte, sz)
	if _, err := bt.store.readAt(buf, bt.headerOffset); err != nil {
		return err
	}
	h, err := decodeBTreeHeader(buf)
	if err != nil {
		return err
	}
	bt.header = h
	bt.cache.clear()
	return nil
}

func (bt *BTree2) persistHeader() error {
	buf := encodeBTreeHeader(bt.header)
	_, err := bt.store.writeAt(buf, bt.headerOffset)
	return err
}

// NewBTree2 creates a user-facing tree on top of a FileAllocator's
// variable heap. entriesPerNode is derived from alloc.BlockSize(), the
// file's single global fixed-block footprint (spec §4.5's self-reference
// closure: every fixed allocation in a file, BTree2 nodes included,
// shares one block size); an error is returned if no whole number of
// entries gives a nodeFootprint equal to it.
func NewBTree2(alloc *FileAllocator, keyType, valueType string, metrics *Metrics) (*BTree2, error) {
	entries := defaultFreeTreeEntries(alloc.BlockSize())
	if nodeFootprint(entries) != alloc.BlockSize() {
		return nil, fmt.Errorf("store: allocator block size %d does not fit any whole-entry node footprint", alloc.BlockSize())
	}
	return createBTree2(alloc, keyType, valueType, entries, false, metrics)
}

// OpenBTree2 reopens a user-facing tree whose header lives at headerOffset.
func OpenBTree2(alloc *FileAllocator, headerOffset uint64, metrics *Metrics) (*BTree2, error) {
	return openBTree2(alloc, headerOffset, false, metrics)
}

func (bt *BTree2) lock() {
	if !bt.internal {
		bt.mu.Lock()
	}
}

func (bt *BTree2) unlock() {
	if !bt.internal {
		bt.mu.Unlock()
	}
}

// Search returns the value stored under key, if any.
func (bt *BTree2) Search(key Key) (Value, bool, error) {
	bt.lock()
	defer bt.unlock()
	return bt.searchLocked(key)
}

func (bt *BTree2) searchLocked(key Key) (Value, bool, error) {
	offset := bt.header.rootOffset
	for offset != 0 {
		n, err := bt.loadNode(offset)
		if err != nil {
			return nil, false, err
		}
		i, exact := n.search(key)
		if exact {
			return n.entries[i].value, true, nil
		}
		offset = n.child(i)
	}
	return nil, false, nil
}

// findCeil returns the least key that is >= target, walking the whole
// tree from the root (spec §4.3's best-fit search uses this against
// the free-space tree keyed on (size, offset)).
func (bt *BTree2) findCeil(target Key) (Key, bool, error) {
	var best Key
	haveBest := false
	offset := bt.header.rootOffset
	for offset != 0 {
		n, err := bt.loadNode(offset)
		if err != nil {
			return nil, false, err
		}
		i, exact := n.search(target)
		if exact {
			return n.entries[i].key, true, nil
		}
		if i < n.count() {
			best = n.entries[i].key
			haveBest = true
		}
		offset = n.child(i)
	}
	return best, haveBest, nil
}

// Add inserts key/value if key is not already present. It reports
// false, without modifying the tree, if key already exists; callers
// that need the existing value should Search first.
func (bt *BTree2) Add(key Key, value Value) (bool, error) {
	bt.lock()
	defer bt.unlock()
	return bt.addLocked(key, value)
}

// Delete removes key, rebalancing ancestors as needed.
func (bt *BTree2) Delete(key Key) (bool, error) {
	bt.lock()
	defer bt.unlock()
	return bt.deleteLocked(key)
}

// Flush drops the tree's in-memory node cache, forcing nodes to be
// reread from storage on next access (spec §4.4 "Persistence").
func (bt *BTree2) Flush() {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.cache.clear()
}

func (bt *BTree2) loadNode(offset uint64) (*node, error) {
	if n, ok := bt.cache.get(offset); ok {
		bt.metrics.pageHit()
		return n, nil
	}
	bt.metrics.pageMiss()
	entries := bt.entriesPerNode()
	buf := make([]byte, nodeFootprint(entries))
	if _, err := bt.store.readAt(buf, offset); err != nil {
		return nil, err
	}
	n, err := decodeNodeFixed(buf, offset, entries)
	if err != nil {
		return nil, err
	}
	if n.count() > 0 && n.keyValueOffset != 0 {
		sz, err := bt.store.blockSize(n.keyValueOffset)
		if err != nil {
			return nil, err
		}
		sideBuf := make([]byte, sz)
		if _, err := bt.store.readAt(sideBuf, n.keyValueOffset); err != nil {
			return nil, err
		}
		decoded, err := decodeSideBlock(sideBuf, n.count(), bt.header.keyType, bt.header.valueType)
		if err != nil {
			return nil, err
		}
		for i := range decoded {
			n.entries[i].key = decoded[i].key
			n.entries[i].value = decoded[i].value
		}
		n.sideBlockCap = sz
	}
	bt.cache.put(offset, n)
	return n, nil
}

// persistNode writes a node's fixed part and (if it holds any entries)
// its key/value side block, reusing the existing side block when it
// still fits (spec §6.4: side blocks are ordinary variable allocations).
func (bt *BTree2) persistNode(n *node) error {
	// The internal free-space tree mutating its own node's side block is
	// the one case where freeing would re-enter this same tree while its
	// own addLocked/persistNode call is still on the stack (the freed
	// block going straight back into the free tree it was just carved
	// out of). There's no safe point to run that free, so for the
	// internal tree a shrunk or outgrown side block is leaked rather than
	// reclaimed — it only ever grows, never reused, matching the
	// non-recursion guarantee allocVariableLocked already gives allocation.
	if n.count() == 0 {
		if n.keyValueOffset != 0 {
			if !bt.internal {
				if err := bt.store.freeBytes(n.keyValueOffset); err != nil {
					return err
				}
			}
			n.keyValueOffset = 0
			n.sideBlockCap = 0
		}
	} else {
		sideBuf, err := encodeSideBlock(n)
		if err != nil {
			return err
		}
		need := uint64(len(sideBuf))
		if n.keyValueOffset == 0 || need > n.sideBlockCap {
			if n.keyValueOffset != 0 && !bt.internal {
				if err := bt.store.freeBytes(n.keyValueOffset); err != nil {
					return err
				}
			}
			offset, err := bt.store.allocBytes(need)
			if err != nil {
				return err
			}
			n.keyValueOffset = offset
			cap, err := bt.store.blockSize(offset)
			if err != nil {
				return err
			}
			n.sideBlockCap = cap
		}
		if _, err := bt.store.writeAt(sideBuf, n.keyValueOffset); err != nil {
			return err
		}
	}

	fixedBuf := encodeNodeFixed(n, bt.entriesPerNode())
	if _, err := bt.store.writeAt(fixedBuf, n.offset); err != nil {
		return err
	}
	n.dirty = false
	bt.cache.put(n.offset, n)
	return nil
}

func (bt *BTree2) allocEmptyNode() (*node, error) {
	offset, err := bt.store.allocNode()
	if err != nil {
		return nil, err
	}
	n := newNode(offset)
	bt.cache.put(offset, n)
	return n, nil
}

// freeNodeFully releases both a node's side block and its fixed block.
func (bt *BTree2) freeNodeFully(n *node) error {
	if n.keyValueOffset != 0 {
		if err := bt.store.freeBytes(n.keyValueOffset); err != nil {
			return err
		}
	}
	if err := bt.store.freeNode(n.offset); err != nil {
		return err
	}
	bt.cache.drop(n.offset)
	return nil
}

// --- participant implementation (spec §4.2), user-facing trees only ---

func (bt *BTree2) txBegin() error { return nil }

func (bt *BTree2) txCommit() error {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.cache.clear()
	return nil
}

func (bt *BTree2) txAbort() error {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.reloadHeaderLocked()
}
