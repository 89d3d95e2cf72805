package store

import (
	"fmt"
	"sync"

	"github.com/arbordb/arbor/common"
)

// allocatorHeaderOffset is the fixed location of the FileAllocator
// header, and blocksStart is where the first block begins (spec §3.1).
const (
	allocatorHeaderOffset = 0
	blocksStart           = allocatorHeaderOffset + allocatorHeaderSize
)

// FileAllocator is the free-space allocator (spec §2 component 5/6):
// it manages variable- and fixed-size blocks within a single
// BufferedFile, with linear block navigation, heap-integrity checks,
// and (for a variable-size heap) an internal free-space B-Tree used to
// find a best-fit free block in O(log n).
type FileAllocator struct {
	mu sync.Mutex

	bf     *BufferedFile
	header allocatorHeader

	// freeTree indexes free variable blocks by (size, offset). Nil for
	// a fixed-mode allocator, which has no variable heap.
	freeTree *BTree2

	metrics *Metrics

	poisoned error // set on BlockCorruption/BTreeCorruption; latches the allocator

	// inFreeTreeOp is set while the internal free-space B-Tree is
	// allocating or freeing one of its own side blocks. It short-circuits
	// the best-fit search in allocVariableLocked to a plain file-extend,
	// breaking the recursion that would otherwise occur when the free
	// tree needs space to record its own bookkeeping (spec §4.5's
	// self-reference closure covers node allocation; this extends the
	// same non-recursion guarantee to the free tree's side blocks).
	inFreeTreeOp bool
}

// CreateFileAllocator initializes a brand-new heap file. fixed selects
// whether this allocator serves only fixed-size blocks of blockSize
// (a dedicated node pool) or a general variable-size heap with an
// internal free-space B-Tree whose nodes are blockSize bytes each.
func CreateFileAllocator(bf *BufferedFile, fixed bool, blockSize uint64, metrics *Metrics) (*FileAllocator, error) {
	a := &FileAllocator{
		bf:      bf,
		metrics: metrics,
		header: allocatorHeader{
			magic:     allocatorMagic,
			blockSize: blockSize,
		},
	}
	if fixed {
		a.header.flags |= allocatorFlagFixed
	}
	bf.Enlist(a)
	bf.SetSize(blocksStart)
	if err := a.writeHeader(); err != nil {
		return nil, err
	}
	if err := bf.Flush(); err != nil {
		return nil, err
	}
	if !fixed {
		a.mu.Lock()
		ft, err := createBTree2(internalNodeStore{a}, "sizeOffsetKey", "emptyValue", defaultFreeTreeEntries(blockSize), true, metrics)
		a.mu.Unlock()
		if err != nil {
			return nil, err
		}
		a.freeTree = ft
		a.header.btreeOffset = ft.HeaderOffset()
		if err := a.writeHeader(); err != nil {
			return nil, err
		}
		if err := bf.Flush(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// defaultFreeTreeEntries picks the largest entriesPerNode whose
// nodeFootprint fits in blockSize (an exact match when blockSize minus
// nodeFixedHeaderSize is a multiple of nodeEntrySize), since every
// fixed allocation in this file, including the free tree's own nodes,
// is exactly header.blockSize bytes (spec §4.5).
func defaultFreeTreeEntries(blockSize uint64) int {
	e := (int(blockSize) - nodeFixedHeaderSize) / nodeEntrySize
	if e < 1 {
		e = 1
	}
	return e
}

// OpenFileAllocator reads an existing heap's header and, for a
// variable-size heap, opens its internal free-space B-Tree.
func OpenFileAllocator(bf *BufferedFile, metrics *Metrics) (*FileAllocator, error) {
	a := &FileAllocator{bf: bf, metrics: metrics}
	bf.Enlist(a)
	if err := a.readHeader(); err != nil {
		return nil, err
	}
	if !a.fixed() {
		a.mu.Lock()
		ft, err := openBTree2(internalNodeStore{a}, a.header.btreeOffset, true, metrics)
		a.mu.Unlock()
		if err != nil {
			return nil, err
		}
		a.freeTree = ft
	}
	return a, nil
}

const allocatorFlagFixed uint32 = 1 << 0

func (a *FileAllocator) fixed() bool { return a.header.flags&allocatorFlagFixed != 0 }

// BlockSize returns the file's single fixed-block footprint.
func (a *FileAllocator) BlockSize() uint64 { return a.header.blockSize }

func (a *FileAllocator) writeHeader() error {
	buf := encodeAllocatorHeader(a.header)
	_, err := a.bf.Write(buf, allocatorHeaderOffset)
	return err
}

func (a *FileAllocator) readHeader() error {
	buf := make([]byte, allocatorHeaderSize)
	if _, err := a.bf.Read(buf, allocatorHeaderOffset); err != nil {
		return fmt.Errorf("store: read allocator header: %w", err)
	}
	h, err := decodeAllocatorHeader(buf)
	if err != nil {
		return a.poison(err)
	}
	a.header = h
	return nil
}

// RootOffset and SetRootOffset expose the allocator header's single
// opaque user slot (spec §4.3: get_root_offset/set_root_offset).
func (a *FileAllocator) RootOffset() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.header.rootOffset
}

func (a *FileAllocator) SetRootOffset(offset uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.poisoned != nil {
		return a.poisoned
	}
	a.header.rootOffset = offset
	return a.writeHeader()
}

func (a *FileAllocator) checkHealthy() error {
	if a.poisoned != nil {
		return fmt.Errorf("store: allocator poisoned: %w", a.poisoned)
	}
	return nil
}

func (a *FileAllocator) poison(err error) error {
	Log.Error().Err(err).Msg("allocator poisoned")
	a.poisoned = err
	return err
}

// readBlockHeader and readBlockFooter load and validate a block's
// header/footer at the given offsets, poisoning the allocator on a
// BlockCorruption mismatch (spec §4.3 invariant).
func (a *FileAllocator) readBlockHeader(headerOffset uint64) (blockHeader, error) {
	buf := make([]byte, blockHeaderSize)
	if _, err := a.bf.Read(buf, headerOffset); err != nil {
		return blockHeader{}, err
	}
	h, err := decodeBlockHeader(buf)
	if err != nil {
		return blockHeader{}, a.poison(err)
	}
	return h, nil
}

func (a *FileAllocator) readBlockFooter(footerOffset uint64) (blockFooter, error) {
	buf := make([]byte, blockFooterSize)
	if _, err := a.bf.Read(buf, footerOffset); err != nil {
		return blockFooter{}, err
	}
	f, err := decodeBlockFooter(buf)
	if err != nil {
		return blockFooter{}, a.poison(err)
	}
	return f, nil
}

// getBlockInfo loads header and footer for the block at headerOffset
// and checks the header==footer invariant (spec §4.3).
func (a *FileAllocator) getBlockInfo(headerOffset uint64) (blockHeader, error) {
	h, err := a.readBlockHeader(headerOffset)
	if err != nil {
		return blockHeader{}, err
	}
	f, err := a.readBlockFooter(blockFooterOffset(headerOffset, h.size))
	if err != nil {
		return blockHeader{}, err
	}
	if f.flags != h.flags || f.size != h.size {
		return blockHeader{}, a.poison(fmt.Errorf("store: header/footer mismatch at %d: %w", headerOffset, common.ErrBlockCorruption))
	}
	return h, nil
}

// GetBlockSize returns the block's payload size, or 0 if it is free
// (spec §4.3: "useful for testing").
func (a *FileAllocator) GetBlockSize(offset uint64) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, err := a.getBlockInfo(offset)
	if err != nil {
		return 0, err
	}
	if h.free() {
		return 0, nil
	}
	return h.size, nil
}

func (a *FileAllocator) writeBlockHeaderFooter(headerOffset uint64, h blockHeader) error {
	hbuf := encodeBlockHeader(h)
	if _, err := a.bf.Write(hbuf, headerOffset); err != nil {
		return err
	}
	fbuf := encodeBlockFooter(blockFooter{flags: h.flags, size: h.size})
	if _, err := a.bf.Write(fbuf, blockFooterOffset(headerOffset, h.size)); err != nil {
		return err
	}
	return nil
}

// isFirst and isLast probe block boundaries (spec §4.3: "return false
// safely at boundaries").
func (a *FileAllocator) isFirst(headerOffset uint64) bool {
	return headerOffset <= blocksStart
}

func (a *FileAllocator) isLast(headerOffset uint64, h blockHeader) bool {
	next := blockNextOffset(headerOffset, h)
	return next >= a.bf.Size()
}

// next returns the header offset and header of the block following the
// one at headerOffset, or ok=false at the end of the heap.
func (a *FileAllocator) next(headerOffset uint64, h blockHeader) (uint64, blockHeader, bool, error) {
	if a.isLast(headerOffset, h) {
		return 0, blockHeader{}, false, nil
	}
	nextOffset := blockNextOffset(headerOffset, h)
	nh, err := a.getBlockInfo(nextOffset)
	if err != nil {
		return 0, blockHeader{}, false, err
	}
	return nextOffset, nh, true, nil
}

// prev returns the header offset and header of the block preceding the
// one at headerOffset, or ok=false at the start of the heap.
func (a *FileAllocator) prev(headerOffset uint64) (uint64, blockHeader, bool, error) {
	if a.isFirst(headerOffset) {
		return 0, blockHeader{}, false, nil
	}
	footerOffset := blockPrevFooterOffset(headerOffset)
	f, err := a.readBlockFooter(footerOffset)
	if err != nil {
		return 0, blockHeader{}, false, err
	}
	prevHeaderOffset := blockPrevHeaderOffset(footerOffset, f.size)
	ph, err := a.getBlockInfo(prevHeaderOffset)
	if err != nil {
		return 0, blockHeader{}, false, err
	}
	return prevHeaderOffset, ph, true, nil
}

// Verify walks every block in the heap linearly, checking the
// header/footer invariant, and returns the block count and total
// payload bytes in use (spec §8's structural checks, exposed as an
// operator-facing consistency check — supplements the spec's testable
// properties with a callable API, per original_source's AllocStats).
func (a *FileAllocator) Verify() (blocks int, usedBytes uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkHealthy(); err != nil {
		return 0, 0, err
	}

	offset := uint64(blocksStart)
	for offset < a.bf.Size() {
		h, err := a.getBlockInfo(offset)
		if err != nil {
			return blocks, usedBytes, err
		}
		blocks++
		if !h.free() {
			usedBytes += h.size
		}
		offset = blockNextOffset(offset, h)
	}
	if offset != a.bf.Size() {
		return blocks, usedBytes, a.poison(fmt.Errorf("store: heap does not terminate at file size: %w", common.ErrBlockCorruption))
	}
	return blocks, usedBytes, nil
}

// Flush persists the allocator's header and (if present) drops the
// free-space B-Tree's node cache, forcing a reload on next access
// (spec §4.4 "Persistence": "A global Flush() drops all cached nodes").
func (a *FileAllocator) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writeHeader(); err != nil {
		return err
	}
	if a.freeTree != nil {
		a.freeTree.Flush()
	}
	return nil
}

// --- participant implementation (spec §4.2) ---

func (a *FileAllocator) txBegin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writeHeader()
}

func (a *FileAllocator) txCommit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writeHeader()
}

func (a *FileAllocator) txAbort() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.readHeader(); err != nil {
		return err
	}
	if a.freeTree != nil {
		a.freeTree.Flush()
	}
	return nil
}
