package store

import (
	"path/filepath"
	"testing"

	"github.com/arbordb/arbor/common/testutil"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, fixed bool, blockSize uint64) (*FileAllocator, *BufferedFile) {
	t.Helper()
	dir := testutil.TempDir(t)
	bf, err := OpenBufferedFile(filepath.Join(dir, "heap.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { bf.Close() })
	a, err := CreateFileAllocator(bf, fixed, blockSize, nil)
	require.NoError(t, err)
	return a, bf
}

func TestFileAllocatorFixedAllocFreeReuse(t *testing.T) {
	a, _ := newTestAllocator(t, true, 64)

	o1, err := a.AllocBTreeNode()
	require.NoError(t, err)
	o2, err := a.AllocBTreeNode()
	require.NoError(t, err)
	require.NotEqual(t, o1, o2)

	require.NoError(t, a.FreeBTreeNode(o1))

	o3, err := a.AllocBTreeNode()
	require.NoError(t, err)
	require.Equal(t, o1, o3, "freed fixed block should be reused before extending the file")
}

func TestFileAllocatorFixedFreeListSurvivesReopen(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "heap.db")

	bf, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	a, err := CreateFileAllocator(bf, true, 64, nil)
	require.NoError(t, err)

	o1, err := a.AllocBTreeNode()
	require.NoError(t, err)
	_, err = a.AllocBTreeNode()
	require.NoError(t, err)
	require.NoError(t, a.FreeBTreeNode(o1))
	require.NoError(t, a.Flush())
	require.NoError(t, bf.Close())

	bf2, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	defer bf2.Close()
	a2, err := OpenFileAllocator(bf2, nil)
	require.NoError(t, err)

	o3, err := a2.AllocBTreeNode()
	require.NoError(t, err)
	require.Equal(t, o1, o3, "free-list head must persist across Flush/reopen")
}

func TestFileAllocatorVariableAllocFree(t *testing.T) {
	a, _ := newTestAllocator(t, false, 256)

	o1, err := a.Alloc(100)
	require.NoError(t, err)
	size1, err := a.GetBlockSize(o1)
	require.NoError(t, err)
	require.Equal(t, uint64(100), size1)

	o2, err := a.Alloc(200)
	require.NoError(t, err)

	require.NoError(t, a.Free(o1))
	freedSize, err := a.GetBlockSize(o1)
	require.NoError(t, err)
	require.Zero(t, freedSize, "a freed block reports size 0")

	// Reallocating a size that fits the freed hole should reuse it
	// rather than extend the file.
	blocksBefore, _, err := a.Verify()
	require.NoError(t, err)
	o3, err := a.Alloc(90)
	require.NoError(t, err)
	require.Equal(t, o1, o3)
	blocksAfter, _, err := a.Verify()
	require.NoError(t, err)
	require.Equal(t, blocksBefore, blocksAfter, "best-fit reuse must not grow the block count")

	require.NoError(t, a.Free(o2))
	require.NoError(t, a.Free(o3))
}

func TestFileAllocatorFreeCoalescesNeighbors(t *testing.T) {
	a, _ := newTestAllocator(t, false, 256)

	o1, err := a.Alloc(64)
	require.NoError(t, err)
	o2, err := a.Alloc(64)
	require.NoError(t, err)
	o3, err := a.Alloc(64)
	require.NoError(t, err)

	_, _, err = a.Verify()
	require.NoError(t, err)

	require.NoError(t, a.Free(o1))
	require.NoError(t, a.Free(o3))
	require.NoError(t, a.Free(o2))

	_, _, err = a.Verify()
	require.NoError(t, err)
	merged, err := a.getBlockInfo(o1)
	require.NoError(t, err)
	require.True(t, merged.free())
	require.Equal(t, uint64(3*64+2*blockOverhead), merged.size, "three adjacent frees should coalesce into one free block")
}

func TestFileAllocatorFreeAtEndOfHeapTruncates(t *testing.T) {
	a, bf := newTestAllocator(t, false, 256)

	o1, err := a.Alloc(64)
	require.NoError(t, err)
	sizeAfterAlloc := bf.Size()

	require.NoError(t, a.Free(o1))
	require.Less(t, bf.Size(), sizeAfterAlloc, "freeing the last block in the heap truncates the file")
}

func TestFileAllocatorDoubleFreePoisons(t *testing.T) {
	a, _ := newTestAllocator(t, false, 256)
	o1, err := a.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, a.Free(o1))
	err = a.Free(o1)
	require.Error(t, err)

	// The allocator is now poisoned; further calls fail fast.
	_, err = a.Alloc(64)
	require.Error(t, err)
}

// TestFileAllocatorFreeTreeGrowsPastSingleEntry frees enough
// non-adjacent blocks to push the internal free-space tree's root node
// from one entry to several, forcing its own side block to grow. This
// used to double-free: persistNode freed the free tree's old side block
// before reinserting the very entry that triggered the growth, poisoning
// the allocator (errDoubleFree) on the first non-trivial free workload.
func TestFileAllocatorFreeTreeGrowsPastSingleEntry(t *testing.T) {
	a, _ := newTestAllocator(t, false, 256)

	var keep, drop []uint64
	for i := 0; i < 12; i++ {
		o, err := a.Alloc(48)
		require.NoError(t, err)
		if i%2 == 0 {
			drop = append(drop, o)
		} else {
			keep = append(keep, o)
		}
	}

	// Freeing every other block leaves each freed block flanked by still
	// allocated neighbors, so none of them coalesce: the free tree ends
	// up with several distinct (size, offset) entries instead of one.
	for _, o := range drop {
		require.NoError(t, a.Free(o))
	}

	_, _, err := a.Verify()
	require.NoError(t, err)

	for _, o := range keep {
		size, err := a.GetBlockSize(o)
		require.NoError(t, err)
		require.Equal(t, uint64(48), size)
	}
}

func TestFileAllocatorVerifyDetectsConsistentHeap(t *testing.T) {
	a, _ := newTestAllocator(t, false, 256)
	for i := 0; i < 20; i++ {
		_, err := a.Alloc(uint64(40 + i))
		require.NoError(t, err)
	}
	blocks, used, err := a.Verify()
	require.NoError(t, err)
	require.Greater(t, blocks, 0)
	require.Greater(t, used, uint64(0))
}
