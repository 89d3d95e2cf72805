package store

import (
	"path/filepath"
	"testing"

	"github.com/arbordb/arbor/common/testutil"
	"github.com/stretchr/testify/require"
)

// newTestTree builds a fresh allocator + user-facing tree with a small
// per-node entry capacity (4 entries) so a handful of keys is enough to
// force splits and multi-level rebalancing.
func newTestTree(t *testing.T) *BTree2 {
	t.Helper()
	dir := testutil.TempDir(t)
	bf, err := OpenBufferedFile(filepath.Join(dir, "tree.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { bf.Close() })

	a, err := CreateFileAllocator(bf, false, 56, nil)
	require.NoError(t, err)

	bt, err := NewBTree2(a, "StringKey", "BytesValue", nil)
	require.NoError(t, err)
	return bt
}

func TestBTree2AddSearchDelete(t *testing.T) {
	bt := newTestTree(t)

	added, err := bt.Add(NewStringKey("alpha"), NewBytesValue([]byte("1")))
	require.NoError(t, err)
	require.True(t, added)

	v, ok, err := bt.Search(NewStringKey("alpha"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v.(*BytesValue).Data)

	_, ok, err = bt.Search(NewStringKey("missing"))
	require.NoError(t, err)
	require.False(t, ok)

	deleted, err := bt.Delete(NewStringKey("alpha"))
	require.NoError(t, err)
	require.True(t, deleted)

	_, ok, err = bt.Search(NewStringKey("alpha"))
	require.NoError(t, err)
	require.False(t, ok)

	deleted, err = bt.Delete(NewStringKey("alpha"))
	require.NoError(t, err)
	require.False(t, deleted, "deleting an absent key reports false, not an error")
}

func TestBTree2DeletingLastKeyLeavesValidEmptyTree(t *testing.T) {
	bt := newTestTree(t)

	_, err := bt.Add(NewStringKey("only"), NewBytesValue([]byte("1")))
	require.NoError(t, err)

	deleted, err := bt.Delete(NewStringKey("only"))
	require.NoError(t, err)
	require.True(t, deleted)

	require.NotZero(t, bt.header.rootOffset, "deleting the last key must leave a valid empty tree, not a nil root")

	_, ok, err := bt.Search(NewStringKey("only"))
	require.NoError(t, err)
	require.False(t, ok)

	added, err := bt.Add(NewStringKey("again"), NewBytesValue([]byte("2")))
	require.NoError(t, err)
	require.True(t, added, "the emptied root must accept a fresh insert")

	v, ok, err := bt.Search(NewStringKey("again"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v.(*BytesValue).Data)
}

func TestBTree2RejectsDuplicateAdd(t *testing.T) {
	bt := newTestTree(t)

	added, err := bt.Add(NewStringKey("dup"), NewBytesValue([]byte("first")))
	require.NoError(t, err)
	require.True(t, added)

	added, err = bt.Add(NewStringKey("dup"), NewBytesValue([]byte("second")))
	require.NoError(t, err)
	require.False(t, added, "Add must reject an already-present key rather than overwrite it")

	v, ok, err := bt.Search(NewStringKey("dup"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("first"), v.(*BytesValue).Data, "the original value must survive a rejected duplicate Add")
}

func TestBTree2SplitAndMergeAcrossLevels(t *testing.T) {
	bt := newTestTree(t)

	keys := []string{
		"a", "b", "c", "d", "e", "f", "g", "h", "i", "j",
		"k", "l", "m", "n", "o", "p", "q", "r", "s", "t",
	}
	for _, k := range keys {
		added, err := bt.Add(NewStringKey(k), NewBytesValue([]byte(k)))
		require.NoError(t, err)
		require.True(t, added)
	}

	for _, k := range keys {
		v, ok, err := bt.Search(NewStringKey(k))
		require.NoError(t, err)
		require.True(t, ok, "key %q must be found after enough inserts to force splits", k)
		require.Equal(t, []byte(k), v.(*BytesValue).Data)
	}

	// Delete most of them back out, forcing merges/rotations, and
	// confirm the survivors are still reachable.
	for _, k := range keys[:len(keys)-3] {
		deleted, err := bt.Delete(NewStringKey(k))
		require.NoError(t, err)
		require.True(t, deleted)
	}
	for _, k := range keys[len(keys)-3:] {
		v, ok, err := bt.Search(NewStringKey(k))
		require.NoError(t, err)
		require.True(t, ok, "surviving key %q lost after neighboring deletes forced merges", k)
		require.Equal(t, []byte(k), v.(*BytesValue).Data)
	}
	for _, k := range keys[:len(keys)-3] {
		_, ok, err := bt.Search(NewStringKey(k))
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestBTree2IterateInOrder(t *testing.T) {
	bt := newTestTree(t)

	unordered := []string{"banana", "apple", "cherry", "date", "fig", "elderberry"}
	for _, k := range unordered {
		_, err := bt.Add(NewStringKey(k), NewBytesValue([]byte(k)))
		require.NoError(t, err)
	}

	it, err := bt.Iterate()
	require.NoError(t, err)

	var got []string
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, k.(*StringKey).S)
	}
	require.Equal(t, []string{"apple", "banana", "cherry", "date", "elderberry", "fig"}, got)
}

func TestBTree2IteratePrefix(t *testing.T) {
	bt := newTestTree(t)

	all := []string{"app", "apple", "application", "apply", "banana", "bandana"}
	for _, k := range all {
		_, err := bt.Add(NewStringKey(k), NewBytesValue([]byte(k)))
		require.NoError(t, err)
	}

	pi, err := bt.IteratePrefix(NewStringKey("app"))
	require.NoError(t, err)

	var got []string
	for {
		k, _, ok, err := pi.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, k.(*StringKey).S)
	}
	require.Equal(t, []string{"app", "apple", "application", "apply"}, got)
}

func TestBTree2PersistsAcrossReopen(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "tree.db")

	bf, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	a, err := CreateFileAllocator(bf, false, 56, nil)
	require.NoError(t, err)
	bt, err := NewBTree2(a, "StringKey", "BytesValue", nil)
	require.NoError(t, err)
	require.NoError(t, a.SetRootOffset(bt.HeaderOffset()))

	for _, k := range []string{"one", "two", "three", "four", "five"} {
		_, err := bt.Add(NewStringKey(k), NewBytesValue([]byte(k)))
		require.NoError(t, err)
	}
	require.NoError(t, a.Flush())
	require.NoError(t, bf.Close())

	bf2, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	defer bf2.Close()
	a2, err := OpenFileAllocator(bf2, nil)
	require.NoError(t, err)
	bt2, err := OpenBTree2(a2, a2.RootOffset(), nil)
	require.NoError(t, err)

	v, ok, err := bt2.Search(NewStringKey("three"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("three"), v.(*BytesValue).Data)
}
