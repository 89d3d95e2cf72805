package main

import (
	"fmt"
	"sync/atomic"

	"github.com/arbordb/arbor/common"
	"github.com/arbordb/arbor/store"
)

// btreeEngine adapts a single BTree2/FileAllocator pair to the narrow
// []byte-keyed surface the CLI subcommands and the benchmark harness
// drive (store's own vocabulary is Add/Search/Delete over typed
// Key/Value, not Put/Get/Delete over bytes).
type btreeEngine struct {
	bf      *store.BufferedFile
	alloc   *store.FileAllocator
	tree    *store.BTree2
	metrics *store.Metrics

	writeCount atomic.Int64
	readCount  atomic.Int64
}

// openEngine creates path's heap file if it doesn't exist yet, or opens
// it and reopens the tree recorded at the allocator's root offset.
func openEngine(path string, cfg store.Config, metrics *store.Metrics) (*btreeEngine, error) {
	bf, err := store.OpenBufferedFile(path, metrics)
	if err != nil {
		return nil, err
	}

	blockSize := uint64(cfg.FixedBlockSize)
	if blockSize == 0 {
		blockSize = 4096
	}

	var alloc *store.FileAllocator
	var tree *store.BTree2

	if bf.Size() == 0 {
		alloc, err = store.CreateFileAllocator(bf, false, blockSize, metrics)
		if err != nil {
			return nil, err
		}
		tree, err = store.NewBTree2(alloc, "StringKey", "BytesValue", metrics)
		if err != nil {
			return nil, err
		}
		if err := alloc.SetRootOffset(tree.HeaderOffset()); err != nil {
			return nil, err
		}
		if err := bf.Flush(); err != nil {
			return nil, err
		}
	} else {
		alloc, err = store.OpenFileAllocator(bf, metrics)
		if err != nil {
			return nil, err
		}
		tree, err = store.OpenBTree2(alloc, alloc.RootOffset(), metrics)
		if err != nil {
			return nil, err
		}
	}

	if cfg.FixedPoolSize > 0 {
		tree.SetCacheCapacity(cfg.FixedPoolSize)
	}

	return &btreeEngine{bf: bf, alloc: alloc, tree: tree, metrics: metrics}, nil
}

func (e *btreeEngine) Close() error {
	return e.bf.Close()
}

// withTransaction wraps fn in a BeginTransaction/Commit pair, aborting
// on any error so a failed write never leaves a partial mutation
// visible (spec §4.2).
func (e *btreeEngine) withTransaction(fn func() error) error {
	if err := e.bf.BeginTransaction(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if abortErr := e.bf.Abort(); abortErr != nil {
			return fmt.Errorf("%w (abort also failed: %v)", err, abortErr)
		}
		return err
	}
	return e.bf.Commit()
}

func (e *btreeEngine) Put(key, value []byte) error {
	k := store.NewStringKey(string(key))
	v := store.NewBytesValue(append([]byte(nil), value...))
	return e.withTransaction(func() error {
		added, err := e.tree.Add(k, v)
		if err != nil {
			return err
		}
		if !added {
			if _, err := e.tree.Delete(k); err != nil {
				return err
			}
			_, err := e.tree.Add(k, v)
			return err
		}
		e.writeCount.Add(1)
		return nil
	})
}

func (e *btreeEngine) Get(key []byte) ([]byte, error) {
	k := store.NewStringKey(string(key))
	v, ok, err := e.tree.Search(k)
	if err != nil {
		return nil, err
	}
	e.readCount.Add(1)
	if !ok {
		return nil, common.ErrNotFound
	}
	bv := v.(*store.BytesValue)
	return bv.Data, nil
}

func (e *btreeEngine) Delete(key []byte) error {
	k := store.NewStringKey(string(key))
	return e.withTransaction(func() error {
		found, err := e.tree.Delete(k)
		if err != nil {
			return err
		}
		if !found {
			return common.ErrNotFound
		}
		return nil
	})
}

func (e *btreeEngine) Sync() error {
	return e.alloc.Flush()
}

func (e *btreeEngine) Stats() common.Stats {
	_, used, err := e.alloc.Verify()
	stats := common.Stats{
		WriteCount: e.writeCount.Load(),
		ReadCount:  e.readCount.Load(),
		SpaceAmp:   1.0,
	}
	if err == nil && used > 0 {
		stats.TotalDiskSize = int64(e.bf.Size())
		if it, itErr := e.tree.Iterate(); itErr == nil {
			for {
				_, _, ok, nextErr := it.Next()
				if nextErr != nil || !ok {
					break
				}
				stats.NumKeys++
			}
		}
		stats.SpaceAmp = float64(e.bf.Size()) / float64(used)
	}
	return stats
}

// byteIterator adapts a PrefixIterator (or a full Iterate() when prefix
// is empty) to common.Iterator so the CLI's "iterate" subcommand and
// the shell's iterate verb share one code path.
type byteIterator struct {
	pi      *store.PrefixIterator
	full    *store.Iterator
	key     []byte
	value   []byte
	err     error
}

func newByteIterator(e *btreeEngine, prefix string) (*byteIterator, error) {
	if prefix == "" {
		it, err := e.tree.Iterate()
		if err != nil {
			return nil, err
		}
		return &byteIterator{full: it}, nil
	}
	pi, err := e.tree.IteratePrefix(store.NewStringKey(prefix))
	if err != nil {
		return nil, err
	}
	return &byteIterator{pi: pi}, nil
}

func (it *byteIterator) Next() bool {
	var k store.Key
	var v store.Value
	var ok bool
	if it.full != nil {
		k, v, ok, it.err = it.full.Next()
	} else {
		k, v, ok, it.err = it.pi.Next()
	}
	if it.err != nil || !ok {
		return false
	}
	it.key = []byte(k.(*store.StringKey).S)
	it.value = v.(*store.BytesValue).Data
	return true
}

func (it *byteIterator) Key() []byte   { return it.key }
func (it *byteIterator) Value() []byte { return it.value }
func (it *byteIterator) Error() error  { return it.err }
func (it *byteIterator) Close() error  { return nil }
