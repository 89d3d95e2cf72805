package store

// Inorder and prefix iteration (spec §4.6): a stack of (node, index)
// frames walks the tree without recursion. An Iterator is a snapshot
// of the tree shape at the time it was created — Add/Delete calls
// against the same tree after that invalidate it.

type iterFrame struct {
	n   *node
	idx int
}

// Iterator yields a tree's entries in ascending key order.
type Iterator struct {
	bt    *BTree2
	stack []*iterFrame
}

// Iterate returns an inorder iterator over the whole tree.
func (bt *BTree2) Iterate() (*Iterator, error) {
	it := &Iterator{bt: bt}
	if err := it.pushSpine(bt.header.rootOffset); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *Iterator) pushSpine(offset uint64) error {
	for offset != 0 {
		n, err := it.bt.loadNode(offset)
		if err != nil {
			return err
		}
		it.stack = append(it.stack, &iterFrame{n: n, idx: 0})
		offset = n.child(0)
	}
	return nil
}

// Next advances the iterator, returning ok=false once exhausted.
func (it *Iterator) Next() (Key, Value, bool, error) {
	for len(it.stack) > 0 {
		top := it.stack[len(it.stack)-1]
		if top.idx >= top.n.count() {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		e := top.n.entries[top.idx]
		rightChild := e.right
		top.idx++
		if rightChild != 0 {
			if err := it.pushSpine(rightChild); err != nil {
				return nil, nil, false, err
			}
		}
		return e.key, e.value, true, nil
	}
	return nil, nil, false, nil
}

// PrefixIterator yields only entries whose key shares prefix's prefix,
// in ascending order, stopping as soon as the prefix run ends.
type PrefixIterator struct {
	*Iterator
	prefix Key
	done   bool
}

// IteratePrefix returns an iterator over the leftmost-to-rightmost run
// of entries matching prefix.
func (bt *BTree2) IteratePrefix(prefix Key) (*PrefixIterator, error) {
	it := &Iterator{bt: bt}
	if err := it.pushSpineFiltered(bt.header.rootOffset, prefix); err != nil {
		return nil, err
	}
	return &PrefixIterator{Iterator: it, prefix: prefix}, nil
}

func (it *Iterator) pushSpineFiltered(offset uint64, prefix Key) error {
	for offset != 0 {
		n, err := it.bt.loadNode(offset)
		if err != nil {
			return err
		}
		i, _ := n.searchPrefix(prefix)
		it.stack = append(it.stack, &iterFrame{n: n, idx: i})
		offset = n.child(i)
	}
	return nil
}

// Next returns the next matching entry, or ok=false once the prefix
// run ends or the tree is exhausted.
func (pi *PrefixIterator) Next() (Key, Value, bool, error) {
	if pi.done {
		return nil, nil, false, nil
	}
	k, v, ok, err := pi.Iterator.Next()
	if err != nil || !ok {
		pi.done = true
		return k, v, ok, err
	}
	if pi.prefix.PrefixCompare(k) != 0 {
		pi.done = true
		return nil, nil, false, nil
	}
	return k, v, true, nil
}
