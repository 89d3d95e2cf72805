package store

import "github.com/arbordb/arbor/common"

// Insert with overflow propagation (spec §4.4 "Insertion"): recursive
// descent to a leaf, provisional insert, and — whenever a node now
// holds more than entriesPerNode entries — a split whose median entry
// is promoted to the parent, propagating upward and, if the root
// itself overflows, growing the tree by one level.

// insertResult carries the outcome of insertRecursive back up the
// call stack: whether a new key was added, and if the visited node
// split, what to promote into its parent.
type insertResult struct {
	added         bool
	split         bool
	promotedKey   Key
	promotedValue Value
	newRight      uint64
}

func (bt *BTree2) addLocked(key Key, value Value) (bool, error) {
	if key == nil {
		return false, common.ErrKeyEmpty
	}
	if bt.header.rootOffset == 0 {
		n, err := bt.allocEmptyNode()
		if err != nil {
			return false, err
		}
		n.entries = []nodeEntry{{key: key, value: value}}
		n.dirty = true
		if err := bt.persistNode(n); err != nil {
			return false, err
		}
		bt.header.rootOffset = n.offset
		if err := bt.persistHeader(); err != nil {
			return false, err
		}
		return true, nil
	}

	res, err := bt.insertRecursive(bt.header.rootOffset, key, value)
	if err != nil {
		return false, err
	}
	if !res.added {
		return false, nil
	}
	if res.split {
		newRoot, err := bt.allocEmptyNode()
		if err != nil {
			return false, err
		}
		newRoot.leftChild = bt.header.rootOffset
		newRoot.entries = []nodeEntry{{key: res.promotedKey, value: res.promotedValue, right: res.newRight}}
		newRoot.dirty = true
		if err := bt.persistNode(newRoot); err != nil {
			return false, err
		}
		bt.header.rootOffset = newRoot.offset
		if err := bt.persistHeader(); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (bt *BTree2) insertRecursive(offset uint64, key Key, value Value) (insertResult, error) {
	n, err := bt.loadNode(offset)
	if err != nil {
		return insertResult{}, err
	}

	i, exact := n.search(key)
	if exact {
		return insertResult{added: false}, nil
	}

	if n.isLeaf() {
		n.insertAt(i, nodeEntry{key: key, value: value})
		return bt.finishInsert(n)
	}

	childOffset := n.child(i)
	res, err := bt.insertRecursive(childOffset, key, value)
	if err != nil || !res.added {
		return res, err
	}
	if !res.split {
		return res, nil
	}

	n.insertAt(i, nodeEntry{key: res.promotedKey, value: res.promotedValue, right: res.newRight})
	return bt.finishInsert(n)
}

// finishInsert persists n, splitting it first if the provisional
// insert pushed it past entriesPerNode (spec §4.4's "full" threshold).
func (bt *BTree2) finishInsert(n *node) (insertResult, error) {
	if n.count() <= bt.entriesPerNode() {
		if err := bt.persistNode(n); err != nil {
			return insertResult{}, err
		}
		return insertResult{added: true}, nil
	}

	promoted, right, err := bt.splitFull(n)
	if err != nil {
		return insertResult{}, err
	}
	if err := bt.persistNode(n); err != nil {
		return insertResult{}, err
	}
	if err := bt.persistNode(right); err != nil {
		return insertResult{}, err
	}
	bt.metrics.split()
	return insertResult{
		added:         true,
		split:         true,
		promotedKey:   promoted.key,
		promotedValue: promoted.value,
		newRight:      right.offset,
	}, nil
}

// splitFull splits an overflowing node at its median entry (spec
// §4.4: "split at index E/2; the median entry is promoted, not
// duplicated, to the parent"). n is truncated in place to become the
// left half; the returned node is the newly allocated right half.
func (bt *BTree2) splitFull(n *node) (nodeEntry, *node, error) {
	mid := n.count() / 2
	median := n.entries[mid]

	right, err := bt.allocEmptyNode()
	if err != nil {
		return nodeEntry{}, nil, err
	}
	right.leftChild = median.right
	right.entries = append(right.entries, n.entries[mid+1:]...)
	right.dirty = true

	n.entries = n.entries[:mid]
	n.dirty = true

	return nodeEntry{key: median.key, value: median.value}, right, nil
}
