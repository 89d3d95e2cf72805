package store

import (
	"container/list"
	"sync"

	"github.com/cznic/mathutil"
)

// nodePool is a capacity-bounded LRU cache of decoded nodes, the
// in-memory counterpart of the teacher's Config.CacheSize (spec §10.3's
// FixedPoolSize): it is the type of a BTree2's bt.cache, capping how
// many decoded nodes a long-lived tree keeps warm. Eviction here only
// drops a decode-ahead optimization — persistNode always writes
// through immediately, so a cache miss just costs a re-read.
type nodePool struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*list.Element
	order    *list.List
}

type nodePoolEntry struct {
	offset uint64
	n      *node
}

// newNodePool rounds capacity up to the next power of two the way
// file.go's slot-class sizing does (mathutil.BitLen(n-1) to find the
// bit length), so bucket boundaries fall on clean powers of two.
func newNodePool(capacity int) *nodePool {
	capacity = mathutil.Max(capacity, 1)
	rounded := 1 << uint(mathutil.BitLen(capacity-1))
	return &nodePool{
		capacity: rounded,
		entries:  make(map[uint64]*list.Element, rounded),
		order:    list.New(),
	}
}

func (p *nodePool) get(offset uint64) (*node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.entries[offset]
	if !ok {
		return nil, false
	}
	p.order.MoveToFront(el)
	return el.Value.(*nodePoolEntry).n, true
}

func (p *nodePool) put(offset uint64, n *node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.entries[offset]; ok {
		el.Value.(*nodePoolEntry).n = n
		p.order.MoveToFront(el)
		return
	}
	el := p.order.PushFront(&nodePoolEntry{offset: offset, n: n})
	p.entries[offset] = el
	for p.order.Len() > p.capacity {
		oldest := p.order.Back()
		if oldest == nil {
			break
		}
		p.order.Remove(oldest)
		delete(p.entries, oldest.Value.(*nodePoolEntry).offset)
	}
}

func (p *nodePool) drop(offset uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.entries[offset]; ok {
		p.order.Remove(el)
		delete(p.entries, offset)
	}
}

func (p *nodePool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[uint64]*list.Element, p.capacity)
	p.order.Init()
}

func (p *nodePool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}
