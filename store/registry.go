package store

import (
	"fmt"
	"sync"
)

// Pool is a process-wide, path-keyed registry of open FileAllocator
// handles (spec §5; supplemented from the original's FileAllocatorRegistry):
// multiple callers within the same process that open the same file
// share one FileAllocator/BufferedFile pair instead of racing two
// independent page caches against each other.
type Pool struct {
	mu      sync.Mutex
	open    map[string]*FileAllocator
	metrics *Metrics
}

// NewPool returns an empty registry. metrics is attached to every
// allocator the pool creates.
func NewPool(metrics *Metrics) *Pool {
	return &Pool{open: make(map[string]*FileAllocator), metrics: metrics}
}

// Get returns the FileAllocator already open for path, or opens it
// (creating a variable-size heap with the given blockSize if the file
// does not yet exist).
func (p *Pool) Get(path string, blockSize uint64) (*FileAllocator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.open[path]; ok {
		return a, nil
	}

	bf, err := OpenBufferedFile(path, p.metrics)
	if err != nil {
		return nil, fmt.Errorf("store: pool open %s: %w", path, err)
	}

	var a *FileAllocator
	if bf.Size() == 0 {
		a, err = CreateFileAllocator(bf, false, blockSize, p.metrics)
	} else {
		a, err = OpenFileAllocator(bf, p.metrics)
	}
	if err != nil {
		return nil, err
	}

	p.open[path] = a
	return a, nil
}

// Flush flushes the allocator registered for path, if any.
func (p *Pool) Flush(path string) error {
	p.mu.Lock()
	a, ok := p.open[path]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return a.Flush()
}

// FlushAll flushes every allocator currently in the pool.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	allocs := make([]*FileAllocator, 0, len(p.open))
	for _, a := range p.open {
		allocs = append(allocs, a)
	}
	p.mu.Unlock()

	for _, a := range allocs {
		if err := a.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and forgets the allocator for path, closing its
// underlying file.
func (p *Pool) Close(path string) error {
	p.mu.Lock()
	a, ok := p.open[path]
	if ok {
		delete(p.open, path)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if err := a.Flush(); err != nil {
		return err
	}
	return a.bf.Close()
}

// Flusher is a scoped RAII-style guard that flushes an allocator's
// header and free-tree node cache when Close is called, for use with
// defer around a batch of operations (spec §5).
type Flusher struct {
	a *FileAllocator
}

// NewFlusher returns a Flusher bound to a.
func NewFlusher(a *FileAllocator) *Flusher {
	return &Flusher{a: a}
}

// Close flushes the bound allocator.
func (f *Flusher) Close() error {
	return f.a.Flush()
}
