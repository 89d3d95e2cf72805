package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/arbordb/arbor/common"
)

// BufferedFile is the page-cache and transaction layer (spec §4,
// Component 2): all reads and writes of the blocks above it pass
// through a map of 4 KiB pages, and a run of writes can be wrapped in
// BeginTransaction/Commit/Abort so that either all of them or none of
// them survive a crash.
type BufferedFile struct {
	mu sync.Mutex

	raw  *rawFile
	path string

	pages map[uint64]*page
	size  uint64
	pos   uint64

	// participants is every object that has ever registered interest in
	// this file's transactions (a FileAllocator, and any BTree2 sharing
	// it). Enlist adds to this list once, at construction/open time; a
	// new transaction is seeded from the whole list so a participant
	// only has to register once, not on every BeginTransaction.
	participants []participant
	tx           *transaction

	metrics *Metrics
}

// OpenBufferedFile opens (creating if necessary) the file at path,
// first replaying or discarding any commit log left behind by a crash
// (spec §4.1): a log with a completion marker is replayed into the
// main file and removed; an incomplete log is removed unread.
func OpenBufferedFile(path string, metrics *Metrics) (*BufferedFile, error) {
	if err := recoverTranslog(path); err != nil {
		return nil, err
	}

	raw, err := openRawFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	size, err := raw.size()
	if err != nil {
		raw.close()
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	}

	bf := &BufferedFile{
		raw:     raw,
		path:    path,
		pages:   make(map[uint64]*page),
		size:    uint64(size),
		metrics: metrics,
	}
	bf.metrics.setFileSize(size)
	return bf, nil
}

func recoverTranslog(path string) error {
	logPath := translogPath(path)
	records, ok, err := readTranslog(logPath)
	if err != nil {
		return fmt.Errorf("store: read log %s: %w", logPath, err)
	}
	if len(records) == 0 && !ok {
		if _, statErr := os.Stat(logPath); statErr == nil {
			Log.Warn().Str("path", logPath).Msg("discarding incomplete commit log")
			return os.Remove(logPath)
		}
		return nil
	}
	if !ok {
		Log.Warn().Str("path", logPath).Msg("discarding incomplete commit log")
		return os.Remove(logPath)
	}

	raw, err := openRawFile(path)
	if err != nil {
		return err
	}
	defer raw.close()

	for _, rec := range records {
		if _, err := raw.writeAt(rec.data, int64(rec.offset)); err != nil {
			return fmt.Errorf("store: replay log record at %d: %w", rec.offset, err)
		}
	}
	if err := raw.sync(); err != nil {
		return err
	}
	Log.Info().Str("path", path).Int("records", len(records)).Msg("replayed commit log")
	return os.Remove(logPath)
}

// fetchPage returns the cached page covering offset, loading it from
// disk on a miss.
func (bf *BufferedFile) fetchPage(base uint64) (*page, error) {
	if p, ok := bf.pages[base]; ok {
		bf.metrics.pageHit()
		return p, nil
	}
	bf.metrics.pageMiss()
	p := newPage(base)
	if base < bf.size {
		n := pageSize
		if remaining := bf.size - base; remaining < uint64(n) {
			n = int(remaining)
		}
		read, err := bf.raw.readAt(p.data[:n], int64(base))
		if err != nil {
			return nil, fmt.Errorf("store: read page at %d: %w", base, err)
		}
		p.length = uint64(read)
	}
	bf.pages[base] = p
	return p, nil
}

// Read copies len(buf) bytes starting at offset into buf, treating any
// byte beyond the logical size as zero only up to Size(); reading past
// Size() is a caller error surfaced as io.EOF-like short read via the
// returned count.
func (bf *BufferedFile) Read(buf []byte, offset uint64) (int, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	total := 0
	for total < len(buf) {
		cur := offset + uint64(total)
		if cur >= bf.size {
			break
		}
		base := pageOffsetOf(cur)
		p, err := bf.fetchPage(base)
		if err != nil {
			return total, err
		}
		within := cur - base
		n := copy(buf[total:], p.data[within:p.length])
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// Write copies buf into the page cache at offset, marking every
// touched page dirty and growing the logical size if the write extends
// past the current end of file.
func (bf *BufferedFile) Write(buf []byte, offset uint64) (int, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	total := 0
	for total < len(buf) {
		cur := offset + uint64(total)
		base := pageOffsetOf(cur)
		p, err := bf.fetchPage(base)
		if err != nil {
			return total, err
		}
		within := cur - base
		n := copy(p.data[within:], buf[total:])
		p.dirty = true
		if within+uint64(n) > p.length {
			p.length = within + uint64(n)
		}
		total += n
		if cur+uint64(n) > bf.size {
			bf.size = cur + uint64(n)
		}
	}
	return total, nil
}

// Seek repositions the file's logical cursor, used by callers that
// prefer stream-style access over explicit offsets.
func (bf *BufferedFile) Seek(offset uint64) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.pos = offset
}

func (bf *BufferedFile) Tell() uint64 {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.pos
}

func (bf *BufferedFile) Size() uint64 {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.size
}

// SetSize truncates or extends the logical size. Pages beyond the new
// size are dropped from the cache; the underlying file is not
// truncated until the next Flush/Commit.
func (bf *BufferedFile) SetSize(n uint64) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.size = n
	for base := range bf.pages {
		if base >= n {
			delete(bf.pages, base)
			continue
		}
		p := bf.pages[base]
		if base+p.length > n {
			p.length = n - base
			p.dirty = true
		}
	}
}

// BeginTransaction opens a new transaction. Only one may be open at a
// time (spec §4.2); a nested call is a TransactionViolation.
func (bf *BufferedFile) BeginTransaction() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if bf.tx != nil {
		return fmt.Errorf("store: transaction already open: %w", common.ErrTransactionViolation)
	}
	bf.tx = newTransaction()
	for _, p := range bf.participants {
		bf.tx.enlist(p)
	}
	if err := bf.tx.begin(); err != nil {
		bf.tx = nil
		return err
	}
	return nil
}

// Enlist registers p as a standing participant in this file's
// transactions (a FileAllocator enlists itself on open/create; a BTree2
// sharing one does the same). Registration is permanent, not scoped to
// whatever transaction happens to be open when Enlist is called — every
// future BeginTransaction seeds its participant set from this list, so
// a participant created before any transaction exists is still notified
// once one starts.
func (bf *BufferedFile) Enlist(p participant) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	for _, existing := range bf.participants {
		if existing == p {
			if bf.tx != nil {
				bf.tx.enlist(p)
			}
			return
		}
	}
	bf.participants = append(bf.participants, p)
	if bf.tx != nil {
		bf.tx.enlist(p)
	}
}

// Commit makes every page written since BeginTransaction durable.
// Dirty pages are written to a side log file and fsynced before any of
// them touch the main file, so a crash mid-commit leaves the main file
// either fully pre-commit or fully post-commit, never in between.
func (bf *BufferedFile) Commit() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.tx == nil {
		return fmt.Errorf("store: commit without transaction: %w", common.ErrTransactionViolation)
	}

	var dirty []*page
	for _, p := range bf.pages {
		if p.dirty {
			dirty = append(dirty, p)
		}
	}

	if len(dirty) > 0 {
		logPath := translogPath(bf.path)
		if err := writeTranslog(logPath, dirty); err != nil {
			return fmt.Errorf("store: commit: %w", err)
		}
		for _, p := range dirty {
			if _, err := bf.raw.writeAt(p.data[:p.length], int64(p.offset)); err != nil {
				return fmt.Errorf("store: commit apply page at %d: %w", p.offset, err)
			}
			bf.metrics.pageWrite()
		}
		if err := bf.raw.truncate(int64(bf.size)); err != nil {
			return fmt.Errorf("store: commit truncate: %w", err)
		}
		if err := bf.raw.sync(); err != nil {
			return fmt.Errorf("store: commit sync: %w", err)
		}
		if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: commit remove log: %w", err)
		}
		for _, p := range dirty {
			p.dirty = false
		}
	}
	bf.metrics.setFileSize(int64(bf.size))

	tx := bf.tx
	bf.tx = nil
	if err := tx.commit(); err != nil {
		return err
	}
	bf.metrics.committed()
	return nil
}

// Abort discards every page written since BeginTransaction and
// notifies participants so their in-memory state reloads from the
// unchanged file.
func (bf *BufferedFile) Abort() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.tx == nil {
		return fmt.Errorf("store: abort without transaction: %w", common.ErrTransactionViolation)
	}

	size, err := bf.raw.size()
	if err != nil {
		return fmt.Errorf("store: abort stat: %w", err)
	}
	bf.size = uint64(size)
	bf.pages = make(map[uint64]*page)

	tx := bf.tx
	bf.tx = nil
	if err := tx.abort(); err != nil {
		return err
	}
	bf.metrics.aborted()
	return nil
}

// Flush persists dirty pages directly, outside of any transaction. It
// is used for the initial header write on Create, where there is
// nothing yet to roll back to.
func (bf *BufferedFile) Flush() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.tx != nil {
		return fmt.Errorf("store: flush during transaction: %w", common.ErrTransactionViolation)
	}
	for _, p := range bf.pages {
		if !p.dirty {
			continue
		}
		if _, err := bf.raw.writeAt(p.data[:p.length], int64(p.offset)); err != nil {
			return fmt.Errorf("store: flush page at %d: %w", p.offset, err)
		}
		p.dirty = false
		bf.metrics.pageWrite()
	}
	if err := bf.raw.truncate(int64(bf.size)); err != nil {
		return fmt.Errorf("store: flush truncate: %w", err)
	}
	if err := bf.raw.sync(); err != nil {
		return fmt.Errorf("store: flush sync: %w", err)
	}
	bf.metrics.setFileSize(int64(bf.size))
	return nil
}

// Close flushes any pending non-transactional writes and closes the
// underlying file. Closing with an open transaction is a caller error.
func (bf *BufferedFile) Close() error {
	bf.mu.Lock()
	if bf.tx != nil {
		bf.mu.Unlock()
		return fmt.Errorf("store: close during transaction: %w", common.ErrTransactionViolation)
	}
	bf.mu.Unlock()

	if err := bf.Flush(); err != nil {
		return err
	}
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.raw.close()
}
