// Package common holds the small set of types shared between the store
// engine and its CLI/benchmark tooling: the error taxonomy and the
// Stats/Iterator shapes exposed to callers.
package common

import "errors"

var (
	// ErrNotFound is returned by remove-required lookups. Search and
	// Delete report absence through their boolean/option return instead.
	ErrNotFound = errors.New("key not found")

	// ErrBlockCorruption is raised when a block's header and footer
	// disagree, or a magic value mismatches. It poisons the FileAllocator
	// that raised it.
	ErrBlockCorruption = errors.New("block corruption detected")

	// ErrBTreeCorruption is raised on node magic mismatch or an internal
	// invariant violation (e.g. delete from an empty node). Treated the
	// same as ErrBlockCorruption by callers.
	ErrBTreeCorruption = errors.New("btree corruption detected")

	// ErrLogicError covers caller misuse: freeing an already-free block,
	// allocating zero bytes. Stepping an iterator after a mutation of its
	// tree is not detected and does not produce this error.
	ErrLogicError = errors.New("logic error")

	// ErrTransactionViolation covers commit/abort without a current
	// transaction, or beginning one while another is active.
	ErrTransactionViolation = errors.New("transaction violation")

	ErrClosed   = errors.New("store closed")
	ErrKeyEmpty = errors.New("key cannot be empty")
)
