// Package store is a single-file, transactional storage engine: a
// free-space allocator (FileAllocator) managing variable- and fixed-size
// blocks inside one host file, and a persistent B-Tree (BTree2) built on
// top of it that serves both user data and the allocator's own free-list
// index.
//
// A buffered file layer (BufferedFile) with page caching and an explicit
// transaction protocol sits beneath both, making multi-block commits
// atomic with respect to process crashes via a side log file.
//
// The package favors one big, entangled unit over many small ones on
// purpose: the allocator stores its free list in a BTree2 whose nodes are
// themselves allocator blocks whose lifetime is bound to transactions.
package store
