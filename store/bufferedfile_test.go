package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arbordb/arbor/common/testutil"
	"github.com/stretchr/testify/require"
)

// fakeParticipant records which transaction callbacks it received, for
// testing BufferedFile's enlistment bookkeeping in isolation from a
// real FileAllocator.
type fakeParticipant struct {
	begins, commits, aborts int
}

func (f *fakeParticipant) txBegin() error  { f.begins++; return nil }
func (f *fakeParticipant) txCommit() error { f.commits++; return nil }
func (f *fakeParticipant) txAbort() error  { f.aborts++; return nil }

func TestBufferedFileEnlistBeforeFirstTransaction(t *testing.T) {
	dir := testutil.TempDir(t)
	bf, err := OpenBufferedFile(filepath.Join(dir, "f.db"), nil)
	require.NoError(t, err)
	defer bf.Close()

	p := &fakeParticipant{}
	bf.Enlist(p)

	require.NoError(t, bf.BeginTransaction())
	require.Equal(t, 1, p.begins, "a participant registered before any transaction existed must still be seeded into the first one")
	require.NoError(t, bf.Commit())
	require.Equal(t, 1, p.commits)

	require.NoError(t, bf.BeginTransaction())
	require.Equal(t, 2, p.begins, "a standing participant is re-notified on every subsequent transaction")
	require.NoError(t, bf.Abort())
	require.Equal(t, 1, p.aborts)
}

func TestBufferedFileEnlistIsIdempotent(t *testing.T) {
	dir := testutil.TempDir(t)
	bf, err := OpenBufferedFile(filepath.Join(dir, "f.db"), nil)
	require.NoError(t, err)
	defer bf.Close()

	p := &fakeParticipant{}
	bf.Enlist(p)
	bf.Enlist(p)
	bf.Enlist(p)

	require.NoError(t, bf.BeginTransaction())
	require.Equal(t, 1, p.begins, "enlisting the same participant repeatedly must not duplicate its callbacks")
	require.NoError(t, bf.Commit())
}

func TestBufferedFileBeginTransactionRejectsNesting(t *testing.T) {
	dir := testutil.TempDir(t)
	bf, err := OpenBufferedFile(filepath.Join(dir, "f.db"), nil)
	require.NoError(t, err)
	defer bf.Close()

	require.NoError(t, bf.BeginTransaction())
	err = bf.BeginTransaction()
	require.Error(t, err)
	require.NoError(t, bf.Abort())
}

func TestBufferedFileCommitDurableAcrossReopen(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "f.db")

	bf, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)

	require.NoError(t, bf.BeginTransaction())
	payload := []byte("durable payload")
	_, err = bf.Write(payload, 0)
	require.NoError(t, err)
	require.NoError(t, bf.Commit())
	require.NoError(t, bf.Close())

	bf2, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	defer bf2.Close()

	got := make([]byte, len(payload))
	n, err := bf2.Read(got, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, got)

	_, statErr := os.Stat(translogPath(path))
	require.True(t, os.IsNotExist(statErr), "a successful commit must remove its log file")
}

func TestBufferedFileAbortRollsBackInMemoryWrites(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "f.db")

	bf, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	defer bf.Close()

	require.NoError(t, bf.BeginTransaction())
	committed := []byte("before")
	_, err = bf.Write(committed, 0)
	require.NoError(t, err)
	require.NoError(t, bf.Commit())

	require.NoError(t, bf.BeginTransaction())
	_, err = bf.Write([]byte("AFTER!"), 0)
	require.NoError(t, err)
	require.NoError(t, bf.Abort())

	got := make([]byte, len(committed))
	_, err = bf.Read(got, 0)
	require.NoError(t, err)
	require.Equal(t, committed, got, "Abort must discard writes made inside the aborted transaction")
}

func TestBufferedFileCloseRejectsOpenTransaction(t *testing.T) {
	dir := testutil.TempDir(t)
	bf, err := OpenBufferedFile(filepath.Join(dir, "f.db"), nil)
	require.NoError(t, err)

	require.NoError(t, bf.BeginTransaction())
	err = bf.Close()
	require.Error(t, err)
	require.NoError(t, bf.Abort())
	require.NoError(t, bf.Close())
}

func TestRecoverTranslogReplaysCompletedLog(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "f.db")

	bf, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, bf.Close())

	// Simulate a crash between the log fsync and the log's removal: a
	// fully-written, completed log is left behind with no corresponding
	// write ever applied to the main file.
	p := &page{offset: 0, length: pageSize}
	copy(p.data[:], []byte("replay-me"))
	require.NoError(t, writeTranslog(translogPath(path), []*page{p}))

	bf2, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	defer bf2.Close()

	got := make([]byte, len("replay-me"))
	_, err = bf2.Read(got, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("replay-me"), got, "OpenBufferedFile must replay a completed log left behind by a crash")

	_, statErr := os.Stat(translogPath(path))
	require.True(t, os.IsNotExist(statErr), "a replayed log must be removed")
}

func TestRecoverTranslogDiscardsIncompleteLog(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "f.db")

	bf, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, bf.Close())

	// An incomplete log (header but no completion marker) must be
	// discarded unread, leaving the main file untouched.
	logPath := translogPath(path)
	require.NoError(t, os.WriteFile(logPath, []byte("ABLG\x01\x00\x00\x00garbage"), 0o644))

	bf2, err := OpenBufferedFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, bf2.Close())

	_, statErr := os.Stat(logPath)
	require.True(t, os.IsNotExist(statErr), "an incomplete log must be removed without being applied")
}
