package store

import "fmt"

// participant is implemented by every sub-object that allocates blocks
// through a BufferedFile's FileAllocator mid-transaction (spec §4.2): a
// FileAllocator itself, and any BTree2 sharing its pool. Begin flushes
// in-memory state to dirty pages so it is captured by the transaction's
// log; Commit clears the dirty/in-flight bookkeeping; Abort discards
// in-memory state and reloads from the (now rolled-back) file.
type participant interface {
	txBegin() error
	txCommit() error
	txAbort() error
}

// transaction tracks the lifecycle of one BufferedFile-scoped commit
// unit (spec §4.2). Only one transaction may be open on a BufferedFile
// at a time; nested Begin calls are a TransactionViolation.
type transaction struct {
	participants []participant
}

func newTransaction() *transaction {
	return &transaction{}
}

// enlist registers p so it receives Begin/Commit/Abort notifications.
// BufferedFile.BeginTransaction calls it for every standing participant
// (a FileAllocator and each user-facing BTree2 enlist once, when they
// are created or opened); BufferedFile.Enlist also calls it when a
// participant registers while a transaction is already open.
func (t *transaction) enlist(p participant) {
	for _, existing := range t.participants {
		if existing == p {
			return
		}
	}
	t.participants = append(t.participants, p)
}

func (t *transaction) begin() error {
	for _, p := range t.participants {
		if err := p.txBegin(); err != nil {
			return fmt.Errorf("store: transaction begin: %w", err)
		}
	}
	return nil
}

func (t *transaction) commit() error {
	for _, p := range t.participants {
		if err := p.txCommit(); err != nil {
			return fmt.Errorf("store: transaction commit: %w", err)
		}
	}
	return nil
}

func (t *transaction) abort() error {
	var first error
	for _, p := range t.participants {
		if err := p.txAbort(); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return fmt.Errorf("store: transaction abort: %w", first)
	}
	return nil
}
