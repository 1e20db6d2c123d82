// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package journal implements the transaction journal (component E of
// the balance engine): it orders every transaction the engine has ever
// seen, tracks each one's mined/unmined state, and remembers the
// per-scope ownership view used to compute that transaction's last
// applied delta so the engine can invert it on Unconfirm or Erase.
//
// The state machine mirrors the one wtxmgr drives across
// insertMinedTx, insertMemPoolTx and rollbackTransaction: a transaction
// moves between pending and confirmed any number of times before
// reaching the terminal, re-insertable erased state.
package journal

import (
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/hnswallet/walletcore/balance"
	"github.com/hnswallet/walletcore/chainview"
)

// State is the journal's view of a transaction's lifecycle position.
type State int

const (
	// StatePending means the transaction is known but not confirmed in
	// any block.
	StatePending State = iota

	// StateConfirmed means the transaction is mined into a block.
	StateConfirmed

	// StateErased means the transaction was removed (zapped or
	// invalidated) while pending. It is re-insertable.
	StateErased
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateErased:
		return "erased"
	default:
		return "unknown"
	}
}

// OutputRef names one output of a journaled transaction, used to answer
// "which transactions touch this script hash" for discovery.
type OutputRef struct {
	TxHash chainhash.Hash
	Index  uint32
}

// Entry is everything the journal remembers about one transaction.
type Entry struct {
	Tx           chainview.Tx
	State        State
	Height       int32 // -1 if pending or erased
	IndexInBlock int

	// FirstSeen is the time the transaction first entered the journal
	// pending, used by Zap to find mempool transactions older than a
	// caller-supplied cutoff. It is left zero for a transaction that
	// entered the journal through a confirmation rather than through
	// OnInsertPending; PendingBefore never returns such an entry.
	FirstSeen time.Time

	// insertTouches holds, per scope, the ownership view whose
	// InsertPending legs have been applied. It is created the first
	// time that scope ever sees this transaction, whether via a plain
	// InsertPending or the insert half of a confirmed-insert, and a
	// later Confirm never replaces it. Later incremental inserts and
	// retroactive credits merge into it, so Erase inverts every
	// InsertPending leg ever applied, regardless of how many times the
	// transaction has since been confirmed and unconfirmed.
	insertTouches map[balance.Scope]balance.TxTouch

	// confirmTouches holds, per scope, the ownership view recorded the
	// most recent time that scope saw this transaction confirmed. It
	// is overwritten on every Confirm (retroactive credits found while
	// confirmed are merged in) so Unconfirm always inverts the delta
	// the last Confirm, plus those credits, actually applied.
	confirmTouches map[balance.Scope]balance.TxTouch
}

// TouchedScopes returns every scope that has ever touched this entry,
// the union of its insert and confirm history, used by Zap and Erase
// to know which scopes to invert without caring which half recorded
// them.
func (e *Entry) TouchedScopes() []balance.Scope {
	seen := make(map[balance.Scope]struct{}, len(e.insertTouches))
	var scopes []balance.Scope
	for s := range e.insertTouches {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			scopes = append(scopes, s)
		}
	}
	for s := range e.confirmTouches {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// Journal is the concurrency-safe, in-memory transaction journal for a
// single wallet.
type Journal struct {
	mtx          sync.RWMutex
	entries      map[chainhash.Hash]*Entry
	byScriptHash map[[32]byte][]OutputRef
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{
		entries:      make(map[chainhash.Hash]*Entry),
		byScriptHash: make(map[[32]byte][]OutputRef),
	}
}

func (j *Journal) indexScriptHashesLocked(tx chainview.Tx) {
	for i, out := range tx.Outputs {
		ref := OutputRef{TxHash: tx.Hash, Index: uint32(i)}
		j.byScriptHash[out.ScriptHash] = append(j.byScriptHash[out.ScriptHash], ref)
	}
}

// Observe records the full view of tx, indexing every output's script
// hash so a later gap-limit advance can find transactions that touch a
// newly in-window address even though none of their outputs were
// recognized as owned at the time they were seen.
//
// Observe is idempotent for a transaction already known in pending or
// confirmed state. A transaction previously erased is, per the terminal
// erased state's re-insertability, treated as freshly absent: its entry
// is reset to pending with an empty touch set.
func (j *Journal) Observe(tx chainview.Tx) *Entry {
	j.mtx.Lock()
	defer j.mtx.Unlock()

	if e, ok := j.entries[tx.Hash]; ok && e.State != StateErased {
		return e
	}

	e := &Entry{
		Tx:             tx,
		State:          StatePending,
		Height:         -1,
		insertTouches:  make(map[balance.Scope]balance.TxTouch),
		confirmTouches: make(map[balance.Scope]balance.TxTouch),
	}
	j.entries[tx.Hash] = e
	j.indexScriptHashesLocked(tx)
	return e
}

// Get returns the entry recorded for hash, if any.
func (j *Journal) Get(hash chainhash.Hash) (*Entry, bool) {
	j.mtx.RLock()
	defer j.mtx.RUnlock()

	e, ok := j.entries[hash]
	return e, ok
}

// LookupByScriptHash returns every output reference journaled against
// sh, across every transaction ever observed regardless of ownership at
// observation time.
func (j *Journal) LookupByScriptHash(sh [32]byte) []OutputRef {
	j.mtx.RLock()
	defer j.mtx.RUnlock()

	refs := j.byScriptHash[sh]
	out := make([]OutputRef, len(refs))
	copy(out, refs)
	return out
}

func mergeTouch(existing balance.TxTouch, ins []balance.OwnedInput, outs []balance.OwnedOutput) balance.TxTouch {
	merged := balance.TxTouch{
		NewTx:        existing.NewTx,
		OwnedInputs:  make([]balance.OwnedInput, 0, len(existing.OwnedInputs)+len(ins)),
		OwnedOutputs: make([]balance.OwnedOutput, 0, len(existing.OwnedOutputs)+len(outs)),
	}
	merged.OwnedInputs = append(merged.OwnedInputs, existing.OwnedInputs...)
	merged.OwnedInputs = append(merged.OwnedInputs, ins...)
	merged.OwnedOutputs = append(merged.OwnedOutputs, existing.OwnedOutputs...)
	merged.OwnedOutputs = append(merged.OwnedOutputs, outs...)
	return merged
}

// TouchInsert records the incremental ins/outs scope sees newly applied
// while hash is pending, and returns the touch the caller should feed to
// InsertPending to compute just that increment. The first call for a
// scope creates its insert record with NewTx true; every later call
// (e.g. a retroactive credit discovered while the transaction is still
// pending) merges the new ins/outs into the cumulative record — used by
// TouchErase to invert everything ever applied — while reporting
// NewTx false, since the transaction was already counted for scope.
func (j *Journal) TouchInsert(hash chainhash.Hash, scope balance.Scope, ins []balance.OwnedInput, outs []balance.OwnedOutput) (balance.TxTouch, error) {
	j.mtx.Lock()
	defer j.mtx.Unlock()

	e, ok := j.entries[hash]
	if !ok {
		return balance.TxTouch{}, journalError(ErrTxNotFound, "no journal entry for tx", nil)
	}

	existing, has := e.insertTouches[scope]
	if !has {
		touch := balance.TxTouch{NewTx: true, OwnedInputs: ins, OwnedOutputs: outs}
		e.insertTouches[scope] = touch
		return touch, nil
	}
	e.insertTouches[scope] = mergeTouch(existing, ins, outs)
	return balance.TxTouch{NewTx: false, OwnedInputs: ins, OwnedOutputs: outs}, nil
}

// TouchConfirm records scope's full current ownership view of hash as
// of this confirmation, overwriting whatever confirm touch scope
// previously recorded (a re-confirm after an Unconfirm resubmits the
// same content it had before, so overwriting it reproduces the
// idempotent round-trip rather than double-counting it). It reports
// confirmedInsert: true when scope has never recorded an insert touch
// for this transaction, meaning this Confirm is also scope's first
// ever contact with it, in which case the same ins/outs are frozen as
// the insert touch too so a later Unconfirm-then-Erase still has one
// to invert.
//
// TouchConfirm is for the dispatcher's single per-event confirmation
// call only; a retroactive credit discovered while a transaction is
// already confirmed must use TouchConfirmRetro instead, since that
// content is additive, not a resubmission of the same view.
func (j *Journal) TouchConfirm(hash chainhash.Hash, scope balance.Scope, ins []balance.OwnedInput, outs []balance.OwnedOutput) (touch balance.TxTouch, confirmedInsert bool, err error) {
	j.mtx.Lock()
	defer j.mtx.Unlock()

	e, ok := j.entries[hash]
	if !ok {
		return balance.TxTouch{}, false, journalError(ErrTxNotFound, "no journal entry for tx", nil)
	}

	_, hasInsert := e.insertTouches[scope]
	confirmedInsert = !hasInsert

	touch = balance.TxTouch{NewTx: confirmedInsert, OwnedInputs: ins, OwnedOutputs: outs}
	e.confirmTouches[scope] = touch
	if confirmedInsert {
		e.insertTouches[scope] = touch
	}
	return touch, confirmedInsert, nil
}

// TouchConfirmRetro records a retroactive credit discovered for scope
// while hash is already confirmed: value that has never moved any
// balance column before, for a transaction already counted. It always
// reports a touch whose delta must be applied via
// balance.Confirm(touch, true) — both the insert and confirm legs move
// together — and merges the new ins/outs into both the cumulative
// insert and confirm records, so a later Unconfirm or Erase inverts
// this credit along with everything else ever applied.
func (j *Journal) TouchConfirmRetro(hash chainhash.Hash, scope balance.Scope, ins []balance.OwnedInput, outs []balance.OwnedOutput) (balance.TxTouch, error) {
	j.mtx.Lock()
	defer j.mtx.Unlock()

	e, ok := j.entries[hash]
	if !ok {
		return balance.TxTouch{}, journalError(ErrTxNotFound, "no journal entry for tx", nil)
	}

	_, hasInsert := e.insertTouches[scope]
	incremental := balance.TxTouch{NewTx: !hasInsert, OwnedInputs: ins, OwnedOutputs: outs}

	if existing, has := e.confirmTouches[scope]; has {
		e.confirmTouches[scope] = mergeTouch(existing, ins, outs)
	} else {
		e.confirmTouches[scope] = incremental
	}
	if existing, has := e.insertTouches[scope]; has {
		e.insertTouches[scope] = mergeTouch(existing, ins, outs)
	} else {
		e.insertTouches[scope] = incremental
	}
	return incremental, nil
}

// TouchUnconfirm returns the touch scope's last Confirm recorded for
// hash, used to invert exactly that confirm's delta. ok is false if
// scope never recorded a confirm touch for this transaction.
func (j *Journal) TouchUnconfirm(hash chainhash.Hash, scope balance.Scope) (touch balance.TxTouch, ok bool) {
	j.mtx.RLock()
	defer j.mtx.RUnlock()

	e, has := j.entries[hash]
	if !has {
		return balance.TxTouch{}, false
	}
	touch, ok = e.confirmTouches[scope]
	return touch, ok
}

// TouchErase returns scope's cumulative insert touch for hash (its first
// insert plus every increment merged into it since), used to invert
// every InsertPending leg applied for that scope. ok is false if
// scope never recorded an insert touch for this transaction.
func (j *Journal) TouchErase(hash chainhash.Hash, scope balance.Scope) (touch balance.TxTouch, ok bool) {
	j.mtx.RLock()
	defer j.mtx.RUnlock()

	e, has := j.entries[hash]
	if !has {
		return balance.TxTouch{}, false
	}
	touch, ok = e.insertTouches[scope]
	return touch, ok
}

// Untouch forgets scope's insert and confirm history for hash, used
// when a transaction is erased: if it is later reinserted, it counts
// as new again for that scope.
func (j *Journal) Untouch(hash chainhash.Hash, scope balance.Scope) {
	j.mtx.Lock()
	defer j.mtx.Unlock()

	if e, ok := j.entries[hash]; ok {
		delete(e.insertTouches, scope)
		delete(e.confirmTouches, scope)
	}
}

// MarkFirstSeen records when hash first entered the journal pending, if
// not already recorded. Later calls for the same transaction are
// no-ops, so a reorg that unconfirms and re-confirms a transaction does
// not reset its arrival time.
func (j *Journal) MarkFirstSeen(hash chainhash.Hash, seen time.Time) {
	j.mtx.Lock()
	defer j.mtx.Unlock()

	if e, ok := j.entries[hash]; ok && e.FirstSeen.IsZero() {
		e.FirstSeen = seen
	}
}

// PendingBefore returns every pending entry first seen strictly before
// cutoff, the set Zap removes.
func (j *Journal) PendingBefore(cutoff time.Time) []*Entry {
	j.mtx.RLock()
	defer j.mtx.RUnlock()

	var out []*Entry
	for _, e := range j.entries {
		if e.State == StatePending && !e.FirstSeen.IsZero() && e.FirstSeen.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// MarkConfirmed transitions hash from pending to confirmed at height,
// recording its position within the block for chain-order replay.
// Confirming a transaction already confirmed at the same height is a
// no-op, matching rescan's replay semantics. transitioned reports
// whether this call actually moved the transaction from pending to
// confirmed, as opposed to merely correcting the recorded height of an
// already-confirmed transaction or replaying a no-op: the dispatcher
// uses it to decide whether the confirmed-columns delta needs applying
// again, since a bare height correction must never re-apply it.
func (j *Journal) MarkConfirmed(hash chainhash.Hash, height int32, indexInBlock int) (transitioned bool, err error) {
	j.mtx.Lock()
	defer j.mtx.Unlock()

	e, ok := j.entries[hash]
	if !ok {
		return false, journalError(ErrTxNotFound, "no journal entry for tx", nil)
	}
	switch e.State {
	case StatePending:
		e.State = StateConfirmed
		e.Height = height
		e.IndexInBlock = indexInBlock
		return true, nil
	case StateConfirmed:
		if e.Height == height {
			return false, nil
		}
		e.Height = height
		e.IndexInBlock = indexInBlock
		return false, nil
	default:
		return false, journalError(ErrIllegalTransition, "cannot confirm an erased tx", nil)
	}
}

// MarkUnconfirmed transitions hash from confirmed back to pending.
func (j *Journal) MarkUnconfirmed(hash chainhash.Hash) error {
	j.mtx.Lock()
	defer j.mtx.Unlock()

	e, ok := j.entries[hash]
	if !ok {
		return journalError(ErrTxNotFound, "no journal entry for tx", nil)
	}
	if e.State != StateConfirmed {
		return journalError(ErrIllegalTransition, "tx is not confirmed", nil)
	}
	e.State = StatePending
	e.Height = -1
	e.IndexInBlock = 0
	return nil
}

// MarkErased transitions hash from pending to the terminal erased
// state. Erasing a confirmed transaction is illegal; it must be
// unconfirmed first.
func (j *Journal) MarkErased(hash chainhash.Hash) error {
	j.mtx.Lock()
	defer j.mtx.Unlock()

	e, ok := j.entries[hash]
	if !ok {
		return journalError(ErrTxNotFound, "no journal entry for tx", nil)
	}
	if e.State == StateConfirmed {
		return journalError(ErrIllegalTransition, "cannot erase a confirmed tx without unconfirming first", nil)
	}
	if e.State == StateErased {
		return journalError(ErrAlreadyErased, "tx is already erased", nil)
	}
	e.State = StateErased
	return nil
}

// ReorgVictims returns every confirmed entry with height strictly
// greater than h, ordered for reverse replay: highest height and
// highest in-block index first, so the caller can Unconfirm each in
// turn the way revertTo requires.
func (j *Journal) ReorgVictims(h int32) []*Entry {
	j.mtx.RLock()
	defer j.mtx.RUnlock()

	var victims []*Entry
	for _, e := range j.entries {
		if e.State == StateConfirmed && e.Height > h {
			victims = append(victims, e)
		}
	}
	sort.Slice(victims, func(i, k int) bool {
		if victims[i].Height != victims[k].Height {
			return victims[i].Height > victims[k].Height
		}
		return victims[i].IndexInBlock > victims[k].IndexInBlock
	})
	return victims
}

// ConfirmedFrom returns every confirmed entry with height >= from,
// ordered for forward replay (ascending height, then in-block index),
// the order rescan walks the chain in.
func (j *Journal) ConfirmedFrom(from int32) []*Entry {
	j.mtx.RLock()
	defer j.mtx.RUnlock()

	var entries []*Entry
	for _, e := range j.entries {
		if e.State == StateConfirmed && e.Height >= from {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, k int) bool {
		if entries[i].Height != entries[k].Height {
			return entries[i].Height < entries[k].Height
		}
		return entries[i].IndexInBlock < entries[k].IndexInBlock
	})
	return entries
}
