// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/hnswallet/walletcore/addrbook"
	"github.com/hnswallet/walletcore/balance"
	"github.com/hnswallet/walletcore/chainview"
	"github.com/hnswallet/walletcore/covenant"
	"github.com/hnswallet/walletcore/creditmgr"
	"github.com/hnswallet/walletcore/discovery"
	"github.com/hnswallet/walletcore/journal"
)

// OnInsertPending processes a transaction newly seen in the mempool:
// the absent-to-pending transition.
func (w *Wallet) OnInsertPending(tx chainview.Tx, seenAt time.Time) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.journal.Observe(tx)
	w.journal.MarkFirstSeen(tx.Hash, seenAt)
	return w.processEvent(tx, -1, 0)
}

// OnConfirm processes a transaction mined into a block at height. If
// the transaction was never seen pending, this is the confirmed-insert
// special case: InsertPending and Confirm apply atomically.
func (w *Wallet) OnConfirm(tx chainview.Tx, height int32, indexInBlock int) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.journal.Observe(tx)
	return w.processEvent(tx, height, indexInBlock)
}

// OnUnconfirm processes a confirmed transaction moving back to pending,
// e.g. during a reorg: the exact inverse of the Confirm delta most
// recently applied.
func (w *Wallet) OnUnconfirm(hash chainhash.Hash) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	return w.onUnconfirm(hash)
}

// OnErase removes a pending transaction entirely (zap or mempool
// invalidation): the exact inverse of InsertPending. Erasing a
// confirmed transaction is illegal; it must be unconfirmed first.
func (w *Wallet) OnErase(hash chainhash.Hash) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	return w.onErase(hash)
}

// RevertTo unconfirms every transaction confirmed above height, in
// reverse chronological order, leaving each one pending.
func (w *Wallet) RevertTo(height int32) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	for _, e := range w.journal.ReorgVictims(height) {
		if err := w.onUnconfirm(e.Tx.Hash); err != nil {
			return err
		}
	}
	return nil
}

// Rescan replays every transaction this wallet has journaled as
// confirmed from height fromHeight onward, in chain order. Each
// replayed transaction is a no-op if it is already confirmed at its
// recorded height, matching chain replay semantics exactly.
func (w *Wallet) Rescan(fromHeight int32) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	for _, e := range w.journal.ConfirmedFrom(fromHeight) {
		if err := w.processEvent(e.Tx, e.Height, e.IndexInBlock); err != nil {
			return err
		}
	}
	return nil
}

// outputResolution is the ownership verdict for one output of a
// transaction being processed.
type outputResolution struct {
	owned bool
	owner addrbook.Ownership
	class covenant.Class
}

// spentInput is the ownership verdict for one input of a transaction
// being processed. Credit is the store row to mark spent, or nil if
// ownership was recovered only via the coin view (no row was ever
// recorded for it). Foreign inputs produce no spentInput at all.
type spentInput struct {
	inputIndex int
	account    addrbook.AccountID
	value      int64
	class      covenant.Class
	credit     *creditmgr.Credit
}

func (w *Wallet) resolveOutputs(tx chainview.Tx) []outputResolution {
	out := make([]outputResolution, len(tx.Outputs))
	for i, o := range tx.Outputs {
		class := covenant.Classify(o.Covenant)
		if !o.Covenant.Type.Known() {
			log.Warnf("tx %s output %d: unknown covenant type %d degraded to none",
				tx.Hash, i, o.Covenant.Type)
		}
		own, ok := w.book.OwnerOf(addrbook.ScriptHash(o.ScriptHash))
		out[i] = outputResolution{owned: ok, owner: own, class: class}
	}
	return out
}

func (w *Wallet) resolveInputs(tx chainview.Tx) []spentInput {
	var resolved []spentInput
	for i, in := range tx.Inputs {
		if c, ok := w.credits.Get(in.PreviousOutPoint); ok {
			resolved = append(resolved, spentInput{
				inputIndex: i, account: c.Account, value: c.Value, class: c.CovenantClass, credit: c,
			})
			continue
		}
		if prevOut, ok := w.coinView.Resolve(in.PreviousOutPoint); ok {
			if own, ok := w.book.OwnerOf(addrbook.ScriptHash(prevOut.ScriptHash)); ok {
				resolved = append(resolved, spentInput{
					inputIndex: i, account: own.Account,
					value: prevOut.Value, class: covenant.Classify(prevOut.Covenant),
				})
				continue
			}
		}
		// No credit on record and no coin view resolution: conservatively
		// foreign. A pending-spent coin recovered this way may go
		// unrecovered across a reorg, per the engine's stated non-goal.
	}
	return resolved
}

// advanceAndCollectRetro advances own's branch depth to at least
// own.Index and sweeps the journal for every transaction newly brought
// into view, cascading through any further window extensions those
// retroactive credits themselves open.
func (w *Wallet) advanceAndCollectRetro(own addrbook.Ownership) ([]discovery.RetroCredit, error) {
	var all []discovery.RetroCredit
	var lookaheadErr error

	queue := []addrbook.Ownership{own}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		newly, err := w.book.AdvanceDepth(cur.Account, cur.Branch, cur.Index)
		if err != nil {
			if be, ok := err.(addrbook.Error); ok && be.ErrorCode == addrbook.ErrLookaheadExhausted {
				lookaheadErr = err
			} else {
				return all, mapBookErr(err)
			}
		}
		if len(newly) == 0 {
			continue
		}
		retro := discovery.Sweep(w.book, w.journal, newly)
		all = append(all, retro...)
		for _, rc := range retro {
			queue = append(queue, rc.Owner)
		}
	}
	if lookaheadErr != nil {
		return all, engineError(KindLookaheadExhausted, "lookahead ceiling reached", lookaheadErr)
	}
	return all, nil
}

// applyRetroCredits applies every retroactive credit discovery found,
// grouped by transaction so each scope's ownership view is touched
// exactly once per transaction even when a transaction has more than
// one newly-owned output.
func (w *Wallet) applyRetroCredits(retro []discovery.RetroCredit) error {
	byTx := make(map[chainhash.Hash][]discovery.RetroCredit)
	var order []chainhash.Hash
	for _, rc := range retro {
		if _, ok := byTx[rc.TxHash]; !ok {
			order = append(order, rc.TxHash)
		}
		byTx[rc.TxHash] = append(byTx[rc.TxHash], rc)
	}

	for _, hash := range order {
		credits := byTx[hash]

		height := int32(-1)
		confirmed := credits[0].Confirmed
		if confirmed {
			height = credits[0].Height
		}

		accountOut := make(map[addrbook.AccountID][]balance.OwnedOutput)
		var walletOut []balance.OwnedOutput

		for _, rc := range credits {
			op := wire.OutPoint{Hash: rc.TxHash, Index: rc.OutputIndex}
			_, err := w.credits.Insert(&creditmgr.Credit{
				Outpoint:      op,
				Value:         rc.Value,
				Account:       rc.Owner.Account,
				Branch:        rc.Owner.Branch,
				Index:         rc.Owner.Index,
				CovenantClass: rc.Class,
				Height:        height,
			})
			if err != nil {
				return err
			}

			oo := balance.OwnedOutput{Value: rc.Value, Class: rc.Class}
			accountOut[rc.Owner.Account] = append(accountOut[rc.Owner.Account], oo)
			walletOut = append(walletOut, oo)
		}

		for account, outs := range accountOut {
			scope := balance.AccountScope(account.WalletID, account.Name)
			if err := w.applyRetroTouch(scope, hash, outs, confirmed); err != nil {
				return err
			}
		}

		walletScope := balance.WalletScope(w.id)
		if err := w.applyRetroTouch(walletScope, hash, walletOut, confirmed); err != nil {
			return err
		}
	}
	return nil
}

// applyRetroTouch records a retroactively discovered credit's ownership
// view for (hash, scope) and applies the resulting delta. Unlike
// applyTouch, the touch is always merged onto whatever the scope has
// already recorded rather than overwritten, since a retroactive credit
// is discovered strictly after the transaction's main event was
// processed and must add to that view rather than replace it. A
// retroactive credit for an already-confirmed transaction has never
// touched any balance column before, so it always takes the combined
// insert-and-confirm legs regardless of the scope's own insert history.
func (w *Wallet) applyRetroTouch(scope balance.Scope, hash chainhash.Hash, outs []balance.OwnedOutput, confirmed bool) error {
	var delta balance.Delta
	if confirmed {
		touch, err := w.journal.TouchConfirmRetro(hash, scope, nil, outs)
		if err != nil {
			return mapJournalErr(err)
		}
		delta = balance.Confirm(touch, true)
	} else {
		touch, err := w.journal.TouchInsert(hash, scope, nil, outs)
		if err != nil {
			return mapJournalErr(err)
		}
		delta = balance.InsertPending(touch)
	}
	w.ledger.Apply(scope, delta)
	w.notify(scope, hash)
	return nil
}

// applyTouch records the ownership view for (hash, scope) and applies
// the resulting delta: InsertPending if the transaction is currently
// pending, or Confirm (atomically combined with InsertPending when this
// scope has never touched the transaction before) if confirmed.
func (w *Wallet) applyTouch(scope balance.Scope, hash chainhash.Hash, ins []balance.OwnedInput, outs []balance.OwnedOutput, confirmed bool) error {
	var delta balance.Delta
	if confirmed {
		touch, confirmedInsert, err := w.journal.TouchConfirm(hash, scope, ins, outs)
		if err != nil {
			return mapJournalErr(err)
		}
		delta = balance.Confirm(touch, confirmedInsert)
	} else {
		touch, err := w.journal.TouchInsert(hash, scope, ins, outs)
		if err != nil {
			return mapJournalErr(err)
		}
		delta = balance.InsertPending(touch)
	}
	w.ledger.Apply(scope, delta)
	w.notify(scope, hash)
	return nil
}

// processEvent is the shared core of OnInsertPending, OnConfirm and
// Rescan's replay: height == -1 means the pending path, height >= 0
// means the confirmed path (including the confirmed-insert special
// case when this is the transaction's first appearance in a scope).
//
// The main per-scope credit and delta pass runs before the discovery
// sweep so that any retroactive credit the sweep surfaces for this same
// transaction (a later, previously-foreign output brought into view by
// one of the transaction's own owned outputs advancing the window)
// always merges onto a touch this pass already recorded, rather than
// racing to record the transaction's touch first. On replay (Rescan),
// a transaction already confirmed at its recorded height is a pure
// no-op for this pass: MarkConfirmed reports no transition and the
// pass is skipped entirely, since re-running it would double-count the
// confirmed delta already applied the first time. Discovery still runs
// unconditionally on replay, since AdvanceDepth and Sweep are already
// idempotent once their window has caught up.
func (w *Wallet) processEvent(tx chainview.Tx, height int32, indexInBlock int) error {
	transitioned := height < 0
	if height >= 0 {
		t, err := w.journal.MarkConfirmed(tx.Hash, height, indexInBlock)
		if err != nil {
			return mapJournalErr(err)
		}
		transitioned = t
	}

	outputs := w.resolveOutputs(tx)
	inputs := w.resolveInputs(tx)
	confirmed := height >= 0

	if transitioned {
		accountOut := make(map[addrbook.AccountID][]balance.OwnedOutput)
		var walletOut []balance.OwnedOutput
		for i, or := range outputs {
			if !or.owned {
				continue
			}
			op := wire.OutPoint{Hash: tx.Hash, Index: uint32(i)}
			inserted, err := w.credits.Insert(&creditmgr.Credit{
				Outpoint:      op,
				Value:         tx.Outputs[i].Value,
				Account:       or.owner.Account,
				Branch:        or.owner.Branch,
				Index:         or.owner.Index,
				CovenantClass: or.class,
				Height:        height,
			})
			if err != nil {
				return err
			}
			if !inserted {
				if err := w.credits.SetHeight(op, height); err != nil {
					return err
				}
			}

			oo := balance.OwnedOutput{Value: tx.Outputs[i].Value, Class: or.class}
			accountOut[or.owner.Account] = append(accountOut[or.owner.Account], oo)
			walletOut = append(walletOut, oo)
		}

		accountIn := make(map[addrbook.AccountID][]balance.OwnedInput)
		var walletIn []balance.OwnedInput
		for _, si := range inputs {
			if si.credit != nil && !si.credit.Spent() {
				spender := wire.OutPoint{Hash: tx.Hash, Index: uint32(si.inputIndex)}
				if err := w.credits.MarkSpent(si.credit.Outpoint, spender); err != nil {
					return err
				}
			}
			oi := balance.OwnedInput{Value: si.value, Class: si.class, Confirmed: si.credit != nil && si.credit.Confirmed()}
			accountIn[si.account] = append(accountIn[si.account], oi)
			walletIn = append(walletIn, oi)
		}

		touched := make(map[addrbook.AccountID]struct{})
		for a := range accountOut {
			touched[a] = struct{}{}
		}
		for a := range accountIn {
			touched[a] = struct{}{}
		}

		for a := range touched {
			scope := balance.AccountScope(a.WalletID, a.Name)
			if err := w.applyTouch(scope, tx.Hash, accountIn[a], accountOut[a], confirmed); err != nil {
				return err
			}
		}

		walletScope := balance.WalletScope(w.id)
		if err := w.applyTouch(walletScope, tx.Hash, walletIn, walletOut, confirmed); err != nil {
			return err
		}
	}

	var retro []discovery.RetroCredit
	var lookaheadErr error
	for _, or := range outputs {
		if !or.owned {
			continue
		}
		rs, err := w.advanceAndCollectRetro(or.owner)
		if err != nil {
			if ee, ok := err.(Error); ok && ee.Kind == KindLookaheadExhausted {
				lookaheadErr = err
			} else {
				return err
			}
		}
		retro = append(retro, rs...)
	}
	if len(retro) > 0 {
		if err := w.applyRetroCredits(retro); err != nil {
			return err
		}
	}

	if lookaheadErr != nil {
		log.Warnf("%v", lookaheadErr)
		return lookaheadErr
	}
	return nil
}

// onUnconfirm is processEvent's counterpart for the confirmed-to-pending
// transition; it assumes w.mtx is already held.
func (w *Wallet) onUnconfirm(hash chainhash.Hash) error {
	entry, ok := w.journal.Get(hash)
	if !ok {
		return engineError(KindIllegalTransition, "no journal entry for tx", nil)
	}
	if entry.State != journal.StateConfirmed {
		return engineError(KindIllegalTransition, "tx is not confirmed", nil)
	}

	for _, scope := range entry.TouchedScopes() {
		touch, ok := w.journal.TouchUnconfirm(hash, scope)
		if !ok {
			continue
		}
		delta := balance.Unconfirm(touch)
		w.ledger.Apply(scope, delta)
		w.notify(scope, hash)
	}

	for i := range entry.Tx.Outputs {
		op := wire.OutPoint{Hash: hash, Index: uint32(i)}
		if _, ok := w.credits.Get(op); ok {
			if err := w.credits.SetHeight(op, -1); err != nil {
				return err
			}
		}
	}

	if err := w.journal.MarkUnconfirmed(hash); err != nil {
		return mapJournalErr(err)
	}
	return nil
}

// onErase is processEvent's counterpart for the pending-to-erased
// transition; it assumes w.mtx is already held.
func (w *Wallet) onErase(hash chainhash.Hash) error {
	entry, ok := w.journal.Get(hash)
	if !ok {
		return engineError(KindIllegalTransition, "no journal entry for tx", nil)
	}
	if entry.State == journal.StateErased {
		return nil
	}
	if entry.State == journal.StateConfirmed {
		return engineError(KindIllegalTransition, "cannot erase a confirmed tx without unconfirming first", nil)
	}

	for _, scope := range entry.TouchedScopes() {
		touch, ok := w.journal.TouchErase(hash, scope)
		if !ok {
			continue
		}
		delta := balance.Erase(touch)
		w.ledger.Apply(scope, delta)
		w.journal.Untouch(hash, scope)
		w.notify(scope, hash)
	}

	for i := range entry.Tx.Outputs {
		w.credits.Remove(wire.OutPoint{Hash: hash, Index: uint32(i)})
	}
	for _, in := range entry.Tx.Inputs {
		if c, ok := w.credits.Get(in.PreviousOutPoint); ok && c.SpentBy != nil && c.SpentBy.Hash == hash {
			if err := w.credits.MarkUnspent(in.PreviousOutPoint); err != nil {
				return err
			}
		}
	}

	return mapJournalErr(w.journal.MarkErased(hash))
}
