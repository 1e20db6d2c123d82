// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package balance

import "github.com/hnswallet/walletcore/covenant"

// OwnedOutput describes one output of a transaction that belongs to the
// scope a delta is being computed for.
type OwnedOutput struct {
	Value int64
	Class covenant.Class
}

// OwnedInput describes one input of a transaction whose previous output
// belonged to the scope a delta is being computed for. Confirmed
// reports whether the credit being spent was itself confirmed at the
// time this transaction was processed: a confirmed coin stops counting
// toward Confirmed/LockedConfirmed the moment anything spends it, even
// a still-pending spender, since the recompute path excludes any spent
// credit from every column regardless of the spender's own state.
type OwnedInput struct {
	Value     int64
	Class     covenant.Class
	Confirmed bool
}

// TxTouch is the view of a single transaction, as seen by one scope,
// that the delta functions need: which of its inputs and outputs are
// owned by the scope, and whether the transaction is new to the scope's
// tx count.
//
// NewTx is computed by the journal, not here: the journal knows whether
// a transaction hash has already been counted for a given scope (a
// wallet-scoped tx that touches two of the wallet's own accounts must
// only increment the wallet's tx count once, per B2), so the delta
// functions stay pure arithmetic over a view they are handed.
type TxTouch struct {
	NewTx        bool
	OwnedInputs  []OwnedInput
	OwnedOutputs []OwnedOutput
}

func sumOut(outs []OwnedOutput) (value, locked int64) {
	for _, o := range outs {
		value += o.Value
		if o.Class.IsLocked() {
			locked += o.Value
		}
	}
	return value, locked
}

func sumIn(ins []OwnedInput) (value, locked int64) {
	for _, i := range ins {
		value += i.Value
		if i.Class.IsLocked() {
			locked += i.Value
		}
	}
	return value, locked
}

// sumInConfirmed returns the same pair as sumIn, restricted to the
// inputs that were themselves confirmed credits at the time of spend.
func sumInConfirmed(ins []OwnedInput) (value, locked int64) {
	for _, i := range ins {
		if !i.Confirmed {
			continue
		}
		value += i.Value
		if i.Class.IsLocked() {
			locked += i.Value
		}
	}
	return value, locked
}

func txDelta(t TxTouch) Delta {
	var d Delta
	if t.NewTx {
		d.Tx = 1
	}
	d.Coin = int64(len(t.OwnedOutputs)) - int64(len(t.OwnedInputs))
	return d
}

// InsertPending returns the delta produced by a transaction newly seen
// in the mempool. Its own outputs only ever touch unconfirmed and
// lockedUnconfirmed, since they are pending credits. But an owned input
// that spends an already-confirmed credit moves confirmed and
// lockedConfirmed too, immediately: recompute drops a spent credit from
// every column the instant it is spent, regardless of whether its
// spender has itself confirmed, so the cache must mirror that the same
// moment the spend is recorded rather than waiting for this
// transaction's own Confirm.
func InsertPending(t TxTouch) Delta {
	d := txDelta(t)

	outVal, outLocked := sumOut(t.OwnedOutputs)
	inVal, inLocked := sumIn(t.OwnedInputs)
	inConfirmedVal, inConfirmedLocked := sumInConfirmed(t.OwnedInputs)

	d.Unconfirmed = outVal - inVal
	d.LockedUnconfirmed = outLocked - inLocked
	d.Confirmed = -inConfirmedVal
	d.LockedConfirmed = -inConfirmedLocked
	return d
}

// Confirm returns the delta produced by a transaction transitioning
// from pending to confirmed at some height.
//
// If confirmedInsert is false, the transaction was already pending: the
// tx and coin counts do not move again, and only this transaction's own
// outputs move confirmed and lockedConfirmed, by becoming confirmed
// credits themselves. Its owned inputs do not move those columns again
// here: any confirmed credit they spent already left confirmed and
// lockedConfirmed the moment InsertPending recorded the spend, and that
// adjustment does not depend on this transaction's own confirmation
// state.
//
// If confirmedInsert is true, this is the special case of a transaction
// observed for the first time already confirmed (no prior pending
// state was ever recorded): both the InsertPending delta and the
// Confirm delta apply atomically, so all six fields move at once.
func Confirm(t TxTouch, confirmedInsert bool) Delta {
	outVal, outLocked := sumOut(t.OwnedOutputs)

	d := Delta{
		Confirmed:       outVal,
		LockedConfirmed: outLocked,
	}
	if confirmedInsert {
		d = d.Add(InsertPending(t))
	}
	return d
}

// Unconfirm returns the delta produced by a transaction transitioning
// from confirmed back to pending, e.g. during a reorg. It is the exact
// inverse of the Confirm delta most recently applied for the
// transaction; the credit itself keeps height -1 afterward, and the tx
// count does not change.
func Unconfirm(t TxTouch) Delta {
	return Confirm(t, false).Invert()
}

// Erase returns the delta produced by removing a pending transaction
// entirely (a zap or mempool invalidation). It is only legal to apply
// against a transaction that is currently pending, and is the exact
// inverse of the InsertPending delta.
func Erase(t TxTouch) Delta {
	return InsertPending(t).Invert()
}
