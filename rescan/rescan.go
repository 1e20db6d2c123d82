// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rescan implements the ground-truth recompute half of
// component G: rebuilding a scope's six-tuple directly from the credit
// store, independent of whatever sequence of deltas produced the cached
// tuple. This is the same computation wtxmgr.Store.Balance's full-scan
// path performs by walking every unspent credit instead of trusting a
// maintained running total, generalized here to the six-tuple and to
// the locked/unlocked split.
//
// The chain-replay half of component G (rescan(fromHeight) walking the
// journal and re-driving Confirm for every matched transaction) lives
// in the engine package, since replay must go back through the full
// event dispatcher (component H) to keep the address book, credit store
// and journal consistent; this package only computes and checks, it
// never mutates.
package rescan

import (
	"github.com/hnswallet/walletcore/addrbook"
	"github.com/hnswallet/walletcore/balance"
	"github.com/hnswallet/walletcore/creditmgr"
)

// RecomputeAccount rebuilds the six-tuple for a single account directly
// from every credit recorded for it, per invariant I3: the tuple is a
// pure function of each credit's value, covenant class, height and
// spent marker, never of the history of events that produced it.
func RecomputeAccount(store *creditmgr.Store, account addrbook.AccountID) balance.SixTuple {
	acc := newAccumulator()
	store.IterAccount(account, func(c *creditmgr.Credit) bool {
		acc.add(c)
		return true
	})
	return acc.tuple()
}

// RecomputeWallet rebuilds the six-tuple for an entire wallet directly
// from every credit recorded for any of its accounts. Per B2, the tx
// count dedups transactions that touch more than one account of the
// wallet; the coin and value columns simply sum across accounts since
// each credit belongs to exactly one account.
func RecomputeWallet(store *creditmgr.Store, walletID string) balance.SixTuple {
	acc := newAccumulator()
	store.IterWallet(walletID, func(c *creditmgr.Credit) bool {
		acc.add(c)
		return true
	})
	return acc.tuple()
}

// VerifyInvariants checks a recomputed tuple against both the
// containment invariant (B1) and, if cached is non-nil, the ground
// truth invariant (B3): the cached tuple must equal the recomputed one
// exactly.
func VerifyInvariants(recomputed balance.SixTuple, cached *balance.SixTuple) error {
	if err := recomputed.CheckContainment(); err != nil {
		return rescanError(ErrInvariantViolation, "recomputed tuple failed containment check", err)
	}
	if cached != nil {
		if err := cached.CheckContainment(); err != nil {
			return rescanError(ErrInvariantViolation, "cached tuple failed containment check", err)
		}
		if *cached != recomputed {
			return rescanError(ErrInvariantViolation, "cached tuple diverged from ground truth", nil)
		}
	}
	return nil
}

// accumulator folds credits into a six-tuple one at a time.
type accumulator struct {
	seenTx map[[32]byte]struct{}
	tup    balance.SixTuple
}

func newAccumulator() *accumulator {
	return &accumulator{seenTx: make(map[[32]byte]struct{})}
}

func (a *accumulator) countTx(hash [32]byte) {
	if _, ok := a.seenTx[hash]; ok {
		return
	}
	a.seenTx[hash] = struct{}{}
	a.tup.Tx++
}

func (a *accumulator) add(c *creditmgr.Credit) {
	a.countTx(c.Outpoint.Hash)
	if c.SpentBy != nil {
		a.countTx(c.SpentBy.Hash)
		// A spent credit no longer contributes to any spendable column;
		// it has already been accounted for by whichever transaction
		// spent it.
		return
	}

	a.tup.Coin++
	value := c.Value
	locked := c.CovenantClass.IsLocked()

	a.tup.Unconfirmed += value
	if locked {
		a.tup.LockedUnconfirmed += value
	}
	if c.Confirmed() {
		a.tup.Confirmed += value
		if locked {
			a.tup.LockedConfirmed += value
		}
	}
}

func (a *accumulator) tuple() balance.SixTuple {
	return a.tup
}
