// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package creditmgr implements the credit store (component C of the
// balance engine): the per-wallet set of credits, one per owned
// transaction output, with the flags the rest of the engine needs
// (spent, pending, confirmed, coinbase, covenant-locked).
//
// Credits are identified by outpoint and keyed in a flat map, the way
// wtxmgr.Credit is identified by wire.OutPoint with no back-pointer to
// its owning TxRecord (see the design notes on cyclic ownership).
package creditmgr

import (
	"sync"

	"github.com/btcsuite/btcd/wire"

	"github.com/hnswallet/walletcore/addrbook"
	"github.com/hnswallet/walletcore/covenant"
)

// Credit describes a transaction output which was, or still is,
// spendable by the wallet.
type Credit struct {
	Outpoint      wire.OutPoint
	Value         int64
	Account       addrbook.AccountID
	Branch        addrbook.Branch
	Index         uint32
	CovenantClass covenant.Class
	SpentBy       *wire.OutPoint
	Height        int32 // -1 if pending
	Coinbase      bool
}

// Spent reports whether the credit has been spent by a known
// transaction (I1: spentBy != null implies the spending tx is present
// in the journal; the journal is what makes that true, not this type).
func (c *Credit) Spent() bool {
	return c.SpentBy != nil
}

// Confirmed reports whether the containing transaction is confirmed
// (I2: height >= 0 iff the containing transaction is confirmed).
func (c *Credit) Confirmed() bool {
	return c.Height >= 0
}

// clone returns a copy, including its own copy of the SpentBy outpoint,
// so callers cannot mutate store-owned state through a returned pointer.
func (c *Credit) clone() *Credit {
	cp := *c
	if c.SpentBy != nil {
		sb := *c.SpentBy
		cp.SpentBy = &sb
	}
	return &cp
}

// Store is the concurrency-safe, in-memory credit store for a single
// wallet.
type Store struct {
	mtx     sync.RWMutex
	credits map[wire.OutPoint]*Credit
}

// New creates an empty credit store.
func New() *Store {
	return &Store{credits: make(map[wire.OutPoint]*Credit)}
}

// Insert records a new credit. It is idempotent: inserting the same
// outpoint twice leaves the first recorded credit untouched and returns
// false (no-op), the way wtxmgr.addCredit treats a duplicate add.
func (s *Store) Insert(c *Credit) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, exists := s.credits[c.Outpoint]; exists {
		return false, nil
	}
	s.credits[c.Outpoint] = c.clone()
	return true, nil
}

// MarkSpent records that outpoint was spent by the transaction
// identified by spender. Returns ErrCreditNotFound if no credit is
// recorded for outpoint.
func (s *Store) MarkSpent(outpoint wire.OutPoint, spender wire.OutPoint) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	c, ok := s.credits[outpoint]
	if !ok {
		return storeError(ErrCreditNotFound, "no credit for outpoint", nil)
	}
	sp := spender
	c.SpentBy = &sp
	return nil
}

// MarkUnspent clears the spent marker on outpoint, the inverse of
// MarkSpent. It is a no-op if the credit is already unspent.
func (s *Store) MarkUnspent(outpoint wire.OutPoint) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	c, ok := s.credits[outpoint]
	if !ok {
		return storeError(ErrCreditNotFound, "no credit for outpoint", nil)
	}
	c.SpentBy = nil
	return nil
}

// SetHeight sets the confirmation height of outpoint's containing
// transaction, or -1 to mark it pending.
func (s *Store) SetHeight(outpoint wire.OutPoint, height int32) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	c, ok := s.credits[outpoint]
	if !ok {
		return storeError(ErrCreditNotFound, "no credit for outpoint", nil)
	}
	c.Height = height
	return nil
}

// Remove deletes the credit recorded for outpoint, if any.
func (s *Store) Remove(outpoint wire.OutPoint) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	delete(s.credits, outpoint)
}

// Get returns a copy of the credit recorded for outpoint.
func (s *Store) Get(outpoint wire.OutPoint) (*Credit, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	c, ok := s.credits[outpoint]
	if !ok {
		return nil, false
	}
	return c.clone(), true
}

// IterAccount calls fn once for every credit owned by account, in no
// particular order. fn may stop iteration early by returning false.
func (s *Store) IterAccount(account addrbook.AccountID, fn func(*Credit) bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for _, c := range s.credits {
		if c.Account != account {
			continue
		}
		if !fn(c.clone()) {
			return
		}
	}
}

// IterWallet calls fn once for every credit owned by any account of
// walletID, in no particular order.
func (s *Store) IterWallet(walletID string, fn func(*Credit) bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for _, c := range s.credits {
		if c.Account.WalletID != walletID {
			continue
		}
		if !fn(c.clone()) {
			return
		}
	}
}

// IterAll calls fn once for every credit in the store, in no particular
// order. It underlies rescan's ground-truth recomputation.
func (s *Store) IterAll(fn func(*Credit) bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for _, c := range s.credits {
		if !fn(c.clone()) {
			return
		}
	}
}
