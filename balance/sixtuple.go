// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package balance implements the balance six-tuple, the scopes it is
// kept for, and the pure delta functions that mutate it (component D of
// the balance engine). Nothing in this package touches the credit
// store, the address book or the journal directly; it is handed the
// ownership view it needs and returns a Delta, the way wtxmgr's
// balanceFullScan/balanceAll compute an amount from a view of the
// unspent set without mutating it.
package balance

import "fmt"

// Scope names either a single account or an entire wallet. Every
// balance query and every delta is computed against exactly one Scope.
type Scope struct {
	WalletID string
	Account  string
}

// WalletScope returns the scope naming an entire wallet.
func WalletScope(walletID string) Scope {
	return Scope{WalletID: walletID}
}

// AccountScope returns the scope naming a single account of a wallet.
func AccountScope(walletID, account string) Scope {
	return Scope{WalletID: walletID, Account: account}
}

// IsWallet reports whether the scope names an entire wallet rather than
// a single account.
func (s Scope) IsWallet() bool {
	return s.Account == ""
}

// SixTuple is the balance vector maintained per scope: tx, coin,
// confirmed, unconfirmed, lockedConfirmed ("clocked") and
// lockedUnconfirmed ("ulocked").
type SixTuple struct {
	Tx                uint64
	Coin              uint64
	Confirmed         int64
	Unconfirmed       int64
	LockedConfirmed   int64
	LockedUnconfirmed int64
}

// Add returns the tuple resulting from applying d to t.
func (t SixTuple) Add(d Delta) SixTuple {
	return SixTuple{
		Tx:                uint64(int64(t.Tx) + d.Tx),
		Coin:              uint64(int64(t.Coin) + d.Coin),
		Confirmed:         t.Confirmed + d.Confirmed,
		Unconfirmed:       t.Unconfirmed + d.Unconfirmed,
		LockedConfirmed:   t.LockedConfirmed + d.LockedConfirmed,
		LockedUnconfirmed: t.LockedUnconfirmed + d.LockedUnconfirmed,
	}
}

// CheckContainment verifies invariant B1: lockedConfirmed <= confirmed
// and lockedUnconfirmed <= unconfirmed.
func (t SixTuple) CheckContainment() error {
	if t.LockedConfirmed > t.Confirmed {
		return fmt.Errorf("balance: lockedConfirmed %d exceeds confirmed %d",
			t.LockedConfirmed, t.Confirmed)
	}
	if t.LockedUnconfirmed > t.Unconfirmed {
		return fmt.Errorf("balance: lockedUnconfirmed %d exceeds unconfirmed %d",
			t.LockedUnconfirmed, t.Unconfirmed)
	}
	return nil
}

// Delta is a pure, additive mutation of a SixTuple. Every event the
// engine processes produces one Delta per touched scope.
type Delta struct {
	Tx                int64
	Coin              int64
	Confirmed         int64
	Unconfirmed       int64
	LockedConfirmed   int64
	LockedUnconfirmed int64
}

// Add returns the sum of two deltas.
func (d Delta) Add(o Delta) Delta {
	return Delta{
		Tx:                d.Tx + o.Tx,
		Coin:              d.Coin + o.Coin,
		Confirmed:         d.Confirmed + o.Confirmed,
		Unconfirmed:       d.Unconfirmed + o.Unconfirmed,
		LockedConfirmed:   d.LockedConfirmed + o.LockedConfirmed,
		LockedUnconfirmed: d.LockedUnconfirmed + o.LockedUnconfirmed,
	}
}

// Invert returns the exact inverse of d, used to undo Confirm (via
// Unconfirm) and InsertPending (via Erase).
func (d Delta) Invert() Delta {
	return Delta{
		Tx:                -d.Tx,
		Coin:              -d.Coin,
		Confirmed:         -d.Confirmed,
		Unconfirmed:       -d.Unconfirmed,
		LockedConfirmed:   -d.LockedConfirmed,
		LockedUnconfirmed: -d.LockedUnconfirmed,
	}
}

// IsZero reports whether applying d would leave a tuple unchanged.
func (d Delta) IsZero() bool {
	return d == Delta{}
}
