// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/hnswallet/walletcore/balance"
)

// Notification describes a single scope's balance changing as the
// result of one processed event, the way wtxmgr.Store notifies callers
// of newly relevant credits and debits through its NotificationServer.
type Notification struct {
	Scope   balance.Scope
	TxHash  chainhash.Hash
	Balance balance.SixTuple
}

// NotifyFunc receives balance change notifications. It is called
// synchronously while the wallet's write lock is held, so it must not
// call back into the Wallet; use it only to hand the notification off
// to another goroutine or channel.
type NotifyFunc func(Notification)

func (w *Wallet) notify(scope balance.Scope, hash chainhash.Hash) {
	if w.onNotify == nil {
		return
	}
	w.onNotify(Notification{
		Scope:   scope,
		TxHash:  hash,
		Balance: w.ledger.Get(scope),
	})
}
