// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package discovery implements the discovery engine (component F of the
// balance engine): whenever the address book's lookahead window
// advances, it walks every transaction previously journaled against a
// newly in-window address and reports the retroactive credit it should
// have produced, so the dispatcher can apply it through the same
// InsertPending/Confirm pipeline a live event would use.
//
// This mirrors the way waddrmgr advances an account's next-address
// index as addresses are handed out and observed, generalized here into
// a retroactive sweep over the journal rather than a forward-only
// bookkeeping step.
package discovery

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/hnswallet/walletcore/addrbook"
	"github.com/hnswallet/walletcore/covenant"
	"github.com/hnswallet/walletcore/journal"
)

// RetroCredit describes an output the discovery engine found that was
// not recognized as owned when its transaction was first journaled, but
// now falls inside an account's lookahead window.
type RetroCredit struct {
	TxHash       chainhash.Hash
	OutputIndex  uint32
	Value        int64
	Class        covenant.Class
	Owner        addrbook.Ownership
	Confirmed    bool
	Height       int32
	IndexInBlock int
}

// Sweep reports the retroactive credits produced by newly bringing the
// ownerships in newly into an account's lookahead window. It is the
// single primitive behind both the automatic discovery hooks (run by
// the engine after InsertPending, Confirm and Rescan replay; Unconfirm
// and Erase do not run them) and the explicit Discover(account, ahead)
// entry point: both
// call AdvanceDepth and feed the result here, so they can never diverge
// in what they recover.
//
// Recovering that a previously unrecognized output was later spent as
// an input of another transaction is not attempted here: that requires
// a coin view able to resolve the spending input's previous output,
// which is not always available (see chainview.CoinView), so pending
// spent coins may go unrecovered across a gap-limit advance the way the
// engine's non-goals describe.
func Sweep(book *addrbook.Book, j *journal.Journal, newly []addrbook.Ownership) []RetroCredit {
	var out []RetroCredit

	for _, own := range newly {
		sh := book.ScriptHashOf(own)

		for _, ref := range j.LookupByScriptHash([32]byte(sh)) {
			entry, ok := j.Get(ref.TxHash)
			if !ok || int(ref.Index) >= len(entry.Tx.Outputs) {
				continue
			}
			txOut := entry.Tx.Outputs[ref.Index]

			out = append(out, RetroCredit{
				TxHash:       ref.TxHash,
				OutputIndex:  ref.Index,
				Value:        txOut.Value,
				Class:        covenant.Classify(txOut.Covenant),
				Owner:        own,
				Confirmed:    entry.State == journal.StateConfirmed,
				Height:       entry.Height,
				IndexInBlock: entry.IndexInBlock,
			})
		}
	}
	return out
}
