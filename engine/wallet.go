// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package engine implements the event dispatcher (component H): the
// single entry point that resolves ownership, drives discovery and the
// balance deltas, and commits the result atomically, one wallet at a
// time. It mirrors the way wallet.Wallet serializes every mutating
// call behind its own lock and fans out to wtxmgr/waddrmgr underneath.
package engine

import (
	"sync"
	"time"

	"github.com/hnswallet/walletcore/addrbook"
	"github.com/hnswallet/walletcore/balance"
	"github.com/hnswallet/walletcore/chainview"
	"github.com/hnswallet/walletcore/creditmgr"
	"github.com/hnswallet/walletcore/journal"
	"github.com/hnswallet/walletcore/rescan"
)

// Wallet is the balance engine for a single wallet: one address book,
// one credit store, one transaction journal and one balance ledger,
// guarded by a single write lock per §5's concurrency model. Distinct
// Wallets may be driven concurrently by the host; a single Wallet
// processes events strictly one at a time.
type Wallet struct {
	mtx sync.RWMutex

	id       string
	book     *addrbook.Book
	credits  *creditmgr.Store
	ledger   *balance.Ledger
	journal  *journal.Journal
	coinView chainview.CoinView
	onNotify NotifyFunc

	accounts map[string]struct{}
}

// New creates an empty Wallet identified by id. derive supplies the
// address book's script derivation (see addrbook.DeriveFunc); coinView
// may be nil, in which case chainview.NoCoinView is used and inputs
// spending credits this wallet never recorded are conservatively
// treated as foreign. onNotify may be nil to disable notifications.
func New(id string, derive addrbook.DeriveFunc, coinView chainview.CoinView, onNotify NotifyFunc) *Wallet {
	if coinView == nil {
		coinView = chainview.NoCoinView
	}
	return &Wallet{
		id:       id,
		book:     addrbook.NewBook(derive),
		credits:  creditmgr.New(),
		ledger:   balance.NewLedger(),
		journal:  journal.New(),
		coinView: coinView,
		onNotify: onNotify,
		accounts: make(map[string]struct{}),
	}
}

// CreateAccount registers a new account with the given receive/change
// lookahead.
func (w *Wallet) CreateAccount(name string, lookahead uint32) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	id := addrbook.AccountID{WalletID: w.id, Name: name}
	if err := w.book.CreateAccount(id, lookahead); err != nil {
		return mapBookErr(err)
	}
	w.accounts[name] = struct{}{}
	return nil
}

// CreateReceive hands out the next receive index for account without
// advancing its receive depth.
func (w *Wallet) CreateReceive(account string) (uint32, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	id := addrbook.AccountID{WalletID: w.id, Name: account}
	idx, err := w.book.CreateReceive(id)
	if err != nil {
		return 0, mapBookErr(err)
	}
	return idx, nil
}

// Discover explicitly advances account's receive depth by ahead
// positions beyond its current depth and sweeps the journal for any
// transaction that touches the newly opened addresses, exactly as the
// automatic discovery hooks would after observing a live event. It is
// the manual counterpart described in component F.
func (w *Wallet) Discover(account string, ahead uint32) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if ahead == 0 {
		return nil
	}
	id := addrbook.AccountID{WalletID: w.id, Name: account}
	depth, err := w.book.Depth(id, addrbook.BranchReceive)
	if err != nil {
		return mapBookErr(err)
	}

	retro, lookaheadErr := w.advanceAndCollectRetro(addrbook.Ownership{
		Account: id,
		Branch:  addrbook.BranchReceive,
		Index:   depth + ahead - 1,
	})
	if len(retro) > 0 {
		if err := w.applyRetroCredits(retro); err != nil {
			return err
		}
	}
	if lookaheadErr != nil {
		log.Warnf("discover: %v", lookaheadErr)
		return lookaheadErr
	}
	return nil
}

// GetBalance returns scope's cached six-tuple. Balance reads never
// fail: an unknown scope simply reads as the zero tuple.
func (w *Wallet) GetBalance(scope balance.Scope) balance.SixTuple {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return w.ledger.Get(scope)
}

// RecalculateBalances rebuilds every known scope's cached tuple from
// the credit store directly, discarding whatever the delta pipeline
// had accumulated. This is the production recompute path; VerifyInvariants
// is the test/debug assertion of the same ground truth.
func (w *Wallet) RecalculateBalances() {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	for name := range w.accounts {
		id := addrbook.AccountID{WalletID: w.id, Name: name}
		w.ledger.Set(balance.AccountScope(w.id, name), rescan.RecomputeAccount(w.credits, id))
	}
	w.ledger.Set(balance.WalletScope(w.id), rescan.RecomputeWallet(w.credits, w.id))
}

// VerifyInvariants recomputes ground truth for every known scope and
// compares it against the cached tuple (B3), also checking containment
// (B1) on both. The first mismatch found is returned as a
// KindInvariantViolation error; the caller is expected to quarantine
// the wallet and schedule RecalculateBalances.
func (w *Wallet) VerifyInvariants() error {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	for name := range w.accounts {
		id := addrbook.AccountID{WalletID: w.id, Name: name}
		scope := balance.AccountScope(w.id, name)
		cached := w.ledger.Get(scope)
		recomputed := rescan.RecomputeAccount(w.credits, id)
		if err := rescan.VerifyInvariants(recomputed, &cached); err != nil {
			return engineError(KindInvariantViolation, "account "+name+" failed invariant check", err)
		}
	}

	walletScope := balance.WalletScope(w.id)
	cached := w.ledger.Get(walletScope)
	recomputed := rescan.RecomputeWallet(w.credits, w.id)
	if err := rescan.VerifyInvariants(recomputed, &cached); err != nil {
		return engineError(KindInvariantViolation, "wallet failed invariant check", err)
	}
	return nil
}

// Zap erases every pending transaction touching account that was first
// seen before cutoff, the way a wallet forgets stale unconfirmed
// transactions it no longer expects to be relayed.
func (w *Wallet) Zap(account string, cutoff time.Time) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	scope := balance.AccountScope(w.id, account)
	for _, e := range w.journal.PendingBefore(cutoff) {
		touched := false
		for _, s := range e.TouchedScopes() {
			if s == scope {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		if err := w.onErase(e.Tx.Hash); err != nil {
			return err
		}
	}
	return nil
}
