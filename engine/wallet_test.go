// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/hnswallet/walletcore/addrbook"
	"github.com/hnswallet/walletcore/balance"
	"github.com/hnswallet/walletcore/chainview"
	"github.com/hnswallet/walletcore/covenant"
	"github.com/hnswallet/walletcore/engine"
)

const (
	initFund = 10_000_000
	hardFee  = 10_000
	blind1   = 1_000_000
	blind2   = 2_000_000
)

// deriveStub is a deterministic stand-in for the host's HD key
// derivation: distinct (account, branch, index) triples always produce
// distinct script hashes, and the same triple always reproduces the
// same one.
func deriveStub(id addrbook.AccountID, branch addrbook.Branch, index uint32) addrbook.ScriptHash {
	var sh addrbook.ScriptHash
	copy(sh[:], id.WalletID+"/"+id.Name)
	sh[20] = byte(branch)
	binary.BigEndian.PutUint32(sh[24:28], index)
	return sh
}

func txHash(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func foreignScriptHash(b byte) addrbook.ScriptHash {
	var sh addrbook.ScriptHash
	sh[31] = b
	return sh
}

func none(value int64) chainview.TxOut {
	return chainview.TxOut{Value: value, Covenant: covenant.Output{Type: covenant.TypeNone}}
}

// newFundedWallet creates a wallet with a single "default" account and
// funds it with a confirmed-insert genesis credit of initFund, bringing
// every scope to the spec's canonical initial tuple (1,1,1e7,1e7,0,0).
func newFundedWallet(t *testing.T, walletID string, lookahead uint32) (*engine.Wallet, addrbook.AccountID, chainhash.Hash) {
	t.Helper()

	w := engine.New(walletID, deriveStub, nil, nil)
	acct := addrbook.AccountID{WalletID: walletID, Name: "default"}
	require.NoError(t, w.CreateAccount("default", lookahead))

	genesis := chainview.Tx{
		Hash: txHash(1),
		Outputs: []chainview.TxOut{
			withScriptHash(none(initFund), deriveStub(acct, addrbook.BranchReceive, 0)),
		},
	}
	require.NoError(t, w.OnConfirm(genesis, 1, 0))

	want := balance.SixTuple{Tx: 1, Coin: 1, Confirmed: initFund, Unconfirmed: initFund}
	require.Equal(t, want, w.GetBalance(balance.AccountScope(walletID, "default")))
	require.Equal(t, want, w.GetBalance(balance.WalletScope(walletID)))

	return w, acct, genesis.Hash
}

func withScriptHash(out chainview.TxOut, sh addrbook.ScriptHash) chainview.TxOut {
	out.ScriptHash = [32]byte(sh)
	return out
}

func lockedBid(value int64) chainview.TxOut {
	return chainview.TxOut{Value: value, Covenant: covenant.Output{Type: covenant.TypeBid}}
}

func lockedReveal(value int64) chainview.TxOut {
	return chainview.TxOut{Value: value, Covenant: covenant.Output{Type: covenant.TypeReveal}}
}

// TestScenario1NormalReceiveNoDiscovery reproduces spec.md §8 scenario 1
// literally: a receive with one output inside the lookahead window and
// one outside it, with no discovery ever bringing the second into view.
func TestScenario1NormalReceiveNoDiscovery(t *testing.T) {
	w, acct, _ := newFundedWallet(t, "w1", 2)
	scope := balance.AccountScope("w1", "default")

	tx := chainview.Tx{
		Hash: txHash(2),
		Outputs: []chainview.TxOut{
			withScriptHash(none(2_000_000), deriveStub(acct, addrbook.BranchReceive, 1)),
			withScriptHash(none(3_000_000), foreignScriptHash(0xFE)),
		},
	}

	require.NoError(t, w.OnInsertPending(tx, time.Time{}))
	require.Equal(t, balance.SixTuple{Tx: 2, Coin: 2, Confirmed: initFund, Unconfirmed: 12_000_000},
		w.GetBalance(scope))

	require.NoError(t, w.OnConfirm(tx, 2, 0))
	require.Equal(t, balance.SixTuple{Tx: 2, Coin: 2, Confirmed: 12_000_000, Unconfirmed: 12_000_000},
		w.GetBalance(scope))

	require.NoError(t, w.OnUnconfirm(tx.Hash))
	require.Equal(t, balance.SixTuple{Tx: 2, Coin: 2, Confirmed: initFund, Unconfirmed: 12_000_000},
		w.GetBalance(scope))

	require.NoError(t, w.OnErase(tx.Hash))
	require.Equal(t, balance.SixTuple{Tx: 1, Coin: 1, Confirmed: initFund, Unconfirmed: initFund},
		w.GetBalance(scope))
	require.NoError(t, w.VerifyInvariants())
}

// TestScenario2DiscoverBeforeConfirm reproduces spec.md §8 scenario 2:
// the same setup as scenario 1, except the wallet explicitly discovers
// the gap-missed output before the transaction confirms, so the second
// output counts from that point on.
func TestScenario2DiscoverBeforeConfirm(t *testing.T) {
	w, acct, _ := newFundedWallet(t, "w2", 2)
	scope := balance.AccountScope("w2", "default")

	farOwnership := addrbook.Ownership{Account: acct, Branch: addrbook.BranchReceive, Index: 5}
	tx := chainview.Tx{
		Hash: txHash(2),
		Outputs: []chainview.TxOut{
			withScriptHash(none(2_000_000), deriveStub(acct, addrbook.BranchReceive, 1)),
			withScriptHash(none(3_000_000), deriveStub(farOwnership.Account, farOwnership.Branch, farOwnership.Index)),
		},
	}

	require.NoError(t, w.OnInsertPending(tx, time.Time{}))
	require.Equal(t, balance.SixTuple{Tx: 2, Coin: 2, Confirmed: initFund, Unconfirmed: 12_000_000},
		w.GetBalance(scope))

	// Bring index 5 into the window before the transaction confirms.
	require.NoError(t, w.Discover("default", 4))
	require.Equal(t, balance.SixTuple{Tx: 2, Coin: 3, Confirmed: initFund, Unconfirmed: 15_000_000},
		w.GetBalance(scope))

	require.NoError(t, w.OnConfirm(tx, 2, 0))
	require.Equal(t, balance.SixTuple{Tx: 2, Coin: 3, Confirmed: 15_000_000, Unconfirmed: 15_000_000},
		w.GetBalance(scope))

	require.NoError(t, w.OnUnconfirm(tx.Hash))
	require.Equal(t, balance.SixTuple{Tx: 2, Coin: 3, Confirmed: initFund, Unconfirmed: 15_000_000},
		w.GetBalance(scope))

	require.NoError(t, w.OnErase(tx.Hash))
	require.Equal(t, balance.SixTuple{Tx: 1, Coin: 1, Confirmed: initFund, Unconfirmed: initFund},
		w.GetBalance(scope))
	require.NoError(t, w.VerifyInvariants())
}

// TestScenario3BidWithGapMiss reproduces spec.md §8 scenario 3: a BID
// transaction locks BLIND1 into a recognized address while BLIND2 is
// sent to a gap-missed address the wallet never discovers, so it is
// spent but never re-credited.
func TestScenario3BidWithGapMiss(t *testing.T) {
	w, acct, genesisHash := newFundedWallet(t, "w3", 2)
	scope := balance.AccountScope("w3", "default")

	change := int64(initFund) - hardFee - blind1 - blind2
	tx := chainview.Tx{
		Hash:   txHash(2),
		Inputs: []chainview.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: genesisHash, Index: 0}}},
		Outputs: []chainview.TxOut{
			withScriptHash(lockedBid(blind1), deriveStub(acct, addrbook.BranchReceive, 1)),
			withScriptHash(lockedBid(blind2), foreignScriptHash(0xFD)),
			withScriptHash(none(change), deriveStub(acct, addrbook.BranchReceive, 0)),
		},
	}

	require.NoError(t, w.OnInsertPending(tx, time.Time{}))
	got := w.GetBalance(scope)
	require.EqualValues(t, 2, got.Tx)
	require.EqualValues(t, 2, got.Coin)
	require.EqualValues(t, 0, got.Confirmed,
		"spending the confirmed genesis coin removes it from confirmed immediately, even while the spender is still pending")
	require.EqualValues(t, initFund-hardFee-blind2, got.Unconfirmed)
	require.EqualValues(t, 0, got.LockedConfirmed)
	require.EqualValues(t, blind1, got.LockedUnconfirmed)
	require.NoError(t, w.VerifyInvariants(), "cached confirmed must already match ground truth in the pending-spend window")

	require.NoError(t, w.OnConfirm(tx, 2, 0))
	got = w.GetBalance(scope)
	require.Equal(t, got.Unconfirmed, got.Confirmed, "confirm mirrors the pending pair once the tx is mined")
	require.Equal(t, got.LockedUnconfirmed, got.LockedConfirmed)
	require.EqualValues(t, blind1, got.LockedConfirmed)

	require.NoError(t, w.OnUnconfirm(tx.Hash))
	require.NoError(t, w.OnErase(tx.Hash))
	require.Equal(t, balance.SixTuple{Tx: 1, Coin: 1, Confirmed: initFund, Unconfirmed: initFund},
		w.GetBalance(scope))
	require.NoError(t, w.VerifyInvariants())
}

// TestScenario4RevealUnlocksBlind reproduces spec.md §8 scenario 4: from
// a confirmed BID, a REVEAL spends the locked BID output, locking only
// the true bid value and releasing the blinding remainder unlocked.
func TestScenario4RevealUnlocksBlind(t *testing.T) {
	w, acct, genesisHash := newFundedWallet(t, "w4", 2)
	scope := balance.AccountScope("w4", "default")

	const bidValue = 250_000

	bidTx := chainview.Tx{
		Hash:   txHash(2),
		Inputs: []chainview.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: genesisHash, Index: 0}}},
		Outputs: []chainview.TxOut{
			withScriptHash(lockedBid(blind1), deriveStub(acct, addrbook.BranchReceive, 1)),
			withScriptHash(none(int64(initFund)-hardFee-blind1), deriveStub(acct, addrbook.BranchReceive, 0)),
		},
	}
	require.NoError(t, w.OnConfirm(bidTx, 2, 0))
	beforeReveal := w.GetBalance(scope)
	require.EqualValues(t, blind1, beforeReveal.LockedConfirmed)

	revealTx := chainview.Tx{
		Hash:   txHash(3),
		Inputs: []chainview.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: bidTx.Hash, Index: 0}}},
		Outputs: []chainview.TxOut{
			withScriptHash(lockedReveal(bidValue), deriveStub(acct, addrbook.BranchReceive, 2)),
			withScriptHash(none(blind1-bidValue-hardFee), deriveStub(acct, addrbook.BranchReceive, 3)),
		},
	}
	require.NoError(t, w.OnConfirm(revealTx, 3, 0))

	after := w.GetBalance(scope)
	require.EqualValues(t, bidValue, after.LockedConfirmed,
		"reveal retires the full BLIND lock and replaces it with only the true bid value")
	require.EqualValues(t, beforeReveal.Confirmed-hardFee, after.Confirmed)
	require.NoError(t, after.CheckContainment())
	require.NoError(t, w.VerifyInvariants())
}

// TestScenario5CrossAccountBid reproduces spec.md §8 scenario 5: a bid
// funded from the default account locks its blind value into a
// different account of the same wallet. The wallet-level tx count
// increments once even though two account scopes are touched.
func TestScenario5CrossAccountBid(t *testing.T) {
	w, defaultAcct, genesisHash := newFundedWallet(t, "w5", 2)
	require.NoError(t, w.CreateAccount("alt", 2))
	altAcct := addrbook.AccountID{WalletID: "w5", Name: "alt"}

	change := int64(initFund) - hardFee - blind1 - blind2
	tx := chainview.Tx{
		Hash:   txHash(2),
		Inputs: []chainview.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: genesisHash, Index: 0}}},
		Outputs: []chainview.TxOut{
			withScriptHash(lockedBid(blind1), deriveStub(altAcct, addrbook.BranchReceive, 0)),
			withScriptHash(none(blind2), foreignScriptHash(0xFC)),
			withScriptHash(none(change), deriveStub(defaultAcct, addrbook.BranchReceive, 0)),
		},
	}
	require.NoError(t, w.OnInsertPending(tx, time.Time{}))

	defaultGot := w.GetBalance(balance.AccountScope("w5", "default"))
	require.EqualValues(t, 2, defaultGot.Tx)
	require.EqualValues(t, initFund-hardFee-blind1-blind2, defaultGot.Unconfirmed)
	require.EqualValues(t, 0, defaultGot.Confirmed,
		"the genesis coin this tx spends was confirmed; it leaves confirmed the moment it is spent, before this tx itself ever confirms")

	altGot := w.GetBalance(balance.AccountScope("w5", "alt"))
	require.EqualValues(t, 1, altGot.Tx)
	require.EqualValues(t, blind1, altGot.Unconfirmed)
	require.EqualValues(t, blind1, altGot.LockedUnconfirmed)

	walletGot := w.GetBalance(balance.WalletScope("w5"))
	require.EqualValues(t, 2, walletGot.Tx, "the wallet-level tx count dedups across the two touched accounts")
	require.NoError(t, w.VerifyInvariants())
}

// TestScenario6ReorgRoundTrip reproduces spec.md §8 scenario 6: for any
// confirmed transaction, unconfirming it and reconfirming it at the same
// height reproduces the snapshot taken just before the unconfirm,
// bit-exactly.
func TestScenario6ReorgRoundTrip(t *testing.T) {
	w, acct, _ := newFundedWallet(t, "w6", 2)
	scope := balance.AccountScope("w6", "default")

	tx := chainview.Tx{
		Hash: txHash(2),
		Outputs: []chainview.TxOut{
			withScriptHash(none(2_000_000), deriveStub(acct, addrbook.BranchReceive, 1)),
		},
	}
	require.NoError(t, w.OnConfirm(tx, 5, 0))

	snapshot := w.GetBalance(scope)

	require.NoError(t, w.OnUnconfirm(tx.Hash))
	require.NotEqual(t, snapshot, w.GetBalance(scope))

	require.NoError(t, w.OnConfirm(tx, 5, 0))
	require.Equal(t, snapshot, w.GetBalance(scope), "reconfirming at the same height must reproduce the snapshot exactly")
	require.NoError(t, w.VerifyInvariants())
}

// TestReorgRoundTripWithSpentConfirmedInput extends scenario 6's
// unconfirm/reconfirm round trip to a transaction that spends the
// wallet's own confirmed genesis credit. The spent credit leaves
// confirmed the moment it is spent (at InsertPending/Confirm time) and
// never returns while the spending transaction still exists, so
// unconfirming must not accidentally restore it; reconfirming at the
// same height must still reproduce the pre-unconfirm snapshot exactly.
func TestReorgRoundTripWithSpentConfirmedInput(t *testing.T) {
	w, acct, genesisHash := newFundedWallet(t, "w10", 2)
	scope := balance.AccountScope("w10", "default")

	tx := chainview.Tx{
		Hash:   txHash(2),
		Inputs: []chainview.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: genesisHash, Index: 0}}},
		Outputs: []chainview.TxOut{
			withScriptHash(none(int64(initFund)-hardFee), deriveStub(acct, addrbook.BranchReceive, 1)),
		},
	}
	require.NoError(t, w.OnConfirm(tx, 5, 0))

	snapshot := w.GetBalance(scope)
	require.EqualValues(t, initFund-hardFee, snapshot.Confirmed)
	require.NoError(t, w.VerifyInvariants())

	require.NoError(t, w.OnUnconfirm(tx.Hash))
	unconfirmed := w.GetBalance(scope)
	require.NotEqual(t, snapshot, unconfirmed)
	require.EqualValues(t, 0, unconfirmed.Confirmed,
		"the spent genesis credit does not come back just because its spender unconfirmed")
	require.NoError(t, w.VerifyInvariants())

	require.NoError(t, w.OnConfirm(tx, 5, 0))
	require.Equal(t, snapshot, w.GetBalance(scope), "reconfirming at the same height must reproduce the snapshot exactly")
	require.NoError(t, w.VerifyInvariants())
}

// TestRevertToUnconfirmsOnlyAboveHeight exercises RevertTo with two
// confirmed transactions at heights 10 and 11: reverting to height 10
// returns only the one at height 11 to pending and leaves the other
// confirmed. The unconfirm order itself is checked by the journal's
// ReorgVictims test.
func TestRevertToUnconfirmsOnlyAboveHeight(t *testing.T) {
	w, acct, _ := newFundedWallet(t, "w7", 2)
	scope := balance.AccountScope("w7", "default")

	txA := chainview.Tx{
		Hash:    txHash(2),
		Outputs: []chainview.TxOut{withScriptHash(none(1_000_000), deriveStub(acct, addrbook.BranchReceive, 1))},
	}
	txB := chainview.Tx{
		Hash:    txHash(3),
		Outputs: []chainview.TxOut{withScriptHash(none(500_000), deriveStub(acct, addrbook.BranchReceive, 2))},
	}
	require.NoError(t, w.OnConfirm(txA, 10, 0))
	require.NoError(t, w.OnConfirm(txB, 11, 0))

	require.NoError(t, w.RevertTo(10))

	got := w.GetBalance(scope)
	require.EqualValues(t, initFund+1_000_000, got.Confirmed, "txA remains confirmed at height 10")
	require.EqualValues(t, initFund+1_000_000+500_000, got.Unconfirmed, "txB is still counted, just pending again")
	require.NoError(t, w.VerifyInvariants())
}

// TestRescanReplayDoesNotDoubleCount guards the fix for Rescan's replay
// path: replaying an already-confirmed transaction at its recorded
// height must not re-apply its confirmed-column delta a second time.
func TestRescanReplayDoesNotDoubleCount(t *testing.T) {
	w, acct, _ := newFundedWallet(t, "w8", 2)
	scope := balance.AccountScope("w8", "default")

	tx := chainview.Tx{
		Hash:    txHash(2),
		Outputs: []chainview.TxOut{withScriptHash(none(2_000_000), deriveStub(acct, addrbook.BranchReceive, 1))},
	}
	require.NoError(t, w.OnConfirm(tx, 4, 0))
	before := w.GetBalance(scope)

	require.NoError(t, w.Rescan(0))
	require.NoError(t, w.Rescan(0))

	require.Equal(t, before, w.GetBalance(scope), "rescanning an already-confirmed tx must be a no-op")
	require.NoError(t, w.VerifyInvariants())
}

// TestZapErasesOnlyPendingTransactionsTouchingTheAccount checks that Zap
// leaves confirmed transactions and other accounts' pending transactions
// untouched.
func TestZapErasesOnlyPendingTransactionsTouchingTheAccount(t *testing.T) {
	w, acct, _ := newFundedWallet(t, "w9", 2)
	require.NoError(t, w.CreateAccount("alt", 2))
	altAcct := addrbook.AccountID{WalletID: "w9", Name: "alt"}

	stale := chainview.Tx{
		Hash:    txHash(2),
		Outputs: []chainview.TxOut{withScriptHash(none(1_000_000), deriveStub(acct, addrbook.BranchReceive, 1))},
	}
	fresh := chainview.Tx{
		Hash:    txHash(3),
		Outputs: []chainview.TxOut{withScriptHash(none(1_000_000), deriveStub(altAcct, addrbook.BranchReceive, 0))},
	}

	cutoff := time.Now()
	require.NoError(t, w.OnInsertPending(stale, cutoff.Add(-time.Hour)))
	require.NoError(t, w.OnInsertPending(fresh, cutoff.Add(time.Hour)))

	require.NoError(t, w.Zap("default", cutoff))

	require.Equal(t, balance.SixTuple{Tx: 1, Coin: 1, Confirmed: initFund, Unconfirmed: initFund},
		w.GetBalance(balance.AccountScope("w9", "default")))
	require.EqualValues(t, 1_000_000, w.GetBalance(balance.AccountScope("w9", "alt")).Unconfirmed)
	require.NoError(t, w.VerifyInvariants())
}
