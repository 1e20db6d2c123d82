// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package discovery_test

import (
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/hnswallet/walletcore/addrbook"
	"github.com/hnswallet/walletcore/chainview"
	"github.com/hnswallet/walletcore/covenant"
	"github.com/hnswallet/walletcore/discovery"
	"github.com/hnswallet/walletcore/journal"
)

func deriveStub(id addrbook.AccountID, branch addrbook.Branch, index uint32) addrbook.ScriptHash {
	var sh addrbook.ScriptHash
	copy(sh[:], id.WalletID+"/"+id.Name)
	sh[20] = byte(branch)
	binary.BigEndian.PutUint32(sh[24:28], index)
	return sh
}

func TestSweepFindsPreviouslyForeignOutputNowInWindow(t *testing.T) {
	book := addrbook.NewBook(deriveStub)
	acct := addrbook.AccountID{WalletID: "w", Name: "default"}
	require.NoError(t, book.CreateAccount(acct, 2))

	j := journal.New()

	// A transaction pays to receive index 5, well outside the initial
	// [0,2) window, so it is journaled but not recognized as owned.
	farOwnership := addrbook.Ownership{Account: acct, Branch: addrbook.BranchReceive, Index: 5}
	sh := book.ScriptHashOf(farOwnership)

	var hash chainhash.Hash
	hash[0] = 0xAB
	tx := chainview.Tx{
		Hash: hash,
		Outputs: []chainview.TxOut{
			{Value: 3_000_000, ScriptHash: [32]byte(sh)},
		},
	}
	j.Observe(tx)
	_, err := j.MarkConfirmed(tx.Hash, 42, 0)
	require.NoError(t, err)

	_, ok := book.OwnerOf(sh)
	require.False(t, ok)

	added, err := book.AdvanceDepth(acct, addrbook.BranchReceive, 5)
	require.NoError(t, err)
	require.NotEmpty(t, added)

	credits := discovery.Sweep(book, j, added)
	require.Len(t, credits, 1)
	require.Equal(t, tx.Hash, credits[0].TxHash)
	require.EqualValues(t, 3_000_000, credits[0].Value)
	require.True(t, credits[0].Confirmed)
	require.EqualValues(t, 42, credits[0].Height)
	require.Equal(t, covenant.ClassNone, credits[0].Class)
	require.Equal(t, farOwnership, credits[0].Owner)
}

func TestSweepFindsNothingWhenNoTxTouchesTheNewAddresses(t *testing.T) {
	book := addrbook.NewBook(deriveStub)
	acct := addrbook.AccountID{WalletID: "w", Name: "default"}
	require.NoError(t, book.CreateAccount(acct, 2))

	j := journal.New()
	added, err := book.AdvanceDepth(acct, addrbook.BranchReceive, 5)
	require.NoError(t, err)

	credits := discovery.Sweep(book, j, added)
	require.Empty(t, credits)
}
