// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainview defines the minimal, chain-agnostic view of a
// transaction and its outputs that the balance engine consumes. The host
// node is responsible for translating its own block and mempool
// representations into these types; chainview never parses scripts or
// talks to a database.
package chainview

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/hnswallet/walletcore/covenant"
)

// TxIn is the minimal input view the engine needs: which output it
// spends. The host supplies this from the raw transaction; the engine
// never inspects witness or signature data.
type TxIn struct {
	PreviousOutPoint wire.OutPoint
}

// TxOut is the minimal output view the engine needs: its value and the
// covenant it carries, plus the script hash used to resolve ownership
// against the address book.
type TxOut struct {
	Value      int64
	Covenant   covenant.Output
	ScriptHash [32]byte
}

// Tx is the chain/mempool-agnostic transaction view fed to the engine by
// the host. Height and block position are carried alongside a Tx by the
// caller of the Engine API (see the engine package), not inside Tx
// itself, since the same Tx value is reused across Insert/Confirm/
// Unconfirm/Erase.
type Tx struct {
	Hash    chainhash.Hash
	Inputs  []TxIn
	Outputs []TxOut
}

// CoinView lets the host resolve the full previous output of an input
// being spent when the wallet has not itself recorded a credit for it
// (e.g. a credit that predates this process's memory of the chain).
// Without a CoinView, inputs spending unrecognized outputs are
// conservatively treated as foreign; see the engine package's ownership
// resolution and spec.md's non-goal on recovering input-side credit
// metadata from blocks with no coin view.
type CoinView interface {
	Resolve(op wire.OutPoint) (out TxOut, ok bool)
}

// NoCoinView is a CoinView that never resolves an outpoint. It is the
// default used when a host does not supply one.
var NoCoinView CoinView = noCoinView{}

type noCoinView struct{}

func (noCoinView) Resolve(wire.OutPoint) (TxOut, bool) {
	return TxOut{}, false
}
