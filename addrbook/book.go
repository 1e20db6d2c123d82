// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addrbook implements the address book and gap-limit deriver
// (component B of the balance engine): per-account receive/change depth
// bookkeeping, and the owner lookup that tells the rest of the engine
// whether an arbitrary output belongs to one of the wallet's accounts.
//
// Deriving the actual script for a given (account, branch, index) is a
// key-derivation concern and is out of scope here (see spec.md §1); the
// book is constructed with a DeriveFunc collaborator that stands in for
// the host's HD derivation, mirroring how waddrmgr.Manager is handed a
// net.Params and leaves script construction to its ManagedAddress types.
package addrbook

import (
	"sync"
)

// Branch distinguishes the receive (external) and change (internal)
// halves of an account's derivation tree.
type Branch uint8

const (
	BranchReceive Branch = iota
	BranchChange
)

func (b Branch) String() string {
	switch b {
	case BranchReceive:
		return "receive"
	case BranchChange:
		return "change"
	default:
		return "unknown"
	}
}

// AccountID identifies an account within a wallet.
type AccountID struct {
	WalletID string
	Name     string
}

// Ownership is the result of a successful ownerOf lookup.
type Ownership struct {
	Account AccountID
	Branch  Branch
	Index   uint32
}

// ScriptHash identifies a derived address. Two addresses are the same
// iff their script hashes match.
type ScriptHash [32]byte

// DeriveFunc produces the deterministic script hash for a given
// (account, branch, index). It is supplied by the host; the book never
// constructs scripts itself.
type DeriveFunc func(AccountID, Branch, uint32) ScriptHash

type branchState struct {
	depth    uint32 // receiveDepth or changeDepth
	ceiling  uint32 // 0 means unbounded
}

type accountInfo struct {
	lookahead uint32
	receive   branchState
	change    branchState
}

func (ai *accountInfo) state(branch Branch) *branchState {
	if branch == BranchChange {
		return &ai.change
	}
	return &ai.receive
}

// Book is the concurrency-safe address book for a single wallet. All
// accounts of a wallet share one Book, mirroring waddrmgr.Manager's
// single mutex guarding every account's accountInfo.
type Book struct {
	mtx      sync.RWMutex
	derive   DeriveFunc
	accounts map[AccountID]*accountInfo
	index    map[ScriptHash]Ownership
}

// NewBook creates an empty address book that uses derive to compute
// script hashes for indices it needs to bring into the lookahead
// window.
func NewBook(derive DeriveFunc) *Book {
	return &Book{
		derive:   derive,
		accounts: make(map[AccountID]*accountInfo),
		index:    make(map[ScriptHash]Ownership),
	}
}

// CreateAccount registers a new account with the given lookahead window
// and immediately derives its initial window (indices [0, lookahead) on
// both branches), matching the gap limit a freshly created account
// starts with before anything has been received.
func (b *Book) CreateAccount(id AccountID, lookahead uint32) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if _, ok := b.accounts[id]; ok {
		return bookError(ErrAccountExists, "account already exists", nil)
	}
	if lookahead == 0 {
		lookahead = 1
	}
	ai := &accountInfo{lookahead: lookahead}
	b.accounts[id] = ai

	b.deriveWindowLocked(id, ai, BranchReceive)
	b.deriveWindowLocked(id, ai, BranchChange)
	return nil
}

// SetLookaheadCeiling bounds how far receiveDepth/changeDepth may
// advance for an account. A ceiling of 0 means unbounded. Setting it
// only takes effect on future AdvanceDepth calls.
func (b *Book) SetLookaheadCeiling(id AccountID, branch Branch, ceiling uint32) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	ai, ok := b.accounts[id]
	if !ok {
		return bookError(ErrAccountNotFound, "unknown account", nil)
	}
	ai.state(branch).ceiling = ceiling
	return nil
}

// deriveWindowLocked derives and inserts every address in
// [0, depth+lookahead) for branch that is not already indexed. Callers
// must hold b.mtx for writing.
func (b *Book) deriveWindowLocked(id AccountID, ai *accountInfo, branch Branch) []Ownership {
	st := ai.state(branch)
	end := st.depth + ai.lookahead

	var added []Ownership
	for i := uint32(0); i < end; i++ {
		sh := b.derive(id, branch, i)
		if _, exists := b.index[sh]; exists {
			continue
		}
		own := Ownership{Account: id, Branch: branch, Index: i}
		b.index[sh] = own
		added = append(added, own)
	}
	return added
}

// EnsureIndex derives and inserts addresses up to index inclusive for
// the given account/branch. It is idempotent: calling it twice with the
// same or a smaller index is a no-op the second time.
func (b *Book) EnsureIndex(id AccountID, branch Branch, index uint32) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	ai, ok := b.accounts[id]
	if !ok {
		return bookError(ErrAccountNotFound, "unknown account", nil)
	}
	st := ai.state(branch)
	if index+1 > st.depth+ai.lookahead {
		// Derive the indices between the current window end and the
		// requested index directly; depth itself is untouched (that is
		// AdvanceDepth's job).
		want := index + 1
		for i := st.depth + ai.lookahead; i < want; i++ {
			sh := b.derive(id, branch, i)
			if _, exists := b.index[sh]; !exists {
				b.index[sh] = Ownership{Account: id, Branch: branch, Index: i}
			}
		}
	}
	return nil
}

// AdvanceDepth sets depth to max(current, index+1) and extends the
// indexed window to depth+lookahead-1, per the component B contract:
// after AdvanceDepth(_, i), ownerOf recognizes every address with index
// <= i+lookahead.
//
// If a configured ceiling would be exceeded, depth is clamped to the
// ceiling, the window is extended only that far, and a LookaheadExhausted
// error is returned alongside the (possibly empty) set of newly indexed
// addresses: the caller must still apply whatever was newly indexed
// before surfacing the error, matching the "event is still applied"
// contract in the engine's error handling design.
func (b *Book) AdvanceDepth(id AccountID, branch Branch, index uint32) ([]Ownership, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	ai, ok := b.accounts[id]
	if !ok {
		return nil, bookError(ErrAccountNotFound, "unknown account", nil)
	}
	st := ai.state(branch)

	wanted := index + 1
	if wanted <= st.depth {
		return nil, nil
	}

	var exhausted bool
	if st.ceiling != 0 && wanted > st.ceiling {
		wanted = st.ceiling
		exhausted = true
		if wanted <= st.depth {
			return nil, bookError(ErrLookaheadExhausted,
				"lookahead ceiling reached", nil)
		}
	}

	st.depth = wanted
	added := b.deriveWindowLocked(id, ai, branch)

	if exhausted {
		return added, bookError(ErrLookaheadExhausted,
			"lookahead ceiling reached", nil)
	}
	return added, nil
}

// OwnerOf reports the account/branch/index owning scriptHash, or false
// if the address is outside every account's current lookahead window
// (i.e. foreign, or not yet discoverable).
func (b *Book) OwnerOf(sh ScriptHash) (Ownership, bool) {
	b.mtx.RLock()
	defer b.mtx.RUnlock()

	own, ok := b.index[sh]
	return own, ok
}

// Depth returns the current receive/change depth for an account, mainly
// for tests and invariant checks (receiveDepth/changeDepth in the data
// model).
func (b *Book) Depth(id AccountID, branch Branch) (uint32, error) {
	b.mtx.RLock()
	defer b.mtx.RUnlock()

	ai, ok := b.accounts[id]
	if !ok {
		return 0, bookError(ErrAccountNotFound, "unknown account", nil)
	}
	return ai.state(branch).depth, nil
}

// ScriptHashOf recomputes the script hash for an Ownership. It is a
// pure function of derive and is used by the discovery engine to map a
// newly in-window Ownership back to the script hash it must search the
// journal for, without the book needing to keep its own reverse index.
func (b *Book) ScriptHashOf(own Ownership) ScriptHash {
	return b.derive(own.Account, own.Branch, own.Index)
}

// CreateReceive derives (if needed) and returns the next receive index
// for an account without advancing receiveDepth: receiveDepth only
// advances when an output at that index is actually observed (see
// AdvanceDepth), not merely when an address is handed out.
func (b *Book) CreateReceive(id AccountID) (uint32, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	ai, ok := b.accounts[id]
	if !ok {
		return 0, bookError(ErrAccountNotFound, "unknown account", nil)
	}
	next := ai.receive.depth
	b.deriveWindowLocked(id, ai, BranchReceive)
	return next, nil
}
