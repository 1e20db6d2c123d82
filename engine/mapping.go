// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/hnswallet/walletcore/addrbook"
	"github.com/hnswallet/walletcore/journal"
)

// mapBookErr maps an addrbook.Error onto the engine's four-kind error
// surface. Every addrbook error kind the engine can encounter at
// runtime is a lookahead exhaustion or a caller mistake (unknown
// account), the latter of which is reported as an illegal transition:
// the caller asked the engine to act on an account it never created.
func mapBookErr(err error) Error {
	if err == nil {
		return Error{}
	}
	if be, ok := err.(addrbook.Error); ok {
		switch be.ErrorCode {
		case addrbook.ErrLookaheadExhausted:
			return engineError(KindLookaheadExhausted, be.Description, be.Err)
		default:
			return engineError(KindIllegalTransition, be.Description, be.Err)
		}
	}
	return engineError(KindIllegalTransition, err.Error(), err)
}

// mapJournalErr maps a journal.Error onto the engine's error surface.
// Every journal error the dispatcher can hit at runtime describes an
// illegal state transition or an event naming an unknown transaction.
func mapJournalErr(err error) error {
	if err == nil {
		return nil
	}
	if je, ok := err.(journal.Error); ok {
		return engineError(KindIllegalTransition, je.Description, je.Err)
	}
	return engineError(KindIllegalTransition, err.Error(), err)
}
