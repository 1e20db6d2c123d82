// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import "fmt"

// Kind is one of the four error kinds the engine's external API
// surfaces, per the error handling design: each sub-package's narrow
// ErrorCode is mapped into one of these before it crosses the Engine
// API boundary.
type Kind int

const (
	// KindIllegalTransition reports an event that would move a
	// transaction through a state transition the journal does not
	// allow (e.g. erasing a confirmed transaction). It is reported to
	// the caller, never silently recovered.
	KindIllegalTransition Kind = iota

	// KindInvariantViolation reports that B1, B2, B3 or D1 failed to
	// hold. It is fatal for the wallet that raised it: the caller
	// should quarantine the wallet and schedule a full recompute.
	KindInvariantViolation

	// KindUnknownCovenant reports that an output carried a covenant
	// type the classifier does not recognize. Processing degrades to
	// treating the output as a plain, unlocked credit; this kind is
	// informational and does not abort the event.
	KindUnknownCovenant

	// KindLookaheadExhausted reports that an address book's configured
	// lookahead ceiling would have been exceeded. The event that
	// triggered it is still applied up to the ceiling; no further
	// discovery happens on that branch until the ceiling is raised.
	KindLookaheadExhausted
)

func (k Kind) String() string {
	switch k {
	case KindIllegalTransition:
		return "IllegalTransition"
	case KindInvariantViolation:
		return "InvariantViolation"
	case KindUnknownCovenant:
		return "UnknownCovenant"
	case KindLookaheadExhausted:
		return "LookaheadExhausted"
	default:
		return fmt.Sprintf("Unknown Kind (%d)", int(k))
	}
}

// Error is the single error type returned across the Engine API.
type Error struct {
	Kind        Kind
	Description string
	Err         error
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

func (e Error) Unwrap() error {
	return e.Err
}

func engineError(k Kind, desc string, err error) Error {
	return Error{Kind: k, Description: desc, Err: err}
}
