// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package covenant implements the classifier for name-auction covenant
// outputs (component A of the balance engine). It is the only place in
// the module that reads a covenant's raw type and decides whether the
// output it tags is spendable, locked, or burned.
package covenant

import "fmt"

// Type is the closed set of covenant opcodes a name-auction output may
// carry. It is supplied by the host; this package never parses scripts.
type Type uint8

const (
	// TypeNone tags a plain, non-covenant output.
	TypeNone Type = iota
	TypeOpen
	TypeBid
	TypeReveal
	TypeRedeem
	TypeRegister
	TypeUpdate
	TypeRenew
	TypeTransfer
	TypeFinalize
	TypeRevoke
)

var typeStrings = map[Type]string{
	TypeNone:     "NONE",
	TypeOpen:     "OPEN",
	TypeBid:      "BID",
	TypeReveal:   "REVEAL",
	TypeRedeem:   "REDEEM",
	TypeRegister: "REGISTER",
	TypeUpdate:   "UPDATE",
	TypeRenew:    "RENEW",
	TypeTransfer: "TRANSFER",
	TypeFinalize: "FINALIZE",
	TypeRevoke:   "REVOKE",
}

// String returns the human-readable opcode name, or a placeholder for an
// opcode outside the enumerated set.
func (t Type) String() string {
	if s, ok := typeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// Known reports whether t is one of the enumerated covenant opcodes.
func (t Type) Known() bool {
	_, ok := typeStrings[t]
	return ok
}

// Output is the minimal covenant-bearing view Classify needs.
type Output struct {
	Type Type
}

// Class is the bucket Classify sorts an output into: spendable (None),
// locked pending an auction step, or permanently burned.
type Class uint8

const (
	// ClassNone is a spendable, unlocked credit.
	ClassNone Class = iota

	// ClassLockedOpen is reserved for a future covenant revision; the
	// current classifier never produces it (see Classify's doc comment
	// on the OPEN opcode). It is kept in the enum to match the closed
	// covenantClass set named by the data model.
	ClassLockedOpen

	ClassLockedBid
	ClassLockedReveal
	ClassLockedName
	ClassBurn
)

var classStrings = map[Class]string{
	ClassNone:         "none",
	ClassLockedOpen:   "lockedOpen",
	ClassLockedBid:    "lockedBid",
	ClassLockedReveal: "lockedReveal",
	ClassLockedName:   "lockedName",
	ClassBurn:         "burn",
}

func (c Class) String() string {
	if s, ok := classStrings[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// IsLocked reports whether a credit of this class contributes to the
// lockedConfirmed/lockedUnconfirmed balance columns.
func (c Class) IsLocked() bool {
	switch c {
	case ClassLockedOpen, ClassLockedBid, ClassLockedReveal, ClassLockedName:
		return true
	default:
		return false
	}
}

// Classify is total, deterministic, and depends only on the output's
// covenant type: the same input always produces the same class, and
// every Type value (enumerated or not) maps to some Class.
//
// An OPEN output classifies as None: it carries zero value and is not
// locked, even though the engine still records a credit for it (see the
// open question in the design notes on zero-value outputs). BID and
// REVEAL outputs lock their value until the auction resolves. The
// name-management opcodes (REGISTER, UPDATE, RENEW, TRANSFER, FINALIZE)
// all lock under the same class, since none of them release value back
// to the wallet. REDEEM returns a losing bid's value to None. REVOKE
// burns the name permanently but is still recorded as an ordinary,
// unlocked credit in this design.
//
// An opcode outside the enumerated set degrades to None rather than
// erroring; the caller (the engine package) is responsible for surfacing
// an UnknownCovenant warning when Type.Known() is false.
func Classify(o Output) Class {
	switch o.Type {
	case TypeOpen, TypeRedeem, TypeNone:
		return ClassNone
	case TypeBid:
		return ClassLockedBid
	case TypeReveal:
		return ClassLockedReveal
	case TypeRegister, TypeUpdate, TypeRenew, TypeTransfer, TypeFinalize:
		return ClassLockedName
	case TypeRevoke:
		return ClassBurn
	default:
		return ClassNone
	}
}
