// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package journal

import "fmt"

// ErrorCode identifies a kind of error the journal can return.
type ErrorCode int

const (
	// ErrTxNotFound indicates an operation named a transaction hash
	// the journal has no entry for.
	ErrTxNotFound ErrorCode = iota

	// ErrAlreadyErased indicates an operation was attempted against a
	// transaction that has already reached the terminal erased state.
	ErrAlreadyErased

	// ErrIllegalTransition indicates a state transition the journal's
	// state machine does not allow, such as erasing a confirmed
	// transaction directly.
	ErrIllegalTransition
)

var errorCodeStrings = map[ErrorCode]string{
	ErrTxNotFound:        "ErrTxNotFound",
	ErrAlreadyErased:      "ErrAlreadyErased",
	ErrIllegalTransition: "ErrIllegalTransition",
}

func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can occur during journal
// operation.
type Error struct {
	ErrorCode   ErrorCode
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

func journalError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
