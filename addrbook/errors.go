// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrbook

import "fmt"

// ErrorCode identifies a kind of error the address book can return.
type ErrorCode int

const (
	// ErrAccountExists indicates CreateAccount was called for an account
	// that already exists.
	ErrAccountExists ErrorCode = iota

	// ErrAccountNotFound indicates an operation named an account the
	// book has never seen.
	ErrAccountNotFound

	// ErrLookaheadExhausted indicates an index advanced past the
	// account's configured ceiling; see the engine package's
	// LookaheadExhausted error kind.
	ErrLookaheadExhausted
)

var errorCodeStrings = map[ErrorCode]string{
	ErrAccountExists:      "ErrAccountExists",
	ErrAccountNotFound:    "ErrAccountNotFound",
	ErrLookaheadExhausted: "ErrLookaheadExhausted",
}

func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can occur during address
// book operation.
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

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e Error) Unwrap() error {
	return e.Err
}

func bookError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
