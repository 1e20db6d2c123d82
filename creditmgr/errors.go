// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package creditmgr

import "fmt"

// ErrorCode identifies a kind of error the credit store can return.
type ErrorCode int

const (
	// ErrCreditNotFound indicates an operation named an outpoint with
	// no recorded credit.
	ErrCreditNotFound ErrorCode = iota

	// ErrCreditExists names the case of an outpoint that already has a
	// credit recorded. Store.Insert does not return it: it reports a
	// duplicate by returning false with a nil error.
	ErrCreditExists
)

var errorCodeStrings = map[ErrorCode]string{
	ErrCreditNotFound: "ErrCreditNotFound",
	ErrCreditExists:   "ErrCreditExists",
}

func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can occur during credit
// store operation.
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

func storeError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
