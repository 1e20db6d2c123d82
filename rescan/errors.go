// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rescan

import "fmt"

// ErrorCode identifies a kind of error rescan/recompute can return.
type ErrorCode int

const (
	// ErrInvariantViolation indicates a recomputed six-tuple disagreed
	// with the cached one (B3), or a cached tuple failed the
	// containment check (B1).
	ErrInvariantViolation ErrorCode = iota
)

var errorCodeStrings = map[ErrorCode]string{
	ErrInvariantViolation: "ErrInvariantViolation",
}

func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can occur while
// recomputing or verifying balances.
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

func rescanError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
