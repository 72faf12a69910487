// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package il

import "fmt"

// MalformedProgramError reports the first instruction at which a program
// failed construction-time invariant checks. It is never silently repaired.
type MalformedProgramError struct {
	Index  int
	Reason string
}

func (e *MalformedProgramError) Error() string {
	return fmt.Sprintf("malformed program: instruction #%v: %v", e.Index, e.Reason)
}

func malformed(index int, format string, args ...interface{}) error {
	return &MalformedProgramError{Index: index, Reason: fmt.Sprintf(format, args...)}
}

// UnknownVariableError reports a def-use query for a variable that does not
// occur in the indexed program. It usually indicates a caller mixing
// variables across two different Program instances.
type UnknownVariableError struct {
	Var Var
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable v%v in this program", uint32(e.Var))
}

// InvalidRewriteError reports that a rewrite produced a structurally invalid
// program, or that the emission plan itself was unusable. The invalid
// program is never returned.
type InvalidRewriteError struct {
	Reason string
	Err    error // underlying MalformedProgramError, if any
}

func (e *InvalidRewriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid rewrite: %v: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid rewrite: %v", e.Reason)
}

func (e *InvalidRewriteError) Unwrap() error {
	return e.Err
}
