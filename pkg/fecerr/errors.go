// Package fecerr holds the failure outcomes shared by the coding and
// modulation packages.
package fecerr

import "errors"

var (
	// ErrInvalidArgument reports empty, mismatched or out-of-range inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDegenerate reports a decode whose terminal state was never reached
	// with a finite metric. The decoded output for such a trial is undefined.
	ErrDegenerate = errors.New("degenerate path metrics")
)
