package domain

import (
	"errors"
	"fmt"
)

// FailureReason classifies why a protocol-shaped message could not be decoded.
type FailureReason string

const (
	ReasonMalformedFrame FailureReason = "malformed_frame"
	ReasonMissingJSON    FailureReason = "missing_json"
	ReasonInvalidJSON    FailureReason = "invalid_json"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingJSON    = errors.New("no JSON body")
)

// ParseFailure is the non-fatal outcome of decoding a protocol message. Records
// carrying one are kept; the failure exists so callers can count and log it.
type ParseFailure struct {
	Reason FailureReason
	Err    error
}

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("parse frame: %s: %v", f.Reason, f.Err)
}

func (f *ParseFailure) Unwrap() error {
	return f.Err
}

func parseFailure(reason FailureReason, err error) *ParseFailure {
	return &ParseFailure{Reason: reason, Err: err}
}
