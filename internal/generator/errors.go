package generator

import "errors"

var (
	// ErrSourceUnavailable marks a source whose fetch failed entirely.
	// The pipeline recovers by recording zero examples for it.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedRecord marks a raw record missing required fields.
	// The normalizer skips it; remaining records continue.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrEncodingFailure marks an export that could not serialize the
	// corpus. Other requested exports still run.
	ErrEncodingFailure = errors.New("encoding failure")
)
