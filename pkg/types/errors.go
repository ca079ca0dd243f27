package types

import "errors"

var (
	// ErrInvalidEventIDLength indicates an encoded EventID of the wrong size.
	ErrInvalidEventIDLength = errors.New("types: invalid event id length")

	// ErrInvalidEventIDChar indicates an invalid Base32 character.
	ErrInvalidEventIDChar = errors.New("types: invalid event id character")
)
