package model

import "github.com/pkg/errors"

// Sentinel errors for the error kinds the store and pipeline surface.
// Callers compare with errors.Is after a potential errors.Wrapf, the
// same way the rest of the codebase wraps I/O failures with file name
// and operation context.
var (
	// ErrInputCorrupt covers malformed binary dumps, malformed XML, a
	// live way pointer with a zero node count, and polygon files missing
	// their "END" terminators.
	ErrInputCorrupt = errors.New("input corrupt")

	// ErrNotSupportedFormat is returned at the CLI boundary (the store
	// --import path) when a file extension isn't recognized.
	ErrNotSupportedFormat = errors.New("unsupported file format")

	// ErrMissingState is returned when planet/minute/state.txt is absent
	// at pipeline start.
	ErrMissingState = errors.New("missing state file; please install a valid state file")

	// ErrStateMalformed is returned when a state file has no
	// "sequenceNumber=" line.
	ErrStateMalformed = errors.New("state file has no sequenceNumber= line")

	// ErrIntegrityOverflow is returned when an id does not fit in 40 bits.
	ErrIntegrityOverflow = errors.New("id exceeds 40-bit packed width")

	// ErrElementMissing names the dangling-reference error kind. Store.Check
	// does not return it: it reports a dangling reference through its
	// CheckResult instead.
	ErrElementMissing = errors.New("referenced element is missing")
)
