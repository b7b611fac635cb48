package database

import (
	"errors"
	"fmt"
)

// Set of validation rules a block, transaction or chain can violate.
var (
	ErrHashMismatch         = errors.New("hash mismatch")
	ErrPrevHashMismatch     = errors.New("previous hash mismatch")
	ErrDifficultyNotMet     = errors.New("difficulty not met")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrChainDiscontinuity   = errors.New("chain discontinuity")
	ErrGenesisMismatch      = errors.New("genesis mismatch")
)

// ErrBlockNotFound is returned by storage when a block number is unknown.
var ErrBlockNotFound = errors.New("block not found")

// =============================================================================

// ValidationError names the rule a block failed and where. Use errors.Is
// with one of the rule errors above to test for a specific rule.
type ValidationError struct {
	Rule   error
	Index  uint64
	Detail string
}

func newValidationError(rule error, index uint64, format string, args ...any) error {
	return &ValidationError{
		Rule:   rule,
		Index:  index,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	if ve.Detail == "" {
		return fmt.Sprintf("block %d: %s", ve.Index, ve.Rule)
	}
	return fmt.Sprintf("block %d: %s: %s", ve.Index, ve.Rule, ve.Detail)
}

// Unwrap returns the rule that was violated.
func (ve *ValidationError) Unwrap() error {
	return ve.Rule
}
