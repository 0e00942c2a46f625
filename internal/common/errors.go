// Package common defines the wallet-wide sentinel errors and small helpers
// shared by every layer of nutkeeper. Callers should use errors.Is to match
// these values; lower layers wrap them with context via fmt.Errorf("...: %w").
package common

import "errors"

var (
	// input errors
	ErrDecode          = errors.New("malformed token or proof")
	ErrInvalidMnemonic = errors.New("invalid seed phrase")
	ErrUnsupportedUnit = errors.New("token unit is not supported")

	// ledger errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownMint         = errors.New("mint is not configured")
	ErrMintInUse           = errors.New("mint still holds proofs")
	ErrLockMismatch        = errors.New("token is locked to a different key")

	// mint errors
	ErrAlreadySpent       = errors.New("proofs already spent")
	ErrClaimedByRecipient = errors.New("token already claimed by recipient")
	ErrQuoteExpired       = errors.New("quote expired")
	ErrQuoteIssued        = errors.New("quote already issued")
	ErrNetworkUnavailable = errors.New("mint unreachable")

	// storage errors
	ErrNotFound             = errors.New("not found")
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")
	ErrKeyExists            = errors.New("key already exists")
	ErrProofsLocked         = errors.New("sealed proofs cannot be opened with the loaded seed")

	// lifecycle errors
	ErrNoSeed         = errors.New("wallet seed not available")
	ErrInitInProgress = errors.New("initialization already in progress")
)
