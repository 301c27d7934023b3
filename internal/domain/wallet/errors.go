package wallet

import "errors"

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrInsufficientPending = errors.New("insufficient pending balance")
	ErrDuplicateReference  = errors.New("duplicate reference")
	ErrReferenceConflict   = errors.New("reference conflicts with different amount")
	ErrWalletFrozen        = errors.New("wallet is frozen pending investigation")
	ErrWalletNotFound      = errors.New("wallet not found")

	// ErrLedgerInconsistency means the conservation law between balances and
	// the transaction log is broken. Fatal for the operation: never retried
	// blindly, surfaced for manual reconciliation.
	ErrLedgerInconsistency = errors.New("ledger inconsistency detected")
)
