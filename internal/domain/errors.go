package domain

import "errors"

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletExists        = errors.New("wallet already exists for owner")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrSelfTransfer        = errors.New("cannot transfer between the same wallet")
	ErrUnknownOwnerType    = errors.New("unknown owner type")
	ErrVersionConflict     = errors.New("wallet version conflict")
	ErrConcurrencyConflict = errors.New("too many concurrent updates, retry later")
	ErrAlreadyFinalized    = errors.New("already finalized")
	ErrInvalidTransition   = errors.New("invalid invoice state transition")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrProductOutOfStock   = errors.New("product out of stock")
	ErrVerificationCode    = errors.New("verification code mismatch")
	ErrTransactionNotFound = errors.New("transaction not found")
)
