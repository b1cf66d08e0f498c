package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCidEncoding  = errors.New("invalid cid encoding")
	ErrLedgerUnavailable   = errors.New("ledger unavailable")
	ErrManifestFetchFailed = errors.New("manifest fetch failed")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrUploadInProgress    = errors.New("upload already in progress")
	ErrEmptyBatch          = errors.New("empty upload batch")
)

// TransactionFailedError carries the ledger's decoded reason for rejecting an extrinsic.
type TransactionFailedError struct {
	Cause LedgerError
}

func (e *TransactionFailedError) Error() string {
	if e.Cause == nil {
		return ErrTransactionFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrTransactionFailed, e.Cause)
}

func (e *TransactionFailedError) Unwrap() error {
	return ErrTransactionFailed
}
