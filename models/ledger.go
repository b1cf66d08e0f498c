package models

import "fmt"

// LedgerError is the decoded form of a dispatch error reported by the ledger. It is one of ModuleError, TokenError
// or OtherError.
type LedgerError interface {
	error
	ledgerError()
}

type ModuleError struct {
	Section string
	Name    string
	Docs    string
}

func (e ModuleError) Error() string {
	if len(e.Docs) > 0 {
		return fmt.Sprintf("%s.%s: %s", e.Section, e.Name, e.Docs)
	}
	return fmt.Sprintf("%s.%s", e.Section, e.Name)
}

func (ModuleError) ledgerError() {}

type TokenError struct {
	Reason string
}

func (e TokenError) Error() string {
	return "token error: " + e.Reason
}

func (TokenError) ledgerError() {}

type OtherError struct {
	Message string
}

func (e OtherError) Error() string {
	return e.Message
}

func (OtherError) ledgerError() {}

type TxStatusKind string

const (
	TxStatus_Ready     TxStatusKind = "ready"
	TxStatus_InBlock   TxStatusKind = "inBlock"
	TxStatus_Finalized TxStatusKind = "finalized"
	TxStatus_Dropped   TxStatusKind = "dropped"
	TxStatus_Invalid   TxStatusKind = "invalid"
)

const (
	EventSection_System          = "system"
	EventMethod_ExtrinsicSuccess = "ExtrinsicSuccess"
	EventMethod_ExtrinsicFailed  = "ExtrinsicFailed"
)

type LedgerEvent struct {
	Section string
	Method  string
	// Err is only set for ExtrinsicFailed events
	Err LedgerError
}

type TxStatus struct {
	Kind      TxStatusKind
	BlockHash string
	Events    []LedgerEvent
	// Err is set when the subscription itself broke
	Err error
}

// FileRequest is one element of a storage request extrinsic.
type FileRequest struct {
	FileHash []byte
	FileName []byte
}

// UnpinRequest is one element of a storage unpin extrinsic.
type UnpinRequest struct {
	Cid      string
	FileName string
}
