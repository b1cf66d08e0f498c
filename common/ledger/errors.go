package ledger

import (
	"encoding/json"
	"strings"

	"github.com/ceramicnetwork/go-registry/models"
)

type wireModuleError struct {
	Section string `json:"section"`
	Name    string `json:"name"`
	Docs    string `json:"docs,omitempty"`
}

type wireDispatchError struct {
	Module *wireModuleError `json:"module,omitempty"`
	Token  *string          `json:"token,omitempty"`
	Other  *string          `json:"other,omitempty"`
}

// DecodeDispatchError turns the ledger's dispatch error into a LedgerError. The ledger reports either a module error,
// a token error, or a bare string; anything unrecognised is kept verbatim.
func DecodeDispatchError(raw json.RawMessage) models.LedgerError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return models.OtherError{Message: s}
	}
	wire := new(wireDispatchError)
	if err := json.Unmarshal(raw, wire); err != nil {
		return models.OtherError{Message: strings.TrimSpace(string(raw))}
	}
	switch {
	case wire.Module != nil:
		return models.ModuleError{Section: wire.Module.Section, Name: wire.Module.Name, Docs: wire.Module.Docs}
	case wire.Token != nil:
		return models.TokenError{Reason: *wire.Token}
	case wire.Other != nil:
		return models.OtherError{Message: *wire.Other}
	}
	return models.OtherError{Message: strings.TrimSpace(string(raw))}
}
