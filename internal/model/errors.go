package model

import "errors"

var (
	// ErrConfig marks configuration problems: a registry that was never
	// loaded, a missing bridge role, an unknown network. Never retried.
	ErrConfig = errors.New("configuration error")

	// ErrVaultCounterparty is returned when a vault transfer shows the wrong
	// counterparty for its vault type.
	ErrVaultCounterparty = errors.New("vault counterparty mismatch")

	// ErrTokenUnresolved is returned when the on-chain token reference is not
	// in the registry.
	ErrTokenUnresolved = errors.New("token identity unresolved")

	// ErrBelowMinimum is returned for deposits under the token minimum.
	ErrBelowMinimum = errors.New("transfer below minimum")
)

// ErrMalformed marks chain data that matched a bridge signature but could
// not be decoded.
var ErrMalformed = errors.New("malformed bridge payload")
