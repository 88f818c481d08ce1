package wallet

import "errors"

var (
	// ErrUserRejected is returned by a Provider when the human declines to sign.
	ErrUserRejected = errors.New("user rejected the signature request")

	ErrNotConnected   = errors.New("wallet not connected")
	ErrInvalidAddress = errors.New("invalid stacks address")
	ErrWrongSigner    = errors.New("transfer sender does not match the signing key")
	ErrBadSignature   = errors.New("transfer signature does not match sender")
)
