package facilitator

import "errors"

var (
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrWrongNetwork         = errors.New("transaction is for a different network")
	ErrDuplicateTransaction = errors.New("transaction already known")
	ErrNonceReused          = errors.New("nonce already used")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrTxNotFound           = errors.New("transaction not found")
	ErrNotPending           = errors.New("transaction is not pending")
)
