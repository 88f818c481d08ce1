package types

import "errors"

// ErrorCode is the closed set of payment failure kinds.
type ErrorCode string

const (
	ErrCodeWalletNotConnected  ErrorCode = "WALLET_NOT_CONNECTED"
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeUserRejected        ErrorCode = "USER_REJECTED"
	ErrCodeSigningFailed       ErrorCode = "SIGNING_FAILED"
	ErrCodeBroadcastFailed     ErrorCode = "BROADCAST_FAILED"
	ErrCodeConfirmationTimeout ErrorCode = "CONFIRMATION_TIMEOUT"
	ErrCodeSettlementFailed    ErrorCode = "SETTLEMENT_FAILED"
	ErrCodeExecutionFailed     ErrorCode = "EXECUTION_FAILED"
	ErrCodeNetworkMismatch     ErrorCode = "NETWORK_MISMATCH"
	ErrCodeUnknown             ErrorCode = "UNKNOWN"
)

// Detail keys shared by producers and the presentation layer.
const (
	DetailAbandoned       = "abandoned"
	DetailCancelled       = "cancelled"
	DetailDuplicate       = "duplicate"
	DetailState           = "state"
	DetailTransactionHash = "transactionHash"
	DetailField           = "field"
	DetailStatusCode      = "statusCode"
)

// PaymentError is the terminal failure of an attempt.
type PaymentError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds context to the error. The map is created lazily.
func (e *PaymentError) WithDetails(key string, value any) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Abandoned reports whether the attempt was cancelled while work was in flight.
func (e *PaymentError) Abandoned() bool {
	v, _ := e.Details[DetailAbandoned].(bool)
	return v
}

// AsPaymentError maps any error onto the taxonomy, keeping an existing
// PaymentError anywhere in the chain and wrapping everything else with code.
func AsPaymentError(err error, code ErrorCode, message string) *PaymentError {
	if err == nil {
		return nil
	}
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe
	}
	return NewPaymentError(code, message, err)
}

// IsCode reports whether err carries a PaymentError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var pe *PaymentError
	return errors.As(err, &pe) && pe.Code == code
}
