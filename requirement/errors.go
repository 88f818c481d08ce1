package requirement

import (
	"fmt"

	"github.com/vorpalengineering/x402-skills/types"
)

// ParseError describes the first defect found in a payment requirement.
type ParseError struct {
	Field  string
	Reason string
	Code   types.ErrorCode
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return "invalid payment requirement: " + e.Reason
	}
	return fmt.Sprintf("invalid payment requirement: %s: %s", e.Field, e.Reason)
}

// PaymentError maps the parse failure onto the payment error taxonomy.
func (e *ParseError) PaymentError() *types.PaymentError {
	return types.NewPaymentError(e.Code, e.Error(), e).
		WithDetails(types.DetailField, e.Field)
}

func invalid(field, format string, args ...any) *ParseError {
	return &ParseError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
		Code:   types.ErrCodeUnknown,
	}
}
