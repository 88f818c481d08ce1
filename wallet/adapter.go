package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

// Adapter turns a payment requirement into a signed transfer from the
// connected wallet. It never retries.
type Adapter struct {
	session  *Session
	provider Provider
	logger   *logrus.Logger
}

func NewAdapter(session *Session, provider Provider, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Adapter{
		session:  session,
		provider: provider,
		logger:   logger,
	}
}

func (a *Adapter) Session() *Session {
	return a.session
}

// Sign requests a signature for requirement.amount to requirement.payTo.
// Every failure is a *types.PaymentError.
func (a *Adapter) Sign(ctx context.Context, req *types.PaymentRequirement) (*types.SignedTransaction, error) {
	details := req.PaymentRequirements

	// Check wallet is connected
	from := a.session.Address()
	if from == "" {
		return nil, types.NewPaymentError(types.ErrCodeWalletNotConnected, "connect a wallet to pay for this skill", ErrNotConnected)
	}

	// Check network
	if !utils.SameNetwork(a.provider.Network(), details.Network) {
		return nil, types.NewPaymentError(types.ErrCodeNetworkMismatch,
			fmt.Sprintf("wallet is on %s but payment requires %s", a.provider.Network(), details.Network), nil)
	}

	// Check balance when known
	amount, ok := req.AmountInt()
	if !ok {
		return nil, types.NewPaymentError(types.ErrCodeUnknown, "invalid amount "+details.Amount, nil)
	}
	if balance, known := a.session.Balance(); known && balance.Cmp(amount) < 0 {
		return nil, types.NewPaymentError(types.ErrCodeInsufficientBalance,
			fmt.Sprintf("balance %s is below the required %s", formatMicro(balance.String()), formatMicro(details.Amount)), nil).
			WithDetails("balance", balance.String()).
			WithDetails("required", details.Amount)
	}

	a.logger.WithFields(logrus.Fields{
		"from":     from,
		"to":       details.PayTo,
		"amount":   details.Amount,
		"resource": details.Resource,
	}).Debug("requesting wallet signature")

	signed, err := a.provider.SignTransfer(ctx, TransferRequest{
		From:     from,
		To:       details.PayTo,
		Amount:   details.Amount,
		Network:  details.Network,
		Resource: details.Resource,
		Memo:     details.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUserRejected):
			return nil, types.NewPaymentError(types.ErrCodeUserRejected, "signature request was rejected", err)
		case ctx.Err() != nil:
			return nil, types.NewPaymentError(types.ErrCodeUserRejected, "signature request was cancelled", ctx.Err()).
				WithDetails(types.DetailCancelled, true)
		default:
			return nil, types.NewPaymentError(types.ErrCodeSigningFailed, "wallet failed to sign the payment", err)
		}
	}
	if signed == nil || signed.TxID == "" || signed.Raw == "" {
		return nil, types.NewPaymentError(types.ErrCodeSigningFailed, "wallet returned an empty transaction", nil)
	}
	if signed.Payer == "" {
		signed.Payer = from
	}

	return signed, nil
}

func formatMicro(amount string) string {
	formatted, err := utils.FormatSTXAmount(amount)
	if err != nil {
		return amount
	}
	return formatted
}
