package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/metrics"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

// Broadcaster is the network boundary: submit a transaction, query its status.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *types.SignedTransaction) (*types.BroadcastResponse, error)
	TransactionStatus(ctx context.Context, txID string) (*types.TransactionStatus, error)
}

type Submitter struct {
	network Broadcaster
	policy  PollPolicy
	logger  *logrus.Logger
}

func NewSubmitter(network Broadcaster, policy PollPolicy, logger *logrus.Logger) *Submitter {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Submitter{
		network: network,
		policy:  policy,
		logger:  logger,
	}
}

// Broadcast submits tx and returns the id the network accepted it under.
// Failures are BROADCAST_FAILED payment errors.
func (s *Submitter) Broadcast(ctx context.Context, tx *types.SignedTransaction) (string, error) {
	resp, err := s.network.Broadcast(ctx, tx)
	if err != nil {
		return "", types.NewPaymentError(types.ErrCodeBroadcastFailed, "failed to broadcast transaction", err).
			WithDetails(types.DetailTransactionHash, tx.TxID)
	}
	if !resp.Accepted {
		return "", types.NewPaymentError(types.ErrCodeBroadcastFailed, "transaction rejected by the network: "+resp.Reason, nil).
			WithDetails(types.DetailTransactionHash, tx.TxID)
	}

	txID := resp.TxID
	if txID == "" {
		txID = tx.TxID
	}

	s.logger.WithFields(logrus.Fields{
		"txid":  txID,
		"payer": tx.Payer,
	}).Info("transaction broadcast")

	return txID, nil
}

// AwaitConfirmation polls the status of txID until it confirms, fails, or
// maxTimeoutSeconds of req elapse. Cancelling ctx stops polling and returns
// an error wrapping ErrNotAwaited.
func (s *Submitter) AwaitConfirmation(ctx context.Context, txID string, tx *types.SignedTransaction, req *types.PaymentRequirement) (*types.PaymentResult, error) {
	details := req.PaymentRequirements
	if details.MaxTimeoutSeconds <= 0 || int64(details.MaxTimeoutSeconds) > types.TimeoutSecondsLimit {
		return nil, types.NewPaymentError(types.ErrCodeUnknown,
			fmt.Sprintf("invalid payment timeout of %d seconds", details.MaxTimeoutSeconds), nil).
			WithDetails(types.DetailTransactionHash, txID)
	}
	timeout := time.Duration(details.MaxTimeoutSeconds) * time.Second
	started := time.Now()
	deadline := started.Add(timeout)

	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{
		"txid":    txID,
		"timeout": timeout,
	})

	for n := 0; ; n++ {
		timer := time.NewTimer(s.policy.Delay(n))
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return nil, s.stopped(ctx, txID, deadline, details.MaxTimeoutSeconds)
		case <-timer.C:
		}

		status, err := s.network.TransactionStatus(pollCtx, txID)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, s.stopped(ctx, txID, deadline, details.MaxTimeoutSeconds)
			}
			metrics.SettlementPolls.WithLabelValues("error").Inc()
			log.WithError(err).WithField("poll", n+1).Warn("status query failed, retrying")
			continue
		}
		metrics.SettlementPolls.WithLabelValues(string(status.Status)).Inc()

		switch status.Status {
		case types.TxStatusPending:
			log.WithField("poll", n+1).Debug("transaction pending")
			continue

		case types.TxStatusSuccess:
			metrics.ConfirmationDuration.Observe(time.Since(started).Seconds())
			return s.confirmed(txID, tx, req, status)

		case types.TxStatusAbortByResponse, types.TxStatusAbortByPostCondition, types.TxStatusDropped:
			reason := status.Reason
			if reason == "" {
				reason = string(status.Status)
			}
			return nil, types.NewPaymentError(types.ErrCodeSettlementFailed, "transaction failed on chain: "+reason, nil).
				WithDetails(types.DetailTransactionHash, txID).
				WithDetails("status", string(status.Status))

		default:
			log.WithField("status", status.Status).Warn("unknown transaction status, retrying")
		}
	}
}

func (s *Submitter) confirmed(txID string, tx *types.SignedTransaction, req *types.PaymentRequirement, status *types.TransactionStatus) (*types.PaymentResult, error) {
	details := req.PaymentRequirements

	amount := status.Amount
	if amount == "" {
		amount = details.Amount
	}
	if amount != details.Amount {
		return nil, types.NewPaymentError(types.ErrCodeSettlementFailed,
			fmt.Sprintf("settled amount %s does not match required %s", amount, details.Amount), nil).
			WithDetails(types.DetailTransactionHash, txID)
	}
	if status.Recipient != "" && status.Recipient != details.PayTo {
		return nil, types.NewPaymentError(types.ErrCodeSettlementFailed, "transaction paid "+status.Recipient+" instead of "+details.PayTo, nil).
			WithDetails(types.DetailTransactionHash, txID)
	}

	payer := status.Payer
	if payer == "" {
		payer = tx.Payer
	}
	settledAt := status.BlockTime
	if settledAt == 0 {
		settledAt = time.Now().UnixMilli()
	}

	s.logger.WithFields(logrus.Fields{
		"txid":        txID,
		"blockHeight": status.BlockHeight,
	}).Info("transaction confirmed")

	return &types.PaymentResult{
		TransactionHash: txID,
		Payer:           payer,
		Network:         details.Network,
		Amount:          amount,
		SettledAt:       settledAt,
	}, nil
}

// stopped reports why polling ended: the caller cancelled, or the deadline passed.
func (s *Submitter) stopped(parent context.Context, txID string, deadline time.Time, timeoutSeconds int) error {
	if errors.Is(parent.Err(), context.Canceled) || time.Now().Before(deadline) {
		return types.NewPaymentError(types.ErrCodeUnknown, "stopped waiting for confirmation", ErrNotAwaited).
			WithDetails(types.DetailAbandoned, true).
			WithDetails(types.DetailTransactionHash, txID)
	}

	s.logger.WithField("txid", txID).Warn("confirmation timed out")
	return types.NewPaymentError(types.ErrCodeConfirmationTimeout,
		fmt.Sprintf("transaction not confirmed within %d seconds", timeoutSeconds), nil).
		WithDetails(types.DetailTransactionHash, txID).
		WithDetails("timeoutSeconds", timeoutSeconds)
}
