package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/ledger"
	"github.com/vorpalengineering/x402-skills/metrics"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

// ErrAttemptInProgress is wrapped by the rejection of a second trigger for the
// same user and skill.
var ErrAttemptInProgress = errors.New("attempt already in progress")

// RequirementParser validates the body of a 402 challenge.
type RequirementParser interface {
	Parse(body []byte) (*types.PaymentRequirement, error)
}

// Signer produces a signed transfer for a requirement.
type Signer interface {
	Sign(ctx context.Context, req *types.PaymentRequirement) (*types.SignedTransaction, error)
}

// Settler broadcasts a signed transfer and waits for it to confirm.
type Settler interface {
	Broadcast(ctx context.Context, tx *types.SignedTransaction) (string, error)
	AwaitConfirmation(ctx context.Context, txID string, tx *types.SignedTransaction, req *types.PaymentRequirement) (*types.PaymentResult, error)
}

// SkillClient fetches the challenge of a skill and calls it with a settlement proof.
type SkillClient interface {
	Challenge(ctx context.Context, skill *catalog.Skill, input any) ([]byte, error)
	Invoke(ctx context.Context, skill *catalog.Skill, input any, payment *types.PaymentResult, executionID string) (*types.SkillExecutionResult, error)
}

// StateCallback observes every transition of every attempt, in order.
type StateCallback func(attempt *Attempt, change StateChange)

// Config wires the orchestrator to its collaborators.
type Config struct {
	Parser   RequirementParser
	Signer   Signer
	Settler  Settler
	Skills   SkillClient
	Ledger   ledger.Ledger // optional
	Logger   *logrus.Logger
	OnChange StateCallback // optional
}

// Orchestrator drives attempts through challenge, signing, broadcast,
// confirmation and execution. At most one attempt per (user, resource) is in
// flight.
type Orchestrator struct {
	parser   RequirementParser
	signer   Signer
	settler  Settler
	skills   SkillClient
	ledger   ledger.Ledger
	logger   *logrus.Logger
	onChange StateCallback

	mu       sync.Mutex
	inFlight map[string]*Attempt
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Parser == nil {
		return nil, fmt.Errorf("requirement parser is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if cfg.Settler == nil {
		return nil, fmt.Errorf("settler is required")
	}
	if cfg.Skills == nil {
		return nil, fmt.Errorf("skill client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Orchestrator{
		parser:   cfg.Parser,
		signer:   cfg.Signer,
		settler:  cfg.Settler,
		skills:   cfg.Skills,
		ledger:   cfg.Ledger,
		logger:   logger,
		onChange: cfg.OnChange,
		inFlight: make(map[string]*Attempt),
	}, nil
}

func attemptKey(userID, resource string) string {
	return userID + "|" + resource
}

// Start begins a new attempt and returns once it has entered signing. A
// trigger for a (user, resource) pair that already has an attempt in flight
// is rejected and the running attempt is left untouched.
func (o *Orchestrator) Start(userID string, skill *catalog.Skill, input any) (*Attempt, error) {
	if skill == nil {
		return nil, types.NewPaymentError(types.ErrCodeUnknown, "skill is required", nil)
	}

	key := attemptKey(userID, skill.Endpoint)
	o.mu.Lock()
	if running, ok := o.inFlight[key]; ok {
		o.mu.Unlock()
		metrics.AttemptsRejected.WithLabelValues(skill.ID).Inc()
		o.logger.WithFields(logrus.Fields{
			"skill":        skill.ID,
			"execution_id": running.ID(),
		}).Warn("Rejected trigger, attempt already in progress")
		return nil, types.NewPaymentError(types.ErrCodeUnknown, ErrAttemptInProgress.Error(), ErrAttemptInProgress).
			WithDetails(types.DetailState, string(running.State()))
	}
	a := newAttempt(uuid.New().String(), userID, skill, input)
	a.onChange = o.changed
	a.onFinish = o.finished
	o.inFlight[key] = a
	o.mu.Unlock()

	metrics.AttemptsStarted.WithLabelValues(skill.ID).Inc()
	metrics.AttemptsInFlight.Inc()
	a.advance(EventExecute, nil, nil)

	go o.run(a)
	return a, nil
}

// Execute runs an attempt to completion. If ctx ends first the attempt is
// cancelled and its terminal error returned.
func (o *Orchestrator) Execute(ctx context.Context, userID string, skill *catalog.Skill, input any) (*types.SkillExecutionResult, error) {
	a, err := o.Start(userID, skill, input)
	if err != nil {
		return nil, err
	}
	select {
	case <-a.Done():
	case <-ctx.Done():
		a.Cancel()
		<-a.Done()
	}
	return a.Wait(context.Background())
}

// InFlight returns the running attempt for a user and resource, if any.
func (o *Orchestrator) InFlight(userID, resource string) (*Attempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.inFlight[attemptKey(userID, resource)]
	return a, ok
}

func (o *Orchestrator) run(a *Attempt) {
	log := o.logger.WithFields(logrus.Fields{
		"skill":        a.skill.ID,
		"execution_id": a.id,
	})

	// Signing: fetch and parse the challenge, then ask the wallet.
	signCtx, cancelSign := a.stepContext(context.Background())
	req, signed, perr := o.sign(signCtx, a)
	cancelSign()
	if a.terminal() {
		log.Debug("Attempt cancelled during signing")
		return
	}
	if perr != nil {
		a.advance(EventSignFailed, nil, perr)
		return
	}
	a.setPayer(signed.Payer)
	if !a.advance(EventSigned, nil, nil) || a.terminal() {
		return
	}

	// Broadcasting runs to completion even if the attempt is abandoned.
	txID, err := o.settler.Broadcast(context.Background(), signed)
	if a.terminal() {
		log.WithField("txid", txID).Warn("Attempt abandoned during broadcast, outcome discarded")
		return
	}
	if err != nil {
		a.advance(EventBroadcastRejected, nil, toPaymentError(err, types.ErrCodeBroadcastFailed, "broadcast failed"))
		return
	}
	a.setTxHash(txID)
	if !a.advance(EventBroadcastAccepted, nil, nil) || a.terminal() {
		return
	}

	// Confirming
	confirmCtx, cancelConfirm := a.stepContext(context.Background())
	payment, err := o.settler.AwaitConfirmation(confirmCtx, txID, signed, req)
	cancelConfirm()
	if a.terminal() {
		log.WithField("txid", txID).Debug("Attempt abandoned during confirmation")
		return
	}
	if err != nil {
		a.advance(EventConfirmFailed, nil, toPaymentError(err, types.ErrCodeSettlementFailed, "settlement failed").
			WithDetails(types.DetailTransactionHash, txID))
		return
	}
	if !a.advance(EventConfirmed, nil, nil) || a.terminal() {
		return
	}

	// Executing runs to completion even if the attempt is abandoned.
	result, err := o.skills.Invoke(context.Background(), a.skill, a.input, payment, a.id)
	if a.terminal() {
		log.Warn("Attempt abandoned during execution, result discarded")
		return
	}
	if err != nil {
		a.advance(EventSkillFailed, nil, toPaymentError(err, types.ErrCodeExecutionFailed, "skill execution failed").
			WithDetails(types.DetailTransactionHash, txID))
		return
	}
	a.advance(EventSkillSucceeded, result, nil)
}

func (o *Orchestrator) sign(ctx context.Context, a *Attempt) (*types.PaymentRequirement, *types.SignedTransaction, *types.PaymentError) {
	body, err := o.skills.Challenge(ctx, a.skill, a.input)
	if err != nil {
		return nil, nil, toPaymentError(err, types.ErrCodeUnknown, "failed to fetch payment requirement")
	}
	req, err := o.parser.Parse(body)
	if err != nil {
		return nil, nil, toPaymentError(err, types.ErrCodeUnknown, "invalid payment requirement")
	}
	signed, err := o.signer.Sign(ctx, req)
	if err != nil {
		return nil, nil, toPaymentError(err, types.ErrCodeSigningFailed, "signing failed")
	}
	return req, signed, nil
}

func (o *Orchestrator) changed(a *Attempt, change StateChange) {
	metrics.StateTransitions.WithLabelValues(string(change.From), string(change.To)).Inc()
	o.logger.WithFields(logrus.Fields{
		"skill":        a.skill.ID,
		"execution_id": a.id,
		"from":         change.From,
		"to":           change.To,
	}).Debug("Payment state changed")

	if o.onChange != nil {
		o.onChange(a, change)
	}
}

// finished runs before Done is closed, so the attempt is recorded and the
// (user, resource) slot is free by the time waiters return.
func (o *Orchestrator) finished(a *Attempt) {
	o.mu.Lock()
	delete(o.inFlight, attemptKey(a.userID, a.skill.Endpoint))
	o.mu.Unlock()
	metrics.AttemptsInFlight.Dec()

	result, perr := a.Result()
	outcome, code := "success", ""
	if perr != nil {
		outcome, code = "error", string(perr.Code)
	}
	metrics.AttemptsFinished.WithLabelValues(a.skill.ID, outcome, code).Inc()
	metrics.AttemptDuration.WithLabelValues(outcome).Observe(time.Since(a.startedAt).Seconds())

	log := o.logger.WithFields(logrus.Fields{
		"skill":        a.skill.ID,
		"execution_id": a.id,
		"outcome":      outcome,
	})
	if perr != nil {
		log.WithField("code", perr.Code).Infof("Attempt failed: %s", perr.Message)
	} else {
		log.WithField("txid", result.Payment.TransactionHash).Info("Attempt succeeded")
	}

	if o.ledger == nil {
		return
	}
	if err := o.ledger.Append(context.Background(), o.entry(a, result, perr)); err != nil {
		if errors.Is(err, ledger.ErrDuplicate) {
			log.WithError(err).Warn("Ledger rejected duplicate entry")
			return
		}
		log.WithError(err).Error("Failed to record attempt")
	}
}

func (o *Orchestrator) entry(a *Attempt, result *types.SkillExecutionResult, perr *types.PaymentError) ledger.Entry {
	a.mu.Lock()
	payer, failedIn := a.payer, a.failedIn
	a.mu.Unlock()

	e := ledger.Entry{
		ExecutionID: a.id,
		SkillID:     a.skill.ID,
		Resource:    a.skill.Endpoint,
		Payer:       payer,
		RecordedAt:  time.Now(),
	}
	if perr != nil {
		e.Error = perr
		e.FailedIn = failedIn
		e.ResponseTimeMs = time.Since(a.startedAt).Milliseconds()
		return e
	}
	payment := result.Payment
	e.Payment = &payment
	e.Payer = payment.Payer
	e.ResponseTimeMs = result.ResponseTimeMs
	return e
}

// paymentErrorer is implemented by domain errors that know their taxonomy code.
type paymentErrorer interface {
	PaymentError() *types.PaymentError
}

// toPaymentError maps err onto the closed taxonomy so no raw error reaches
// an attempt's terminal state.
func toPaymentError(err error, code types.ErrorCode, message string) *types.PaymentError {
	var pe paymentErrorer
	if errors.As(err, &pe) {
		return pe.PaymentError()
	}
	return types.AsPaymentError(err, code, message)
}
