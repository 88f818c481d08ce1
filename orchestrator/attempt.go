package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/types"
)

// maxChanges bounds the number of transitions of one attempt; subscriber
// channels are buffered to hold all of them.
const maxChanges = 8

// Attempt is one run of the payment flow for a (user, skill) pair. It ends in
// exactly one of success (with a result) or error (with a PaymentError).
type Attempt struct {
	id        string
	userID    string
	skill     *catalog.Skill
	input     any
	startedAt time.Time

	mu          sync.Mutex
	state       types.PaymentState
	changes     []StateChange
	subscribers []chan StateChange
	outbox      []StateChange // applied, callbacks not yet run
	delivering  bool
	stepCancel  context.CancelFunc
	txHash      string
	payer       string
	result      *types.SkillExecutionResult
	err         *types.PaymentError
	failedIn    types.PaymentState
	done        chan struct{}

	onChange func(*Attempt, StateChange)
	onFinish func(*Attempt)
}

func newAttempt(id, userID string, skill *catalog.Skill, input any) *Attempt {
	return &Attempt{
		id:        id,
		userID:    userID,
		skill:     skill,
		input:     input,
		startedAt: time.Now(),
		state:     types.StateIdle,
		done:      make(chan struct{}),
	}
}

// ID is the execution id sent to the skill backend and used by the ledger.
func (a *Attempt) ID() string { return a.id }

func (a *Attempt) UserID() string { return a.userID }

func (a *Attempt) Skill() *catalog.Skill { return a.skill }

func (a *Attempt) StartedAt() time.Time { return a.startedAt }

func (a *Attempt) State() types.PaymentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// TransactionHash is set once the broadcast has been accepted.
func (a *Attempt) TransactionHash() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.txHash
}

// Changes returns every transition so far, oldest first.
func (a *Attempt) Changes() []StateChange {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]StateChange(nil), a.changes...)
}

// History returns the visited states starting with idle.
func (a *Attempt) History() []types.PaymentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	states := []types.PaymentState{types.StateIdle}
	for _, c := range a.changes {
		states = append(states, c.To)
	}
	return states
}

// Subscribe returns a channel receiving every later transition. It is closed
// once the attempt is terminal; for a finished attempt it is already closed.
func (a *Attempt) Subscribe() <-chan StateChange {
	ch := make(chan StateChange, maxChanges)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.IsTerminal() {
		close(ch)
		return ch
	}
	a.subscribers = append(a.subscribers, ch)
	return ch
}

func (a *Attempt) Done() <-chan struct{} { return a.done }

// Result returns the terminal outcome. Both values are nil until Done is closed.
func (a *Attempt) Result() (*types.SkillExecutionResult, *types.PaymentError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.err
}

// Wait blocks until the attempt is terminal or ctx is done. Giving up on the
// wait does not cancel the attempt.
func (a *Attempt) Wait(ctx context.Context) (*types.SkillExecutionResult, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	result, perr := a.Result()
	if perr != nil {
		return nil, perr
	}
	return result, nil
}

// Cancel ends the attempt in the error state. Signing and confirmation are
// interrupted; a broadcast or skill call already under way finishes on its
// own and its outcome is discarded. Cancel returns false when the attempt
// was already terminal. It may be called from a StateCallback.
func (a *Attempt) Cancel() bool {
	a.mu.Lock()
	state := a.state
	if state.IsTerminal() || state == types.StateIdle {
		a.mu.Unlock()
		return false
	}

	var perr *types.PaymentError
	if state == types.StateSigning {
		perr = types.NewPaymentError(types.ErrCodeUserRejected, "payment cancelled before signing completed", context.Canceled).
			WithDetails(types.DetailCancelled, true)
	} else {
		perr = types.NewPaymentError(types.ErrCodeUnknown, "payment abandoned while "+string(state), context.Canceled).
			WithDetails(types.DetailAbandoned, true).
			WithDetails(types.DetailState, string(state))
		if a.txHash != "" {
			perr.WithDetails(types.DetailTransactionHash, a.txHash)
		}
	}

	ok := a.applyLocked(EventCancel, nil, perr)
	stop := a.stepCancel
	a.mu.Unlock()

	if ok && Interruptible(state) && stop != nil {
		stop()
	}
	a.deliver()
	return ok
}

// stepContext derives the context for an interruptible step. A context made
// after the attempt was cancelled is returned already done.
func (a *Attempt) stepContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	a.mu.Lock()
	a.stepCancel = cancel
	if a.state.IsTerminal() {
		cancel()
	}
	a.mu.Unlock()
	return ctx, cancel
}

func (a *Attempt) setTxHash(txHash string) {
	a.mu.Lock()
	a.txHash = txHash
	a.mu.Unlock()
}

func (a *Attempt) setPayer(payer string) {
	a.mu.Lock()
	a.payer = payer
	a.mu.Unlock()
}

func (a *Attempt) terminal() bool {
	return a.State().IsTerminal()
}

// advance applies ev and notifies observers. A terminal attempt ignores
// every event.
func (a *Attempt) advance(ev Event, result *types.SkillExecutionResult, perr *types.PaymentError) bool {
	a.mu.Lock()
	ok := a.applyLocked(ev, result, perr)
	a.mu.Unlock()

	a.deliver()
	return ok
}

// applyLocked records the transition for ev and queues it for the callbacks.
// a.mu must be held.
func (a *Attempt) applyLocked(ev Event, result *types.SkillExecutionResult, perr *types.PaymentError) bool {
	from := a.state
	if from.IsTerminal() {
		return false
	}
	to, err := Transition(from, ev)
	if err != nil {
		return false
	}

	change := StateChange{From: from, To: to, Event: ev, At: time.Now()}
	a.state = to
	a.changes = append(a.changes, change)
	switch to {
	case types.StateSuccess:
		a.result = result
	case types.StateError:
		a.err = perr
		a.failedIn = from
	}
	for _, ch := range a.subscribers {
		ch <- change
	}
	a.outbox = append(a.outbox, change)
	return true
}

// deliver runs the callbacks for queued transitions in order, outside every
// lock. Only one goroutine delivers at a time; a transition made by a
// callback is picked up by the loop already running.
func (a *Attempt) deliver() {
	a.mu.Lock()
	if a.delivering {
		a.mu.Unlock()
		return
	}
	a.delivering = true

	for len(a.outbox) > 0 {
		change := a.outbox[0]
		a.outbox = a.outbox[1:]
		a.mu.Unlock()

		if a.onChange != nil {
			a.onChange(a, change)
		}
		if change.To.IsTerminal() {
			if a.onFinish != nil {
				a.onFinish(a)
			}
			a.mu.Lock()
			for _, ch := range a.subscribers {
				close(ch)
			}
			a.subscribers = nil
			close(a.done)
			a.mu.Unlock()
		}

		a.mu.Lock()
	}

	a.delivering = false
	a.mu.Unlock()
}
