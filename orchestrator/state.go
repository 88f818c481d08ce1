package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/vorpalengineering/x402-skills/types"
)

// Event is something that happened to an attempt.
type Event string

const (
	EventExecute           Event = "execute"
	EventSigned            Event = "signed"
	EventSignFailed        Event = "sign_failed"
	EventBroadcastAccepted Event = "broadcast_accepted"
	EventBroadcastRejected Event = "broadcast_rejected"
	EventConfirmed         Event = "confirmed"
	EventConfirmFailed     Event = "confirm_failed"
	EventSkillSucceeded    Event = "skill_succeeded"
	EventSkillFailed       Event = "skill_failed"
	EventCancel            Event = "cancel"
)

var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[types.PaymentState]map[Event]types.PaymentState{
	types.StateIdle: {
		EventExecute: types.StateSigning,
	},
	types.StateSigning: {
		EventSigned:     types.StateBroadcasting,
		EventSignFailed: types.StateError,
		EventCancel:     types.StateError,
	},
	types.StateBroadcasting: {
		EventBroadcastAccepted: types.StateConfirming,
		EventBroadcastRejected: types.StateError,
		EventCancel:            types.StateError,
	},
	types.StateConfirming: {
		EventConfirmed:     types.StateExecuting,
		EventConfirmFailed: types.StateError,
		EventCancel:        types.StateError,
	},
	types.StateExecuting: {
		EventSkillSucceeded: types.StateSuccess,
		EventSkillFailed:    types.StateError,
		EventCancel:         types.StateError,
	},
}

// Transition is the payment state machine. Terminal states accept no events.
func Transition(from types.PaymentState, ev Event) (types.PaymentState, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, ev)
	}
	return to, nil
}

// Interruptible reports whether in-flight work of the state is stopped on
// cancel. Work in other states runs to completion and its result is discarded.
func Interruptible(s types.PaymentState) bool {
	return s == types.StateSigning || s == types.StateConfirming
}

type StateChange struct {
	From  types.PaymentState `json:"from"`
	To    types.PaymentState `json:"to"`
	Event Event              `json:"event"`
	At    time.Time          `json:"at"`
}
