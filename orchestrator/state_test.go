package orchestrator

import (
	"errors"
	"testing"

	"github.com/vorpalengineering/x402-skills/types"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from types.PaymentState
		ev   Event
		to   types.PaymentState
	}{
		{types.StateIdle, EventExecute, types.StateSigning},
		{types.StateSigning, EventSigned, types.StateBroadcasting},
		{types.StateSigning, EventSignFailed, types.StateError},
		{types.StateBroadcasting, EventBroadcastAccepted, types.StateConfirming},
		{types.StateBroadcasting, EventBroadcastRejected, types.StateError},
		{types.StateConfirming, EventConfirmed, types.StateExecuting},
		{types.StateConfirming, EventConfirmFailed, types.StateError},
		{types.StateExecuting, EventSkillSucceeded, types.StateSuccess},
		{types.StateExecuting, EventSkillFailed, types.StateError},
		{types.StateSigning, EventCancel, types.StateError},
		{types.StateBroadcasting, EventCancel, types.StateError},
		{types.StateConfirming, EventCancel, types.StateError},
		{types.StateExecuting, EventCancel, types.StateError},
	}

	for _, tt := range tests {
		got, err := Transition(tt.from, tt.ev)
		if err != nil {
			t.Errorf("Transition(%s, %s) failed: %v", tt.from, tt.ev, err)
			continue
		}
		if got != tt.to {
			t.Errorf("Transition(%s, %s) = %s, want %s", tt.from, tt.ev, got, tt.to)
		}
	}
}

func TestTransitionRejects(t *testing.T) {
	allEvents := []Event{
		EventExecute, EventSigned, EventSignFailed, EventBroadcastAccepted, EventBroadcastRejected,
		EventConfirmed, EventConfirmFailed, EventSkillSucceeded, EventSkillFailed, EventCancel,
	}

	t.Run("terminal states accept nothing", func(t *testing.T) {
		for _, s := range []types.PaymentState{types.StateSuccess, types.StateError} {
			for _, ev := range allEvents {
				got, err := Transition(s, ev)
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("Transition(%s, %s) should fail", s, ev)
				}
				if got != s {
					t.Errorf("Failed transition must keep the state, got %s", got)
				}
			}
		}
	})

	t.Run("no skipping ahead", func(t *testing.T) {
		skips := []struct {
			from types.PaymentState
			ev   Event
		}{
			{types.StateIdle, EventSigned},
			{types.StateIdle, EventCancel},
			{types.StateSigning, EventConfirmed},
			{types.StateBroadcasting, EventSkillSucceeded},
			{types.StateConfirming, EventSigned},
			{types.StateExecuting, EventExecute},
		}
		for _, s := range skips {
			if _, err := Transition(s.from, s.ev); err == nil {
				t.Errorf("Transition(%s, %s) should fail", s.from, s.ev)
			}
		}
	})

	t.Run("error is reachable from every active state", func(t *testing.T) {
		for _, s := range []types.PaymentState{types.StateSigning, types.StateBroadcasting, types.StateConfirming, types.StateExecuting} {
			if to, err := Transition(s, EventCancel); err != nil || to != types.StateError {
				t.Errorf("Expected %s to reach error on cancel", s)
			}
		}
	})
}

func TestInterruptible(t *testing.T) {
	if !Interruptible(types.StateSigning) || !Interruptible(types.StateConfirming) {
		t.Error("Signing and confirming should be interruptible")
	}
	if Interruptible(types.StateBroadcasting) || Interruptible(types.StateExecuting) {
		t.Error("Broadcasting and executing should not be interruptible")
	}
}
