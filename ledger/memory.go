package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLedger keeps entries in process memory.
type MemoryLedger struct {
	mu          sync.RWMutex
	entries     []Entry
	executionID map[string]struct{}
	settledTx   map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		executionID: make(map[string]struct{}),
		settledTx:   make(map[string]struct{}),
	}
}

func (l *MemoryLedger) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.executionID[entry.ExecutionID]; exists {
		return fmt.Errorf("%w: execution %s", ErrDuplicate, entry.ExecutionID)
	}
	if entry.Success() {
		if _, exists := l.settledTx[entry.Payment.TransactionHash]; exists {
			return fmt.Errorf("%w: transaction %s", ErrDuplicate, entry.Payment.TransactionHash)
		}
		l.settledTx[entry.Payment.TransactionHash] = struct{}{}
	}
	l.executionID[entry.ExecutionID] = struct{}{}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryLedger) Entries(ctx context.Context, skillID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if skillID == "" || e.SkillID == skillID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemoryLedger) SkillStats(ctx context.Context, skillID string) (SkillStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := SkillStats{SkillID: skillID}
	var totalMs int64
	for _, e := range l.entries {
		if e.SkillID != skillID {
			continue
		}
		stats.Attempts++
		if e.Executed() {
			stats.TotalExecutions++
		}
		if e.Success() {
			stats.Successes++
			stats.RevenueMicroSTX += amountOf(e.Payment)
			totalMs += e.ResponseTimeMs
		}
	}
	stats.finish(totalMs)
	return stats, nil
}

func (l *MemoryLedger) GlobalStats(ctx context.Context) (GlobalStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var executions, revenue int64
	for _, e := range l.entries {
		if e.Executed() {
			executions++
		}
		if e.Success() {
			revenue += amountOf(e.Payment)
		}
	}
	return newGlobalStats(executions, revenue), nil
}

func (l *MemoryLedger) Close() error {
	return nil
}
