package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vorpalengineering/x402-skills/types"
)

func implementations(t *testing.T) map[string]Ledger {
	t.Helper()
	sqliteLedger, err := NewSQLiteLedger(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sqlite ledger: %v", err)
	}
	t.Cleanup(func() { sqliteLedger.Close() })

	return map[string]Ledger{
		"memory": NewMemoryLedger(),
		"sqlite": sqliteLedger,
	}
}

func successEntry(id, skill, tx, amount string, ms int64) Entry {
	return Entry{
		ExecutionID: id,
		SkillID:     skill,
		Resource:    "/api/skills/" + skill,
		Payer:       "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM",
		Payment: &types.PaymentResult{
			TransactionHash: tx,
			Payer:           "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM",
			Network:         "stacks:2147483648",
			Amount:          amount,
			SettledAt:       1_700_000_000_000,
		},
		ResponseTimeMs: ms,
	}
}

func errorEntry(id, skill string, code types.ErrorCode, failedIn types.PaymentState) Entry {
	return Entry{
		ExecutionID: id,
		SkillID:     skill,
		Resource:    "/api/skills/" + skill,
		Error:       types.NewPaymentError(code, "failed", nil).WithDetails(types.DetailTransactionHash, "0xfeed"),
		FailedIn:    failedIn,
	}
}

func TestLedger(t *testing.T) {
	for name, l := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("empty ledger yields zeros", func(t *testing.T) {
				stats, err := l.SkillStats(ctx, "whale-tracker")
				if err != nil {
					t.Fatalf("SkillStats failed: %v", err)
				}
				if stats.TotalExecutions != 0 || stats.SuccessRate != 0 || stats.AvgResponseTimeMs != 0 {
					t.Errorf("Expected zero stats, got %+v", stats)
				}
				if stats.Label() != "New" {
					t.Errorf("Expected label New, got %s", stats.Label())
				}

				global, err := l.GlobalStats(ctx)
				if err != nil {
					t.Fatalf("GlobalStats failed: %v", err)
				}
				if global.TotalExecutions != 0 || global.TotalRevenueSTX != "0" {
					t.Errorf("Expected zero global stats, got %+v", global)
				}
			})

			t.Run("append and aggregate", func(t *testing.T) {
				entries := []Entry{
					successEntry("e1", "whale-tracker", "0x01", "100000", 200),
					successEntry("e2", "whale-tracker", "0x02", "100000", 400),
					errorEntry("e3", "whale-tracker", types.ErrCodeExecutionFailed, types.StateExecuting),
					errorEntry("e4", "whale-tracker", types.ErrCodeUserRejected, types.StateSigning),
					successEntry("e5", "profile-pro", "0x05", "2000000", 1000),
				}
				for _, e := range entries {
					if err := l.Append(ctx, e); err != nil {
						t.Fatalf("Append(%s) failed: %v", e.ExecutionID, err)
					}
				}

				stats, err := l.SkillStats(ctx, "whale-tracker")
				if err != nil {
					t.Fatalf("SkillStats failed: %v", err)
				}
				if stats.Attempts != 4 {
					t.Errorf("Expected 4 attempts, got %d", stats.Attempts)
				}
				if stats.TotalExecutions != 3 {
					t.Errorf("Expected 3 executions, got %d", stats.TotalExecutions)
				}
				if stats.Successes != 2 {
					t.Errorf("Expected 2 successes, got %d", stats.Successes)
				}
				if stats.AvgResponseTimeMs != 300 {
					t.Errorf("Expected avg 300ms, got %v", stats.AvgResponseTimeMs)
				}
				if stats.Label() != "67%" {
					t.Errorf("Expected 67%%, got %s", stats.Label())
				}
				if stats.RevenueMicroSTX != 200_000 {
					t.Errorf("Expected revenue 200000, got %d", stats.RevenueMicroSTX)
				}

				global, err := l.GlobalStats(ctx)
				if err != nil {
					t.Fatalf("GlobalStats failed: %v", err)
				}
				if global.TotalExecutions != 4 {
					t.Errorf("Expected 4 executions, got %d", global.TotalExecutions)
				}
				if global.TotalRevenueMicroSTX != 2_200_000 || global.TotalRevenueSTX != "2.2" {
					t.Errorf("Unexpected revenue %+v", global)
				}

				got, err := l.Entries(ctx, "whale-tracker")
				if err != nil {
					t.Fatalf("Entries failed: %v", err)
				}
				if len(got) != 4 {
					t.Fatalf("Expected 4 entries, got %d", len(got))
				}
				if got[0].ExecutionID != "e1" || !got[0].Success() {
					t.Errorf("Unexpected first entry %+v", got[0])
				}
				if got[2].Error == nil || got[2].Error.Code != types.ErrCodeExecutionFailed {
					t.Errorf("Expected EXECUTION_FAILED entry, got %+v", got[2])
				}
				if got[2].Error.Details[types.DetailTransactionHash] != "0xfeed" {
					t.Errorf("Expected error details to survive, got %v", got[2].Error.Details)
				}
			})

			t.Run("duplicates are rejected and not counted", func(t *testing.T) {
				before, _ := l.GlobalStats(ctx)

				err := l.Append(ctx, successEntry("e1", "whale-tracker", "0x99", "100000", 10))
				if !errors.Is(err, ErrDuplicate) {
					t.Errorf("Expected ErrDuplicate for execution id, got %v", err)
				}
				err = l.Append(ctx, successEntry("e6", "whale-tracker", "0x01", "100000", 10))
				if !errors.Is(err, ErrDuplicate) {
					t.Errorf("Expected ErrDuplicate for settled tx, got %v", err)
				}

				after, _ := l.GlobalStats(ctx)
				if after != before {
					t.Errorf("Duplicate changed stats: %+v -> %+v", before, after)
				}
			})

			t.Run("invalid entries", func(t *testing.T) {
				both := successEntry("e7", "whale-tracker", "0x07", "1", 1)
				both.Error = types.NewPaymentError(types.ErrCodeUnknown, "x", nil)
				if err := l.Append(ctx, both); !errors.Is(err, ErrInvalidEntry) {
					t.Errorf("Expected ErrInvalidEntry for both outputs, got %v", err)
				}

				neither := Entry{ExecutionID: "e8", SkillID: "whale-tracker"}
				if err := l.Append(ctx, neither); !errors.Is(err, ErrInvalidEntry) {
					t.Errorf("Expected ErrInvalidEntry for no output, got %v", err)
				}
			})
		})
	}
}

func TestConcurrentAppends(t *testing.T) {
	for name, l := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id := string(rune('a' + i))
					if err := l.Append(context.Background(), successEntry(id, "meme-radar", "0x"+id, "100000", 5)); err != nil {
						t.Errorf("Append failed: %v", err)
					}
				}(i)
			}
			wg.Wait()

			stats, err := l.SkillStats(context.Background(), "meme-radar")
			if err != nil {
				t.Fatalf("SkillStats failed: %v", err)
			}
			if stats.Successes != 20 {
				t.Errorf("Expected 20 successes, got %d", stats.Successes)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		l, err := Open("memory", "")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if _, ok := l.(*MemoryLedger); !ok {
			t.Errorf("Expected *MemoryLedger, got %T", l)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		l, err := Open("sqlite", ":memory:")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer l.Close()
		if _, ok := l.(*SQLiteLedger); !ok {
			t.Errorf("Expected *SQLiteLedger, got %T", l)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		if _, err := Open("postgres", ""); err == nil {
			t.Error("Expected error for unknown driver")
		}
	})
}
