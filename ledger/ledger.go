package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

var (
	// ErrDuplicate is returned for a repeated execution id or a second
	// success settled by the same transaction.
	ErrDuplicate    = errors.New("duplicate ledger entry")
	ErrInvalidEntry = errors.New("invalid ledger entry")
)

// Entry is the record of one terminal attempt. Exactly one of Payment and
// Error is set.
type Entry struct {
	ExecutionID    string               `json:"executionId"`
	SkillID        string               `json:"skillId"`
	Resource       string               `json:"resource"`
	Payer          string               `json:"payer,omitempty"`
	Payment        *types.PaymentResult `json:"payment,omitempty"`
	Error          *types.PaymentError  `json:"error,omitempty"`
	FailedIn       types.PaymentState   `json:"failedIn,omitempty"`
	ResponseTimeMs int64                `json:"responseTimeMs"`
	RecordedAt     time.Time            `json:"recordedAt"`
}

func (e *Entry) Success() bool {
	return e.Payment != nil && e.Error == nil
}

// Executed reports whether the attempt reached the skill backend.
func (e *Entry) Executed() bool {
	return e.Success() || e.FailedIn == types.StateExecuting
}

func (e *Entry) Validate() error {
	if e.ExecutionID == "" {
		return fmt.Errorf("%w: missing execution id", ErrInvalidEntry)
	}
	if e.SkillID == "" {
		return fmt.Errorf("%w: missing skill id", ErrInvalidEntry)
	}
	if (e.Payment == nil) == (e.Error == nil) {
		return fmt.Errorf("%w: exactly one of payment and error must be set", ErrInvalidEntry)
	}
	if e.Payment != nil && !e.Payment.Valid() {
		return fmt.Errorf("%w: incomplete payment result", ErrInvalidEntry)
	}
	return nil
}

// Ledger is an append-only record of terminal attempts. It drives display
// figures only.
type Ledger interface {
	Append(ctx context.Context, entry Entry) error
	Entries(ctx context.Context, skillID string) ([]Entry, error)
	SkillStats(ctx context.Context, skillID string) (SkillStats, error)
	GlobalStats(ctx context.Context) (GlobalStats, error)
	Close() error
}

type SkillStats struct {
	SkillID           string  `json:"skillId"`
	Attempts          int64   `json:"attempts"`
	TotalExecutions   int64   `json:"totalExecutions"`
	Successes         int64   `json:"successes"`
	SuccessRate       float64 `json:"successRate"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	RevenueMicroSTX   int64   `json:"revenueMicroSTX"`
}

// Label is the display value of the success rate, "New" without history.
func (s SkillStats) Label() string {
	if s.TotalExecutions == 0 {
		return "New"
	}
	return fmt.Sprintf("%.0f%%", s.SuccessRate)
}

type GlobalStats struct {
	TotalExecutions      int64  `json:"totalExecutions"`
	TotalRevenueMicroSTX int64  `json:"totalRevenueMicroSTX"`
	TotalRevenueSTX      string `json:"totalRevenueSTX"`
}

// finish derives rates from raw counters.
func (s *SkillStats) finish(totalResponseMs int64) {
	if s.TotalExecutions > 0 {
		s.SuccessRate = float64(s.Successes) * 100 / float64(s.TotalExecutions)
	}
	if s.Successes > 0 {
		s.AvgResponseTimeMs = float64(totalResponseMs) / float64(s.Successes)
	}
}

func newGlobalStats(executions int64, revenue int64) GlobalStats {
	return GlobalStats{
		TotalExecutions:      executions,
		TotalRevenueMicroSTX: revenue,
		TotalRevenueSTX:      utils.MicroSTXToSTX(revenue).String(),
	}
}

func amountOf(p *types.PaymentResult) int64 {
	v, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}

// Open returns the ledger for a configured driver ("memory" or "sqlite").
func Open(driver, path string) (Ledger, error) {
	switch driver {
	case "", "memory":
		return NewMemoryLedger(), nil
	case "sqlite":
		return NewSQLiteLedger(path)
	default:
		return nil, fmt.Errorf("unknown ledger driver: %s", driver)
	}
}
