package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vorpalengineering/x402-skills/types"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	execution_id     TEXT PRIMARY KEY,
	skill_id         TEXT NOT NULL,
	resource         TEXT NOT NULL,
	payer            TEXT NOT NULL DEFAULT '',
	success          INTEGER NOT NULL,
	executed         INTEGER NOT NULL,
	failed_in        TEXT NOT NULL DEFAULT '',
	tx_hash          TEXT,
	network          TEXT NOT NULL DEFAULT '',
	amount           INTEGER NOT NULL DEFAULT 0,
	amount_text      TEXT NOT NULL DEFAULT '',
	settled_at       INTEGER NOT NULL DEFAULT 0,
	error_code       TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT '',
	error_details    TEXT NOT NULL DEFAULT '',
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	recorded_at      INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_settled_tx ON executions(tx_hash) WHERE success = 1;
CREATE INDEX IF NOT EXISTS idx_executions_skill ON executions(skill_id, recorded_at);
`

// SQLiteLedger persists entries in a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (or creates) the ledger at path. Use ":memory:" for
// a throwaway ledger.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize executions table: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	var (
		txHash                   sql.NullString
		network, amountText      string
		amount, settledAt        int64
		errCode, errMsg, details string
	)
	if entry.Payment != nil {
		txHash = sql.NullString{String: entry.Payment.TransactionHash, Valid: true}
		network = entry.Payment.Network
		amountText = entry.Payment.Amount
		amount = amountOf(entry.Payment)
		settledAt = entry.Payment.SettledAt
	}
	if entry.Error != nil {
		errCode = string(entry.Error.Code)
		errMsg = entry.Error.Message
		if len(entry.Error.Details) > 0 {
			data, err := json.Marshal(entry.Error.Details)
			if err != nil {
				return fmt.Errorf("failed to encode error details: %w", err)
			}
			details = string(data)
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO executions (
			execution_id, skill_id, resource, payer, success, executed, failed_in,
			tx_hash, network, amount, amount_text, settled_at,
			error_code, error_message, error_details, response_time_ms, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ExecutionID, entry.SkillID, entry.Resource, entry.Payer,
		boolInt(entry.Success()), boolInt(entry.Executed()), string(entry.FailedIn),
		txHash, network, amount, amountText, settledAt,
		errCode, errMsg, details, entry.ResponseTimeMs, entry.RecordedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Entries(ctx context.Context, skillID string) ([]Entry, error) {
	query := `
		SELECT execution_id, skill_id, resource, payer, success, failed_in,
		       tx_hash, network, amount_text, settled_at,
		       error_code, error_message, error_details, response_time_ms, recorded_at
		FROM executions`
	var args []any
	if skillID != "" {
		query += ` WHERE skill_id = ?`
		args = append(args, skillID)
	}
	query += ` ORDER BY recorded_at, rowid`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                        Entry
			success                  int
			failedIn                 string
			txHash                   sql.NullString
			network, amount          string
			settledAt, recordedAt    int64
			errCode, errMsg, details string
		)
		if err := rows.Scan(
			&e.ExecutionID, &e.SkillID, &e.Resource, &e.Payer, &success, &failedIn,
			&txHash, &network, &amount, &settledAt,
			&errCode, &errMsg, &details, &e.ResponseTimeMs, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		e.FailedIn = types.PaymentState(failedIn)
		e.RecordedAt = time.UnixMilli(recordedAt)
		if success == 1 {
			e.Payment = &types.PaymentResult{
				TransactionHash: txHash.String,
				Payer:           e.Payer,
				Network:         network,
				Amount:          amount,
				SettledAt:       settledAt,
			}
		} else {
			e.Error = &types.PaymentError{Code: types.ErrorCode(errCode), Message: errMsg}
			if details != "" {
				if err := json.Unmarshal([]byte(details), &e.Error.Details); err != nil {
					return nil, fmt.Errorf("failed to decode error details: %w", err)
				}
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return entries, nil
}

func (l *SQLiteLedger) SkillStats(ctx context.Context, skillID string) (SkillStats, error) {
	stats := SkillStats{SkillID: skillID}
	var totalMs int64

	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(executed), 0),
		       COALESCE(SUM(success), 0),
		       COALESCE(SUM(CASE WHEN success = 1 THEN amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN success = 1 THEN response_time_ms ELSE 0 END), 0)
		FROM executions WHERE skill_id = ?`, skillID,
	).Scan(&stats.Attempts, &stats.TotalExecutions, &stats.Successes, &stats.RevenueMicroSTX, &totalMs)
	if err != nil {
		return SkillStats{}, fmt.Errorf("failed to query skill stats: %w", err)
	}

	stats.finish(totalMs)
	return stats, nil
}

func (l *SQLiteLedger) GlobalStats(ctx context.Context) (GlobalStats, error) {
	var executions, revenue int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(executed), 0),
		       COALESCE(SUM(CASE WHEN success = 1 THEN amount ELSE 0 END), 0)
		FROM executions`,
	).Scan(&executions, &revenue)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("failed to query global stats: %w", err)
	}
	return newGlobalStats(executions, revenue), nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
