package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFormatSTX(t *testing.T) {
	tests := map[int64]string{
		100_000:   "0.1 STX",
		250_000:   "0.25 STX",
		500_000:   "0.5 STX",
		2_000_000: "2 STX",
		0:         "0 STX",
		1:         "0.000001 STX",
	}
	for in, want := range tests {
		if got := FormatSTX(in); got != want {
			t.Errorf("FormatSTX(%d) = %q, want %q", in, got, want)
		}
	}

	got, err := FormatSTXAmount("123456789012345678901")
	if err != nil {
		t.Fatalf("FormatSTXAmount failed: %v", err)
	}
	if got != "123456789012345.678901 STX" {
		t.Errorf("Unexpected large amount formatting: %s", got)
	}
	if _, err := FormatSTXAmount("1.5"); err == nil {
		t.Error("Expected error for fractional microSTX")
	}
}

func TestSTXConversion(t *testing.T) {
	if got := STXToMicroSTX(decimal.RequireFromString("0.25")); got != 250_000 {
		t.Errorf("Expected 250000, got %d", got)
	}
	if got := MicroSTXToSTX(2_000_000); !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected 2, got %s", got)
	}
}

func TestTruncateAddress(t *testing.T) {
	if got := TruncateAddress(testnetAddr, 4, 5); got != "ST1P…PGZGM" {
		t.Errorf("Unexpected truncation: %s", got)
	}
	if got := TruncateAddress("ST1ABC", 4, 5); got != "ST1ABC" {
		t.Errorf("Short address should be unchanged, got %s", got)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int64]string{
		999:           "999",
		1_000:         "1K",
		1_500:         "1.5K",
		2_500_000:     "2.5M",
		3_000_000_000: "3B",
	}
	for in, want := range tests {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(250); got != "250ms" {
		t.Errorf("Expected 250ms, got %s", got)
	}
	if got := FormatDuration(1500); got != "1.5s" {
		t.Errorf("Expected 1.5s, got %s", got)
	}
	if got := FormatDuration(2000); got != "2s" {
		t.Errorf("Expected 2s, got %s", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("milliseconds", func(t *testing.T) {
		ts := now.Add(-30 * time.Second).UnixMilli()
		if got := FormatTimestamp(ts, now); got != "just now" {
			t.Errorf("Expected just now, got %s", got)
		}
	})

	t.Run("seconds are normalized", func(t *testing.T) {
		ts := now.Add(-5 * time.Minute).Unix()
		if got := FormatTimestamp(ts, now); got != "5m ago" {
			t.Errorf("Expected 5m ago, got %s", got)
		}
	})

	t.Run("hours and days", func(t *testing.T) {
		if got := FormatTimestamp(now.Add(-3*time.Hour).UnixMilli(), now); got != "3h ago" {
			t.Errorf("Expected 3h ago, got %s", got)
		}
		if got := FormatTimestamp(now.Add(-49*time.Hour).UnixMilli(), now); got != "2d ago" {
			t.Errorf("Expected 2d ago, got %s", got)
		}
	})

	t.Run("old dates", func(t *testing.T) {
		ts := now.AddDate(0, -3, 0).UnixMilli()
		if got := FormatTimestamp(ts, now); got != "2025-03-01" {
			t.Errorf("Expected 2025-03-01, got %s", got)
		}
	})
}
