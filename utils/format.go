package utils

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const MicroSTXPerSTX = 1_000_000

var microPerSTX = decimal.NewFromInt(MicroSTXPerSTX)

// MicroSTXToSTX converts an integer microSTX amount to STX.
func MicroSTXToSTX(microSTX int64) decimal.Decimal {
	return decimal.NewFromInt(microSTX).Div(microPerSTX)
}

// STXToMicroSTX converts an STX amount to microSTX, rounding half away from zero.
func STXToMicroSTX(stx decimal.Decimal) int64 {
	return stx.Mul(microPerSTX).Round(0).IntPart()
}

// FormatSTX renders microSTX for display without trailing zeros:
// 100000 -> "0.1 STX", 2000000 -> "2 STX", 250000 -> "0.25 STX".
func FormatSTX(microSTX int64) string {
	return MicroSTXToSTX(microSTX).String() + " STX"
}

// FormatSTXAmount is FormatSTX for string-encoded amounts of any size.
func FormatSTXAmount(microSTX string) (string, error) {
	v, ok := new(big.Int).SetString(microSTX, 10)
	if !ok {
		return "", fmt.Errorf("invalid microSTX amount: %q", microSTX)
	}
	return decimal.NewFromBigInt(v, 0).Div(microPerSTX).String() + " STX", nil
}

// TruncateAddress shortens an address for display, e.g. SP2P…PGZGM.
func TruncateAddress(address string, start, end int) string {
	if address == "" || len(address) <= start+end+3 {
		return address
	}
	return address[:start] + "…" + address[len(address)-end:]
}

// FormatNumber abbreviates large counts: 1500 -> "1.5K", 2500000 -> "2.5M".
func FormatNumber(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return trimOneDecimal(float64(n)/1_000_000_000) + "B"
	case n >= 1_000_000:
		return trimOneDecimal(float64(n)/1_000_000) + "M"
	case n >= 1_000:
		return trimOneDecimal(float64(n)/1_000) + "K"
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatDuration renders milliseconds: 250 -> "250ms", 1500 -> "1.5s".
func FormatDuration(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}
	return trimOneDecimal(ms/1000) + "s"
}

// FormatTimestamp renders a unix timestamp (seconds or milliseconds) relative to now.
func FormatTimestamp(ts int64, now time.Time) string {
	if ts < 1e12 {
		ts *= 1000
	}
	t := time.UnixMilli(ts)
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	case diff < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff/(24*time.Hour)))
	default:
		return t.UTC().Format("2006-01-02")
	}
}

func trimOneDecimal(v float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
}
