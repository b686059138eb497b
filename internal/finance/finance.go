// Package finance provides exact fixed-point arithmetic on raw token amounts.
// A raw amount is an arbitrary-precision non-negative integer in the token's
// smallest unit, paired with a decimals scale. All functions are pure; mixing
// amounts of different decimals without rescaling is a caller defect.
package finance

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount indicates a user-entered amount that is not a positive
// number representable at the instrument's decimals.
var ErrInvalidAmount = errors.New("amount must be a positive number")

const (
	secondsPerDay  = 86400
	secondsPerYear = 31536000
	bpsScale       = 10000
)

var (
	hundred = decimal.NewFromInt(100)
	ten     = big.NewInt(10)
)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// FormatAmount renders a raw amount as a human-readable decimal string.
// The fraction is truncated, never rounded, so the display can never exceed
// the value actually held. Nil or non-positive amounts render as "0".
func FormatAmount(raw *big.Int, decimals, maxFractionDigits int) string {
	if raw == nil || raw.Sign() <= 0 {
		return "0"
	}
	if decimals <= 0 {
		return raw.String()
	}

	quo, rem := new(big.Int).QuoRem(raw, pow10(decimals), new(big.Int))
	if maxFractionDigits <= 0 || rem.Sign() == 0 {
		return quo.String()
	}

	frac := rem.String()
	if pad := decimals - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	if maxFractionDigits < len(frac) {
		frac = frac[:maxFractionDigits]
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return quo.String()
	}
	return quo.String() + "." + frac
}

// ParseAmount converts a user-entered decimal string into a raw amount at the
// given decimals. Rejects non-numeric, non-positive, and values finer than
// the smallest unit.
func ParseAmount(s string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, ErrInvalidAmount
	}
	return shifted.BigInt(), nil
}

// BpsToPercent converts basis points to a percentage, preserving fractional
// percents (1250 bps = 12.5).
func BpsToPercent(bps int64) decimal.Decimal {
	return decimal.NewFromInt(bps).Div(hundred)
}

// DailyReward returns the reward accrued over one day at the given APR,
// multiply-then-divide to minimize truncation error.
func DailyReward(totalDeposit *big.Int, aprBps int64) *big.Int {
	if totalDeposit == nil || totalDeposit.Sign() <= 0 || aprBps <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(totalDeposit, big.NewInt(aprBps))
	num.Mul(num, big.NewInt(secondsPerDay))
	return num.Div(num, big.NewInt(bpsScale*secondsPerYear))
}

// AnnualReward returns the reward projected over one year at the given APR.
func AnnualReward(totalDeposit *big.Int, aprBps int64) *big.Int {
	if totalDeposit == nil || totalDeposit.Sign() <= 0 || aprBps <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(totalDeposit, big.NewInt(aprBps))
	return num.Div(num, big.NewInt(bpsScale))
}

// DaysRemaining returns how many whole days the reward pool can sustain the
// given daily payout. The second result is true when the payout is zero and
// the pool is unbounded.
func DaysRemaining(pool, daily *big.Int) (int64, bool) {
	if daily == nil || daily.Sign() <= 0 {
		return 0, true
	}
	if pool == nil || pool.Sign() <= 0 {
		return 0, false
	}
	days := new(big.Int).Div(pool, daily)
	if !days.IsInt64() {
		return int64(^uint64(0) >> 1), false
	}
	return days.Int64(), false
}

// UtilizationRate returns deposits/(deposits+pool) as a percentage clamped to
// [0,100]. An exhausted pool with outstanding deposits reads as 100.
func UtilizationRate(deposits, pool *big.Int) decimal.Decimal {
	if deposits == nil || deposits.Sign() <= 0 {
		return decimal.Zero
	}
	if pool == nil || pool.Sign() <= 0 {
		return hundred
	}
	total := new(big.Int).Add(deposits, pool)
	rate := decimal.NewFromBigInt(deposits, 0).
		Div(decimal.NewFromBigInt(total, 0)).
		Mul(hundred)
	if rate.GreaterThan(hundred) {
		return hundred
	}
	if rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}
