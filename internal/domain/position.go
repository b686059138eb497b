package domain

import (
	"math/big"
	"time"
)

// UserPosition is one user's holding in a single instrument, recomputed on
// every aggregation pass. All raw amounts share the instrument's decimals.
type UserPosition struct {
	Instrument            Instrument
	AprBps                int64
	Deposited             *big.Int
	PendingRewards        *big.Int
	Claimed               *big.Int
	CurrentValue          *big.Int
	ProjectedAnnualReturn *big.Int
	DepositedAt           time.Time
}

// PositionSummary aggregates all of a user's positions from one pass.
// Warnings carries per-instrument skip reasons so callers can surface
// degraded results without treating them as failures.
type PositionSummary struct {
	Account              string
	Positions            []UserPosition
	TotalDeposited       *big.Int
	TotalCurrentValue    *big.Int
	TotalPendingRewards  *big.Int
	TotalProjectedReturn *big.Int
	Warnings             []string
	GeneratedAt          time.Time
}

// ResolvedRecipient is the outcome of one recipient lookup, keyed by the
// input string it was resolved from.
type ResolvedRecipient struct {
	AccountID   string `json:"accountId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}
