package mirror

import (
	"fmt"
	"math/big"
	"time"
)

// UserState is one user's raw state in a single instrument, as reported by
// the ledger-read endpoint. All amounts are in the token's smallest unit.
type UserState struct {
	Deposited     *big.Int
	PendingReward *big.Int
	Claimed       *big.Int
	CurrentValue  *big.Int
	DepositedAt   time.Time
}

// InstrumentTotals are instrument-wide figures used for health reporting.
type InstrumentTotals struct {
	TotalDeposits *big.Int
	RewardPool    *big.Int
}

// AccountInfo is the resolved identity behind an account identifier.
type AccountInfo struct {
	AccountID   string `json:"accountId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Transaction statuses reported by the ledger for submitted transactions.
const (
	TxStatusPending = "PENDING"
	TxStatusSuccess = "SUCCESS"
	TxStatusFailed  = "FAILED"
)

// TransactionState is the ledger's view of a submitted transaction.
type TransactionState struct {
	Status      string `json:"status"`
	BlockNumber int64  `json:"blockNumber,omitempty"`
}

type userStateResponse struct {
	Deposited     string `json:"deposited"`
	PendingReward string `json:"pendingReward"`
	Claimed       string `json:"claimed"`
	CurrentValue  string `json:"currentValue"`
	DepositedAt   int64  `json:"depositedAt"`
}

type totalsResponse struct {
	TotalDeposits string `json:"totalDeposits"`
	RewardPool    string `json:"rewardPool"`
}

type projectedResponse struct {
	ProjectedReturn string `json:"projectedReturn"`
}

type aprResponse struct {
	AprBps int64 `json:"aprBps"`
}

// parseRaw parses a decimal-string raw amount from a mirror response.
// Empty strings read as zero, matching the endpoint's omitted-field behavior.
func parseRaw(field, s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid raw amount %q in field %s", s, field)
	}
	return n, nil
}
