package domain

import "time"

// Action is a user-initiated mutating operation on an instrument.
type Action string

const (
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
	ActionStake    Action = "stake"
	ActionUnstake  Action = "unstake"
)

// Valid reports whether the action is one of the four supported operations.
func (a Action) Valid() bool {
	switch a {
	case ActionDeposit, ActionWithdraw, ActionStake, ActionUnstake:
		return true
	}
	return false
}

// MovesFundsIn reports whether the action moves tokens into an instrument
// and therefore requires the allowance sub-protocol.
func (a Action) MovesFundsIn() bool {
	return a == ActionDeposit || a == ActionStake
}

// InstrumentKindFor returns the instrument class an action operates on.
func (a Action) InstrumentKindFor() InstrumentKind {
	if a == ActionStake || a == ActionUnstake {
		return KindStakingPool
	}
	return KindVault
}

// StepState is the observable state of one in-flight mutating action.
type StepState string

const (
	StepNotStarted           StepState = "notStarted"
	StepCheckingAllowance    StepState = "checkingAllowance"
	StepApproving            StepState = "approving"
	StepExecuting            StepState = "executing"
	StepAwaitingConfirmation StepState = "awaitingConfirmation"
	StepConfirmed            StepState = "confirmed"
	StepFailed               StepState = "failed"
)

// Terminal reports whether the state ends the action's lifecycle.
func (s StepState) Terminal() bool {
	return s == StepConfirmed || s == StepFailed
}

// TransactionStep is the recorded progress of one mutating action, queryable
// by its action ID until the caller discards it at a terminal state.
type TransactionStep struct {
	ActionID      string    `json:"actionId"`
	Action        Action    `json:"action"`
	State         StepState `json:"state"`
	Reason        string    `json:"reason,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
