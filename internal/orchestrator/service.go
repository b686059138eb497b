// Package orchestrator drives the allowance-check → approve → execute →
// confirm protocol for mutating wallet actions against the custodial signer.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/hashyield/dash/internal/activity"
	"github.com/hashyield/dash/internal/domain"
	"github.com/hashyield/dash/internal/events"
	"github.com/hashyield/dash/internal/finance"
	"github.com/hashyield/dash/internal/mirror"
	"github.com/hashyield/dash/internal/signer"
)

// evmHashPattern matches EVM-style pending transaction hashes. Identifiers
// of any other shape (e.g. 0.0.1234@1690000000.123456789) are already final
// per the signer contract and are not waited on.
var evmHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

const (
	defaultConfirmInterval = 2 * time.Second
	defaultConfirmTimeout  = 45 * time.Second
)

// SignerClient defines the custodial signer operations used by the
// orchestrator.
type SignerClient interface {
	Allowance(ctx context.Context, credential, tokenAddress, spenderAddress string) (*big.Int, error)
	Approve(ctx context.Context, credential, tokenAddress, spenderAddress string, amount *big.Int) (signer.SubmitResult, error)
	Submit(ctx context.Context, credential string, req signer.ActionRequest) (signer.SubmitResult, error)
}

// ConfirmationReader reads transaction finality from the ledger.
type ConfirmationReader interface {
	TransactionState(ctx context.Context, transactionID string) (mirror.TransactionState, error)
}

// ActivityRecorder stores executed actions for the activity feed.
type ActivityRecorder interface {
	Record(ctx context.Context, rec activity.Record) error
}

// Request is one user-initiated mutating action. Amount is the user-entered
// decimal string; Credential is the opaque bearer token to forward.
type Request struct {
	Action       domain.Action
	InstrumentID string
	Amount       string
	Account      string
	Credential   string
}

// Receipt is the outcome of an Execute call. Confirmed is false when the
// confirmation wait timed out; the action itself still succeeded and a later
// refresh will converge. On error only ActionID is set, so the failed step
// record remains queryable.
type Receipt struct {
	ActionID      string `json:"actionId"`
	TransactionID string `json:"transactionId"`
	Confirmed     bool   `json:"confirmed"`
}

// Service executes mutating actions. Re-invoking Execute after a submit
// failure may double-submit: there is no cross-call dedupe, so callers must
// not auto-retry without explicit user confirmation.
type Service struct {
	signer   SignerClient
	ledger   ConfirmationReader
	bus      *events.Bus
	activity ActivityRecorder // optional

	steps           *stepTracker
	confirmInterval time.Duration
	confirmTimeout  time.Duration
}

// NewService creates a new orchestrator. activity may be nil when no feed
// storage is configured; non-positive confirmation timings use the defaults.
func NewService(sc SignerClient, ledger ConfirmationReader, bus *events.Bus, recorder ActivityRecorder, confirmInterval, confirmTimeout time.Duration) *Service {
	if sc == nil {
		panic("orchestrator.NewService: signer is nil")
	}
	if ledger == nil {
		panic("orchestrator.NewService: ledger is nil")
	}
	if bus == nil {
		panic("orchestrator.NewService: bus is nil")
	}
	if confirmInterval <= 0 {
		confirmInterval = defaultConfirmInterval
	}
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return &Service{
		signer:          sc,
		ledger:          ledger,
		bus:             bus,
		activity:        recorder,
		steps:           newStepTracker(),
		confirmInterval: confirmInterval,
		confirmTimeout:  confirmTimeout,
	}
}

// Execute runs the full mutating-action protocol. Validation happens before
// any network call; approval, when needed, always completes before the main
// action is submitted.
func (s *Service) Execute(ctx context.Context, req Request) (Receipt, error) {
	actionID := uuid.NewString()
	s.steps.start(actionID, req.Action)

	if !req.Action.Valid() {
		s.steps.fail(actionID, "unknown action")
		return Receipt{ActionID: actionID}, fmt.Errorf("unknown action %q", req.Action)
	}
	inst, ok := domain.InstrumentByID(req.InstrumentID)
	if !ok {
		s.steps.fail(actionID, "unknown instrument")
		return Receipt{ActionID: actionID}, fmt.Errorf("unknown instrument %q", req.InstrumentID)
	}
	if req.Action.InstrumentKindFor() != inst.Kind {
		s.steps.fail(actionID, "action does not apply to instrument")
		return Receipt{ActionID: actionID}, fmt.Errorf("%s does not apply to %s %s", req.Action, inst.Kind, inst.ID)
	}

	raw, err := finance.ParseAmount(req.Amount, inst.Decimals)
	if err != nil {
		s.steps.fail(actionID, err.Error())
		return Receipt{ActionID: actionID}, fmt.Errorf("validating amount %q: %w", req.Amount, err)
	}

	if req.Action.MovesFundsIn() {
		s.steps.transition(actionID, domain.StepCheckingAllowance)
		allowance, err := s.signer.Allowance(ctx, req.Credential, inst.TokenAddress, inst.Address)
		if err != nil {
			s.steps.fail(actionID, err.Error())
			return Receipt{ActionID: actionID}, fmt.Errorf("checking allowance for %s: %w", inst.ID, err)
		}

		if allowance.Cmp(raw) < 0 {
			s.steps.transition(actionID, domain.StepApproving)
			approval, err := s.signer.Approve(ctx, req.Credential, inst.TokenAddress, inst.Address, raw)
			if err != nil {
				s.steps.fail(actionID, err.Error())
				return Receipt{ActionID: actionID}, fmt.Errorf("approving %s for %s: %w", req.Amount, inst.ID, err)
			}
			slog.Info("approval submitted",
				"actionId", actionID, "instrument", inst.ID, "transactionId", approval.TransactionID)
		}
	}

	s.steps.transition(actionID, domain.StepExecuting)
	result, err := s.signer.Submit(ctx, req.Credential, signer.ActionRequest{
		Action:            req.Action,
		InstrumentAddress: inst.Address,
		TokenAddress:      inst.TokenAddress,
		Amount:            raw,
	})
	if err != nil {
		s.steps.fail(actionID, err.Error())
		return Receipt{ActionID: actionID}, fmt.Errorf("executing %s on %s: %w", req.Action, inst.ID, err)
	}
	s.steps.setTransaction(actionID, result.TransactionID)

	confirmed := true
	if evmHashPattern.MatchString(result.TransactionID) {
		s.steps.transition(actionID, domain.StepAwaitingConfirmation)
		confirmed, err = s.awaitConfirmation(ctx, result.TransactionID)
		if err != nil {
			s.steps.fail(actionID, err.Error())
			return Receipt{ActionID: actionID}, err
		}
	}

	s.steps.transition(actionID, domain.StepConfirmed)
	s.bus.Publish(events.ActivityChanged)
	s.bus.Publish(events.PositionsChangedFor(string(inst.Kind)))

	if s.activity != nil {
		rec := activity.Record{
			ID:            actionID,
			Account:       req.Account,
			Action:        string(req.Action),
			InstrumentID:  inst.ID,
			Amount:        raw.String(),
			TransactionID: result.TransactionID,
			Status:        "confirmed",
		}
		if !confirmed {
			rec.Status = "submitted"
		}
		if err := s.activity.Record(ctx, rec); err != nil {
			slog.Warn("failed to record activity", "actionId", actionID, "error", err)
		}
	}

	return Receipt{ActionID: actionID, TransactionID: result.TransactionID, Confirmed: confirmed}, nil
}

// awaitConfirmation polls the ledger until the transaction finalizes or the
// confirmation budget runs out. A timeout is not a failure: the action was
// already submitted and a subsequent refresh will converge; only an
// on-ledger FAILED status is surfaced as an error.
func (s *Service) awaitConfirmation(ctx context.Context, transactionID string) (bool, error) {
	deadline := time.Now().Add(s.confirmTimeout)

	for {
		state, err := s.ledger.TransactionState(ctx, transactionID)
		if err != nil {
			slog.Warn("confirmation poll failed", "transactionId", transactionID, "error", err)
		} else {
			switch state.Status {
			case mirror.TxStatusSuccess:
				return true, nil
			case mirror.TxStatusFailed:
				return false, fmt.Errorf("transaction %s failed on ledger", transactionID)
			}
		}

		if time.Now().After(deadline) {
			slog.Warn("confirmation wait timed out, positions may be stale until next refresh",
				"transactionId", transactionID)
			return false, nil
		}

		select {
		case <-ctx.Done():
			slog.Warn("caller abandoned confirmation wait", "transactionId", transactionID)
			return false, nil
		case <-time.After(s.confirmInterval):
		}
	}
}

// Status returns the recorded progress of an action.
func (s *Service) Status(actionID string) (domain.TransactionStep, bool) {
	return s.steps.get(actionID)
}

// Discard removes a terminal action record once the caller has consumed it.
func (s *Service) Discard(actionID string) {
	s.steps.discard(actionID)
}
