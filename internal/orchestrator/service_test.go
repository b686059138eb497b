package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/hashyield/dash/internal/activity"
	"github.com/hashyield/dash/internal/domain"
	"github.com/hashyield/dash/internal/events"
	"github.com/hashyield/dash/internal/finance"
	"github.com/hashyield/dash/internal/mirror"
	"github.com/hashyield/dash/internal/signer"
)

const (
	evmTxID    = "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"
	nativeTxID = "0.0.1234@1690000000.123456789"
)

type mockSigner struct {
	mu         sync.Mutex
	calls      []string
	allowance  *big.Int
	allowErr   error
	approved   *big.Int
	approveErr error
	submitted  *signer.ActionRequest
	submitErr  error
	txID       string
}

func (m *mockSigner) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockSigner) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockSigner) Allowance(_ context.Context, _, _, _ string) (*big.Int, error) {
	m.record("allowance")
	if m.allowErr != nil {
		return nil, m.allowErr
	}
	return m.allowance, nil
}

func (m *mockSigner) Approve(_ context.Context, _, _, _ string, amount *big.Int) (signer.SubmitResult, error) {
	m.record("approve")
	if m.approveErr != nil {
		return signer.SubmitResult{}, m.approveErr
	}
	m.mu.Lock()
	m.approved = new(big.Int).Set(amount)
	m.mu.Unlock()
	return signer.SubmitResult{TransactionID: nativeTxID}, nil
}

func (m *mockSigner) Submit(_ context.Context, _ string, req signer.ActionRequest) (signer.SubmitResult, error) {
	m.record("submit")
	if m.submitErr != nil {
		return signer.SubmitResult{}, m.submitErr
	}
	m.mu.Lock()
	reqCopy := req
	m.submitted = &reqCopy
	m.mu.Unlock()
	return signer.SubmitResult{TransactionID: m.txID}, nil
}

type mockConfirmations struct {
	mu     sync.Mutex
	polls  int
	status string
	err    error
}

func (m *mockConfirmations) TransactionState(_ context.Context, _ string) (mirror.TransactionState, error) {
	m.mu.Lock()
	m.polls++
	m.mu.Unlock()
	if m.err != nil {
		return mirror.TransactionState{}, m.err
	}
	return mirror.TransactionState{Status: m.status}, nil
}

func (m *mockConfirmations) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

type mockRecorder struct {
	mu   sync.Mutex
	recs []activity.Record
}

func (m *mockRecorder) Record(_ context.Context, rec activity.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func newTestService(sc *mockSigner, conf *mockConfirmations, rec ActivityRecorder) (*Service, *events.Bus) {
	bus := events.NewBus()
	svc := NewService(sc, conf, bus, rec, time.Millisecond, 50*time.Millisecond)
	return svc, bus
}

func raw(tokens int64) *big.Int {
	scale, _ := new(big.Int).SetString("1000000000000000000", 10)
	return new(big.Int).Mul(big.NewInt(tokens), scale)
}

func depositRequest(amount string) Request {
	return Request{
		Action:       domain.ActionDeposit,
		InstrumentID: "hy-fixed-vault",
		Amount:       amount,
		Account:      "0.0.4242",
		Credential:   "token",
	}
}

func TestSufficientAllowanceSkipsApproval(t *testing.T) {
	sc := &mockSigner{allowance: raw(500), txID: nativeTxID}
	svc, _ := newTestService(sc, &mockConfirmations{status: mirror.TxStatusSuccess}, nil)

	receipt, err := svc.Execute(context.Background(), depositRequest("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !receipt.Confirmed {
		t.Error("expected confirmed receipt")
	}

	want := []string{"allowance", "submit"}
	got := sc.callLog()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestInsufficientAllowanceApprovesBeforeSubmit(t *testing.T) {
	sc := &mockSigner{allowance: raw(50), txID: nativeTxID}
	svc, _ := newTestService(sc, &mockConfirmations{status: mirror.TxStatusSuccess}, nil)

	if _, err := svc.Execute(context.Background(), depositRequest("100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"allowance", "approve", "submit"}
	got := sc.callLog()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}

	// Deposit of "100" units at 18 decimals: approval for 100 * 10^18.
	if sc.approved.Cmp(raw(100)) < 0 {
		t.Errorf("approved %s, want at least %s", sc.approved, raw(100))
	}
	if sc.submitted.Amount.String() != "100000000000000000000" {
		t.Errorf("submitted raw = %s, want 100000000000000000000", sc.submitted.Amount)
	}
}

func TestWithdrawSkipsAllowanceProtocol(t *testing.T) {
	sc := &mockSigner{txID: nativeTxID}
	svc, _ := newTestService(sc, &mockConfirmations{status: mirror.TxStatusSuccess}, nil)

	req := depositRequest("100")
	req.Action = domain.ActionWithdraw
	if _, err := svc.Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := sc.callLog()
	if len(got) != 1 || got[0] != "submit" {
		t.Errorf("calls = %v, want [submit]", got)
	}
}

func TestInvalidAmountFailsBeforeNetwork(t *testing.T) {
	sc := &mockSigner{allowance: raw(500), txID: nativeTxID}
	svc, _ := newTestService(sc, &mockConfirmations{status: mirror.TxStatusSuccess}, nil)

	for _, bad := range []string{"", "-5", "0", "abc"} {
		if _, err := svc.Execute(context.Background(), depositRequest(bad)); !errors.Is(err, finance.ErrInvalidAmount) {
			t.Errorf("Execute(%q) error = %v, want ErrInvalidAmount", bad, err)
		}
	}
	if got := sc.callLog(); len(got) != 0 {
		t.Errorf("signer was called for invalid input: %v", got)
	}
}

func TestActionInstrumentKindMismatch(t *testing.T) {
	sc := &mockSigner{allowance: raw(500), txID: nativeTxID}
	svc, _ := newTestService(sc, &mockConfirmations{status: mirror.TxStatusSuccess}, nil)

	req := depositRequest("1")
	req.Action = domain.ActionStake // hy-fixed-vault is a vault
	if _, err := svc.Execute(context.Background(), req); err == nil {
		t.Error("expected error for stake on a vault")
	}
	if got := sc.callLog(); len(got) != 0 {
		t.Errorf("signer was called for mismatched action: %v", got)
	}
}

func TestEvmHashTriggersConfirmationWait(t *testing.T) {
	sc := &mockSigner{allowance: raw(500), txID: evmTxID}
	conf := &mockConfirmations{status: mirror.TxStatusSuccess}
	svc, _ := newTestService(sc, conf, nil)

	receipt, err := svc.Execute(context.Background(), depositRequest("1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !receipt.Confirmed {
		t.Error("expected confirmed receipt")
	}
	if conf.pollCount() == 0 {
		t.Error("expected at least one confirmation poll for an EVM hash")
	}
}

func TestNativeIDSkipsConfirmationWait(t *testing.T) {
	sc := &mockSigner{allowance: raw(500), txID: nativeTxID}
	conf := &mockConfirmations{status: mirror.TxStatusSuccess}
	svc, _ := newTestService(sc, conf, nil)

	receipt, err := svc.Execute(context.Background(), depositRequest("1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !receipt.Confirmed {
		t.Error("native identifiers are already final")
	}
	if conf.pollCount() != 0 {
		t.Errorf("polled %d times for a native identifier, want 0", conf.pollCount())
	}
}

func TestConfirmationTimeoutIsNotAFailure(t *testing.T) {
	sc := &mockSigner{allowance: raw(500), txID: evmTxID}
	conf := &mockConfirmations{status: mirror.TxStatusPending}
	svc, _ := newTestService(sc, conf, nil)

	receipt, err := svc.Execute(context.Background(), depositRequest("1"))
	if err != nil {
		t.Fatalf("timeout surfaced as failure: %v", err)
	}
	if receipt.Confirmed {
		t.Error("expected unconfirmed receipt after timeout")
	}
	if receipt.TransactionID != evmTxID {
		t.Errorf("TransactionID = %s", receipt.TransactionID)
	}
}

func TestNewServiceAppliesConfirmationTiming(t *testing.T) {
	sc := &mockSigner{txID: nativeTxID}
	bus := events.NewBus()

	svc := NewService(sc, &mockConfirmations{}, bus, nil, 5*time.Second, time.Minute)
	if svc.confirmInterval != 5*time.Second || svc.confirmTimeout != time.Minute {
		t.Errorf("timing = %v/%v, want 5s/1m", svc.confirmInterval, svc.confirmTimeout)
	}

	svc = NewService(sc, &mockConfirmations{}, bus, nil, 0, 0)
	if svc.confirmInterval != defaultConfirmInterval || svc.confirmTimeout != defaultConfirmTimeout {
		t.Errorf("zero timing = %v/%v, want defaults", svc.confirmInterval, svc.confirmTimeout)
	}
}

func TestSuccessPublishesInvalidationEvents(t *testing.T) {
	sc := &mockSigner{allowance: raw(500), txID: nativeTxID}
	svc, bus := newTestService(sc, &mockConfirmations{status: mirror.TxStatusSuccess}, nil)

	ch, cancel := bus.Subscribe(events.ActivityChanged, events.VaultPositionsChanged)
	defer cancel()

	if _, err := svc.Execute(context.Background(), depositRequest("1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[events.Kind]bool{}
	for range 2 {
		select {
		case ev := <-ch:
			seen[ev.Kind] = true
		case <-time.After(time.Second):
			t.Fatal("missing invalidation event")
		}
	}
	if !seen[events.ActivityChanged] || !seen[events.VaultPositionsChanged] {
		t.Errorf("events seen: %v", seen)
	}
}

func TestStakePublishesPoolEvent(t *testing.T) {
	sc := &mockSigner{allowance: raw(500), txID: nativeTxID}
	svc, bus := newTestService(sc, &mockConfirmations{status: mirror.TxStatusSuccess}, nil)

	ch, cancel := bus.Subscribe(events.PoolPositionsChanged)
	defer cancel()

	req := depositRequest("1")
	req.Action = domain.ActionStake
	req.InstrumentID = "hgn-staking"
	if _, err := svc.Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("missing pool positions event")
	}
}

func TestSignerFailureSurfacesMessage(t *testing.T) {
	sc := &mockSigner{
		allowance: raw(500),
		submitErr: &signer.APIError{Status: 400, Message: "insufficient balance"},
	}
	svc, _ := newTestService(sc, &mockConfirmations{status: mirror.TxStatusSuccess}, nil)

	_, err := svc.Execute(context.Background(), depositRequest("1"))
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *signer.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "insufficient balance" {
		t.Errorf("error = %v, want wrapped signer message", err)
	}
}

func TestStepProgressionAndDiscard(t *testing.T) {
	sc := &mockSigner{allowance: raw(50), txID: nativeTxID}
	rec := &mockRecorder{}
	svc, _ := newTestService(sc, &mockConfirmations{status: mirror.TxStatusSuccess}, rec)

	receipt, err := svc.Execute(context.Background(), depositRequest("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, ok := svc.Status(receipt.ActionID)
	if !ok {
		t.Fatal("step record missing")
	}
	if step.State != domain.StepConfirmed {
		t.Errorf("state = %s, want confirmed", step.State)
	}
	if step.TransactionID != nativeTxID {
		t.Errorf("TransactionID = %s", step.TransactionID)
	}

	svc.Discard(receipt.ActionID)
	if _, ok := svc.Status(receipt.ActionID); ok {
		t.Error("step record not discarded")
	}

	if len(rec.recs) != 1 || rec.recs[0].Amount != "100000000000000000000" {
		t.Errorf("activity records = %+v", rec.recs)
	}
}

func TestFailedStepKeepsReason(t *testing.T) {
	sc := &mockSigner{allowErr: errors.New("signer down")}
	svc, _ := newTestService(sc, &mockConfirmations{}, nil)

	receipt, err := svc.Execute(context.Background(), depositRequest("1"))
	if err == nil {
		t.Fatal("expected error")
	}

	step, ok := svc.Status(receipt.ActionID)
	if !ok {
		t.Fatal("failed step record missing")
	}
	if step.State != domain.StepFailed {
		t.Errorf("state = %s, want failed", step.State)
	}
	if step.Reason != "signer down" {
		t.Errorf("reason = %q", step.Reason)
	}

	// Failed records are terminal and can be discarded.
	svc.Discard(receipt.ActionID)
	if _, ok := svc.Status(receipt.ActionID); ok {
		t.Error("failed record not discarded")
	}
}
