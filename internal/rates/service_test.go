package rates

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockLedger struct {
	rates map[string]int64 // keyed by instrument address
	errs  map[string]error
	calls int
}

func (m *mockLedger) LiveAprBps(_ context.Context, address string) (int64, error) {
	m.calls++
	if err := m.errs[address]; err != nil {
		return 0, err
	}
	return m.rates[address], nil
}

type mockRepo struct {
	stored map[string]StoredRate
}

func newMockRepo() *mockRepo {
	return &mockRepo{stored: make(map[string]StoredRate)}
}

func (m *mockRepo) Upsert(_ context.Context, rate StoredRate) error {
	m.stored[rate.InstrumentID] = rate
	return nil
}

func (m *mockRepo) Get(_ context.Context, instrumentID string) (StoredRate, error) {
	rate, ok := m.stored[instrumentID]
	if !ok {
		return StoredRate{}, ErrNotFound
	}
	return rate, nil
}

// hy-flex-vault has no declared rate; its address in the registry.
const flexVaultAddr = "0x7f6e5d4c3b2a190807f6e5d4c3b2a19080706f5e"

func TestDeclaredRateSkipsLedger(t *testing.T) {
	ledger := &mockLedger{}
	svc := NewService(ledger, nil, 0)

	bps, err := svc.AprBps(context.Background(), "hy-fixed-vault")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bps != 1250 {
		t.Errorf("AprBps = %d, want 1250", bps)
	}
	if ledger.calls != 0 {
		t.Errorf("ledger called %d times for a declared rate", ledger.calls)
	}
}

func TestLiveRateIsStored(t *testing.T) {
	ledger := &mockLedger{rates: map[string]int64{flexVaultAddr: 975}}
	repo := newMockRepo()
	svc := NewService(ledger, repo, 0)

	bps, err := svc.AprBps(context.Background(), "hy-flex-vault")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bps != 975 {
		t.Errorf("AprBps = %d, want 975", bps)
	}
	if stored, ok := repo.stored["hy-flex-vault"]; !ok || stored.AprBps != 975 {
		t.Errorf("stored = %+v, want observation persisted", repo.stored)
	}
}

func TestFreshStoredRateServesAsFallback(t *testing.T) {
	ledger := &mockLedger{errs: map[string]error{flexVaultAddr: errors.New("mirror down")}}
	repo := newMockRepo()
	repo.stored["hy-flex-vault"] = StoredRate{
		InstrumentID: "hy-flex-vault",
		AprBps:       910,
		UpdatedAt:    time.Now().UTC().Add(-time.Hour),
	}
	svc := NewService(ledger, repo, 0)

	bps, err := svc.AprBps(context.Background(), "hy-flex-vault")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bps != 910 {
		t.Errorf("AprBps = %d, want stored 910", bps)
	}
}

func TestStaleStoredRateIsRejected(t *testing.T) {
	ledger := &mockLedger{errs: map[string]error{flexVaultAddr: errors.New("mirror down")}}
	repo := newMockRepo()
	repo.stored["hy-flex-vault"] = StoredRate{
		InstrumentID: "hy-flex-vault",
		AprBps:       910,
		UpdatedAt:    time.Now().UTC().Add(-24 * time.Hour),
	}
	svc := NewService(ledger, repo, 0)

	if _, err := svc.AprBps(context.Background(), "hy-flex-vault"); err == nil {
		t.Error("expected error when live read fails and stored rate is stale")
	}
}

func TestConfiguredStaleThresholdIsHonored(t *testing.T) {
	ledger := &mockLedger{errs: map[string]error{flexVaultAddr: errors.New("mirror down")}}
	repo := newMockRepo()
	repo.stored["hy-flex-vault"] = StoredRate{
		InstrumentID: "hy-flex-vault",
		AprBps:       910,
		UpdatedAt:    time.Now().UTC().Add(-time.Hour),
	}

	// An hour-old observation is fresh under the default threshold but
	// stale under a tightened 30-minute one.
	svc := NewService(ledger, repo, 30*time.Minute)
	if _, err := svc.AprBps(context.Background(), "hy-flex-vault"); err == nil {
		t.Error("expected error under a 30m staleness threshold")
	}

	svc = NewService(ledger, repo, 2*time.Hour)
	bps, err := svc.AprBps(context.Background(), "hy-flex-vault")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bps != 910 {
		t.Errorf("AprBps = %d, want stored 910", bps)
	}
}

func TestUnknownInstrument(t *testing.T) {
	svc := NewService(&mockLedger{}, nil, 0)
	if _, err := svc.AprBps(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown instrument")
	}
}

func TestRefreshAllStoresObservations(t *testing.T) {
	ledger := &mockLedger{rates: map[string]int64{
		flexVaultAddr: 975,
		"0x9c8d7e6f5a4b3c2d1e0f9a8b7c6d5e4f3a2b1c0d": 1100, // hgn-boost-pool
	}}
	repo := newMockRepo()
	svc := NewService(ledger, repo, 0)

	if err := svc.RefreshAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.stored) != 2 {
		t.Errorf("stored %d rates, want 2", len(repo.stored))
	}
}

func TestRefreshAllFailsWhenEverythingFails(t *testing.T) {
	ledger := &mockLedger{errs: map[string]error{
		flexVaultAddr: errors.New("down"),
		"0x9c8d7e6f5a4b3c2d1e0f9a8b7c6d5e4f3a2b1c0d": errors.New("down"),
	}}
	svc := NewService(ledger, newMockRepo(), 0)

	if err := svc.RefreshAll(context.Background()); err == nil {
		t.Error("expected error when every live read fails")
	}
}
