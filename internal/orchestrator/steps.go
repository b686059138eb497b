package orchestrator

import (
	"sync"
	"time"

	"github.com/hashyield/dash/internal/domain"
)

// stepTracker records the observable progress of in-flight actions so step
// transitions can be queried instead of scraped from logs. Terminal records
// stay until the caller discards them.
type stepTracker struct {
	mu    sync.RWMutex
	steps map[string]domain.TransactionStep
}

func newStepTracker() *stepTracker {
	return &stepTracker{steps: make(map[string]domain.TransactionStep)}
}

func (t *stepTracker) start(actionID string, action domain.Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps[actionID] = domain.TransactionStep{
		ActionID:  actionID,
		Action:    action,
		State:     domain.StepNotStarted,
		UpdatedAt: time.Now().UTC(),
	}
}

func (t *stepTracker) transition(actionID string, state domain.StepState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step, ok := t.steps[actionID]
	if !ok {
		return
	}
	step.State = state
	step.UpdatedAt = time.Now().UTC()
	t.steps[actionID] = step
}

func (t *stepTracker) setTransaction(actionID, transactionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step, ok := t.steps[actionID]
	if !ok {
		return
	}
	step.TransactionID = transactionID
	step.UpdatedAt = time.Now().UTC()
	t.steps[actionID] = step
}

func (t *stepTracker) fail(actionID, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step, ok := t.steps[actionID]
	if !ok {
		return
	}
	step.State = domain.StepFailed
	step.Reason = reason
	step.UpdatedAt = time.Now().UTC()
	t.steps[actionID] = step
}

func (t *stepTracker) get(actionID string) (domain.TransactionStep, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	step, ok := t.steps[actionID]
	return step, ok
}

// discard removes a terminal record after the caller has consumed it.
func (t *stepTracker) discard(actionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if step, ok := t.steps[actionID]; ok && step.State.Terminal() {
		delete(t.steps, actionID)
	}
}
