// Package resolver translates user-typed account identifiers into display
// names, debouncing keystrokes and cancelling superseded lookups so a stale
// result can never cross over onto newer input.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/hashyield/dash/internal/domain"
	"github.com/hashyield/dash/internal/mirror"
)

// ErrInvalidRecipient indicates input that does not match the
// shard.realm.num account identifier shape.
var ErrInvalidRecipient = errors.New("recipient must have the form shard.realm.num")

var accountPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// DefaultDebounce is the quiet window required before a lookup starts.
const DefaultDebounce = 300 * time.Millisecond

// ValidAccountID reports whether s has the shard.realm.num identifier shape.
func ValidAccountID(s string) bool {
	return accountPattern.MatchString(s)
}

// AccountLookup defines the mirror read used for resolution.
type AccountLookup interface {
	AccountInfo(ctx context.Context, accountID string) (mirror.AccountInfo, error)
}

// Result is the outcome of one resolution, keyed by the input it resolved.
type Result struct {
	Input     string
	Recipient domain.ResolvedRecipient
	Err       error
}

// Resolver debounces a changing input string and resolves it through the
// ledger. Each new input supersedes the previous one: pending debounce
// timers are stopped, in-flight lookups are cancelled, and their late
// results are discarded silently.
type Resolver struct {
	lookup   AccountLookup
	debounce time.Duration
	results  chan Result

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

// New creates a Resolver. A non-positive debounce uses DefaultDebounce.
func New(lookup AccountLookup, debounce time.Duration) *Resolver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Resolver{
		lookup:   lookup,
		debounce: debounce,
		results:  make(chan Result, 8),
	}
}

// Results returns the channel resolution outcomes are delivered on.
func (r *Resolver) Results() <-chan Result {
	return r.results
}

// OnInput feeds one keystroke's worth of input. Empty input returns the
// resolver to idle; input that fails format validation is reported without
// any network call; valid input starts a fresh debounce window.
func (r *Resolver) OnInput(input string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	r.supersedeLocked()

	if input == "" {
		return
	}
	if !accountPattern.MatchString(input) {
		r.emit(Result{Input: input, Err: ErrInvalidRecipient})
		return
	}

	gen := r.gen
	r.timer = time.AfterFunc(r.debounce, func() {
		r.fire(input, gen)
	})
}

// Stop cancels any pending debounce and in-flight lookup.
func (r *Resolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.supersedeLocked()
}

// supersedeLocked stops the pending timer and cancels the in-flight lookup.
func (r *Resolver) supersedeLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// fire runs after an uninterrupted debounce window.
func (r *Resolver) fire(input string, gen uint64) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		info, err := r.lookup.AccountInfo(ctx, input)

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.gen != gen {
			// Superseded while in flight; the late result is discarded.
			return
		}
		if r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.emit(Result{Input: input, Err: err})
			return
		}
		r.emit(Result{Input: input, Recipient: domain.ResolvedRecipient{
			AccountID:   info.AccountID,
			UserID:      info.UserID,
			DisplayName: info.DisplayName,
		}})
	}()
}

func (r *Resolver) emit(res Result) {
	select {
	case r.results <- res:
	default:
		slog.Warn("resolver result dropped, consumer not keeping up", "input", res.Input)
	}
}
