// Package mirror is an HTTP client for the ledger-read endpoint: contract
// state reads, code-existence checks, account info, and transaction status.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound indicates the requested entity does not exist on the ledger.
var ErrNotFound = errors.New("not found on ledger")

// Client is an HTTP client for the mirror API with retry on 429 and a shared
// rate limiter across concurrent fan-out reads.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
}

// NewClient creates a new mirror API client. requestsPerSecond bounds the
// combined read rate of all callers sharing the client.
func NewClient(baseURL string, maxRetries int, baseDelay time.Duration, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 25
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)),
	}
}

// get performs a GET request with retry on 429. A 404 maps to ErrNotFound.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	fullURL := c.baseURL + path

	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return body, nil
		case http.StatusNotFound:
			return nil, ErrNotFound
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("HTTP 429 at %s (attempt %d/%d)", fullURL, attempt+1, c.maxRetries+1)
			if attempt < c.maxRetries {
				delay := c.baseDelay * time.Duration(1<<uint(attempt))
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			return nil, lastErr
		default:
			return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, fullURL, string(body))
		}
	}

	return nil, lastErr
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing JSON from %s: %w", path, err)
	}
	return nil
}

// ContractExists reports whether deployed code exists at the address.
// Decommissioned instruments read as absent, not as errors.
func (c *Client) ContractExists(ctx context.Context, address string) (bool, error) {
	_, err := c.get(ctx, "/api/v1/contracts/"+url.PathEscape(address))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking contract code at %s: %w", address, err)
	}
	return true, nil
}

// UserState reads one user's raw position state in an instrument.
func (c *Client) UserState(ctx context.Context, instrumentAddress, account string) (UserState, error) {
	var resp userStateResponse
	path := fmt.Sprintf("/api/v1/instruments/%s/positions/%s",
		url.PathEscape(instrumentAddress), url.PathEscape(account))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return UserState{}, fmt.Errorf("reading user state at %s: %w", instrumentAddress, err)
	}

	var st UserState
	var err error
	if st.Deposited, err = parseRaw("deposited", resp.Deposited); err != nil {
		return UserState{}, err
	}
	if st.PendingReward, err = parseRaw("pendingReward", resp.PendingReward); err != nil {
		return UserState{}, err
	}
	if st.Claimed, err = parseRaw("claimed", resp.Claimed); err != nil {
		return UserState{}, err
	}
	if st.CurrentValue, err = parseRaw("currentValue", resp.CurrentValue); err != nil {
		return UserState{}, err
	}
	if resp.DepositedAt > 0 {
		st.DepositedAt = time.Unix(resp.DepositedAt, 0).UTC()
	}
	return st, nil
}

// ProjectedReturn reads an instrument's separately-computed projected annual
// return for one user. Only some vaults expose this.
func (c *Client) ProjectedReturn(ctx context.Context, instrumentAddress, account string) (*big.Int, error) {
	var resp projectedResponse
	path := fmt.Sprintf("/api/v1/instruments/%s/positions/%s/projected",
		url.PathEscape(instrumentAddress), url.PathEscape(account))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("reading projected return at %s: %w", instrumentAddress, err)
	}
	return parseRaw("projectedReturn", resp.ProjectedReturn)
}

// InstrumentTotals reads instrument-wide deposit and reward pool figures.
func (c *Client) InstrumentTotals(ctx context.Context, instrumentAddress string) (InstrumentTotals, error) {
	var resp totalsResponse
	path := "/api/v1/instruments/" + url.PathEscape(instrumentAddress) + "/totals"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return InstrumentTotals{}, fmt.Errorf("reading totals at %s: %w", instrumentAddress, err)
	}

	var totals InstrumentTotals
	var err error
	if totals.TotalDeposits, err = parseRaw("totalDeposits", resp.TotalDeposits); err != nil {
		return InstrumentTotals{}, err
	}
	if totals.RewardPool, err = parseRaw("rewardPool", resp.RewardPool); err != nil {
		return InstrumentTotals{}, err
	}
	return totals, nil
}

// LiveAprBps reads the current APR in basis points from the contract.
func (c *Client) LiveAprBps(ctx context.Context, instrumentAddress string) (int64, error) {
	var resp aprResponse
	path := "/api/v1/instruments/" + url.PathEscape(instrumentAddress) + "/apr"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return 0, fmt.Errorf("reading live APR at %s: %w", instrumentAddress, err)
	}
	if resp.AprBps < 0 {
		return 0, fmt.Errorf("negative APR %d from %s", resp.AprBps, instrumentAddress)
	}
	return resp.AprBps, nil
}

// AccountInfo resolves an account identifier to its registered identity.
func (c *Client) AccountInfo(ctx context.Context, accountID string) (AccountInfo, error) {
	var info AccountInfo
	if err := c.getJSON(ctx, "/api/v1/accounts/"+url.PathEscape(accountID), &info); err != nil {
		return AccountInfo{}, fmt.Errorf("resolving account %s: %w", accountID, err)
	}
	return info, nil
}

// TransactionState reads the confirmation status of a submitted transaction.
// Transactions the ledger has not indexed yet read as pending.
func (c *Client) TransactionState(ctx context.Context, transactionID string) (TransactionState, error) {
	var state TransactionState
	err := c.getJSON(ctx, "/api/v1/transactions/"+url.PathEscape(transactionID), &state)
	if errors.Is(err, ErrNotFound) {
		return TransactionState{Status: TxStatusPending}, nil
	}
	if err != nil {
		return TransactionState{}, fmt.Errorf("reading transaction %s: %w", transactionID, err)
	}
	return state, nil
}
