// Package signer is an HTTP client for the custodial signing backend. The
// backend holds the user's private key; this client only forwards requests
// together with the caller's opaque bearer credential.
package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/hashyield/dash/internal/domain"
)

// APIError is a failure reported by the signer with its own message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("signer: %s (HTTP %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("signer: HTTP %d", e.Status)
}

// ActionRequest asks the signer to sign and submit one mutating action.
type ActionRequest struct {
	Action            domain.Action `json:"action"`
	InstrumentAddress string        `json:"instrumentAddress"`
	TokenAddress      string        `json:"tokenAddress"`
	Amount            *big.Int      `json:"-"`
}

// SubmitResult is the signer's synchronous acknowledgment. TransactionID may
// be an EVM-style pending hash or an already-final ledger identifier.
type SubmitResult struct {
	TransactionID string `json:"transactionId"`
	BlockNumber   int64  `json:"blockNumber,omitempty"`
	Status        string `json:"status,omitempty"`
	GasUsed       int64  `json:"gasUsed,omitempty"`
}

// Client talks to the custodial signer endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new signer client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Allowance reads how much of the token the signer is currently authorized
// to move into the spender contract on the user's behalf.
func (c *Client) Allowance(ctx context.Context, credential, tokenAddress, spenderAddress string) (*big.Int, error) {
	var resp struct {
		Allowance string `json:"allowance"`
	}
	path := fmt.Sprintf("/api/v1/allowance?token=%s&spender=%s", tokenAddress, spenderAddress)
	if err := c.do(ctx, http.MethodGet, path, credential, nil, &resp); err != nil {
		return nil, fmt.Errorf("reading allowance: %w", err)
	}

	allowance, ok := new(big.Int).SetString(resp.Allowance, 10)
	if !ok || allowance.Sign() < 0 {
		return nil, fmt.Errorf("invalid allowance %q from signer", resp.Allowance)
	}
	return allowance, nil
}

// Approve submits an approval transaction authorizing the spender for at
// least the given amount, returning once the signer has accepted it.
func (c *Client) Approve(ctx context.Context, credential, tokenAddress, spenderAddress string, amount *big.Int) (SubmitResult, error) {
	body := map[string]string{
		"token":   tokenAddress,
		"spender": spenderAddress,
		"amount":  amount.String(),
	}
	var result SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/approvals", credential, body, &result); err != nil {
		return SubmitResult{}, fmt.Errorf("submitting approval: %w", err)
	}
	return result, nil
}

// Submit asks the signer to sign and submit the main action transaction.
func (c *Client) Submit(ctx context.Context, credential string, req ActionRequest) (SubmitResult, error) {
	body := map[string]string{
		"action":     string(req.Action),
		"instrument": req.InstrumentAddress,
		"token":      req.TokenAddress,
		"amount":     req.Amount.String(),
	}
	var result SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/actions", credential, body, &result); err != nil {
		return SubmitResult{}, fmt.Errorf("submitting %s: %w", req.Action, err)
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path, credential string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &errBody)
		return &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}

	if dest != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}
