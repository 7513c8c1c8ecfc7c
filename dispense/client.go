package dispense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bankops/balance-dispense/dispense/models"
)

// Client is a typed HTTP client for the dispense API, used by integration
// tests and operator tooling.
type Client struct {
	Base string
	HTTP *http.Client
}

func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{Base: strings.TrimRight(base, "/"), HTTP: hc}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status         int
	Kind           string
	Message        string
	FallbackAmount *int64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d kind=%s message=%s", e.Status, e.Kind, e.Message)
}

func (c *Client) Withdraw(ctx context.Context, clientID int64, accountNumber string, atmID, amount int64) (*models.WithdrawResult, error) {
	body, _ := json.Marshal(withdrawBody{AccountNumber: accountNumber, ATMID: atmID, Amount: amount})
	target := fmt.Sprintf("%s/clients/%d/withdrawals", c.Base, clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	result := &models.WithdrawResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("decode withdraw response: %w", err)
	}
	return result, nil
}

func (c *Client) TransactionalBalances(ctx context.Context, clientID int64) (*models.BalanceResult, error) {
	return c.balances(ctx, clientID, "transactional")
}

func (c *Client) CurrencyBalances(ctx context.Context, clientID int64) (*models.BalanceResult, error) {
	return c.balances(ctx, clientID, "currency")
}

func (c *Client) balances(ctx context.Context, clientID int64, class string) (*models.BalanceResult, error) {
	target := fmt.Sprintf("%s/clients/%d/balances/%s", c.Base, clientID, class)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	result := &models.BalanceResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("decode balances response: %w", err)
	}
	return result, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Error errorBody `json:"error"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Kind = payload.Error.Kind
	apiErr.Message = payload.Error.Message
	apiErr.FallbackAmount = payload.Error.FallbackAmount
	return apiErr
}
