package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// HiroClient reads balances from the Hiro Stacks API.
type HiroClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHiroClient(baseURL string) *HiroClient {
	return &HiroClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type stxBalanceResponse struct {
	Balance string `json:"balance"`
}

func (hc *HiroClient) FetchBalance(ctx context.Context, address string) (*big.Int, error) {
	// Build balance endpoint url
	url := fmt.Sprintf("%s/extended/v1/address/%s/stx", hc.baseURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Check response
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// Decode response
	var balanceResp stxBalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&balanceResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	balance, ok := new(big.Int).SetString(balanceResp.Balance, 10)
	if !ok || balance.Sign() < 0 {
		return nil, fmt.Errorf("invalid balance: %q", balanceResp.Balance)
	}
	return balance, nil
}
