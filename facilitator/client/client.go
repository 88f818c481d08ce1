package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vorpalengineering/x402-skills/types"
)

// ErrTxNotFound is returned when the facilitator has no record of a transaction.
var ErrTxNotFound = errors.New("transaction not found")

type FacilitatorClient struct {
	facilitatorURL string
	httpClient     *http.Client
}

func NewFacilitatorClient(facilitatorURL string) *FacilitatorClient {
	return &FacilitatorClient{
		facilitatorURL: strings.TrimRight(facilitatorURL, "/"),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Broadcast submits a signed transaction. A rejection by the network layer is
// reported in the response, not as an error.
func (fc *FacilitatorClient) Broadcast(ctx context.Context, tx *types.SignedTransaction) (*types.BroadcastResponse, error) {
	var out types.BroadcastResponse
	if err := fc.call(ctx, http.MethodPost, "/broadcast", tx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionStatus returns ErrTxNotFound for a txid the facilitator never saw.
func (fc *FacilitatorClient) TransactionStatus(ctx context.Context, txID string) (*types.TransactionStatus, error) {
	var out types.TransactionStatus
	err := fc.call(ctx, http.MethodGet, "/tx/"+url.PathEscape(txID), nil, &out)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the facilitator whether a settlement proof satisfies a requirement.
func (fc *FacilitatorClient) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	var out types.VerifyResponse
	if err := fc.call(ctx, http.MethodPost, "/verify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (fc *FacilitatorClient) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	var out types.SupportedResponse
	if err := fc.call(ctx, http.MethodGet, "/supported", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.code)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.code, e.body)
}

// call sends in as JSON (when non-nil) and decodes a 200 response into out.
func (fc *FacilitatorClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fc.facilitatorURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := fc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
