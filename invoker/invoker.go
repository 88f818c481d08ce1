package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

const (
	// PaymentHeader carries the base64 JSON settlement proof.
	PaymentHeader     = "X-PAYMENT"
	ExecutionIDHeader = "X-Execution-ID"
)

const maxResponseBytes = 4 << 20

type Invoker struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewInvoker(baseURL string, logger *logrus.Logger) *Invoker {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Invoker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// Challenge calls the skill endpoint without proof and returns the body of
// the 402 response.
func (iv *Invoker) Challenge(ctx context.Context, skill *catalog.Skill, input any) ([]byte, error) {
	req, err := iv.newRequest(ctx, skill, input)
	if err != nil {
		return nil, err
	}

	resp, err := iv.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// If not 402, the endpoint is not selling this resource
	if resp.StatusCode != http.StatusPaymentRequired {
		return nil, fmt.Errorf("endpoint did not demand payment (status %d)", resp.StatusCode)
	}

	return body, nil
}

// Invoke calls the skill endpoint with the settlement proof. Failures are
// payment errors: SETTLEMENT_FAILED when the backend refuses the proof,
// EXECUTION_FAILED otherwise.
func (iv *Invoker) Invoke(ctx context.Context, skill *catalog.Skill, input any, payment *types.PaymentResult, executionID string) (*types.SkillExecutionResult, error) {
	if !payment.Valid() {
		return nil, types.NewPaymentError(types.ErrCodeUnknown, "cannot invoke a skill without a confirmed payment", types.ErrMissingPayment)
	}

	header, err := utils.EncodeHeader(types.SettlementProof{
		X402Version: types.X402Version,
		Scheme:      types.SchemeStacks,
		Network:     payment.Network,
		Payment:     *payment,
	})
	if err != nil {
		return nil, types.NewPaymentError(types.ErrCodeUnknown, "failed to encode settlement proof", err)
	}

	req, err := iv.newRequest(ctx, skill, input)
	if err != nil {
		return nil, types.NewPaymentError(types.ErrCodeExecutionFailed, "failed to build skill request", err)
	}
	req.Header.Set(PaymentHeader, header)
	req.Header.Set(ExecutionIDHeader, executionID)

	start := time.Now()
	resp, err := iv.httpClient.Do(req)
	if err != nil {
		return nil, types.NewPaymentError(types.ErrCodeExecutionFailed, "skill request failed", err).
			WithDetails(types.DetailTransactionHash, payment.TransactionHash)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, types.NewPaymentError(types.ErrCodeExecutionFailed, "failed to read skill response", err).
			WithDetails(types.DetailTransactionHash, payment.TransactionHash)
	}

	log := iv.logger.WithFields(logrus.Fields{
		"skill":       skill.ID,
		"status":      resp.StatusCode,
		"executionId": executionID,
		"ms":          elapsed,
	})

	var skillResp types.SkillResponse
	decodeErr := json.Unmarshal(body, &skillResp)

	switch {
	case resp.StatusCode == http.StatusConflict:
		log.Warn("settlement proof already used")
		return nil, types.NewPaymentError(types.ErrCodeSettlementFailed, "settlement proof was already used", nil).
			WithDetails(types.DetailDuplicate, true).
			WithDetails(types.DetailTransactionHash, payment.TransactionHash).
			WithDetails(types.DetailStatusCode, resp.StatusCode)

	case resp.StatusCode == http.StatusPaymentRequired:
		log.Warn("settlement proof not accepted")
		return nil, types.NewPaymentError(types.ErrCodeSettlementFailed, "skill backend did not accept the payment: "+reason(skillResp, body), nil).
			WithDetails(types.DetailTransactionHash, payment.TransactionHash).
			WithDetails(types.DetailStatusCode, resp.StatusCode)

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		log.Warn("skill execution failed")
		return nil, types.NewPaymentError(types.ErrCodeExecutionFailed,
			fmt.Sprintf("skill returned status %d: %s", resp.StatusCode, reason(skillResp, body)), nil).
			WithDetails(types.DetailTransactionHash, payment.TransactionHash).
			WithDetails(types.DetailStatusCode, resp.StatusCode)

	case decodeErr != nil:
		return nil, types.NewPaymentError(types.ErrCodeExecutionFailed, "skill returned an undecodable response", decodeErr).
			WithDetails(types.DetailTransactionHash, payment.TransactionHash)

	case !skillResp.Success:
		return nil, types.NewPaymentError(types.ErrCodeExecutionFailed, "skill reported failure: "+reason(skillResp, body), nil).
			WithDetails(types.DetailTransactionHash, payment.TransactionHash)
	}

	log.Info("skill executed")

	result, err := types.NewSkillExecutionResult(true, skillResp.Data, payment, executionID, elapsed)
	if err != nil {
		return nil, types.NewPaymentError(types.ErrCodeUnknown, "failed to build execution result", err)
	}
	return result, nil
}

func (iv *Invoker) newRequest(ctx context.Context, skill *catalog.Skill, input any) (*http.Request, error) {
	url := iv.baseURL + skill.Endpoint

	if skill.Method == http.MethodPost {
		body, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal input: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	query, err := catalog.EncodeQuery(input)
	if err != nil {
		return nil, err
	}
	if encoded := query.Encode(); encoded != "" {
		url += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return req, nil
}

func reason(resp types.SkillResponse, body []byte) string {
	if resp.Error != "" {
		return resp.Error
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
