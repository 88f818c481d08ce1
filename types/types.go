package types

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"time"
)

// Protocol constants

const (
	X402Version  = 1
	SchemeStacks = "x402-stacks"

	AssetTypeNative   = "native"
	AssetTypeContract = "contract"
)

// TimeoutSecondsLimit is the largest maxTimeoutSeconds that fits a time.Duration.
const TimeoutSecondsLimit = math.MaxInt64 / int64(time.Second)

// Payment state machine

type PaymentState string

const (
	StateIdle         PaymentState = "idle"
	StateSigning      PaymentState = "signing"
	StateBroadcasting PaymentState = "broadcasting"
	StateConfirming   PaymentState = "confirming"
	StateExecuting    PaymentState = "executing"
	StateSuccess      PaymentState = "success"
	StateError        PaymentState = "error"
)

// IsTerminal reports whether no further transition can leave the state.
func (s PaymentState) IsTerminal() bool {
	return s == StateSuccess || s == StateError
}

// Payment requirement (body of a 402 response)

type Asset struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

type PaymentRequirementDetails struct {
	Network           string `json:"network"`
	Amount            string `json:"amount"`
	Asset             Asset  `json:"asset"`
	PayTo             string `json:"payTo"`
	Scheme            string `json:"scheme"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
}

type PaymentRequirement struct {
	X402Version         int                       `json:"x402Version"`
	PaymentRequirements PaymentRequirementDetails `json:"paymentRequirements"`
	Error               string                    `json:"error,omitempty"`
}

// AmountInt returns the requirement amount as an integer. The amount of a parsed
// requirement is always canonical, so ok is only false for hand-built values.
func (r *PaymentRequirement) AmountInt() (*big.Int, bool) {
	return new(big.Int).SetString(r.PaymentRequirements.Amount, 10)
}

// Payment result (after confirmed settlement)

type PaymentResult struct {
	TransactionHash string `json:"transactionHash"`
	Payer           string `json:"payer"`
	Network         string `json:"network"`
	Amount          string `json:"amount"`
	SettledAt       int64  `json:"settledAt"` // unix ms
}

func (p *PaymentResult) Valid() bool {
	return p != nil && p.TransactionHash != "" && p.Payer != "" && p.Network != "" && p.Amount != ""
}

// Skill execution result

var ErrMissingPayment = errors.New("skill execution result requires a confirmed payment")

type SkillExecutionResult struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	Payment        PaymentResult   `json:"payment"`
	ExecutionID    string          `json:"executionId"`
	ResponseTimeMs int64           `json:"responseTimeMs"`
}

// NewSkillExecutionResult builds a result bound to the payment that settled it.
func NewSkillExecutionResult(success bool, data json.RawMessage, payment *PaymentResult, executionID string, responseTimeMs int64) (*SkillExecutionResult, error) {
	if !payment.Valid() {
		return nil, ErrMissingPayment
	}
	if executionID == "" {
		return nil, errors.New("execution id is required")
	}
	return &SkillExecutionResult{
		Success:        success,
		Data:           data,
		Payment:        *payment,
		ExecutionID:    executionID,
		ResponseTimeMs: responseTimeMs,
	}, nil
}

// Wallet/Facilitator types

// SignedTransaction is the artifact a wallet returns; Raw is opaque to the client.
type SignedTransaction struct {
	TxID    string `json:"txid"`
	Network string `json:"network"`
	Payer   string `json:"payer"`
	Raw     string `json:"raw"`
}

type BroadcastResponse struct {
	Accepted bool   `json:"accepted"`
	TxID     string `json:"txid,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type TxStatus string

const (
	TxStatusPending              TxStatus = "pending"
	TxStatusSuccess              TxStatus = "success"
	TxStatusAbortByResponse      TxStatus = "abort_by_response"
	TxStatusAbortByPostCondition TxStatus = "abort_by_post_condition"
	TxStatusDropped              TxStatus = "dropped"
)

type TransactionStatus struct {
	TxID        string   `json:"txid"`
	Status      TxStatus `json:"status"`
	Payer       string   `json:"payer,omitempty"`
	Recipient   string   `json:"recipient,omitempty"`
	Amount      string   `json:"amount,omitempty"`
	Network     string   `json:"network,omitempty"`
	BlockHeight uint64   `json:"blockHeight,omitempty"`
	BlockTime   int64    `json:"blockTime,omitempty"` // unix ms of the confirming block
	Reason      string   `json:"reason,omitempty"`
}

// SettlementProof travels in the X-PAYMENT header of a paid skill call.
type SettlementProof struct {
	X402Version int           `json:"x402Version"`
	Scheme      string        `json:"scheme"`
	Network     string        `json:"network"`
	Payment     PaymentResult `json:"payment"`
}

type VerifyRequest struct {
	Proof       SettlementProof           `json:"proof"`
	Requirement PaymentRequirementDetails `json:"requirement"`
}

type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

type SupportedKind struct {
	X402Version int    `json:"x402Version" yaml:"x402_version"`
	Scheme      string `json:"scheme" yaml:"scheme"`
	Network     string `json:"network" yaml:"network"`
}

type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// Skill endpoint response body

type SkillResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Payment *PaymentResult  `json:"payment,omitempty"`
	Error   string          `json:"error,omitempty"`
}
