package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/requirement"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

const (
	testPayTo = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	testPayer = "ST2PABAF9FTAJYNFZH93XENAJ8FVY99RRM4DF2YCW"
)

type fakeVerifier struct {
	mu       sync.Mutex
	valid    bool
	reason   string
	err      error
	requests []*types.VerifyRequest
}

func (v *fakeVerifier) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requests = append(v.requests, req)
	if v.err != nil {
		return nil, v.err
	}
	return &types.VerifyResponse{IsValid: v.valid, InvalidReason: v.reason, Payer: req.Proof.Payment.Payer}, nil
}

type testServer struct {
	router   *gin.Engine
	verifier *fakeVerifier
	proofs   *MemoryProofs
	mw       *X402Middleware
	fail     bool
}

func newTestServer(t *testing.T, checkInput InputCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		verifier: &fakeVerifier{valid: true},
		proofs:   NewMemoryProofs(),
	}
	cfg := &MiddlewareConfig{
		Facilitator:       ts.verifier,
		Catalog:           catalog.Default(),
		Network:           "stacks:testnet",
		PayTo:             testPayTo,
		MaxTimeoutSeconds: 30,
		ProtectedPaths:    []string{"/api/skills/*"},
		Proofs:            ts.proofs,
		CheckInput:        checkInput,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid middleware config: %v", err)
	}
	ts.mw = NewX402Middleware(cfg, nil)

	router := gin.New()
	router.Use(ts.mw.Handler())
	handler := func(ctx *gin.Context) {
		if ts.fail {
			ctx.JSON(http.StatusInternalServerError, types.SkillResponse{Error: "upstream down"})
			return
		}
		payment, ok := PaymentFrom(ctx)
		if !ok {
			ctx.JSON(http.StatusInternalServerError, types.SkillResponse{Error: "no payment"})
			return
		}
		ctx.JSON(http.StatusOK, types.SkillResponse{Success: true, Data: json.RawMessage(`{"ok":true}`), Payment: &payment})
	}
	router.GET("/api/skills", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"skills": 5}) })
	router.GET("/api/skills/whale-tracker", handler)
	router.POST("/api/skills/content-craft", handler)
	ts.router = router
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, proof string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if proof != "" {
		req.Header.Set(DefaultPaymentHeader, proof)
	}
	recorder := httptest.NewRecorder()
	ts.router.ServeHTTP(recorder, req)
	return recorder
}

func proofHeader(t *testing.T, txHash string) string {
	t.Helper()
	header, err := utils.EncodeHeader(types.SettlementProof{
		X402Version: 1,
		Scheme:      types.SchemeStacks,
		Network:     utils.StacksTestnet,
		Payment: types.PaymentResult{
			TransactionHash: txHash,
			Payer:           testPayer,
			Network:         utils.StacksTestnet,
			Amount:          "100000",
			SettledAt:       1_700_000_000_000,
		},
	})
	if err != nil {
		t.Fatalf("Failed to encode proof: %v", err)
	}
	return header
}

func TestUnprotectedPath(t *testing.T) {
	ts := newTestServer(t, nil)
	recorder := ts.do(t, http.MethodGet, "/api/skills", "")
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200 for the catalog list, got %d", recorder.Code)
	}
}

func TestPaymentRequired(t *testing.T) {
	ts := newTestServer(t, nil)
	recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", "")

	if recorder.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", recorder.Code)
	}
	if recorder.Header().Get("PAYMENT-REQUIRED") == "" {
		t.Error("Expected PAYMENT-REQUIRED header")
	}

	// The challenge must satisfy the client-side parser
	parser := requirement.NewParser("stacks:testnet", catalog.Default())
	req, err := parser.Parse(recorder.Body.Bytes())
	if err != nil {
		t.Fatalf("Challenge rejected by parser: %v", err)
	}
	details := req.PaymentRequirements
	if details.Amount != "100000" || details.Resource != "/api/skills/whale-tracker" || details.PayTo != testPayTo {
		t.Errorf("Unexpected requirement %+v", details)
	}
	if details.MaxTimeoutSeconds != 30 {
		t.Errorf("Expected timeout 30, got %d", details.MaxTimeoutSeconds)
	}
}

func TestPaidRequest(t *testing.T) {
	ts := newTestServer(t, nil)

	recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", proofHeader(t, "0x01"))
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var resp types.SkillResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success || resp.Payment == nil || resp.Payment.TransactionHash != "0x01" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if recorder.Header().Get("X-PAYMENT-RESPONSE") == "" {
		t.Error("Expected X-PAYMENT-RESPONSE header")
	}
	if recorder.Header().Get("Content-Type") == "" {
		t.Error("Expected held headers to be released")
	}

	if len(ts.verifier.requests) != 1 {
		t.Fatalf("Expected one verification, got %d", len(ts.verifier.requests))
	}
	verified := ts.verifier.requests[0]
	if verified.Requirement.Resource != "/api/skills/whale-tracker" || verified.Requirement.Amount != "100000" {
		t.Errorf("Verification used the wrong requirement: %+v", verified.Requirement)
	}
	if !ts.proofs.Spent("0x01") {
		t.Error("Expected proof to be spent")
	}

	t.Run("replay is rejected", func(t *testing.T) {
		recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", proofHeader(t, "0x01"))
		if recorder.Code != http.StatusConflict {
			t.Errorf("Expected 409, got %d", recorder.Code)
		}
		if len(ts.verifier.requests) != 1 {
			t.Error("Replay must not reach the facilitator")
		}
	})
}

func TestRejectedPayments(t *testing.T) {
	t.Run("malformed header", func(t *testing.T) {
		ts := newTestServer(t, nil)
		if recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", "%%%"); recorder.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", recorder.Code)
		}
	})

	t.Run("incomplete payment", func(t *testing.T) {
		ts := newTestServer(t, nil)
		header, _ := utils.EncodeHeader(types.SettlementProof{Scheme: types.SchemeStacks})
		if recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", header); recorder.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", recorder.Code)
		}
	})

	t.Run("invalid proof releases the reservation", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.verifier.valid = false
		ts.verifier.reason = "transaction not confirmed: pending"

		recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", proofHeader(t, "0x02"))
		if recorder.Code != http.StatusPaymentRequired {
			t.Fatalf("Expected 402, got %d", recorder.Code)
		}
		var body types.PaymentRequirement
		json.Unmarshal(recorder.Body.Bytes(), &body)
		if body.Error != ts.verifier.reason {
			t.Errorf("Expected reason %q, got %q", ts.verifier.reason, body.Error)
		}

		ts.verifier.valid = true
		if recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", proofHeader(t, "0x02")); recorder.Code != http.StatusOK {
			t.Errorf("Expected retry to succeed once confirmed, got %d", recorder.Code)
		}
	})

	t.Run("facilitator unreachable", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.verifier.err = errors.New("connection refused")
		if recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", proofHeader(t, "0x03")); recorder.Code != http.StatusBadGateway {
			t.Errorf("Expected 502, got %d", recorder.Code)
		}
		if ts.proofs.Spent("0x03") {
			t.Error("Proof must not be spent")
		}
	})

	t.Run("handler failure keeps the proof usable", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.fail = true
		recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", proofHeader(t, "0x04"))
		if recorder.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", recorder.Code)
		}
		if recorder.Header().Get("X-PAYMENT-RESPONSE") != "" {
			t.Error("Failed execution must not confirm the payment")
		}

		ts.fail = false
		if recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", proofHeader(t, "0x04")); recorder.Code != http.StatusOK {
			t.Errorf("Expected retry with the same proof to succeed, got %d", recorder.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		ts := newTestServer(t, nil)
		if recorder := ts.do(t, http.MethodGet, "/api/skills/content-craft", ""); recorder.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", recorder.Code)
		}
	})
}

func TestResponseTooLarge(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.mw.config.MaxBufferSize = 16

	recorder := ts.do(t, http.MethodGet, "/api/skills/whale-tracker", proofHeader(t, "0xbig"))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status code %d, got %d", http.StatusInternalServerError, recorder.Code)
	}
	if recorder.Header().Get("X-PAYMENT-RESPONSE") != "" {
		t.Error("Expected no payment response header")
	}
	if ts.proofs.Spent("0xbig") {
		t.Error("Expected proof to be released")
	}
}

func TestInputCheckedBeforeChallenge(t *testing.T) {
	ts := newTestServer(t, func(ctx *gin.Context, skill *catalog.Skill) error {
		return errors.New("topic is required")
	})
	recorder := ts.do(t, http.MethodPost, "/api/skills/content-craft", "")
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 before any challenge, got %d", recorder.Code)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *MiddlewareConfig {
		return &MiddlewareConfig{
			Facilitator:       &fakeVerifier{},
			Catalog:           catalog.Default(),
			Network:           "testnet",
			PayTo:             testPayTo,
			MaxTimeoutSeconds: 30,
			ProtectedPaths:    []string{"/api/skills/*"},
		}
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
	if cfg.Network != utils.StacksTestnet {
		t.Errorf("Expected canonical network, got %s", cfg.Network)
	}
	if cfg.GetPaymentHeaderName() != "X-PAYMENT" {
		t.Errorf("Expected default header name, got %s", cfg.GetPaymentHeaderName())
	}

	tests := map[string]func(*MiddlewareConfig){
		"no facilitator": func(c *MiddlewareConfig) { c.Facilitator = nil },
		"no catalog":     func(c *MiddlewareConfig) { c.Catalog = nil },
		"no paths":       func(c *MiddlewareConfig) { c.ProtectedPaths = nil },
		"bad network":    func(c *MiddlewareConfig) { c.Network = "eip155:1" },
		"bad payTo":      func(c *MiddlewareConfig) { c.PayTo = "0xabc" },
		"no timeout":     func(c *MiddlewareConfig) { c.MaxTimeoutSeconds = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestMemoryProofs(t *testing.T) {
	p := NewMemoryProofs()

	if err := p.Reserve("0x01"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := p.Reserve("0x01"); !errors.Is(err, ErrProofUsed) {
		t.Errorf("Expected concurrent reservation to fail, got %v", err)
	}

	p.Release("0x01")
	if err := p.Reserve("0x01"); err != nil {
		t.Errorf("Expected released proof to be reservable, got %v", err)
	}

	p.Commit("0x01")
	p.Release("0x01")
	if !p.Spent("0x01") {
		t.Error("Release must not undo a commit")
	}
	if err := p.Reserve("0x01"); !errors.Is(err, ErrProofUsed) {
		t.Errorf("Expected spent proof to be rejected, got %v", err)
	}
}
