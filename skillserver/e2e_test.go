package skillserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/config"
	"github.com/vorpalengineering/x402-skills/facilitator"
	"github.com/vorpalengineering/x402-skills/facilitator/client"
	"github.com/vorpalengineering/x402-skills/invoker"
	"github.com/vorpalengineering/x402-skills/ledger"
	"github.com/vorpalengineering/x402-skills/orchestrator"
	"github.com/vorpalengineering/x402-skills/requirement"
	"github.com/vorpalengineering/x402-skills/settlement"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/wallet"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// TestPayAndExecute runs a whole attempt against a devnet facilitator and a
// live skill server.
func TestPayAndExecute(t *testing.T) {
	facCfg := &facilitator.FacilitatorConfig{
		Server:  config.ServerConfig{Host: "localhost", Port: 4020},
		Network: "stacks:testnet",
		Log:     config.LogConfig{Level: "info"},
	}
	if err := facCfg.Validate(); err != nil {
		t.Fatalf("Invalid facilitator config: %v", err)
	}
	fac, err := facilitator.NewFacilitator(facCfg, nil)
	if err != nil {
		t.Fatalf("Failed to create facilitator: %v", err)
	}
	facSrv := httptest.NewServer(fac.Handler())
	defer facSrv.Close()

	cfg := validConfig()
	cfg.FacilitatorURL = facSrv.URL
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid server config: %v", err)
	}
	serverLedger := ledger.NewMemoryLedger()
	s, err := NewServer(cfg, Options{Ledger: serverLedger})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	skillSrv := httptest.NewServer(s.Handler())
	defer skillSrv.Close()

	kp, err := wallet.NewKeyProvider(testKey, "stacks:testnet", wallet.AutoApprove)
	if err != nil {
		t.Fatalf("Failed to create key provider: %v", err)
	}
	session := wallet.NewSession()
	if err := session.Connect(kp.Address(), "testnet"); err != nil {
		t.Fatalf("Failed to connect wallet: %v", err)
	}

	skills := invoker.NewInvoker(skillSrv.URL, nil)
	submitter := settlement.NewSubmitter(client.NewFacilitatorClient(facSrv.URL), settlement.PollPolicy{
		Interval:    10 * time.Millisecond,
		FastPolls:   5,
		MaxInterval: 50 * time.Millisecond,
	}, nil)
	clientLedger := ledger.NewMemoryLedger()
	orch, err := orchestrator.New(orchestrator.Config{
		Parser:  requirement.NewParser("stacks:testnet", catalog.Default()),
		Signer:  wallet.NewAdapter(session, kp, nil),
		Settler: submitter,
		Skills:  skills,
		Ledger:  clientLedger,
	})
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}

	skill, _ := catalog.Default().Get("whale-tracker")
	input := &catalog.WhaleTrackerInput{Timeframe: "7d", MinAmount: 50000, Limit: 5}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := orch.Execute(ctx, "user-1", skill, input)
	if err != nil {
		t.Fatalf("Expected attempt to succeed, got %v", err)
	}
	if !result.Success || result.Payment.Payer != kp.Address() {
		t.Errorf("Unexpected result %+v", result)
	}
	if result.Payment.Amount != "100000" || result.Payment.Network != "stacks:2147483648" {
		t.Errorf("Unexpected payment %+v", result.Payment)
	}

	t.Run("backend recorded the execution", func(t *testing.T) {
		entries, err := serverLedger.Entries(ctx, skill.ID)
		if err != nil {
			t.Fatalf("Failed to read entries: %v", err)
		}
		if len(entries) != 1 || entries[0].ExecutionID != result.ExecutionID {
			t.Fatalf("Expected server entry for %s, got %+v", result.ExecutionID, entries)
		}
		if entries[0].Payer != kp.Address() {
			t.Errorf("Expected payer %s, got %s", kp.Address(), entries[0].Payer)
		}
	})

	t.Run("client recorded the attempt", func(t *testing.T) {
		stats, err := clientLedger.SkillStats(ctx, skill.ID)
		if err != nil {
			t.Fatalf("Failed to read stats: %v", err)
		}
		if stats.Successes != 1 || stats.RevenueMicroSTX != 100000 {
			t.Errorf("Unexpected client stats %+v", stats)
		}
	})

	t.Run("replayed proof", func(t *testing.T) {
		_, err := skills.Invoke(ctx, skill, input, &result.Payment, "replay")
		if !types.IsCode(err, types.ErrCodeSettlementFailed) {
			t.Fatalf("Expected SETTLEMENT_FAILED, got %v", err)
		}
		pe := types.AsPaymentError(err, types.ErrCodeUnknown, "")
		if dup, _ := pe.Details[types.DetailDuplicate].(bool); !dup {
			t.Errorf("Expected duplicate detail, got %+v", pe.Details)
		}
	})

	t.Run("unknown transaction", func(t *testing.T) {
		payment := result.Payment
		payment.TransactionHash = "0x" + strings.Repeat("0", 64)
		_, err := skills.Invoke(ctx, skill, input, &payment, "forged")
		if !types.IsCode(err, types.ErrCodeSettlementFailed) {
			t.Fatalf("Expected SETTLEMENT_FAILED, got %v", err)
		}
	})
}
