package wallet

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

const payTo = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"

type fakeProvider struct {
	network string
	err     error
	block   bool
	calls   int
}

func (f *fakeProvider) Network() string { return f.network }

func (f *fakeProvider) SignTransfer(ctx context.Context, req TransferRequest) (*types.SignedTransaction, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.SignedTransaction{TxID: "0x01", Network: req.Network, Payer: req.From, Raw: "0x7b7d"}, nil
}

func testRequirement(amount string) *types.PaymentRequirement {
	return &types.PaymentRequirement{
		X402Version: 1,
		PaymentRequirements: types.PaymentRequirementDetails{
			Network:           utils.StacksTestnet,
			Amount:            amount,
			Asset:             types.Asset{Type: types.AssetTypeNative, Symbol: "STX"},
			PayTo:             payTo,
			Scheme:            types.SchemeStacks,
			MaxTimeoutSeconds: 30,
			Resource:          "/api/skills/whale-tracker",
		},
	}
}

func newKeyProvider(t *testing.T, approve Approver) *KeyProvider {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	kp, err := NewKeyProviderFromKey(key, "stacks:testnet", approve)
	if err != nil {
		t.Fatalf("Failed to create key provider: %v", err)
	}
	return kp
}

func connectedSession(t *testing.T, address string) *Session {
	t.Helper()
	s := NewSession()
	if err := s.Connect(address, "testnet"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return s
}

func expectCode(t *testing.T, err error, code types.ErrorCode) *types.PaymentError {
	t.Helper()
	var pe *types.PaymentError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected PaymentError, got %v", err)
	}
	if pe.Code != code {
		t.Errorf("Expected %s, got %s (%v)", code, pe.Code, pe)
	}
	return pe
}

func TestAdapterSign(t *testing.T) {
	kp := newKeyProvider(t, nil)

	t.Run("not connected", func(t *testing.T) {
		provider := &fakeProvider{network: utils.StacksTestnet}
		a := NewAdapter(NewSession(), provider, nil)
		_, err := a.Sign(context.Background(), testRequirement("100000"))
		expectCode(t, err, types.ErrCodeWalletNotConnected)
		if provider.calls != 0 {
			t.Error("Provider should not be called without a connection")
		}
	})

	t.Run("network mismatch", func(t *testing.T) {
		provider := &fakeProvider{network: utils.StacksMainnet}
		a := NewAdapter(connectedSession(t, kp.Address()), provider, nil)
		_, err := a.Sign(context.Background(), testRequirement("100000"))
		expectCode(t, err, types.ErrCodeNetworkMismatch)
	})

	t.Run("insufficient known balance", func(t *testing.T) {
		session := connectedSession(t, kp.Address())
		session.balance = big.NewInt(50_000)
		a := NewAdapter(session, &fakeProvider{network: utils.StacksTestnet}, nil)
		pe := expectCode(t, mustFail(a.Sign(context.Background(), testRequirement("100000"))), types.ErrCodeInsufficientBalance)
		if !strings.Contains(pe.Message, "0.05 STX") {
			t.Errorf("Expected formatted balance in message, got %s", pe.Message)
		}
	})

	t.Run("unknown balance does not block", func(t *testing.T) {
		a := NewAdapter(connectedSession(t, kp.Address()), &fakeProvider{network: utils.StacksTestnet}, nil)
		signed, err := a.Sign(context.Background(), testRequirement("100000"))
		if err != nil {
			t.Fatalf("Sign failed: %v", err)
		}
		if signed.Payer != kp.Address() {
			t.Errorf("Expected payer %s, got %s", kp.Address(), signed.Payer)
		}
	})

	t.Run("user rejected", func(t *testing.T) {
		provider := &fakeProvider{network: utils.StacksTestnet, err: ErrUserRejected}
		a := NewAdapter(connectedSession(t, kp.Address()), provider, nil)
		_, err := a.Sign(context.Background(), testRequirement("100000"))
		expectCode(t, err, types.ErrCodeUserRejected)
		if provider.calls != 1 {
			t.Errorf("Expected exactly one signing request, got %d", provider.calls)
		}
	})

	t.Run("other wallet error", func(t *testing.T) {
		provider := &fakeProvider{network: utils.StacksTestnet, err: errors.New("ledger unplugged")}
		a := NewAdapter(connectedSession(t, kp.Address()), provider, nil)
		_, err := a.Sign(context.Background(), testRequirement("100000"))
		expectCode(t, err, types.ErrCodeSigningFailed)
	})

	t.Run("cancelled while awaiting approval", func(t *testing.T) {
		provider := &fakeProvider{network: utils.StacksTestnet, block: true}
		a := NewAdapter(connectedSession(t, kp.Address()), provider, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := a.Sign(ctx, testRequirement("100000"))
		pe := expectCode(t, err, types.ErrCodeUserRejected)
		if cancelled, _ := pe.Details[types.DetailCancelled].(bool); !cancelled {
			t.Error("Expected cancelled detail")
		}
	})
}

func mustFail(_ *types.SignedTransaction, err error) error {
	return err
}

func TestKeyProvider(t *testing.T) {
	t.Run("signs verifiable transfers", func(t *testing.T) {
		kp := newKeyProvider(t, nil)
		if !strings.HasPrefix(kp.Address(), "ST") {
			t.Errorf("Expected testnet address, got %s", kp.Address())
		}

		signed, err := kp.SignTransfer(context.Background(), TransferRequest{
			From:    kp.Address(),
			To:      payTo,
			Amount:  "100000",
			Network: utils.StacksTestnet,
		})
		if err != nil {
			t.Fatalf("SignTransfer failed: %v", err)
		}

		transfer, txID, err := DecodeSignedTransfer(signed.Raw)
		if err != nil {
			t.Fatalf("DecodeSignedTransfer failed: %v", err)
		}
		if txID != signed.TxID {
			t.Errorf("Expected txid %s, got %s", signed.TxID, txID)
		}
		if err := transfer.Verify(); err != nil {
			t.Errorf("Verify failed: %v", err)
		}

		// Tampering breaks the signature
		transfer.Transfer.Amount = "1"
		if err := transfer.Verify(); !errors.Is(err, ErrBadSignature) {
			t.Errorf("Expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("distinct nonces per signature", func(t *testing.T) {
		kp := newKeyProvider(t, nil)
		req := TransferRequest{From: kp.Address(), To: payTo, Amount: "1", Network: utils.StacksTestnet}
		a, _ := kp.SignTransfer(context.Background(), req)
		b, _ := kp.SignTransfer(context.Background(), req)
		if a.TxID == b.TxID {
			t.Error("Expected distinct transaction ids")
		}
	})

	t.Run("approver declines", func(t *testing.T) {
		kp := newKeyProvider(t, func(context.Context, TransferRequest) (bool, error) { return false, nil })
		_, err := kp.SignTransfer(context.Background(), TransferRequest{From: kp.Address(), To: payTo, Amount: "1", Network: utils.StacksTestnet})
		if !errors.Is(err, ErrUserRejected) {
			t.Errorf("Expected ErrUserRejected, got %v", err)
		}
	})

	t.Run("wrong sender", func(t *testing.T) {
		kp := newKeyProvider(t, nil)
		_, err := kp.SignTransfer(context.Background(), TransferRequest{From: payTo, To: payTo, Amount: "1", Network: utils.StacksTestnet})
		if !errors.Is(err, ErrWrongSigner) {
			t.Errorf("Expected ErrWrongSigner, got %v", err)
		}
	})

	t.Run("hex key", func(t *testing.T) {
		if _, err := NewKeyProvider("0xnothex", "testnet", nil); err == nil {
			t.Error("Expected error for invalid key")
		}
	})
}

func TestSession(t *testing.T) {
	kp := newKeyProvider(t, nil)

	t.Run("connect and disconnect", func(t *testing.T) {
		s := NewSession()
		if err := s.Connect("0xabc", "testnet"); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Expected ErrInvalidAddress, got %v", err)
		}
		if err := s.Connect(kp.Address(), "stacks:testnet"); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		if s.Network() != utils.StacksTestnet {
			t.Errorf("Expected canonical network, got %s", s.Network())
		}
		if !strings.Contains(s.DisplayAddress(), "…") {
			t.Errorf("Expected truncated address, got %s", s.DisplayAddress())
		}
		s.Disconnect()
		if s.Connected() {
			t.Error("Expected disconnected session")
		}
	})

	t.Run("balance refresh", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/extended/v1/address/"+kp.Address()+"/stx" {
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"balance":"2500000","total_sent":"0"}`))
		}))
		defer server.Close()

		s := connectedSession(t, kp.Address())
		if _, known := s.Balance(); known {
			t.Error("Balance should be unknown before refresh")
		}
		if err := s.RefreshBalance(context.Background(), NewHiroClient(server.URL)); err != nil {
			t.Fatalf("RefreshBalance failed: %v", err)
		}
		balance, known := s.Balance()
		if !known || balance.Int64() != 2_500_000 {
			t.Errorf("Expected balance 2500000, got %v", balance)
		}
	})

	t.Run("failed refresh degrades to unknown", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		s := connectedSession(t, kp.Address())
		s.balance = big.NewInt(1)
		if err := s.RefreshBalance(context.Background(), NewHiroClient(server.URL)); err == nil {
			t.Error("Expected refresh error")
		}
		if _, known := s.Balance(); known {
			t.Error("Balance should be unknown after a failed refresh")
		}
	})
}
