package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

// TransferRequest is what a wallet is asked to sign.
type TransferRequest struct {
	From     string
	To       string
	Amount   string
	Network  string
	Resource string
	Memo     string
}

// Provider is the external wallet. SignTransfer may block on human approval
// and must return ErrUserRejected when the human declines.
type Provider interface {
	Network() string
	SignTransfer(ctx context.Context, req TransferRequest) (*types.SignedTransaction, error)
}

// Approver decides whether a transfer may be signed.
type Approver func(ctx context.Context, req TransferRequest) (bool, error)

// AutoApprove signs every request.
func AutoApprove(context.Context, TransferRequest) (bool, error) {
	return true, nil
}

// KeyProvider signs with a local secp256k1 key.
type KeyProvider struct {
	privateKey *ecdsa.PrivateKey
	address    string
	network    string
	approve    Approver
}

func NewKeyProvider(privateKeyHex, network string, approve Approver) (*KeyProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeyProviderFromKey(key, network, approve)
}

func NewKeyProviderFromKey(key *ecdsa.PrivateKey, network string, approve Approver) (*KeyProvider, error) {
	canonical, err := utils.NormalizeNetwork(network)
	if err != nil {
		return nil, err
	}
	name, _ := utils.NetworkNameOf(canonical)
	if approve == nil {
		approve = AutoApprove
	}

	return &KeyProvider{
		privateKey: key,
		address:    utils.AddressFromPublicKey(crypto.CompressPubkey(&key.PublicKey), name),
		network:    canonical,
		approve:    approve,
	}, nil
}

func (kp *KeyProvider) Address() string {
	return kp.address
}

func (kp *KeyProvider) Network() string {
	return kp.network
}

func (kp *KeyProvider) SignTransfer(ctx context.Context, req TransferRequest) (*types.SignedTransaction, error) {
	if req.From != kp.address {
		return nil, fmt.Errorf("%w: %s", ErrWrongSigner, req.From)
	}

	// Wait for approval
	ok, err := kp.approve(ctx, req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserRejected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signed, err := SignTransfer(Transfer{
		From:     req.From,
		To:       req.To,
		Amount:   req.Amount,
		Network:  req.Network,
		Nonce:    uuid.New().String(),
		Resource: req.Resource,
		Memo:     req.Memo,
	}, kp.privateKey)
	if err != nil {
		return nil, err
	}

	raw, txID, err := signed.Encode()
	if err != nil {
		return nil, err
	}

	return &types.SignedTransaction{
		TxID:    txID,
		Network: req.Network,
		Payer:   kp.address,
		Raw:     raw,
	}, nil
}
