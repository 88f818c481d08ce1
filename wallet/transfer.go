package wallet

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vorpalengineering/x402-skills/utils"
)

// Transfer is an STX token transfer as signed by a wallet.
type Transfer struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Network  string `json:"network"`
	Nonce    string `json:"nonce"`
	Resource string `json:"resource,omitempty"`
	Memo     string `json:"memo,omitempty"`
}

// Digest is the keccak256 hash the sender signs.
func (t *Transfer) Digest() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer: %w", err)
	}
	return crypto.Keccak256(data), nil
}

// SignedTransfer is the raw artifact carried by types.SignedTransaction.
type SignedTransfer struct {
	Transfer  Transfer `json:"transfer"`
	PublicKey string   `json:"publicKey"`
	Signature string   `json:"signature"`
}

// SignTransfer signs t with key.
func SignTransfer(t Transfer, key *ecdsa.PrivateKey) (*SignedTransfer, error) {
	digest, err := t.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}
	return &SignedTransfer{
		Transfer:  t,
		PublicKey: hexutil.Encode(crypto.CompressPubkey(&key.PublicKey)),
		Signature: hexutil.Encode(sig),
	}, nil
}

// Encode returns the hex raw form and its transaction id.
func (st *SignedTransfer) Encode() (raw string, txID string, err error) {
	data, err := json.Marshal(st)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal signed transfer: %w", err)
	}
	return hexutil.Encode(data), crypto.Keccak256Hash(data).Hex(), nil
}

// DecodeSignedTransfer parses a raw artifact and returns its transaction id.
func DecodeSignedTransfer(raw string) (*SignedTransfer, string, error) {
	data, err := hexutil.Decode(raw)
	if err != nil {
		return nil, "", fmt.Errorf("invalid raw transaction: %w", err)
	}
	var st SignedTransfer
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, "", fmt.Errorf("invalid raw transaction: %w", err)
	}
	return &st, crypto.Keccak256Hash(data).Hex(), nil
}

// Verify checks the signature against the embedded public key and that the
// key hashes to the sender address on the transfer's network.
func (st *SignedTransfer) Verify() error {
	pub, err := hexutil.Decode(st.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	sig, err := hexutil.Decode(st.Signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return fmt.Errorf("invalid signature encoding")
	}
	digest, err := st.Transfer.Digest()
	if err != nil {
		return err
	}

	recovered, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !bytes.Equal(crypto.CompressPubkey(recovered), pub) {
		return ErrBadSignature
	}
	if !crypto.VerifySignature(pub, digest, sig[:64]) {
		return ErrBadSignature
	}

	name, err := utils.NetworkNameOf(st.Transfer.Network)
	if err != nil {
		return err
	}
	if utils.AddressFromPublicKey(pub, name) != st.Transfer.From {
		return ErrBadSignature
	}
	return nil
}
