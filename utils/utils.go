package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

type NetworkName string

const (
	Mainnet NetworkName = "mainnet"
	Testnet NetworkName = "testnet"
)

// CAIP-2 identifiers of the Stacks networks
const (
	StacksMainnet = "stacks:1"
	StacksTestnet = "stacks:2147483648"
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

func ParseNetworkName(name string) (NetworkName, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet":
		return Mainnet, nil
	case "testnet", "":
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network: %s (must be mainnet or testnet)", name)
	}
}

// CAIP2 returns the CAIP-2 identifier for a network name.
func (n NetworkName) CAIP2() string {
	if n == Mainnet {
		return StacksMainnet
	}
	return StacksTestnet
}

// NormalizeNetwork maps the accepted spellings of a Stacks network onto its
// CAIP-2 identifier, e.g. "stacks:testnet" and "testnet" both become
// "stacks:2147483648".
func NormalizeNetwork(network string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(network))
	switch n {
	case "mainnet", "stacks:mainnet", StacksMainnet:
		return StacksMainnet, nil
	case "testnet", "stacks:testnet", StacksTestnet:
		return StacksTestnet, nil
	}

	// network string is in CAIP-2 format (e.g. "stacks:1")
	parts := strings.Split(n, ":")
	if len(parts) != 2 || parts[0] != "stacks" || parts[1] == "" {
		return "", fmt.Errorf("invalid stacks network identifier: %q", network)
	}
	return "", fmt.Errorf("unsupported stacks chain id: %s", parts[1])
}

// SameNetwork compares two network identifiers by their canonical form.
func SameNetwork(a, b string) bool {
	na, err := NormalizeNetwork(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeNetwork(b)
	if err != nil {
		return false
	}
	return na == nb
}

func NetworkNameOf(network string) (NetworkName, error) {
	canonical, err := NormalizeNetwork(network)
	if err != nil {
		return "", err
	}
	if canonical == StacksMainnet {
		return Mainnet, nil
	}
	return Testnet, nil
}

func HiroAPIURL(n NetworkName) string {
	if n == Mainnet {
		return "https://api.mainnet.hiro.so"
	}
	return "https://api.testnet.hiro.so"
}

func ExplorerTxURL(n NetworkName, txID string) string {
	return fmt.Sprintf("https://explorer.hiro.so/txid/%s?chain=%s", txID, n)
}

func ExplorerAddressURL(n NetworkName, address string) string {
	return fmt.Sprintf("https://explorer.hiro.so/address/%s?chain=%s", address, n)
}

func FaucetURL() string {
	return "https://explorer.hiro.so/sandbox/faucet?chain=testnet"
}

// ValidStacksAddress checks the shape of a standard principal: a version
// prefix (SP, SM, ST, SN) followed by c32 characters.
func ValidStacksAddress(address string) bool {
	if len(address) < 28 || len(address) > 41 {
		return false
	}
	switch address[:2] {
	case "SP", "SM", "ST", "SN":
	default:
		return false
	}
	for _, r := range address[2:] {
		if !strings.ContainsRune(c32Alphabet, r) {
			return false
		}
	}
	return true
}

// EncodeHeader encodes v as base64 JSON for use in an HTTP header.
func EncodeHeader(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(header string, v any) error {
	// Decode base64
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return fmt.Errorf("invalid base64: %w", err)
	}

	// Parse JSON
	if err := json.Unmarshal(decoded, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}
