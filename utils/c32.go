package utils

import (
	"crypto/sha256"
	"math/big"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 is part of the address format
)

// Address versions of single-sig standard principals
const (
	VersionMainnetSingleSig byte = 22 // SP
	VersionTestnetSingleSig byte = 26 // ST
)

// C32CheckEncode renders data with a version byte and a 4-byte double-sha256
// checksum in Crockford base32, prefixed with "S".
func C32CheckEncode(version byte, data []byte) string {
	first := sha256.Sum256(append([]byte{version}, data...))
	second := sha256.Sum256(first[:])

	payload := append(append([]byte{}, data...), second[:4]...)
	return "S" + string(c32Alphabet[version]) + c32Encode(payload)
}

func c32Encode(data []byte) string {
	var sb strings.Builder

	n := new(big.Int).SetBytes(data)
	base := big.NewInt(32)
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, c32Alphabet[mod.Int64()])
	}

	// Each leading zero byte becomes one leading zero digit
	for _, b := range data {
		if b != 0 {
			break
		}
		sb.WriteByte(c32Alphabet[0])
	}
	for i := len(out) - 1; i >= 0; i-- {
		sb.WriteByte(out[i])
	}
	return sb.String()
}

// Hash160 is RIPEMD160(SHA256(data)).
func Hash160(data []byte) []byte {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}

// AddressFromPublicKey derives the single-sig address of a compressed public key.
func AddressFromPublicKey(pubKey []byte, network NetworkName) string {
	version := VersionTestnetSingleSig
	if network == Mainnet {
		version = VersionMainnetSingleSig
	}
	return C32CheckEncode(version, Hash160(pubKey))
}
