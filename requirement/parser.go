package requirement

import (
	"bytes"
	"encoding/json"
	"math/big"
	"regexp"
	"strconv"

	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

// Catalog resolves a requirement's resource to the skill it sells.
type Catalog interface {
	ByResource(resource string) (*catalog.Skill, bool)
}

var supportedVersions = map[int]bool{
	types.X402Version: true,
}

var digits = regexp.MustCompile(`^[0-9]+$`)

type Parser struct {
	network string
	catalog Catalog
}

// NewParser returns a parser that accepts requirements for the given network.
// An empty network disables the network check; a nil catalog disables the
// price and resource checks.
func NewParser(network string, cat Catalog) *Parser {
	return &Parser{network: network, catalog: cat}
}

// Parse decodes and validates the body of a 402 response. Every failure is a
// *ParseError. The returned requirement carries the canonical network id and
// amount.
func (p *Parser) Parse(body []byte) (*types.PaymentRequirement, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, invalid("", "body is not a JSON object: %v", err)
	}

	// Protocol version
	var version int
	if err := requireField(envelope, "x402Version", &version); err != nil {
		return nil, err
	}
	if !supportedVersions[version] {
		return nil, invalid("x402Version", "unsupported protocol version %d", version)
	}

	var fields map[string]json.RawMessage
	if err := requireField(envelope, "paymentRequirements", &fields); err != nil {
		return nil, err
	}
	prefix := "paymentRequirements."

	// Network
	var network string
	if err := requireField(fields, "network", &network); err != nil {
		return nil, withPrefix(err, prefix)
	}
	canonical, err := utils.NormalizeNetwork(network)
	if err != nil {
		return nil, invalid(prefix+"network", "%v", err)
	}
	if p.network != "" && !utils.SameNetwork(canonical, p.network) {
		return nil, &ParseError{
			Field:  prefix + "network",
			Reason: "requirement is for " + network + " but the wallet is on " + p.network,
			Code:   types.ErrCodeNetworkMismatch,
		}
	}

	// Amount
	rawAmount, ok := fields["amount"]
	if !ok {
		return nil, invalid(prefix+"amount", "missing")
	}
	amount, perr := canonicalAmount(rawAmount)
	if perr != nil {
		return nil, perr
	}

	// Asset
	var asset types.Asset
	if err := requireField(fields, "asset", &asset); err != nil {
		return nil, withPrefix(err, prefix)
	}
	switch asset.Type {
	case types.AssetTypeNative:
		if asset.Symbol != "STX" {
			return nil, invalid(prefix+"asset.symbol", "native asset must be STX, got %q", asset.Symbol)
		}
	case types.AssetTypeContract:
		if asset.Symbol == "" {
			return nil, invalid(prefix+"asset.symbol", "missing")
		}
	default:
		return nil, invalid(prefix+"asset.type", "unknown asset type %q", asset.Type)
	}

	// Payee
	var payTo string
	if err := requireField(fields, "payTo", &payTo); err != nil {
		return nil, withPrefix(err, prefix)
	}
	if !utils.ValidStacksAddress(payTo) {
		return nil, invalid(prefix+"payTo", "malformed stacks address %q", payTo)
	}

	// Scheme
	var scheme string
	if err := requireField(fields, "scheme", &scheme); err != nil {
		return nil, withPrefix(err, prefix)
	}
	if scheme != types.SchemeStacks {
		return nil, invalid(prefix+"scheme", "unsupported scheme %q", scheme)
	}

	// Timeout
	var timeout json.Number
	if err := requireField(fields, "maxTimeoutSeconds", &timeout); err != nil {
		return nil, withPrefix(err, prefix)
	}
	seconds, err := strconv.Atoi(timeout.String())
	if err != nil {
		return nil, invalid(prefix+"maxTimeoutSeconds", "must be an integer, got %s", timeout)
	}
	if seconds <= 0 {
		return nil, invalid(prefix+"maxTimeoutSeconds", "must be positive, got %d", seconds)
	}
	if int64(seconds) > types.TimeoutSecondsLimit {
		return nil, invalid(prefix+"maxTimeoutSeconds", "must be at most %d, got %d", types.TimeoutSecondsLimit, seconds)
	}

	// Resource
	var resource string
	if err := requireField(fields, "resource", &resource); err != nil {
		return nil, withPrefix(err, prefix)
	}
	if resource == "" {
		return nil, invalid(prefix+"resource", "missing")
	}

	var description string
	if raw, ok := fields["description"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &description); err != nil {
			return nil, invalid(prefix+"description", "must be a string")
		}
	}

	// Cross-check against the catalog
	if p.catalog != nil {
		skill, ok := p.catalog.ByResource(resource)
		if !ok {
			return nil, invalid(prefix+"resource", "unknown resource %s", resource)
		}
		if amount != skill.PriceString() {
			return nil, invalid(prefix+"amount", "amount %s does not match the price of %s (%s)", amount, skill.ID, skill.PriceString())
		}
	}

	var errMsg string
	if raw, ok := envelope["error"]; ok {
		_ = json.Unmarshal(raw, &errMsg)
	}

	return &types.PaymentRequirement{
		X402Version: version,
		PaymentRequirements: types.PaymentRequirementDetails{
			Network:           canonical,
			Amount:            amount,
			Asset:             asset,
			PayTo:             payTo,
			Scheme:            scheme,
			MaxTimeoutSeconds: seconds,
			Resource:          resource,
			Description:       description,
		},
		Error: errMsg,
	}, nil
}

// canonicalAmount accepts a decimal string or an integral JSON number and
// returns it without sign or leading zeros.
func canonicalAmount(raw json.RawMessage) (string, *ParseError) {
	field := "paymentRequirements.amount"
	if isNull(raw) {
		return "", invalid(field, "missing")
	}

	var text string
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", invalid(field, "must be a string or number")
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", invalid(field, "must be a string or number")
		}
		text = n.String()
	}

	if !digits.MatchString(text) {
		return "", invalid(field, "must be a non-negative integer, got %q", text)
	}
	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return "", invalid(field, "must be a non-negative integer, got %q", text)
	}
	return v.String(), nil
}

func requireField(fields map[string]json.RawMessage, name string, dst any) *ParseError {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return invalid(name, "missing")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return invalid(name, "wrong type: %v", err)
	}
	return nil
}

func withPrefix(err *ParseError, prefix string) *ParseError {
	err.Field = prefix + err.Field
	return err
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
