package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

const DefaultPaymentHeader = "X-PAYMENT"

// Verifier checks settlement proofs; *client.FacilitatorClient implements it.
type Verifier interface {
	Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error)
}

// InputCheck validates the request input for a skill before payment is
// demanded, so nobody pays for a request that cannot run.
type InputCheck func(ctx *gin.Context, skill *catalog.Skill) error

type MiddlewareConfig struct {
	// Facilitator verifies settlement proofs
	Facilitator Verifier

	// Catalog prices every protected resource
	Catalog *catalog.Catalog

	// Network is the network payments must settle on
	Network string

	// PayTo receives every payment
	PayTo string

	// MaxTimeoutSeconds is advertised in every requirement
	MaxTimeoutSeconds int

	// ProtectedPaths is a list of path patterns that require payment
	// Supports glob patterns like "/api/skills/*"
	ProtectedPaths []string

	// Proofs remembers spent settlement proofs. Defaults to an in-memory registry.
	Proofs ProofRegistry

	// CheckInput runs before the 402 challenge. Optional.
	CheckInput InputCheck

	// PaymentHeaderName defaults to X-PAYMENT
	PaymentHeaderName string

	// MaxBufferSize limits buffered handler responses; 0 means unlimited
	MaxBufferSize int
}

func (c *MiddlewareConfig) Validate() error {
	// Check required variables
	if c.Facilitator == nil {
		return errors.New("facilitator is required")
	}
	if c.Catalog == nil {
		return errors.New("catalog is required")
	}
	if len(c.ProtectedPaths) == 0 {
		return errors.New("at least one protected path must be specified")
	}

	// Validate payment terms
	network, err := utils.NormalizeNetwork(c.Network)
	if err != nil {
		return errors.New("invalid network: " + err.Error())
	}
	c.Network = network
	if !utils.ValidStacksAddress(c.PayTo) {
		return errors.New("invalid pay to address: " + c.PayTo)
	}
	if c.MaxTimeoutSeconds <= 0 {
		return errors.New("max timeout seconds must be positive")
	}

	return nil
}

func (c *MiddlewareConfig) GetPaymentHeaderName() string {
	if c.PaymentHeaderName == "" {
		return DefaultPaymentHeader
	}
	return c.PaymentHeaderName
}
