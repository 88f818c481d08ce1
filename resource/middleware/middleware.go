package middleware

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/metrics"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

// Context keys set for downstream handlers of a paid request.
const (
	ContextKeySkill   = "x402_skill"
	ContextKeyPayment = "x402_payment"
)

type X402Middleware struct {
	config *MiddlewareConfig
	proofs ProofRegistry
	logger *logrus.Logger
}

func NewX402Middleware(cfg *MiddlewareConfig, logger *logrus.Logger) *X402Middleware {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	proofs := cfg.Proofs
	if proofs == nil {
		proofs = NewMemoryProofs()
	}
	return &X402Middleware{
		config: cfg,
		proofs: proofs,
		logger: logger,
	}
}

func (m *X402Middleware) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		// Check if the current path requires payment
		path := ctx.Request.URL.Path
		if !m.isProtectedPath(path) {
			ctx.Next()
			return
		}
		skill, ok := m.config.Catalog.ByResource(path)
		if !ok {
			ctx.Next()
			return
		}
		if ctx.Request.Method != skill.Method {
			ctx.JSON(http.StatusMethodNotAllowed, types.SkillResponse{Error: "use " + skill.Method})
			ctx.Abort()
			return
		}

		log := m.logger.WithField("skill", skill.ID)

		// Reject input the skill cannot run before asking for money
		if m.config.CheckInput != nil {
			if err := m.config.CheckInput(ctx, skill); err != nil {
				metrics.SkillRequests.WithLabelValues(skill.ID, "invalid_input").Inc()
				ctx.JSON(http.StatusBadRequest, types.SkillResponse{Error: err.Error()})
				ctx.Abort()
				return
			}
		}

		requirement := m.requirementFor(skill)

		// If no payment header is present, return 402 Payment Required
		headerName := m.config.GetPaymentHeaderName()
		paymentHeader := ctx.GetHeader(headerName)
		if paymentHeader == "" {
			metrics.SkillRequests.WithLabelValues(skill.ID, "challenged").Inc()
			m.sendPaymentRequired(ctx, requirement, headerName+" header is required")
			return
		}

		// Decode settlement proof
		var proof types.SettlementProof
		if err := utils.DecodeHeader(paymentHeader, &proof); err != nil {
			ctx.JSON(http.StatusBadRequest, types.SkillResponse{Error: "Invalid payment header: " + err.Error()})
			ctx.Abort()
			return
		}
		if !proof.Payment.Valid() {
			ctx.JSON(http.StatusBadRequest, types.SkillResponse{Error: "Invalid payment header: incomplete payment"})
			ctx.Abort()
			return
		}
		txHash := proof.Payment.TransactionHash
		log = log.WithField("txid", txHash)

		// A proof buys one execution
		if err := m.proofs.Reserve(txHash); err != nil {
			metrics.ReplayedProofs.Inc()
			metrics.SkillRequests.WithLabelValues(skill.ID, "replayed").Inc()
			log.Warn("Rejected replayed settlement proof")
			ctx.JSON(http.StatusConflict, types.SkillResponse{Error: err.Error()})
			ctx.Abort()
			return
		}

		// Verify payment with facilitator
		verifyResp, err := m.config.Facilitator.Verify(ctx.Request.Context(), &types.VerifyRequest{
			Proof:       proof,
			Requirement: requirement.PaymentRequirements,
		})
		if err != nil {
			// Facilitator communication error
			m.proofs.Release(txHash)
			log.WithError(err).Error("Failed to verify payment")
			ctx.JSON(http.StatusBadGateway, types.SkillResponse{Error: "Failed to verify payment: " + err.Error()})
			ctx.Abort()
			return
		}

		// Check if payment is valid
		if !verifyResp.IsValid {
			m.proofs.Release(txHash)
			metrics.SkillRequests.WithLabelValues(skill.ID, "payment_invalid").Inc()
			log.WithField("reason", verifyResp.InvalidReason).Info("Payment not accepted")
			m.sendPaymentRequired(ctx, requirement, verifyResp.InvalidReason)
			return
		}

		// Payment is valid, store payment info in context for downstream handlers
		ctx.Set(ContextKeySkill, skill)
		ctx.Set(ContextKeyPayment, proof.Payment)

		// Hold the skill's response until the proof is settled
		held := holdResponse(ctx.Writer, m.config.MaxBufferSize)
		ctx.Writer = held
		ctx.Next()
		ctx.Writer = held.ResponseWriter

		if held.exceeded {
			m.proofs.Release(txHash)
			log.Errorf("Skill response exceeded %d bytes, payment proof released", m.config.MaxBufferSize)
			ctx.JSON(http.StatusInternalServerError, types.SkillResponse{Error: "Response too large"})
			ctx.Abort()
			return
		}

		// Spend the proof only if the skill succeeded
		if held.succeeded() {
			m.proofs.Commit(txHash)
			metrics.SkillRequests.WithLabelValues(skill.ID, "executed").Inc()
			setPaymentResponseHeader(held, &proof.Payment)
			log.WithField("payer", proof.Payment.Payer).Info("Skill executed")
		} else {
			m.proofs.Release(txHash)
			metrics.SkillRequests.WithLabelValues(skill.ID, "failed_"+strconv.Itoa(held.Status())).Inc()
			log.WithField("status", held.Status()).Warn("Skill failed, payment proof released")
		}

		if err := held.release(); err != nil {
			log.WithError(err).Warn("Failed to write response")
		}
	}
}

// Requirement returns the payment requirement for a skill.
func (m *X402Middleware) Requirement(skill *catalog.Skill) types.PaymentRequirement {
	return m.requirementFor(skill)
}

func (m *X402Middleware) requirementFor(skill *catalog.Skill) types.PaymentRequirement {
	return types.PaymentRequirement{
		X402Version: types.X402Version,
		PaymentRequirements: types.PaymentRequirementDetails{
			Network:           m.config.Network,
			Amount:            strconv.FormatInt(skill.PriceMicroSTX, 10),
			Asset:             types.Asset{Type: types.AssetTypeNative, Symbol: "STX"},
			PayTo:             m.config.PayTo,
			Scheme:            types.SchemeStacks,
			MaxTimeoutSeconds: m.config.MaxTimeoutSeconds,
			Resource:          skill.Endpoint,
			Description:       skill.Description,
		},
	}
}

func (m *X402Middleware) isProtectedPath(path string) bool {
	for _, pattern := range m.config.ProtectedPaths {
		matched, err := filepath.Match(pattern, path)
		if err != nil {
			// Invalid pattern, skip
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

func (m *X402Middleware) sendPaymentRequired(ctx *gin.Context, requirement types.PaymentRequirement, reason string) {
	response := requirement
	response.Error = reason
	setPaymentRequiredHeader(ctx, &response, m.logger)
	ctx.JSON(http.StatusPaymentRequired, response)
	ctx.Abort()
}

// setPaymentRequiredHeader mirrors the 402 body as base64 JSON in the
// PAYMENT-REQUIRED response header.
func setPaymentRequiredHeader(ctx *gin.Context, response *types.PaymentRequirement, logger *logrus.Logger) {
	header, err := utils.EncodeHeader(response)
	if err != nil {
		logger.WithError(err).Warn("Failed to encode PAYMENT-REQUIRED header")
		return
	}
	ctx.Header("PAYMENT-REQUIRED", header)
}

// setPaymentResponseHeader attaches the accepted payment as base64 JSON in
// the X-PAYMENT-RESPONSE header.
func setPaymentResponseHeader(w http.ResponseWriter, payment *types.PaymentResult) {
	header, err := utils.EncodeHeader(payment)
	if err != nil {
		return
	}
	w.Header().Set("X-PAYMENT-RESPONSE", header)
}

// PaymentFrom returns the verified payment of a paid request.
func PaymentFrom(ctx *gin.Context) (types.PaymentResult, bool) {
	v, ok := ctx.Get(ContextKeyPayment)
	if !ok {
		return types.PaymentResult{}, false
	}
	payment, ok := v.(types.PaymentResult)
	return payment, ok
}

// SkillFrom returns the catalog skill of a paid request.
func SkillFrom(ctx *gin.Context) (*catalog.Skill, bool) {
	v, ok := ctx.Get(ContextKeySkill)
	if !ok {
		return nil, false
	}
	skill, ok := v.(*catalog.Skill)
	return skill, ok
}
