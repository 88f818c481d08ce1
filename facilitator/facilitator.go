package facilitator

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/metrics"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

// Facilitator is the devnet settlement service: it accepts signed transfers,
// reports their status and verifies settlement proofs for skill backends.
type Facilitator struct {
	config *FacilitatorConfig
	chain  *Chain
	router *gin.Engine
	server *http.Server
	logger *logrus.Logger
}

func NewFacilitator(cfg *FacilitatorConfig, logger *logrus.Logger) (*Facilitator, error) {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	balances, err := cfg.GenesisBalances()
	if err != nil {
		return nil, err
	}
	chain, err := NewChain(cfg.Network, cfg.Chain.ConfirmationDelay, balances)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())

	f := &Facilitator{
		config: cfg,
		chain:  chain,
		router: router,
		logger: logger,
	}
	f.RegisterRoutes(router)
	return f, nil
}

func (f *Facilitator) Chain() *Chain {
	return f.chain
}

func (f *Facilitator) Handler() http.Handler {
	return f.router
}

func (f *Facilitator) RegisterRoutes(router *gin.Engine) {
	router.POST("/broadcast", f.handleBroadcast)
	router.GET("/tx/:txid", f.handleTxStatus)
	router.POST("/tx/:txid/abort", f.handleAbort)
	router.POST("/verify", f.handleVerify)
	router.GET("/supported", f.handleSupported)
	router.GET("/extended/v1/address/:address/stx", f.handleBalance)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run serves until ctx is cancelled.
func (f *Facilitator) Run(ctx context.Context) error {
	f.server = &http.Server{
		Addr:    f.config.Server.Addr(),
		Handler: f.router,
	}
	f.logger.WithFields(logrus.Fields{
		"network":            f.chain.Network(),
		"confirmation_delay": f.config.Chain.ConfirmationDelay,
	}).Info("Starting devnet facilitator")
	return utils.Serve(ctx, f.server, f.logger)
}

func (f *Facilitator) Close() error {
	if f.server == nil {
		return nil
	}
	return f.server.Close()
}

func (f *Facilitator) handleBroadcast(ctx *gin.Context) {
	// Decode request
	var tx types.SignedTransaction
	if err := ctx.ShouldBindJSON(&tx); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	txID, err := f.chain.Submit(&tx)
	if err != nil {
		metrics.FacilitatorBroadcasts.WithLabelValues("rejected").Inc()
		f.logger.WithError(err).WithField("payer", tx.Payer).Warn("Rejected transaction")
		ctx.JSON(http.StatusOK, types.BroadcastResponse{
			Accepted: false,
			Reason:   err.Error(),
		})
		return
	}

	metrics.FacilitatorBroadcasts.WithLabelValues("accepted").Inc()
	f.logger.WithFields(logrus.Fields{
		"txid":  txID,
		"payer": tx.Payer,
	}).Info("Accepted transaction")

	ctx.JSON(http.StatusOK, types.BroadcastResponse{
		Accepted: true,
		TxID:     txID,
	})
}

func (f *Facilitator) handleTxStatus(ctx *gin.Context) {
	status, err := f.chain.Status(ctx.Param("txid"))
	if errors.Is(err, ErrTxNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, status)
}

func (f *Facilitator) handleAbort(ctx *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	// Reason is optional
	_ = ctx.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "aborted by devnet operator"
	}

	txID := ctx.Param("txid")
	err := f.chain.Abort(txID, body.Reason)
	switch {
	case errors.Is(err, ErrTxNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrNotPending):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	f.logger.WithField("txid", txID).Info("Aborted transaction")
	status, _ := f.chain.Status(txID)
	ctx.JSON(http.StatusOK, status)
}

func (f *Facilitator) handleVerify(ctx *gin.Context) {
	// Decode request
	var req types.VerifyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	// Verify proof
	res := types.VerifyResponse{}
	if !f.config.IsSupported(req.Proof.Scheme, req.Proof.Network) {
		res.InvalidReason = "unsupported scheme or network"
	} else {
		res.IsValid, res.InvalidReason = f.chain.VerifyProof(&req)
	}
	if res.IsValid {
		res.Payer = req.Proof.Payment.Payer
		metrics.FacilitatorVerifications.WithLabelValues("valid").Inc()
	} else {
		metrics.FacilitatorVerifications.WithLabelValues("invalid").Inc()
		f.logger.WithFields(logrus.Fields{
			"txid":   req.Proof.Payment.TransactionHash,
			"reason": res.InvalidReason,
		}).Info("Rejected settlement proof")
	}

	ctx.JSON(http.StatusOK, res)
}

func (f *Facilitator) handleSupported(ctx *gin.Context) {
	res := types.SupportedResponse{
		Kinds: f.config.Supported,
	}

	ctx.JSON(http.StatusOK, res)
}

// handleBalance mirrors the Hiro balance endpoint so wallets can point their
// balance refresh at the devnet.
func (f *Facilitator) handleBalance(ctx *gin.Context) {
	address := ctx.Param("address")
	if !utils.ValidStacksAddress(address) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	balance, ok := f.chain.Balance(address)
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "devnet runs without balances"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": balance.String()})
}
