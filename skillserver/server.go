package skillserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/facilitator/client"
	"github.com/vorpalengineering/x402-skills/ledger"
	"github.com/vorpalengineering/x402-skills/resource/middleware"
	"github.com/vorpalengineering/x402-skills/utils"
)

// Executor runs a skill on validated input and returns its data.
type Executor func(ctx context.Context, skill *catalog.Skill, input catalog.Input) (json.RawMessage, error)

// ExampleExecutor answers with the skill's example output.
func ExampleExecutor(_ context.Context, skill *catalog.Skill, _ catalog.Input) (json.RawMessage, error) {
	return skill.ExampleOutput, nil
}

type Options struct {
	Catalog   *catalog.Catalog    // defaults to catalog.Default()
	Verifier  middleware.Verifier // defaults to the configured facilitator
	Ledger    ledger.Ledger       // defaults to the configured ledger
	Executors map[string]Executor // by skill id; ExampleExecutor otherwise
	Logger    *logrus.Logger
}

// Server is the skill backend: catalog, paid skill endpoints and stats.
type Server struct {
	config    *Config
	catalog   *catalog.Catalog
	ledger    ledger.Ledger
	payments  *middleware.X402Middleware
	executors map[string]Executor
	router    *gin.Engine
	server    *http.Server
	logger    *logrus.Logger
}

func NewServer(cfg *Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = client.NewFacilitatorClient(cfg.FacilitatorURL)
	}
	lg := opts.Ledger
	if lg == nil {
		var err error
		if lg, err = ledger.Open(cfg.Ledger.Driver, cfg.Ledger.Path); err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
	}

	s := &Server{
		config:    cfg,
		catalog:   cat,
		ledger:    lg,
		executors: opts.Executors,
		logger:    logger,
	}

	mwConfig := &middleware.MiddlewareConfig{
		Facilitator:       verifier,
		Catalog:           cat,
		Network:           cfg.Network,
		PayTo:             cfg.PayTo,
		MaxTimeoutSeconds: cfg.MaxTimeoutSeconds,
		ProtectedPaths:    []string{catalog.EndpointPrefix + "*"},
		CheckInput:        s.checkInput,
	}
	if err := mwConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payment config: %w", err)
	}
	s.payments = middleware.NewX402Middleware(mwConfig, logger)

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	s.RegisterRoutes(router)
	s.router = router

	return s, nil
}

func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/skills", s.handleListSkills)
	router.GET("/api/skills/:id/info", s.handleSkillInfo)
	router.GET("/api/stats/global", s.handleGlobalStats)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	paid := router.Group("/", s.payments.Handler())
	for _, skill := range s.catalog.All() {
		paid.Handle(skill.Method, skill.Endpoint, s.handleRunSkill)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.config.Server.Addr(),
		Handler: s.router,
	}
	s.logger.WithFields(logrus.Fields{
		"network": s.config.Network,
		"pay_to":  s.config.PayTo,
		"skills":  s.catalog.Len(),
	}).Info("Starting skill server")
	return utils.Serve(ctx, s.server, s.logger)
}

func (s *Server) Close() error {
	var err error
	if s.server != nil {
		err = s.server.Close()
	}
	if cerr := s.ledger.Close(); err == nil {
		err = cerr
	}
	return err
}
