package skillserver

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/invoker"
	"github.com/vorpalengineering/x402-skills/ledger"
	"github.com/vorpalengineering/x402-skills/metrics"
	"github.com/vorpalengineering/x402-skills/resource/middleware"
	"github.com/vorpalengineering/x402-skills/types"
)

const (
	contextKeyInput = "skill_input"
	maxBodyBytes    = 1 << 20
)

// SkillView is a catalog entry with its live figures.
type SkillView struct {
	*catalog.Skill
	Stats            ledger.SkillStats `json:"stats"`
	SuccessRateLabel string            `json:"successRateLabel"`
}

type GlobalStatsResponse struct {
	TotalSkills int `json:"totalSkills"`
	ledger.GlobalStats
}

func (s *Server) view(ctx *gin.Context, skill *catalog.Skill) (SkillView, error) {
	stats, err := s.ledger.SkillStats(ctx.Request.Context(), skill.ID)
	if err != nil {
		return SkillView{}, err
	}
	live := *skill
	live.TotalExecutions = stats.TotalExecutions
	live.SuccessRate = stats.SuccessRate
	live.AvgResponseTimeMs = stats.AvgResponseTimeMs
	return SkillView{Skill: &live, Stats: stats, SuccessRateLabel: stats.Label()}, nil
}

func (s *Server) handleListSkills(ctx *gin.Context) {
	skills := s.catalog.All()
	if category := ctx.Query("category"); category != "" {
		skills = s.catalog.ByCategory(catalog.Category(category))
	}

	views := make([]SkillView, 0, len(skills))
	for _, skill := range skills {
		v, err := s.view(ctx, skill)
		if err != nil {
			s.logger.WithError(err).Error("Failed to read skill stats")
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
			return
		}
		views = append(views, v)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"skills":     views,
		"categories": catalog.Categories(),
	})
}

func (s *Server) handleSkillInfo(ctx *gin.Context) {
	skill, ok := s.catalog.Get(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "skill not found"})
		return
	}
	v, err := s.view(ctx, skill)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read skill stats")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"skill":       v,
		"requirement": s.payments.Requirement(skill),
	})
}

func (s *Server) handleGlobalStats(ctx *gin.Context) {
	stats, err := s.ledger.GlobalStats(ctx.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to read global stats")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
		return
	}
	ctx.JSON(http.StatusOK, GlobalStatsResponse{
		TotalSkills: s.catalog.Len(),
		GlobalStats: stats,
	})
}

// checkInput decodes and validates the request input before payment is
// demanded and keeps it for the skill handler.
func (s *Server) checkInput(ctx *gin.Context, skill *catalog.Skill) error {
	var (
		in  catalog.Input
		err error
	)
	if skill.Method == http.MethodPost {
		body, readErr := io.ReadAll(io.LimitReader(ctx.Request.Body, maxBodyBytes))
		if readErr != nil {
			return readErr
		}
		in, err = catalog.DecodeJSON(skill, body)
	} else {
		in, err = catalog.DecodeQuery(skill, ctx.Request.URL.Query())
	}
	if err != nil {
		return err
	}
	ctx.Set(contextKeyInput, in)
	return nil
}

func (s *Server) handleRunSkill(ctx *gin.Context) {
	skill, ok := middleware.SkillFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusInternalServerError, types.SkillResponse{Error: "skill not resolved"})
		return
	}
	payment, ok := middleware.PaymentFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusPaymentRequired, types.SkillResponse{Error: "payment required"})
		return
	}
	input, _ := ctx.Get(contextKeyInput)

	executionID := ctx.GetHeader(invoker.ExecutionIDHeader)
	if executionID == "" {
		executionID = uuid.New().String()
	}
	log := s.logger.WithFields(logrus.Fields{
		"skill":        skill.ID,
		"execution_id": executionID,
		"txid":         payment.TransactionHash,
	})

	execute := ExampleExecutor
	if e, ok := s.executors[skill.ID]; ok {
		execute = e
	}

	start := time.Now()
	data, err := execute(ctx.Request.Context(), skill, input)
	elapsed := time.Since(start)
	metrics.SkillExecutionDuration.WithLabelValues(skill.ID).Observe(elapsed.Seconds())

	entry := ledger.Entry{
		ExecutionID:    executionID,
		SkillID:        skill.ID,
		Resource:       skill.Endpoint,
		Payer:          payment.Payer,
		ResponseTimeMs: elapsed.Milliseconds(),
		RecordedAt:     time.Now(),
	}
	if err != nil {
		entry.Error = types.NewPaymentError(types.ErrCodeExecutionFailed, err.Error(), err)
		entry.FailedIn = types.StateExecuting
	} else {
		entry.Payment = &payment
	}
	if lerr := s.ledger.Append(ctx.Request.Context(), entry); lerr != nil {
		log.WithError(lerr).Warn("Failed to record execution")
	}

	if err != nil {
		log.WithError(err).Error("Skill execution failed")
		ctx.JSON(http.StatusInternalServerError, types.SkillResponse{Error: err.Error()})
		return
	}

	log.WithField("ms", elapsed.Milliseconds()).Info("Skill executed")
	ctx.JSON(http.StatusOK, types.SkillResponse{
		Success: true,
		Data:    data,
		Payment: &payment,
	})
}
