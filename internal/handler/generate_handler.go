package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-viva/internal/proctor"
	"github.com/stemsi/exstem-viva/internal/response"
	"github.com/stemsi/exstem-viva/internal/validator"
)

type questionGenerator interface {
	Generate(ctx context.Context, req proctor.GenerateRequest) ([]proctor.Question, error)
}

// GenerateHandler serves the generation contract over HTTP.
type GenerateHandler struct {
	gen questionGenerator
	log zerolog.Logger
}

// NewGenerateHandler creates a new GenerateHandler.
func NewGenerateHandler(gen questionGenerator, log zerolog.Logger) *GenerateHandler {
	return &GenerateHandler{
		gen: gen,
		log: log.With().Str("component", "generate_handler").Logger(),
	}
}

type generateRequest struct {
	Topic          string `json:"topic" binding:"required,max=512"`
	ExperimentID   string `json:"experiment_id" binding:"required,max=128"`
	StudentSession string `json:"student_session" binding:"required,max=128"`
}

// Generate godoc
// POST /viva/api/generate
// Returns a shuffled question set including its answer key, so only
// service tokens reach it. The engine strips the key before anything
// reaches the learner.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req generateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.StagedFailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.gen.Generate(c.Request.Context(), proctor.GenerateRequest{
		ExperimentID:   req.ExperimentID,
		Topic:          req.Topic,
		StudentSession: req.StudentSession,
	})
	if err != nil {
		log := response.Logger(c, h.log)
		log.Error().Err(err).Str("experiment_id", req.ExperimentID).Msg("Generation failed")
		if errors.Is(err, proctor.ErrLoadValidation) {
			response.StagedFail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
			return
		}
		response.StagedFail(c, http.StatusBadGateway, response.ErrGenerationFailed)
		return
	}

	response.Staged(c, http.StatusOK, response.StageMCQsReady, gin.H{
		"questions": questions,
		"count":     len(questions),
	})
}
