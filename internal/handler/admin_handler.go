package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-viva/internal/model"
	"github.com/stemsi/exstem-viva/internal/proctor"
	"github.com/stemsi/exstem-viva/internal/response"
	"github.com/stemsi/exstem-viva/internal/validator"
)

type eventReader interface {
	ListBySession(ctx context.Context, sessionID string, filter model.ProctorEventFilter, limit, offset int) ([]model.ProctorEvent, int, error)
	CountViolations(ctx context.Context, experimentID string) (map[string]int64, error)
}

type attemptLister interface {
	List() []proctor.Snapshot
}

// AdminHandler serves the instructor read-out of attempts and audit trails.
type AdminHandler struct {
	events   eventReader
	attempts attemptLister
	log      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(events eventReader, attempts attemptLister, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		events:   events,
		attempts: attempts,
		log:      log.With().Str("component", "admin_handler").Logger(),
	}
}

// ListSessionEvents godoc
// GET /api/v1/admin/sessions/:session_id/events
// ?kind=&page=&per_page=
// Returns one page of the stored audit trail of a session.
func (h *AdminHandler) ListSessionEvents(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	var filter model.ProctorEventFilter
	if fields := validator.BindQuery(c, &filter); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	page, perPage, offset := response.PageBounds(filter.Page, filter.PerPage)
	events, total, err := h.events.ListBySession(c.Request.Context(), sessionID, filter, perPage, offset)
	if err != nil {
		log := response.Logger(c, h.log)
		log.Error().Err(err).Str("session_id", sessionID).Msg("List events failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"events": events}, response.NewPagination(page, perPage, total))
}

// ListAttempts godoc
// GET /api/v1/admin/attempts?experiment_id=
// Lists the attempts currently connected to this instance.
func (h *AdminHandler) ListAttempts(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"attempts": filterAttempts(h.attempts.List(), c.Query("experiment_id")),
	})
}

// ViolationSummary godoc
// GET /api/v1/admin/experiments/:experiment_id/violations
// Returns counted violations per session for an experiment.
func (h *AdminHandler) ViolationSummary(c *gin.Context) {
	experimentID := c.Param("experiment_id")
	counts, err := h.events.CountViolations(c.Request.Context(), experimentID)
	if err != nil {
		log := response.Logger(c, h.log)
		log.Error().Err(err).Str("experiment_id", experimentID).Msg("Count violations failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"experiment_id": experimentID,
		"violations":    counts,
	})
}

func filterAttempts(all []proctor.Snapshot, experimentID string) []proctor.Snapshot {
	if experimentID == "" {
		return all
	}
	out := make([]proctor.Snapshot, 0, len(all))
	for _, s := range all {
		if s.Session.ExperimentID == experimentID {
			out = append(out, s)
		}
	}
	return out
}
