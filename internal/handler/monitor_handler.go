package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-viva/internal/config"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live proctor events of an experiment to instructors.
type MonitorHandler struct {
	rdb      *redis.Client
	events   eventReader
	attempts attemptLister
	log      zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, events eventReader, attempts attemptLister, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		events:   events,
		attempts: attempts,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExperimentSSE godoc
// GET /api/v1/admin/experiments/:experiment_id/monitor
func (h *MonitorHandler) MonitorExperimentSSE(c *gin.Context) {
	experimentID := c.Param("experiment_id")
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, experimentID, "snapshot")

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.MonitorChannel(experimentID))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("experiment_id", experimentID).Msg("Instructor attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("experiment_id", experimentID).Msg("Instructor disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON directly, no deserialization needed
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendSnapshot(c, reqCtx, experimentID, "refresh")

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the live attempts of the experiment together with the
// stored violation counts.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, experimentID, kind string) {
	attempts := filterAttempts(h.attempts.List(), experimentID)

	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()
	counts, err := h.events.CountViolations(ctx, experimentID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch violation counts for monitor")
		counts = map[string]int64{}
	}

	c.SSEvent("message", gin.H{
		"type": kind,
		"data": gin.H{
			"experiment_id": experimentID,
			"attempts":      attempts,
			"violations":    counts,
		},
	})
	c.Writer.Flush()
}
