// Package audit ships proctor lifecycle events to Redis: onto the persistence
// queue drained by the event worker, and onto the live monitor channel.
package audit

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-viva/internal/config"
	"github.com/stemsi/exstem-viva/internal/model"
	"github.com/stemsi/exstem-viva/internal/proctor"
)

const (
	DefaultBuffer  = 1024
	deliverTimeout = 3 * time.Second
	drainTimeout   = 5 * time.Second
)

type sink interface {
	Deliver(ctx context.Context, channel string, payload []byte) error
}

type redisSink struct {
	rdb *redis.Client
}

func (s redisSink) Deliver(ctx context.Context, channel string, payload []byte) error {
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistProctorEventsQueue, payload)
	pipe.Publish(ctx, channel, payload)
	_, err := pipe.Exec(ctx)
	return err
}

// Publisher is a proctor.Observer. Observe only enqueues; Run does the I/O,
// so a slow Redis never stalls an attempt. Events beyond the buffer are
// dropped and counted.
type Publisher struct {
	sink    sink
	log     zerolog.Logger
	events  chan model.ProctorEvent
	dropped atomic.Int64
}

func NewPublisher(rdb *redis.Client, log zerolog.Logger, buffer int) *Publisher {
	return newPublisher(redisSink{rdb: rdb}, log, buffer)
}

func newPublisher(s sink, log zerolog.Logger, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Publisher{
		sink:   s,
		log:    log.With().Str("component", "audit_publisher").Logger(),
		events: make(chan model.ProctorEvent, buffer),
	}
}

// Observe implements proctor.Observer.
func (p *Publisher) Observe(e proctor.Event) {
	row := ToModel(e, uuid.New())
	select {
	case p.events <- row:
	default:
		n := p.dropped.Add(1)
		p.log.Warn().Str("kind", string(row.Kind)).Int64("dropped", n).Msg("Audit buffer full, dropping event")
	}
}

// Dropped is the number of events discarded because the buffer was full.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Run delivers events until ctx is cancelled, then drains what is buffered.
func (p *Publisher) Run(ctx context.Context) {
	p.log.Info().Msg("Audit publisher started")
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case row := <-p.events:
			p.deliver(ctx, row)
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case row := <-p.events:
			p.deliver(ctx, row)
		default:
			p.log.Info().Msg("Audit publisher stopped")
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, row model.ProctorEvent) {
	payload, err := json.Marshal(row)
	if err != nil {
		p.log.Error().Err(err).Msg("Marshal audit event failed")
		return
	}
	dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	if err := p.sink.Deliver(dctx, config.CacheKey.MonitorChannel(row.ExperimentID), payload); err != nil {
		p.log.Error().Err(err).Str("session_id", row.SessionID).Str("kind", string(row.Kind)).Msg("Audit delivery failed")
	}
}

// ToModel flattens a lifecycle event into its stored row.
func ToModel(e proctor.Event, id uuid.UUID) model.ProctorEvent {
	row := model.ProctorEvent{
		ID:            id,
		AttemptID:     e.Session.AttemptID,
		ExperimentID:  e.Session.ExperimentID,
		SessionID:     e.Session.SessionID,
		VivaSessionID: e.Session.VivaSessionID,
		Kind:          model.ProctorEventKind(e.Kind),
		FromState:     string(e.From),
		ToState:       string(e.To),
		Reason:        e.Reason,
		Count:         e.Count,
		Error:         e.Error,
		RecordedAt:    e.At.UTC(),
	}
	if e.Score != nil {
		correct, total := e.Score.Correct, e.Score.Total
		row.Correct = &correct
		row.Total = &total
	}
	return row
}
