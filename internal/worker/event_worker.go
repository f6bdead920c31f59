package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-viva/internal/config"
	"github.com/stemsi/exstem-viva/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// errQueueEmpty is returned by Pop when the poll timed out.
var errQueueEmpty = errors.New("queue empty")

type eventStore interface {
	CopyInsert(ctx context.Context, events []*model.ProctorEvent) (int64, error)
	Insert(ctx context.Context, e *model.ProctorEvent) error
}

type eventQueue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Push(ctx context.Context, payloads [][]byte) error
}

// redisQueue is the Redis list backing the event pipeline.
type redisQueue struct {
	rdb *redis.Client
	key string
}

func (q redisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return "", errQueueEmpty
	}
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", errQueueEmpty
	}
	return result[1], nil
}

func (q redisQueue) Push(ctx context.Context, payloads [][]byte) error {
	pipe := q.rdb.Pipeline()
	for _, p := range payloads {
		pipe.RPush(ctx, q.key, p)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// EventWorker drains the proctor event queue into Postgres in batches.
type EventWorker struct {
	store eventStore
	queue eventQueue
	log   zerolog.Logger

	requeueBackoff time.Duration
}

func NewEventWorker(store eventStore, rdb *redis.Client, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		store:          store,
		queue:          redisQueue{rdb: rdb, key: config.WorkerKey.PersistProctorEventsQueue},
		log:            log.With().Str("component", "event_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")

	buffer := make([]*model.ProctorEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// Pop blocks for PollTimeout and returns immediately if data exists.
		raw, err := w.queue.Pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, errQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		event, err := decodeEvent(raw)
		if err != nil {
			// Malformed payloads can never succeed; log and discard.
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed event")
			continue
		}
		buffer = append(buffer, event)
	}
}

func decodeEvent(raw string) (*model.ProctorEvent, error) {
	var e model.ProctorEvent
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	if e.SessionID == "" || e.Kind == "" {
		return nil, errors.New("event missing session_id or kind")
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	return &e, nil
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *EventWorker) flushSafe(ctx context.Context, batch []*model.ProctorEvent) {
	n, err := w.store.CopyInsert(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("rows", n).Msg("Flushed proctor events")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *EventWorker) fallbackInsert(ctx context.Context, batch []*model.ProctorEvent) {
	requeueList := make([]*model.ProctorEvent, 0)

	for _, e := range batch {
		if err := w.store.Insert(ctx, e); err != nil {
			w.log.Error().Err(err).Str("session_id", e.SessionID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, e)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *EventWorker) requeue(ctx context.Context, items []*model.ProctorEvent) {
	payloads := make([][]byte, 0, len(items))
	for _, e := range items {
		data, _ := json.Marshal(e)
		payloads = append(payloads, data)
	}
	if err := w.queue.Push(ctx, payloads); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue events to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed events back to Redis")
	// Back off so a database that is down hard is not hammered.
	time.Sleep(w.requeueBackoff)
}

func (w *EventWorker) shutdown(buffer []*model.ProctorEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
