package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-viva/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	copyErr  error
	failIDs  map[uuid.UUID]bool
	copied   int
	inserted []uuid.UUID
}

func (s *fakeStore) CopyInsert(_ context.Context, events []*model.ProctorEvent) (int64, error) {
	if s.copyErr != nil {
		return 0, s.copyErr
	}
	s.copied += len(events)
	return int64(len(events)), nil
}

func (s *fakeStore) Insert(_ context.Context, e *model.ProctorEvent) error {
	if s.failIDs[e.ID] {
		return errors.New("insert failed")
	}
	s.inserted = append(s.inserted, e.ID)
	return nil
}

type fakeQueue struct {
	mu     sync.Mutex
	items  []string
	pushed [][]byte
}

func (q *fakeQueue) Pop(ctx context.Context, _ time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errQueueEmpty
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

func (q *fakeQueue) Push(_ context.Context, payloads [][]byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, payloads...)
	return nil
}

func newTestWorker(store eventStore, queue eventQueue) *EventWorker {
	return &EventWorker{store: store, queue: queue, log: zerolog.Nop()}
}

func TestDecodeEvent(t *testing.T) {
	e, err := decodeEvent(`{"id":"7b0c1f9e-64a4-4c43-9a57-3f0d3a8c1b11","session_id":"s1","kind":"violation","reason":"Tab switch detected","count":2}`)
	require.NoError(t, err)
	assert.Equal(t, model.ProctorEventViolation, e.Kind)
	assert.Equal(t, 2, e.Count)
	assert.False(t, e.RecordedAt.IsZero())

	_, err = decodeEvent(`{"kind":"violation"}`)
	assert.Error(t, err)

	_, err = decodeEvent(`not json`)
	assert.Error(t, err)
}

func TestFlushFallsBackAndRequeues(t *testing.T) {
	good := &model.ProctorEvent{ID: uuid.New(), SessionID: "s1", Kind: model.ProctorEventNudge}
	bad := &model.ProctorEvent{ID: uuid.New(), SessionID: "s1", Kind: model.ProctorEventViolation}

	store := &fakeStore{copyErr: errors.New("copy failed"), failIDs: map[uuid.UUID]bool{bad.ID: true}}
	queue := &fakeQueue{}
	w := newTestWorker(store, queue)

	w.flushSafe(context.Background(), []*model.ProctorEvent{good, bad})

	assert.Equal(t, []uuid.UUID{good.ID}, store.inserted)
	require.Len(t, queue.pushed, 1)
	requeued, err := decodeEvent(string(queue.pushed[0]))
	require.NoError(t, err)
	assert.Equal(t, bad.ID, requeued.ID)
}

func TestStartFlushesOnShutdown(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{items: []string{
		`{"id":"7b0c1f9e-64a4-4c43-9a57-3f0d3a8c1b11","session_id":"s1","kind":"transition","to_state":"IN_PROGRESS"}`,
		`{broken`,
		`{"id":"0f9ad0a2-1f53-4a3c-9d0b-7c1c2c1e2d33","session_id":"s1","kind":"finished"}`,
	}}
	w := newTestWorker(store, queue)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.items) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, 2, store.copied)
}
