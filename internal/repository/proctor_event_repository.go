package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-viva/internal/model"
)

var proctorEventColumns = []string{
	"id", "attempt_id", "experiment_id", "session_id", "viva_session_id",
	"kind", "from_state", "to_state", "reason", "count",
	"correct", "total", "error", "recorded_at",
}

// ProctorEventRepository stores and reads attempt audit trails.
type ProctorEventRepository struct {
	pool *pgxpool.Pool
}

// NewProctorEventRepository creates a new ProctorEventRepository.
func NewProctorEventRepository(pool *pgxpool.Pool) *ProctorEventRepository {
	return &ProctorEventRepository{pool: pool}
}

func eventRow(e *model.ProctorEvent) []interface{} {
	return []interface{}{
		e.ID, e.AttemptID, e.ExperimentID, e.SessionID, e.VivaSessionID,
		string(e.Kind), e.FromState, e.ToState, e.Reason, e.Count,
		e.Correct, e.Total, e.Error, e.RecordedAt,
	}
}

// CopyInsert bulk-inserts events with the COPY protocol.
func (r *ProctorEventRepository) CopyInsert(ctx context.Context, events []*model.ProctorEvent) (int64, error) {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		rows = append(rows, eventRow(e))
	}
	return r.pool.CopyFrom(ctx, pgx.Identifier{"proctor_events"}, proctorEventColumns, pgx.CopyFromRows(rows))
}

// Insert stores a single event. Duplicate ids are ignored so a requeued
// event never lands twice.
func (r *ProctorEventRepository) Insert(ctx context.Context, e *model.ProctorEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO proctor_events
		 (id, attempt_id, experiment_id, session_id, viva_session_id,
		  kind, from_state, to_state, reason, count,
		  correct, total, error, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO NOTHING`,
		eventRow(e)...,
	)
	return err
}

// ListBySession returns one page of a session's audit trail in recording
// order, with the number of events matching filter.
func (r *ProctorEventRepository) ListBySession(ctx context.Context, sessionID string, filter model.ProctorEventFilter, limit, offset int) ([]model.ProctorEvent, int, error) {
	where := ` WHERE session_id = $1`
	args := []interface{}{sessionID}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM proctor_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, attempt_id, experiment_id, session_id, viva_session_id,
	                 kind, from_state, to_state, reason, count,
	                 correct, total, error, recorded_at
	          FROM proctor_events` + where
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY recorded_at ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]model.ProctorEvent, 0)
	for rows.Next() {
		var e model.ProctorEvent
		var kind string
		if err := rows.Scan(
			&e.ID, &e.AttemptID, &e.ExperimentID, &e.SessionID, &e.VivaSessionID,
			&kind, &e.FromState, &e.ToState, &e.Reason, &e.Count,
			&e.Correct, &e.Total, &e.Error, &e.RecordedAt,
		); err != nil {
			return nil, 0, err
		}
		e.Kind = model.ProctorEventKind(kind)
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// CountViolations returns counted violations per session for an experiment.
func (r *ProctorEventRepository) CountViolations(ctx context.Context, experimentID string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, COUNT(*)
		 FROM proctor_events
		 WHERE experiment_id = $1 AND kind = 'violation'
		 GROUP BY session_id`,
		experimentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var sid string
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		result[sid] = count
	}
	return result, rows.Err()
}
