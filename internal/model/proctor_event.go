package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctorEventKind mirrors the lifecycle event kinds emitted by attempts.
type ProctorEventKind string

const (
	ProctorEventTransition  ProctorEventKind = "transition"
	ProctorEventRejected    ProctorEventKind = "rejected"
	ProctorEventViolation   ProctorEventKind = "violation"
	ProctorEventNudge       ProctorEventKind = "nudge"
	ProctorEventMarksSaved  ProctorEventKind = "marks_saved"
	ProctorEventMarksFailed ProctorEventKind = "marks_failed"
	ProctorEventLoadFailed  ProctorEventKind = "load_failed"
	ProctorEventFinished    ProctorEventKind = "finished"
)

// ProctorEvent is one row of an attempt's audit trail.
type ProctorEvent struct {
	ID            uuid.UUID        `json:"id"`
	AttemptID     string           `json:"attempt_id"`
	ExperimentID  string           `json:"experiment_id"`
	SessionID     string           `json:"session_id"`
	VivaSessionID string           `json:"viva_session_id,omitempty"`
	Kind          ProctorEventKind `json:"kind"`
	FromState     string           `json:"from_state,omitempty"`
	ToState       string           `json:"to_state,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Count         int              `json:"count,omitempty"`
	Correct       *int             `json:"correct,omitempty"`
	Total         *int             `json:"total,omitempty"`
	Error         string           `json:"error,omitempty"`
	RecordedAt    time.Time        `json:"recorded_at"`
}

// ProctorEventFilter narrows and pages the audit trail listing.
type ProctorEventFilter struct {
	Kind    string `form:"kind" binding:"omitempty,oneof=transition rejected violation nudge marks_saved marks_failed load_failed finished"`
	Page    int    `form:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1,max=500"`
}
