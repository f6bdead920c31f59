package proctor

import (
	"context"
	"errors"
	"time"
)

// SessionContext carries the external identifiers of one attempt. The
// controller never interprets them; they are passed through to backend calls.
type SessionContext struct {
	AttemptID      string `json:"attempt_id"`
	ExperimentID   string `json:"experiment_id"`
	ExperimentName string `json:"experiment_name,omitempty"`
	Topic          string `json:"topic,omitempty"`
	SessionID      string `json:"session_id"`
	VivaSessionID  string `json:"viva_session_id,omitempty"`
	StudentRegNo   string `json:"student_reg_no,omitempty"`
}

// Valid reports whether the identifiers needed to start are present.
func (s SessionContext) Valid() bool {
	return s.ExperimentID != "" && s.SessionID != ""
}

// Warning is the below-threshold violation modal.
type Warning struct {
	Reason    string `json:"reason"`
	Count     int    `json:"count"`
	Threshold int    `json:"threshold"`
}

// ScoreReport is what the learner sees during the reveal window.
type ScoreReport struct {
	Score      ScoreResult `json:"score"`
	Tier       Tier        `json:"tier"`
	Terminated bool        `json:"terminated"`
	Reason     string      `json:"reason,omitempty"`
	RevealMS   int64       `json:"reveal_ms"`
}

// View renders controller output. Calls arrive on the controller loop.
type View interface {
	ShowLoader(message string)
	HideLoader()
	SetBusy(busy bool)
	RenderQuestions(questions []Question)
	SetInteractive(on bool)
	ShowProgress(p Progress)
	ShowWarning(w Warning)
	ShowNotice(message string)
	ShowError(message string, retryable bool)
	ShowScore(r ScoreReport)
	ShowCountdown(seconds int)
	SetStatus(text string)
	Rejected(action string, err error)
}

// Listeners installs and removes the client-side event hooks feeding Dispatch.
type Listeners interface {
	Attach()
	Detach()
}

// Navigator performs the final navigation.
type Navigator interface {
	HasOpener() bool
	RefreshOpenerAndClose()
	Navigate(url string)
}

// GenerateRequest is the input of the generation contract.
type GenerateRequest struct {
	ExperimentID   string `json:"experiment_id"`
	Topic          string `json:"topic"`
	StudentSession string `json:"student_session"`
}

// MarksRequest is the input of the final marks write.
type MarksRequest struct {
	ExperimentID   string            `json:"experiment_id"`
	ExperimentName string            `json:"experiment_name,omitempty"`
	SessionID      string            `json:"session_id"`
	VivaSessionID  string            `json:"viva_session_id,omitempty"`
	Answers        map[string]string `json:"answers"`
	Score          int               `json:"score"`
	Total          int               `json:"total"`
	Terminated     bool              `json:"terminated"`
}

// MarksReceipt is the marks endpoint's reply.
type MarksReceipt struct {
	Obtained int  `json:"score"`
	Total    int  `json:"total"`
	Saved    bool `json:"saved"`
}

// Backend is the set of remote contracts the engine consumes.
type Backend interface {
	GenerateQuestions(ctx context.Context, req GenerateRequest) ([]Question, error)
	RecordAnswer(ctx context.Context, sess SessionContext, questionNumber int, letter string) error
	SaveMarks(ctx context.Context, req MarksRequest) (*MarksReceipt, error)
	ReportViolation(ctx context.Context, sess SessionContext, reason string) error
}

// EventKind classifies observer events.
type EventKind string

const (
	EventTransition  EventKind = "transition"
	EventRejected    EventKind = "rejected"
	EventViolation   EventKind = "violation"
	EventNudge       EventKind = "nudge"
	EventMarksSaved  EventKind = "marks_saved"
	EventMarksFailed EventKind = "marks_failed"
	EventLoadFailed  EventKind = "load_failed"
	EventFinished    EventKind = "finished"
)

// Event is emitted to observers for audit, metrics and live monitoring.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Session SessionContext `json:"session"`
	From    State          `json:"from,omitempty"`
	To      State          `json:"to,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Count   int            `json:"count,omitempty"`
	Score   *ScoreResult   `json:"score,omitempty"`
	Error   string         `json:"error,omitempty"`
	At      time.Time      `json:"at"`
}

// Observer receives lifecycle events. Implementations must not block.
type Observer interface {
	Observe(e Event)
}

// Observers fans an event out to several observers.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, ob := range o {
		ob.Observe(e)
	}
}

// Fullscreen is the per-attempt capability object, resolved once from what
// the client reports it supports.
type Fullscreen struct {
	supported bool
	enter     func() error
	exit      func() error
	active    bool
	entered   bool
}

// NewFullscreen builds the capability. A nil enter marks it unsupported.
func NewFullscreen(enter, exit func() error) *Fullscreen {
	return &Fullscreen{supported: enter != nil, enter: enter, exit: exit}
}

// Supported reports whether the client exposes a fullscreen API.
func (f *Fullscreen) Supported() bool { return f != nil && f.supported }

// Enter requests fullscreen. Success is confirmed later by a
// SignalFullscreenEnter.
func (f *Fullscreen) Enter() error {
	if !f.Supported() {
		return ErrFullscreenUnsupported
	}
	return f.enter()
}

// Exit leaves fullscreen if engaged.
func (f *Fullscreen) Exit() error {
	if !f.Supported() || !f.active {
		return nil
	}
	if f.exit == nil {
		return errors.New("fullscreen exit unavailable")
	}
	return f.exit()
}

// Active reports whether fullscreen is currently engaged.
func (f *Fullscreen) Active() bool { return f != nil && f.active }

// EverEntered reports whether fullscreen was successfully entered at least once.
func (f *Fullscreen) EverEntered() bool { return f != nil && f.entered }

func (f *Fullscreen) observe(active bool) {
	if f == nil {
		return
	}
	f.active = active
	if active {
		f.entered = true
	}
}
