package websocket

import "github.com/stemsi/exstem-viva/internal/proctor"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionHello  Action = "hello"
	ActionSignal Action = "signal"
	ActionAnswer Action = "answer"
	ActionSubmit Action = "submit"
	ActionResume Action = "resume"
	ActionRetry  Action = "retry"
	ActionExit   Action = "exit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// HelloRequest opens the stream and reports client capabilities.
type HelloRequest struct {
	Action     Action `json:"action"`
	Fullscreen bool   `json:"fullscreen"`
	HasOpener  bool   `json:"has_opener"`
}

// SignalRequest forwards one raw browser event.
type SignalRequest struct {
	Action Action             `json:"action"`
	Kind   proctor.SignalKind `json:"kind" validate:"required,max=32"`
	Key    proctor.KeyCombo   `json:"key"`
}

// Signal converts the request for Controller.Dispatch.
func (r SignalRequest) Signal() proctor.Signal {
	return proctor.Signal{Kind: r.Kind, Key: r.Key}
}

// AnswerRequest records a selection.
type AnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID int    `json:"question_id" validate:"required,min=1"`
	Choice     string `json:"choice" validate:"required,oneof=A B C D"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventLoading         Event = "loading"
	EventHideLoader      Event = "hide_loader"
	EventBusy            Event = "busy"
	EventRenderQuestions Event = "render_questions"
	EventInteractive     Event = "interactive"
	EventProgress        Event = "progress"
	EventMonitorInstall  Event = "monitor_install"
	EventMonitorRemove   Event = "monitor_remove"
	EventWarning         Event = "warning"
	EventNotice          Event = "notice"
	EventError           Event = "error"
	EventScore           Event = "score"
	EventCountdown       Event = "countdown"
	EventStatus          Event = "status"
	EventFullscreenEnter Event = "fullscreen_enter"
	EventFullscreenExit  Event = "fullscreen_exit"
	EventRedirect        Event = "redirect"
	EventRejected        Event = "rejected"
	EventPong            Event = "pong"
)

// Message is the frame every server event is sent in.
type Message struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

type BusyPayload struct {
	Busy bool `json:"busy"`
}

type InteractivePayload struct {
	On bool `json:"on"`
}

type QuestionsPayload struct {
	Questions []proctor.Question `json:"questions"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type CountdownPayload struct {
	Seconds int `json:"seconds"`
}

type RejectedPayload struct {
	Action string `json:"action"`
	Error  string `json:"error"`
}

// Redirect modes.
const (
	RedirectOpener   = "opener"
	RedirectNavigate = "navigate"
)

type RedirectPayload struct {
	Mode string `json:"mode"`
	URL  string `json:"url,omitempty"`
}
