package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-viva/internal/proctor"
)

var errSessionClosed = errors.New("websocket session closed")

// Session renders one attempt onto a websocket connection. It implements
// proctor.View, proctor.Listeners and proctor.Navigator. Writes come from
// both the controller loop and the read loop, so they are serialized.
type Session struct {
	mu     sync.Mutex
	conn   Writer
	hello  HelloRequest
	closed bool
	log    zerolog.Logger
}

var (
	_ proctor.View      = (*Session)(nil)
	_ proctor.Listeners = (*Session)(nil)
	_ proctor.Navigator = (*Session)(nil)
)

// NewSession wraps conn with the capabilities reported in hello.
func NewSession(conn Writer, hello HelloRequest, log zerolog.Logger) *Session {
	return &Session{conn: conn, hello: hello, log: log}
}

// Send writes one event frame. Failures are logged once and mark the
// session closed; later sends are dropped.
func (s *Session) Send(event Event, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	if err := WriteJSON(s.conn, event, data); err != nil {
		s.closed = true
		s.log.Debug().Err(err).Str("event", string(event)).Msg("Write failed, session closed")
		return err
	}
	return nil
}

// Close stops further writes.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Fullscreen resolves the capability object once from the hello frame.
func (s *Session) Fullscreen() *proctor.Fullscreen {
	if !s.hello.Fullscreen {
		return proctor.NewFullscreen(nil, nil)
	}
	return proctor.NewFullscreen(
		func() error { return s.Send(EventFullscreenEnter, nil) },
		func() error { return s.Send(EventFullscreenExit, nil) },
	)
}

// Pong answers a ping.
func (s *Session) Pong() { _ = s.Send(EventPong, nil) }

func (s *Session) ShowLoader(message string) {
	_ = s.Send(EventLoading, MessagePayload{Message: message})
}

func (s *Session) HideLoader() { _ = s.Send(EventHideLoader, nil) }

func (s *Session) SetBusy(busy bool) { _ = s.Send(EventBusy, BusyPayload{Busy: busy}) }

// RenderQuestions sends the set without its answer key.
func (s *Session) RenderQuestions(questions []proctor.Question) {
	public := make([]proctor.Question, len(questions))
	for i, q := range questions {
		public[i] = q.Public()
	}
	_ = s.Send(EventRenderQuestions, QuestionsPayload{Questions: public})
}

func (s *Session) SetInteractive(on bool) {
	_ = s.Send(EventInteractive, InteractivePayload{On: on})
}

func (s *Session) ShowProgress(p proctor.Progress) { _ = s.Send(EventProgress, p) }

func (s *Session) ShowWarning(w proctor.Warning) { _ = s.Send(EventWarning, w) }

func (s *Session) ShowNotice(message string) {
	_ = s.Send(EventNotice, MessagePayload{Message: message})
}

func (s *Session) ShowError(message string, retryable bool) {
	_ = s.Send(EventError, ErrorPayload{Message: message, Retryable: retryable})
}

func (s *Session) ShowScore(r proctor.ScoreReport) { _ = s.Send(EventScore, r) }

func (s *Session) ShowCountdown(seconds int) {
	_ = s.Send(EventCountdown, CountdownPayload{Seconds: seconds})
}

func (s *Session) SetStatus(text string) {
	_ = s.Send(EventStatus, MessagePayload{Message: text})
}

func (s *Session) Rejected(action string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_ = s.Send(EventRejected, RejectedPayload{Action: action, Error: msg})
}

// Attach tells the client to install its event hooks.
func (s *Session) Attach() { _ = s.Send(EventMonitorInstall, nil) }

// Detach tells the client to remove them.
func (s *Session) Detach() { _ = s.Send(EventMonitorRemove, nil) }

func (s *Session) HasOpener() bool { return s.hello.HasOpener }

func (s *Session) RefreshOpenerAndClose() {
	_ = s.Send(EventRedirect, RedirectPayload{Mode: RedirectOpener})
}

func (s *Session) Navigate(url string) {
	_ = s.Send(EventRedirect, RedirectPayload{Mode: RedirectNavigate, URL: url})
}
