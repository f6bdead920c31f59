package proctor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	live := !t.stopped && !t.fired
	t.stopped = true
	return live
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// next pops the earliest live timer due at or before target.
func (c *manualClock) next(target time.Time) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if len(c.timers) == 0 || c.timers[0].at.After(target) {
		return nil
	}
	t := c.timers[0]
	t.fired = true
	c.now = t.at
	return t
}

// advance moves time forward by d, firing due timers in order and running
// after once per fired timer.
func (c *manualClock) advance(d time.Duration, after func()) {
	target := c.Now().Add(d)
	for {
		t := c.next(target)
		if t == nil {
			break
		}
		t.fn()
		after()
	}
	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

type fakeView struct {
	loaders     []string
	hidden      int
	busy        []bool
	rendered    [][]Question
	interactive []bool
	progress    []Progress
	warnings    []Warning
	notices     []string
	errors      []string
	scores      []ScoreReport
	countdowns  []int
	statuses    []string
	rejected    []string
}

func (v *fakeView) ShowLoader(m string) { v.loaders = append(v.loaders, m) }
func (v *fakeView) HideLoader() { v.hidden++ }
func (v *fakeView) SetBusy(b bool) { v.busy = append(v.busy, b) }
func (v *fakeView) RenderQuestions(qs []Question) { v.rendered = append(v.rendered, qs) }
func (v *fakeView) SetInteractive(on bool) { v.interactive = append(v.interactive, on) }
func (v *fakeView) ShowProgress(p Progress) { v.progress = append(v.progress, p) }
func (v *fakeView) ShowWarning(w Warning) { v.warnings = append(v.warnings, w) }
func (v *fakeView) ShowNotice(m string) { v.notices = append(v.notices, m) }
func (v *fakeView) ShowError(m string, retry bool) { v.errors = append(v.errors, m) }
func (v *fakeView) ShowScore(r ScoreReport) { v.scores = append(v.scores, r) }
func (v *fakeView) ShowCountdown(s int) { v.countdowns = append(v.countdowns, s) }
func (v *fakeView) SetStatus(s string) { v.statuses = append(v.statuses, s) }
func (v *fakeView) Rejected(action string, err error) {
	v.rejected = append(v.rejected, action)
}

type fakeBackend struct {
	mu         sync.Mutex
	questions  []Question
	genErr     error
	genCalls   int
	saveErr    error
	saved      []MarksRequest
	recorded   []int
	violations []string
}

func (b *fakeBackend) GenerateQuestions(ctx context.Context, req GenerateRequest) ([]Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.genCalls++
	if b.genErr != nil {
		return nil, b.genErr
	}
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out, nil
}

func (b *fakeBackend) RecordAnswer(ctx context.Context, sess SessionContext, n int, letter string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorded = append(b.recorded, n)
	return nil
}

func (b *fakeBackend) SaveMarks(ctx context.Context, req MarksRequest) (*MarksReceipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, req)
	if b.saveErr != nil {
		return nil, b.saveErr
	}
	return &MarksReceipt{Obtained: req.Score, Total: req.Total, Saved: true}, nil
}

func (b *fakeBackend) ReportViolation(ctx context.Context, sess SessionContext, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.violations = append(b.violations, reason)
	return nil
}

type fakeNav struct {
	opener    bool
	refreshed int
	navigated []string
}

func (n *fakeNav) HasOpener() bool { return n.opener }
func (n *fakeNav) RefreshOpenerAndClose() { n.refreshed++ }
func (n *fakeNav) Navigate(url string) { n.navigated = append(n.navigated, url) }

type fakeListeners struct{ attached, detached int }

func (l *fakeListeners) Attach() { l.attached++ }
func (l *fakeListeners) Detach() { l.detached++ }

type eventLog struct{ events []Event }

func (l *eventLog) Observe(e Event) { l.events = append(l.events, e) }

func (l *eventLog) kinds(k EventKind) []Event {
	var out []Event
	for _, e := range l.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

const testHome = "https://lab.example.edu/home"

func sampleQuestions(n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{
			ID:     i + 1,
			Prompt: fmt.Sprintf("Question %d?", i+1),
			Options: map[string]string{
				"A": "first", "B": "second", "C": "third", "D": "fourth",
			},
			CorrectAnswer: "A",
			Explanation:   "A is right.",
		}
	}
	return qs
}

var errBackendDown = errors.New("connection refused")

type harness struct {
	t         *testing.T
	clock     *manualClock
	view      *fakeView
	backend   *fakeBackend
	nav       *fakeNav
	listeners *fakeListeners
	events    *eventLog
	fsEnter   int
	fsExit    int
	ctrl      *Controller

	// When deferGo is set, backend calls queue in bg until flush.
	deferGo bool
	bg      []func()
}

type harnessOption func(*harness, *Options)

func withDeferredCalls() harnessOption {
	return func(h *harness, _ *Options) { h.deferGo = true }
}

func withProgressive() harnessOption {
	return func(_ *harness, o *Options) { o.Progressive = true }
}

func withSession(s SessionContext) harnessOption {
	return func(_ *harness, o *Options) { o.Session = s }
}

func newHarness(t *testing.T, questions []Question, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		clock:     newManualClock(),
		view:      &fakeView{},
		backend:   &fakeBackend{questions: questions},
		nav:       &fakeNav{},
		listeners: &fakeListeners{},
		events:    &eventLog{},
	}
	o := Options{
		Session: SessionContext{
			AttemptID:      "att-1",
			ExperimentID:   "exp-42",
			ExperimentName: "Ohm's Law",
			Topic:          "resistance",
			SessionID:      "sess-9",
			VivaSessionID:  "viva-3",
		},
		Backend:   h.backend,
		View:      h.view,
		Listeners: h.listeners,
		Navigator: h.nav,
		Fullscreen: NewFullscreen(
			func() error { h.fsEnter++; return nil },
			func() error { h.fsExit++; return nil },
		),
		Observer: h.events,
		Clock:    h.clock,
		Log:      zerolog.Nop(),
		HomeURL:  testHome,
	}
	for _, fn := range opts {
		fn(h, &o)
	}
	o.Go = func(fn func()) {
		if h.deferGo {
			h.bg = append(h.bg, fn)
			return
		}
		fn()
	}
	h.ctrl = New(o)
	return h
}

func (h *harness) drain() { h.ctrl.drain() }

func (h *harness) advance(d time.Duration) { h.clock.advance(d, h.ctrl.drain) }

// flush runs queued backend calls and processes their completions.
func (h *harness) flush() {
	for len(h.bg) > 0 {
		fn := h.bg[0]
		h.bg = h.bg[1:]
		fn()
		h.drain()
	}
}

func (h *harness) state() State { return h.ctrl.state }

// startExam runs LOADING through IN_PROGRESS.
func (h *harness) startExam() {
	h.t.Helper()
	h.ctrl.Start()
	h.drain()
	h.flush()
	if h.state() != StateInProgress {
		h.t.Fatalf("expected IN_PROGRESS after start, got %s", h.state())
	}
}

func (h *harness) answerAll(letter string) {
	for _, id := range QuestionIDs(h.ctrl.questions) {
		if err := h.ctrl.answer(id, letter); err != nil {
			h.t.Fatalf("answer %d: %v", id, err)
		}
	}
	h.drain()
}

func (h *harness) signal(kind SignalKind) Verdict {
	v := h.ctrl.dispatch(Signal{Kind: kind})
	h.drain()
	return v
}

func (h *harness) key(k KeyCombo) Verdict {
	v := h.ctrl.dispatch(Signal{Kind: SignalKey, Key: k})
	h.drain()
	return v
}

func (h *harness) visited() []State {
	out := []State{StateLoading}
	for _, s := range h.ctrl.history {
		out = append(out, s.To)
	}
	return out
}
