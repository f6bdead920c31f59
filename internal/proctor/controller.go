package proctor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Timing groups every duration the lifecycle depends on.
type Timing struct {
	GenerateTimeout time.Duration
	ScoreReveal     time.Duration
	CountdownTick   time.Duration
	RedirectGrace   time.Duration
	BlurDebounce    time.Duration
	LoaderRotate    time.Duration
}

// DefaultTiming returns the production durations.
func DefaultTiming() Timing {
	return Timing{
		GenerateTimeout: 60 * time.Second,
		ScoreReveal:     10 * time.Second,
		CountdownTick:   time.Second,
		RedirectGrace:   500 * time.Millisecond,
		BlurDebounce:    DefaultBlurDebounce,
		LoaderRotate:    3 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.GenerateTimeout <= 0 {
		t.GenerateTimeout = d.GenerateTimeout
	}
	if t.ScoreReveal <= 0 {
		t.ScoreReveal = d.ScoreReveal
	}
	if t.CountdownTick <= 0 {
		t.CountdownTick = d.CountdownTick
	}
	if t.RedirectGrace <= 0 {
		t.RedirectGrace = d.RedirectGrace
	}
	if t.BlurDebounce <= 0 {
		t.BlurDebounce = d.BlurDebounce
	}
	if t.LoaderRotate <= 0 {
		t.LoaderRotate = d.LoaderRotate
	}
	return t
}

// Options configures a Controller.
type Options struct {
	Session    SessionContext
	Backend    Backend
	View       View
	Listeners  Listeners
	Navigator  Navigator
	Fullscreen *Fullscreen
	Observer   Observer
	Clock      Clock
	Log        zerolog.Logger
	Timing     Timing
	Threshold  int
	HomeURL    string

	// Progressive forwards every selection to the record-answer endpoint.
	Progressive bool

	// Go runs blocking backend calls off the loop. Defaults to a goroutine.
	Go func(func())
}

// Snapshot is a read-only view of an attempt, safe to read from any goroutine.
type Snapshot struct {
	Session    SessionContext `json:"session"`
	State      State          `json:"state"`
	Answered   int            `json:"answered"`
	Total      int            `json:"total"`
	Violations int            `json:"violations"`
	Score      *ScoreResult   `json:"score,omitempty"`
	Finished   bool           `json:"finished"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Controller owns one exam attempt. All of its state is mutated on a single
// loop goroutine (Run); the exported action methods only enqueue work.
type Controller struct {
	sess     SessionContext
	backend  Backend
	view     View
	nav      Navigator
	fs       *Fullscreen
	observer Observer
	clock    Clock
	log      zerolog.Logger
	timing   Timing
	homeURL  string
	progress bool
	goFn     func(func())

	sched      *Scheduler
	monitor    *Monitor
	escalator  *Escalator
	violations ViolationLog

	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	finished bool

	state    State
	history  []Step
	pending  []State
	draining bool

	questions     []Question
	answers       *AnswerRecord
	rendered      bool
	securityArmed bool
	locked        bool
	blocked       bool
	busy          bool
	score         *ScoreResult
	termReason    string
	lastErr       error

	generation  int
	cancelFetch context.CancelFunc
	loaderIdx   int

	writeAttempted bool
	marksErr       error
	revealDeadline time.Time

	snap atomic.Pointer[Snapshot]
}

// New builds a controller in the LOADING state.
func New(opts Options) *Controller {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	goFn := opts.Go
	if goFn == nil {
		goFn = func(fn func()) { go fn() }
	}
	fs := opts.Fullscreen
	if fs == nil {
		fs = NewFullscreen(nil, nil)
	}
	observer := opts.Observer
	if observer == nil {
		observer = Observers(nil)
	}

	c := &Controller{
		sess:     opts.Session,
		backend:  opts.Backend,
		view:     opts.View,
		nav:      opts.Navigator,
		fs:       fs,
		observer: observer,
		clock:    clock,
		timing:   opts.Timing.withDefaults(),
		homeURL:  opts.HomeURL,
		progress: opts.Progressive,
		goFn:     goFn,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		state:    StateLoading,
	}
	c.log = opts.Log.With().
		Str("component", "proctor").
		Str("attempt_id", opts.Session.AttemptID).
		Str("session_id", opts.Session.SessionID).
		Str("experiment_id", opts.Session.ExperimentID).
		Logger()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.sched = newScheduler(clock, c.post)
	c.escalator = newEscalator(&c.violations, opts.Threshold, clock.Now, c.warnViolation, c.terminateForViolation)
	c.monitor = &Monitor{
		active:    c.securityActive,
		escalator: c.escalator,
		sched:     c.sched,
		listeners: opts.Listeners,
		fs:        fs,
		notice:    c.view.ShowNotice,
		nudged:    c.recordNudge,
		debounce:  c.timing.BlurDebounce,
	}
	c.publish()
	return c
}

// Run drives the loop until the attempt finishes or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()
	defer c.cancel()

	for {
		c.drain()
		select {
		case <-c.done:
			return nil
		case <-c.ctx.Done():
			c.post(c.abandon)
			c.drain()
			return c.ctx.Err()
		case <-c.wake:
		}
	}
}

// Done is closed once the final navigation has been issued.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Snapshot returns the latest published view of the attempt.
func (c *Controller) Snapshot() Snapshot { return *c.snap.Load() }

// Start moves LOADING -> GENERATING.
func (c *Controller) Start() { c.post(func() { _ = c.start() }) }

// Answer records a selection.
func (c *Controller) Answer(questionID int, letter string) {
	c.post(func() { _ = c.answer(questionID, letter) })
}

// Submit requests IN_PROGRESS -> SUBMITTED.
func (c *Controller) Submit() { c.post(func() { _ = c.submit() }) }

// Dispatch delivers one client signal to the security monitor.
func (c *Controller) Dispatch(sig Signal) { c.post(func() { c.dispatch(sig) }) }

// Resume dismisses a warning and re-requests fullscreen.
func (c *Controller) Resume() { c.post(c.resume) }

// Retry re-enters GENERATING from ERROR.
func (c *Controller) Retry() { c.post(func() { _ = c.transition(StateGenerating) }) }

// Exit leaves ERROR for REDIRECTING.
func (c *Controller) Exit() { c.post(func() { _ = c.transition(StateRedirecting) }) }

func (c *Controller) post(fn func()) {
	c.mu.Lock()
	c.tasks = append(c.tasks, fn)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) drain() {
	for {
		c.mu.Lock()
		tasks := c.tasks
		c.tasks = nil
		c.mu.Unlock()
		if len(tasks) == 0 {
			return
		}
		for _, t := range tasks {
			c.safely(t)
		}
	}
}

func (c *Controller) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("state", string(c.state)).Msg("Recovered panic in controller task")
		}
	}()
	fn()
}

// call runs fn off the loop and posts done with its result. A panic in fn
// becomes an ErrNetwork so the lifecycle never stalls waiting for it.
func (c *Controller) call(fn func() error, done func(error)) {
	c.goFn(func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrNetwork, r)
			}
			if done != nil {
				c.post(func() { done(err) })
			}
		}()
		err = fn()
	})
}

// transition queues a move and, unless a drain is already running, applies
// queued moves in order. Entry handlers that chain only enqueue; the outer
// drain picks them up, so the call stack never grows with the chain.
func (c *Controller) transition(to State) error {
	c.pending = append(c.pending, to)
	if c.draining {
		return nil
	}
	c.draining = true
	defer func() { c.draining = false }()

	var first error
	for i := 0; len(c.pending) > 0; i++ {
		next := c.pending[0]
		c.pending = c.pending[1:]
		if err := c.apply(next); err != nil && i == 0 {
			first = err
		}
	}
	return first
}

func (c *Controller) apply(to State) error {
	from := c.state
	if !CanTransition(from, to) {
		err := &TransitionError{From: from, To: to}
		c.log.Warn().Str("from", string(from)).Str("to", string(to)).Msg("Transition rejected")
		c.emit(Event{Kind: EventRejected, From: from, To: to, Error: err.Error()})
		return err
	}
	if to == StateSubmitted {
		if n := c.answers.Unanswered(); n > 0 {
			err := &IncompleteError{Unanswered: n, Total: c.answers.Total()}
			c.log.Info().Int("unanswered", n).Msg("Submission rejected")
			return err
		}
	}

	c.exitState(from)
	c.state = to
	c.history = append(c.history, Step{From: from, To: to, At: c.clock.Now()})
	c.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("Transition")
	c.emit(Event{Kind: EventTransition, From: from, To: to})
	c.publish()
	c.enterState(to)
	return nil
}

// securityActive is the monitor's activation predicate.
func (c *Controller) securityActive() bool {
	return c.rendered && c.securityArmed && c.state == StateInProgress && !c.blocked
}

func (c *Controller) emit(e Event) {
	e.Session = c.sess
	if e.At.IsZero() {
		e.At = c.clock.Now()
	}
	c.observer.Observe(e)
}

func (c *Controller) publish() {
	s := &Snapshot{
		Session:    c.sess,
		State:      c.state,
		Violations: c.violations.Count(),
		Finished:   c.finished,
		UpdatedAt:  c.clock.Now(),
	}
	if c.answers != nil {
		s.Answered = c.answers.Answered()
		s.Total = c.answers.Total()
	}
	if c.score != nil {
		sc := *c.score
		s.Score = &sc
	}
	c.snap.Store(s)
}
