package proctor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Messages rotated on the loader while questions are generated.
var loaderMessages = []string{
	"Generating questions for your experiment...",
	"Preparing a unique question set for you...",
	"Almost ready, checking the questions...",
}

func (c *Controller) enterState(s State) {
	switch s {
	case StateGenerating:
		c.enterGenerating()
	case StateQuestionsReady:
		c.enterQuestionsReady()
	case StateInProgress:
		c.view.SetInteractive(true)
		c.view.ShowProgress(c.answers.Progress())
	case StateSubmitted:
		c.locked = true
		c.setScore(Score(c.questions, c.answers))
		_ = c.transition(StateShowingScore)
	case StateTerminated:
		c.locked = true
		c.blocked = true
		c.violations.seal()
		c.setScore(ZeroScore(len(c.questions)))
		_ = c.transition(StateShowingScore)
	case StateShowingScore:
		c.enterShowingScore()
	case StateWritingMarks:
		c.writeMarks()
	case StateRedirecting:
		c.enterRedirecting()
	case StateError:
		c.view.ShowError(errorMessage(c.lastErr), true)
	}
}

func (c *Controller) exitState(s State) {
	switch s {
	case StateGenerating:
		if c.cancelFetch != nil {
			c.cancelFetch()
			c.cancelFetch = nil
		}
		c.view.HideLoader()
		c.setBusy(false)
	case StateInProgress:
		c.answers.Freeze()
		c.violations.seal()
		c.view.SetInteractive(false)
	}
	c.sched.ClearOwner(s)
}

func (c *Controller) setBusy(b bool) {
	c.busy = b
	c.view.SetBusy(b)
}

// setScore stores the result once; later calls are ignored.
func (c *Controller) setScore(r ScoreResult) bool {
	if c.score != nil {
		c.log.Warn().Msg("Score already computed, ignoring recomputation")
		return false
	}
	c.score = &r
	c.publish()
	return true
}

func (c *Controller) enterGenerating() {
	c.generation++
	gen := c.generation
	c.lastErr = nil
	c.loaderIdx = 0

	c.setBusy(true)
	c.view.ShowLoader(loaderMessages[0])
	c.sched.Every(StateGenerating, c.timing.LoaderRotate, func() bool {
		c.loaderIdx = (c.loaderIdx + 1) % len(loaderMessages)
		c.view.ShowLoader(loaderMessages[c.loaderIdx])
		return true
	})

	if !c.sess.Valid() {
		c.loadFailed(gen, errMissingSession)
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel
	c.sched.After(StateGenerating, c.timing.GenerateTimeout, func() {
		cancel()
		c.loadFailed(gen, ErrGenerateTimeout)
	})

	req := GenerateRequest{
		ExperimentID:   c.sess.ExperimentID,
		Topic:          c.sess.Topic,
		StudentSession: c.sess.SessionID,
	}
	var questions []Question
	c.call(func() error {
		var err error
		questions, err = c.backend.GenerateQuestions(ctx, req)
		return err
	}, func(err error) {
		c.loaded(gen, questions, err)
	})
}

func (c *Controller) loaded(gen int, raw []Question, err error) {
	if gen != c.generation || c.state != StateGenerating {
		return
	}
	if err != nil {
		if !errors.Is(err, ErrNetwork) {
			err = fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		c.loadFailed(gen, err)
		return
	}

	valid, dropped := SanitizeQuestions(raw)
	if dropped > 0 {
		c.log.Warn().Int("dropped", dropped).Int("kept", len(valid)).Msg("Discarded invalid generated questions")
	}
	if len(valid) == 0 {
		c.loadFailed(gen, ErrLoadValidation)
		return
	}

	c.questions = valid
	c.answers = NewAnswerRecord(QuestionIDs(valid))
	c.log.Info().Int("questions", len(valid)).Msg("Questions loaded")
	_ = c.transition(StateQuestionsReady)
}

func (c *Controller) loadFailed(gen int, err error) {
	if gen != c.generation || c.state != StateGenerating {
		return
	}
	c.lastErr = err
	c.log.Error().Err(err).Msg("Question load failed")
	c.emit(Event{Kind: EventLoadFailed, Error: err.Error()})
	_ = c.transition(StateError)
}

func (c *Controller) enterQuestionsReady() {
	public := make([]Question, len(c.questions))
	for i, q := range c.questions {
		public[i] = q.Public()
	}
	c.view.RenderQuestions(public)
	c.rendered = true
	c.securityArmed = true
	c.monitor.Install()
	if err := c.fs.Enter(); err != nil {
		c.log.Debug().Err(err).Msg("Fullscreen request failed")
	}
	_ = c.transition(StateInProgress)
}

func (c *Controller) enterShowingScore() {
	reveal := c.timing.ScoreReveal
	c.revealDeadline = c.clock.Now().Add(reveal)

	report := ScoreReport{
		Score:      *c.score,
		Tier:       c.score.Tier(),
		Terminated: c.blocked,
		Reason:     c.termReason,
		RevealMS:   reveal.Milliseconds(),
	}
	c.view.ShowScore(report)
	c.view.ShowCountdown(ceilSeconds(reveal))

	// Cosmetic only; the one-shot below is the sole trigger.
	c.sched.Every(StateShowingScore, c.timing.CountdownTick, func() bool {
		left := ceilSeconds(c.revealDeadline.Sub(c.clock.Now()))
		c.view.ShowCountdown(left)
		return left > 0
	})
	c.sched.After(StateShowingScore, reveal, func() {
		_ = c.transition(StateWritingMarks)
	})
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func errorMessage(err error) string {
	switch {
	case err == nil:
		return "Something went wrong while preparing your exam."
	case errors.Is(err, ErrGenerateTimeout):
		return "Generating questions took too long. Please retry."
	case errors.Is(err, ErrLoadValidation):
		return "No valid questions could be generated. Please retry."
	case errors.Is(err, ErrNetwork):
		return "Could not reach the question service. Please retry."
	default:
		return err.Error()
	}
}
