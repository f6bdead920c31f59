package proctor

import "errors"

var errMissingSession = errors.New("session identifiers are missing")

func (c *Controller) start() error {
	if c.state != StateLoading {
		return &TransitionError{From: c.state, To: StateGenerating}
	}
	if !c.sess.Valid() {
		c.lastErr = errMissingSession
		return c.transition(StateError)
	}
	return c.transition(StateGenerating)
}

func (c *Controller) interactive() bool {
	return c.state == StateInProgress && !c.busy && !c.locked
}

func (c *Controller) answer(questionID int, letter string) error {
	if !c.interactive() {
		c.view.Rejected("answer", ErrNotInteractive)
		return ErrNotInteractive
	}
	q, ok := c.question(questionID)
	if !ok {
		c.view.Rejected("answer", ErrUnknownQuestion)
		return ErrUnknownQuestion
	}
	if !q.HasOption(letter) {
		c.view.Rejected("answer", ErrInvalidChoice)
		return ErrInvalidChoice
	}
	if err := c.answers.Record(questionID, letter); err != nil {
		c.view.Rejected("answer", err)
		return err
	}
	c.view.ShowProgress(c.answers.Progress())
	c.publish()

	if c.progress {
		sess := c.sess
		c.call(func() error {
			return c.backend.RecordAnswer(c.ctx, sess, questionID, letter)
		}, func(err error) {
			if err != nil {
				c.log.Warn().Err(err).Int("question", questionID).Msg("Progressive answer save failed")
			}
		})
	}
	return nil
}

func (c *Controller) question(id int) (Question, bool) {
	for _, q := range c.questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

func (c *Controller) submit() error {
	if !c.interactive() {
		err := error(&TransitionError{From: c.state, To: StateSubmitted})
		if c.state == StateInProgress {
			err = ErrNotInteractive
		}
		c.view.Rejected("submit", err)
		return err
	}
	if n := c.answers.Unanswered(); n > 0 {
		err := &IncompleteError{Unanswered: n, Total: c.answers.Total()}
		c.view.Rejected("submit", err)
		return err
	}
	return c.transition(StateSubmitted)
}

func (c *Controller) dispatch(sig Signal) Verdict {
	if !sig.Kind.Known() {
		c.log.Debug().Str("kind", string(sig.Kind)).Msg("Ignoring unknown signal")
		return Verdict{}
	}
	return c.monitor.Handle(sig)
}

func (c *Controller) resume() {
	if !c.securityActive() {
		return
	}
	if err := c.fs.Enter(); err != nil {
		c.log.Debug().Err(err).Msg("Fullscreen re-request failed")
	}
}

func (c *Controller) warnViolation(w Warning) {
	c.log.Info().Str("reason", w.Reason).Int("count", w.Count).Msg("Violation warning")
	c.emit(Event{Kind: EventViolation, Reason: w.Reason, Count: w.Count})
	c.publish()
	c.view.ShowWarning(w)
}

func (c *Controller) terminateForViolation(reason string, count int) {
	c.log.Info().Str("reason", reason).Int("count", count).Msg("Violation threshold reached, terminating")
	c.emit(Event{Kind: EventViolation, Reason: reason, Count: count})
	c.termReason = reason

	sess := c.sess
	c.call(func() error {
		return c.backend.ReportViolation(c.ctx, sess, reason)
	}, func(err error) {
		if err != nil {
			c.log.Warn().Err(err).Msg("Violation report failed")
		}
	})
	_ = c.transition(StateTerminated)
}

func (c *Controller) recordNudge(msg string) {
	c.emit(Event{Kind: EventNudge, Reason: msg})
}
