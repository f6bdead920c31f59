package proctor

import "context"

// teardown removes listeners, clears every timer and leaves fullscreen. It is
// safe to run more than once.
func (c *Controller) teardown() {
	c.monitor.Remove()
	c.sched.ClearAll()
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	if c.fs.Active() {
		func() {
			defer func() { _ = recover() }()
			if err := c.fs.Exit(); err != nil {
				c.log.Debug().Err(err).Msg("Fullscreen exit failed")
			}
		}()
	}
}

func (c *Controller) enterRedirecting() {
	c.teardown()
	c.sched.After(StateRedirecting, c.timing.RedirectGrace, func() {
		defer c.finish()
		if c.nav == nil {
			return
		}
		if c.nav.HasOpener() {
			c.nav.RefreshOpenerAndClose()
			return
		}
		c.nav.Navigate(c.homeURL)
	})
}

func (c *Controller) finish() {
	if c.finished {
		return
	}
	c.sched.ClearAll()
	c.finished = true
	c.log.Info().Msg("Attempt finished")
	c.emit(Event{Kind: EventFinished, Score: c.score})
	c.publish()
	close(c.done)
}

// abandon runs when the loop is cancelled before the attempt finished, for
// example when the client disconnects. A computed but unwritten score is
// still written once; the result is only logged since the loop is gone.
func (c *Controller) abandon() {
	if c.finished {
		return
	}
	c.log.Warn().Str("state", string(c.state)).Msg("Attempt abandoned before redirect")
	c.teardown()
	c.publish()
	if c.score == nil || c.writeAttempted {
		return
	}
	c.writeAttempted = true
	req := c.marksRequest()
	log := c.log
	c.goFn(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), marksWriteTimeout)
		defer cancel()
		if _, err := c.backend.SaveMarks(ctx, req); err != nil {
			log.Error().Err(err).Msg("Marks write after abandon failed")
			return
		}
		log.Info().Int("score", req.Score).Int("total", req.Total).Msg("Marks written after abandon")
	})
}
