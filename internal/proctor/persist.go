package proctor

import (
	"context"
	"fmt"
	"time"
)

// Status lines shown passively while and after marks are written.
const (
	StatusSaving     = "Saving your marks..."
	StatusSaved      = "Marks saved."
	StatusSaveFailed = "Marks could not be saved. Your instructor will reconcile them."
)

// marksWriteTimeout bounds the marks write. The write is detached from the
// attempt context so a disconnect mid-write does not abort it.
const marksWriteTimeout = 15 * time.Second

func (c *Controller) marksRequest() MarksRequest {
	req := MarksRequest{
		ExperimentID:   c.sess.ExperimentID,
		ExperimentName: c.sess.ExperimentName,
		SessionID:      c.sess.SessionID,
		VivaSessionID:  c.sess.VivaSessionID,
		Terminated:     c.blocked,
	}
	if c.answers != nil {
		req.Answers = c.answers.Snapshot()
	}
	if c.score != nil {
		req.Score = c.score.Correct
		req.Total = c.score.Total
	}
	return req
}

// writeMarks issues the single marks write. The attempted flag is set before
// the call, so a duplicate invocation is a no-op and returns false.
func (c *Controller) writeMarks() bool {
	if c.writeAttempted {
		c.log.Warn().Msg("Duplicate marks write suppressed")
		return false
	}
	c.writeAttempted = true

	req := c.marksRequest()
	c.setBusy(true)
	c.view.SetStatus(StatusSaving)

	var receipt *MarksReceipt
	c.call(func() error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), marksWriteTimeout)
		defer cancel()
		var err error
		receipt, err = c.backend.SaveMarks(ctx, req)
		return err
	}, func(err error) {
		c.marksWritten(receipt, err)
	})
	return true
}

func (c *Controller) marksWritten(receipt *MarksReceipt, err error) {
	c.setBusy(false)
	if err != nil {
		c.marksErr = fmt.Errorf("%w: %v", ErrPersistence, err)
		c.log.Error().Err(err).Msg("Marks write failed")
		c.emit(Event{Kind: EventMarksFailed, Error: err.Error(), Score: c.score})
		c.view.SetStatus(StatusSaveFailed)
	} else {
		ev := c.log.Info()
		if receipt != nil {
			ev = ev.Int("obtained", receipt.Obtained).Int("total", receipt.Total).Bool("saved", receipt.Saved)
		}
		ev.Msg("Marks written")
		c.emit(Event{Kind: EventMarksSaved, Score: c.score})
		c.view.SetStatus(StatusSaved)
	}

	if c.state == StateWritingMarks {
		_ = c.transition(StateRedirecting)
	}
}
