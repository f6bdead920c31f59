package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stemsi/exstem-viva/internal/proctor"
	"github.com/stretchr/testify/assert"
)

func TestObserverCounts(t *testing.T) {
	var o Observer
	startedBefore := testutil.ToFloat64(attemptsStarted)
	termBefore := testutil.ToFloat64(terminations)
	tabBefore := testutil.ToFloat64(violations.WithLabelValues(proctor.ReasonTabHidden))
	failedBefore := testutil.ToFloat64(marksWrites.WithLabelValues("failed"))

	o.Observe(proctor.Event{Kind: proctor.EventTransition, From: proctor.StateLoading, To: proctor.StateGenerating})
	o.Observe(proctor.Event{Kind: proctor.EventTransition, From: proctor.StateError, To: proctor.StateGenerating})
	o.Observe(proctor.Event{Kind: proctor.EventTransition, From: proctor.StateInProgress, To: proctor.StateTerminated})
	o.Observe(proctor.Event{Kind: proctor.EventViolation, Reason: proctor.ReasonTabHidden})
	o.Observe(proctor.Event{Kind: proctor.EventMarksFailed})

	assert.Equal(t, startedBefore+1, testutil.ToFloat64(attemptsStarted), "retries are not new attempts")
	assert.Equal(t, termBefore+1, testutil.ToFloat64(terminations))
	assert.Equal(t, tabBefore+1, testutil.ToFloat64(violations.WithLabelValues(proctor.ReasonTabHidden)))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(marksWrites.WithLabelValues("failed")))
}

func TestConnected(t *testing.T) {
	before := testutil.ToFloat64(attemptsActive)
	release := Connected()
	assert.Equal(t, before+1, testutil.ToFloat64(attemptsActive))
	release()
	assert.Equal(t, before, testutil.ToFloat64(attemptsActive))
}
