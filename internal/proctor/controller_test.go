package proctor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_HappyPath(t *testing.T) {
	h := newHarness(t, sampleQuestions(3))
	h.startExam()

	require.Len(t, h.view.rendered, 1)
	for _, q := range h.view.rendered[0] {
		assert.Empty(t, q.CorrectAnswer, "answer key must not reach the learner")
	}
	assert.Equal(t, 1, h.listeners.attached)
	assert.Equal(t, 1, h.fsEnter)

	require.NoError(t, h.ctrl.answer(1, "A"))
	require.NoError(t, h.ctrl.answer(2, "B"))
	require.NoError(t, h.ctrl.answer(3, "A"))
	h.drain()
	require.NoError(t, h.ctrl.submit())
	h.drain()

	assert.Equal(t, StateShowingScore, h.state())
	require.Len(t, h.view.scores, 1)
	report := h.view.scores[0]
	assert.Equal(t, ScoreResult{Correct: 2, Total: 3, Percentage: 67}, report.Score)
	assert.Equal(t, TierMedium, report.Tier)
	assert.False(t, report.Terminated)
	assert.Equal(t, []int{10}, h.view.countdowns)
	assert.Empty(t, h.backend.saved, "marks must wait for the reveal window")

	h.advance(10 * time.Second)
	require.Len(t, h.backend.saved, 1)
	saved := h.backend.saved[0]
	assert.Equal(t, map[string]string{"1": "A", "2": "B", "3": "A"}, saved.Answers)
	assert.Equal(t, 2, saved.Score)
	assert.Equal(t, 3, saved.Total)
	assert.Equal(t, "exp-42", saved.ExperimentID)
	assert.Equal(t, "viva-3", saved.VivaSessionID)
	assert.Equal(t, StateRedirecting, h.state())
	assert.Contains(t, h.view.statuses, StatusSaved)

	h.advance(500 * time.Millisecond)
	assert.Equal(t, []string{testHome}, h.nav.navigated)
	assert.True(t, h.ctrl.finished)
	assert.Zero(t, h.ctrl.sched.Pending())
	assert.Equal(t, 1, h.listeners.detached)

	select {
	case <-h.ctrl.Done():
	default:
		t.Fatal("done channel not closed")
	}

	assert.Equal(t, []State{
		StateLoading, StateGenerating, StateQuestionsReady, StateInProgress,
		StateSubmitted, StateShowingScore, StateWritingMarks, StateRedirecting,
	}, h.visited())
	assert.Len(t, h.events.kinds(EventFinished), 1)
}

func TestController_CountdownTicksToZero(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	h.startExam()
	h.answerAll("A")
	require.NoError(t, h.ctrl.submit())
	h.drain()

	h.advance(9 * time.Second)
	assert.Equal(t, []int{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, h.view.countdowns)
	assert.Equal(t, StateShowingScore, h.state())

	h.advance(time.Second)
	assert.Equal(t, StateRedirecting, h.state())
}

func TestController_SubmitIncompleteIsRejected(t *testing.T) {
	h := newHarness(t, sampleQuestions(3))
	h.startExam()
	require.NoError(t, h.ctrl.answer(2, "C"))

	err := h.ctrl.submit()
	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, 2, inc.Unanswered)
	assert.Equal(t, 3, inc.Total)
	assert.True(t, IsRejection(err))
	assert.Equal(t, StateInProgress, h.state())
	assert.Equal(t, []string{"submit"}, h.view.rejected)
	assert.Nil(t, h.ctrl.score)
}

func TestController_AnswerValidation(t *testing.T) {
	h := newHarness(t, sampleQuestions(2))

	assert.ErrorIs(t, h.ctrl.answer(1, "A"), ErrNotInteractive)

	h.startExam()
	assert.ErrorIs(t, h.ctrl.answer(99, "A"), ErrUnknownQuestion)
	assert.ErrorIs(t, h.ctrl.answer(1, "E"), ErrInvalidChoice)

	require.NoError(t, h.ctrl.answer(1, "B"))
	require.NoError(t, h.ctrl.answer(1, "D"))
	got, _ := h.ctrl.answers.Get(1)
	assert.Equal(t, "D", got, "later selection replaces earlier one")
	assert.Equal(t, 1, h.ctrl.answers.Answered())

	last := h.view.progress[len(h.view.progress)-1]
	assert.Equal(t, Progress{Answered: 1, Total: 2, Percentage: 50}, last)

	require.NoError(t, h.ctrl.answer(2, "A"))
	require.NoError(t, h.ctrl.submit())
	h.drain()

	assert.ErrorIs(t, h.ctrl.answer(2, "B"), ErrNotInteractive)
	assert.True(t, h.ctrl.answers.Frozen())
}

func TestController_ProgressiveAnswersAreForwarded(t *testing.T) {
	h := newHarness(t, sampleQuestions(2), withProgressive())
	h.startExam()
	h.answerAll("A")
	assert.Equal(t, []int{1, 2}, h.backend.recorded)
}

func TestController_ViolationEscalation(t *testing.T) {
	h := newHarness(t, sampleQuestions(3))
	h.startExam()
	require.NoError(t, h.ctrl.answer(1, "A"))

	v := h.signal(SignalVisibilityHidden)
	assert.True(t, v.Counted)
	v = h.signal(SignalCopy)
	assert.True(t, v.Prevent)

	require.Len(t, h.view.warnings, 2)
	assert.Equal(t, Warning{Reason: ReasonTabHidden, Count: 1, Threshold: 3}, h.view.warnings[0])
	assert.Equal(t, Warning{Reason: ReasonClipboard, Count: 2, Threshold: 3}, h.view.warnings[1])
	assert.Equal(t, StateInProgress, h.state())

	h.key(KeyCombo{Key: "F12"})
	assert.Len(t, h.view.warnings, 2, "threshold violation terminates instead of warning")
	assert.Equal(t, StateShowingScore, h.state())
	assert.Equal(t, []string{ReasonDevTools}, h.backend.violations)
	assert.True(t, h.ctrl.violations.Sealed())

	require.Len(t, h.view.scores, 1)
	report := h.view.scores[0]
	assert.True(t, report.Terminated)
	assert.Equal(t, ReasonDevTools, report.Reason)
	assert.Equal(t, ScoreResult{Total: 3}, report.Score)
	assert.Equal(t, TierLow, report.Tier)

	h.signal(SignalVisibilityHidden)
	assert.Equal(t, 3, h.ctrl.violations.Count())

	h.advance(10 * time.Second)
	require.Len(t, h.backend.saved, 1)
	assert.True(t, h.backend.saved[0].Terminated)
	assert.Zero(t, h.backend.saved[0].Score)
	assert.Equal(t, map[string]string{"1": "A"}, h.backend.saved[0].Answers)
	assert.Equal(t, 1, h.listeners.detached)

	assert.Equal(t, []State{
		StateLoading, StateGenerating, StateQuestionsReady, StateInProgress,
		StateTerminated, StateShowingScore, StateWritingMarks, StateRedirecting,
	}, h.visited())
}

func TestController_BlurIsDebounced(t *testing.T) {
	h := newHarness(t, sampleQuestions(2))
	h.startExam()

	h.signal(SignalBlur)
	h.advance(300 * time.Millisecond)
	h.signal(SignalFocus)
	h.advance(time.Second)
	assert.Zero(t, h.ctrl.violations.Count(), "short blur from a native dialog is ignored")

	h.signal(SignalBlur)
	h.signal(SignalBlur)
	h.advance(500 * time.Millisecond)
	assert.Equal(t, 1, h.ctrl.violations.Count())
	assert.Equal(t, ReasonWindowBlur, h.ctrl.violations.LastReason())
}

func TestController_PendingBlurDroppedOnSubmit(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	h.startExam()
	h.answerAll("B")

	h.signal(SignalBlur)
	require.NoError(t, h.ctrl.submit())
	h.drain()
	h.advance(time.Second)
	assert.Zero(t, h.ctrl.violations.Count())
}

func TestController_SignalsIgnoredOutsideInProgress(t *testing.T) {
	h := newHarness(t, sampleQuestions(1), withDeferredCalls())

	h.signal(SignalVisibilityHidden)
	h.ctrl.Start()
	h.drain()
	assert.Equal(t, StateGenerating, h.state())
	h.signal(SignalPaste)
	assert.Zero(t, h.ctrl.violations.Count())

	h.flush()
	require.Equal(t, StateInProgress, h.state())
	h.answerAll("A")
	require.NoError(t, h.ctrl.submit())
	h.drain()

	v := h.signal(SignalVisibilityHidden)
	assert.Equal(t, Verdict{}, v)
	assert.Zero(t, h.ctrl.violations.Count())
	assert.Empty(t, h.view.warnings)
}

func TestController_FullscreenExitCountsOnlyAfterEntering(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	h.startExam()
	assert.Equal(t, 1, h.fsEnter)

	h.signal(SignalFullscreenExit)
	assert.Zero(t, h.ctrl.violations.Count(), "never entered, so nothing to exit")

	h.signal(SignalFullscreenEnter)
	assert.True(t, h.ctrl.fs.Active())
	h.signal(SignalFullscreenExit)
	assert.Equal(t, 1, h.ctrl.violations.Count())
	assert.Equal(t, ReasonFullscreenExit, h.ctrl.violations.LastReason())

	h.ctrl.resume()
	assert.Equal(t, 2, h.fsEnter)
}

func TestController_FullscreenLeftOnTeardown(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	h.startExam()
	h.signal(SignalFullscreenEnter)
	h.answerAll("A")
	require.NoError(t, h.ctrl.submit())
	h.drain()
	h.advance(11 * time.Second)
	assert.Equal(t, 1, h.fsExit)
}

func TestController_NudgesAreNotCounted(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	h.startExam()

	v := h.signal(SignalContextMenu)
	assert.True(t, v.Prevent)
	v = h.key(KeyCombo{Key: "u", Ctrl: true})
	assert.True(t, v.Prevent)
	v = h.key(KeyCombo{Key: "a"})
	assert.False(t, v.Prevent)

	assert.Equal(t, []string{NoticeContextMenu, NoticeBlockedKey}, h.view.notices)
	assert.Zero(t, h.ctrl.violations.Count())
	assert.Len(t, h.events.kinds(EventNudge), 2)
}

func TestController_GenerateTimeoutThenRetry(t *testing.T) {
	h := newHarness(t, sampleQuestions(2), withDeferredCalls())
	h.ctrl.Start()
	h.drain()
	require.Equal(t, StateGenerating, h.state())
	assert.Equal(t, []string{loaderMessages[0]}, h.view.loaders)

	h.advance(3 * time.Second)
	assert.Equal(t, loaderMessages[1], h.view.loaders[len(h.view.loaders)-1])

	h.advance(57 * time.Second)
	assert.Equal(t, StateError, h.state())
	assert.ErrorIs(t, h.ctrl.lastErr, ErrGenerateTimeout)
	require.Len(t, h.view.errors, 1)
	assert.Equal(t, 1, h.view.hidden)
	assert.Zero(t, h.ctrl.sched.Pending())

	// The late reply of the abandoned request is ignored.
	h.flush()
	assert.Equal(t, StateError, h.state())
	assert.Nil(t, h.ctrl.questions)

	h.ctrl.Retry()
	h.drain()
	assert.Equal(t, StateGenerating, h.state())
	h.flush()
	assert.Equal(t, StateInProgress, h.state())
	assert.Equal(t, 2, h.backend.genCalls)
}

func TestController_InvalidQuestionSetIsLoadError(t *testing.T) {
	qs := sampleQuestions(2)
	delete(qs[0].Options, "D")
	qs[1].CorrectAnswer = "E"

	h := newHarness(t, qs)
	h.ctrl.Start()
	h.drain()

	assert.Equal(t, StateError, h.state())
	assert.ErrorIs(t, h.ctrl.lastErr, ErrLoadValidation)
	assert.Len(t, h.events.kinds(EventLoadFailed), 1)
	assert.False(t, h.ctrl.rendered)
	assert.Zero(t, h.listeners.attached)
}

func TestController_PartiallyInvalidSetKeepsValidQuestions(t *testing.T) {
	qs := sampleQuestions(3)
	qs[1].Prompt = ""

	h := newHarness(t, qs)
	h.startExam()
	assert.Equal(t, []int{1, 3}, QuestionIDs(h.ctrl.questions))
}

func TestController_NetworkErrorThenExit(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.genErr = errBackendDown
	h.ctrl.Start()
	h.drain()

	require.Equal(t, StateError, h.state())
	assert.ErrorIs(t, h.ctrl.lastErr, ErrNetwork)

	h.ctrl.Exit()
	h.drain()
	assert.Equal(t, StateRedirecting, h.state())
	h.advance(time.Second)
	assert.Equal(t, []string{testHome}, h.nav.navigated)
	assert.Empty(t, h.backend.saved, "no score means no marks write")
	assert.True(t, h.ctrl.finished)
}

func TestController_MissingSessionGoesToError(t *testing.T) {
	h := newHarness(t, sampleQuestions(1), withSession(SessionContext{AttemptID: "att-x"}))
	require.NoError(t, h.ctrl.start())
	assert.Equal(t, StateError, h.state())
	assert.Zero(t, h.backend.genCalls)
}

func TestController_RetryWithMissingSessionStaysInError(t *testing.T) {
	h := newHarness(t, sampleQuestions(1), withSession(SessionContext{AttemptID: "att-x"}))
	require.NoError(t, h.ctrl.start())
	require.Equal(t, StateError, h.state())

	h.ctrl.Retry()
	h.drain()
	assert.Equal(t, StateError, h.state())
	assert.Zero(t, h.backend.genCalls)
	assert.ErrorIs(t, h.ctrl.lastErr, errMissingSession)
	assert.Equal(t, []State{StateLoading, StateError, StateGenerating, StateError}, h.visited())
	assert.Zero(t, h.ctrl.sched.Pending())
}

func TestController_MarksFailureStillRedirects(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	h.backend.saveErr = errBackendDown
	h.nav.opener = true
	h.startExam()
	h.answerAll("A")
	require.NoError(t, h.ctrl.submit())
	h.drain()

	h.advance(10 * time.Second)
	assert.Equal(t, StateRedirecting, h.state())
	assert.Contains(t, h.view.statuses, StatusSaveFailed)
	assert.ErrorIs(t, h.ctrl.marksErr, ErrPersistence)
	assert.Len(t, h.events.kinds(EventMarksFailed), 1)

	h.advance(time.Second)
	assert.Equal(t, 1, h.nav.refreshed)
	assert.Empty(t, h.nav.navigated)
}

func TestController_MarksWrittenAtMostOnce(t *testing.T) {
	h := newHarness(t, sampleQuestions(1), withDeferredCalls())
	h.ctrl.Start()
	h.drain()
	h.flush()
	h.answerAll("A")
	require.NoError(t, h.ctrl.submit())
	h.drain()
	h.advance(10 * time.Second)
	require.Equal(t, StateWritingMarks, h.state())

	assert.False(t, h.ctrl.writeMarks())
	h.ctrl.abandon()
	h.flush()
	assert.Len(t, h.backend.saved, 1)
}

func TestController_ScoreComputedOnce(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	h.startExam()
	h.answerAll("A")
	require.NoError(t, h.ctrl.submit())
	h.drain()

	assert.False(t, h.ctrl.setScore(ZeroScore(1)))
	assert.Equal(t, 1, h.ctrl.score.Correct)
}

func TestController_RejectsIllegalTransition(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))

	err := h.ctrl.transition(StateSubmitted)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StateLoading, te.From)
	assert.Equal(t, StateSubmitted, te.To)
	assert.Equal(t, StateLoading, h.state())
	assert.Len(t, h.events.kinds(EventRejected), 1)

	h.startExam()
	err = h.ctrl.start()
	assert.True(t, IsRejection(err))
	assert.Equal(t, StateInProgress, h.state())
}

func TestController_AbandonWritesComputedScore(t *testing.T) {
	h := newHarness(t, sampleQuestions(2))
	h.startExam()
	h.answerAll("A")
	require.NoError(t, h.ctrl.submit())
	h.drain()

	h.ctrl.abandon()
	require.Len(t, h.backend.saved, 1)
	assert.Equal(t, 2, h.backend.saved[0].Score)
	assert.Zero(t, h.ctrl.sched.Pending())
	assert.Equal(t, 1, h.listeners.detached)

	h.ctrl.abandon()
	assert.Len(t, h.backend.saved, 1)
}

func TestController_AbandonBeforeScoreWritesNothing(t *testing.T) {
	h := newHarness(t, sampleQuestions(2))
	h.startExam()
	h.signal(SignalBlur)

	h.ctrl.abandon()
	assert.Empty(t, h.backend.saved)
	assert.Zero(t, h.ctrl.sched.Pending())
	assert.False(t, h.ctrl.monitor.Listening())
}

func TestController_SnapshotTracksProgress(t *testing.T) {
	h := newHarness(t, sampleQuestions(4))
	assert.Equal(t, StateLoading, h.ctrl.Snapshot().State)

	h.startExam()
	require.NoError(t, h.ctrl.answer(1, "A"))
	h.signal(SignalVisibilityHidden)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateInProgress, snap.State)
	assert.Equal(t, 1, snap.Answered)
	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 1, snap.Violations)
	assert.Nil(t, snap.Score)
	assert.Equal(t, "att-1", snap.Session.AttemptID)
}

func stepAt(t *testing.T, h *harness, to State) time.Time {
	t.Helper()
	for _, s := range h.ctrl.history {
		if s.To == to {
			return s.At
		}
	}
	t.Fatalf("state %s never entered", to)
	return time.Time{}
}

func TestController_TenQuestionsNineCorrect(t *testing.T) {
	h := newHarness(t, sampleQuestions(10))
	h.startExam()
	for id := 1; id <= 9; id++ {
		require.NoError(t, h.ctrl.answer(id, "A"))
	}
	require.NoError(t, h.ctrl.answer(10, "B"))
	h.drain()
	require.NoError(t, h.ctrl.submit())
	h.drain()

	require.Len(t, h.view.scores, 1)
	assert.Equal(t, ScoreResult{Correct: 9, Total: 10, Percentage: 90}, h.view.scores[0].Score)
	assert.Equal(t, TierHigh, h.view.scores[0].Tier)

	h.advance(9 * time.Second)
	assert.Empty(t, h.backend.saved)
	h.advance(time.Second)
	require.Len(t, h.backend.saved, 1)
	assert.Equal(t, 9, h.backend.saved[0].Score)
	assert.Equal(t, 10*time.Second, stepAt(t, h, StateWritingMarks).Sub(stepAt(t, h, StateShowingScore)))
}

func TestController_TenQuestionsTerminatedByDevTools(t *testing.T) {
	h := newHarness(t, sampleQuestions(10))
	h.startExam()
	h.answerAll("A")

	h.signal(SignalVisibilityHidden)
	h.signal(SignalVisibilityHidden)
	require.Equal(t, StateInProgress, h.state())
	h.key(KeyCombo{Key: "F12"})

	assert.Equal(t, StateShowingScore, h.state())
	require.Len(t, h.view.scores, 1)
	assert.Equal(t, ScoreResult{Correct: 0, Total: 10, Percentage: 0}, h.view.scores[0].Score)
	assert.True(t, h.view.scores[0].Terminated)
	assert.Equal(t, []string{ReasonDevTools}, h.backend.violations)
	assert.Empty(t, h.backend.saved)

	h.advance(9 * time.Second)
	assert.Empty(t, h.backend.saved)
	h.advance(time.Second)
	require.Len(t, h.backend.saved, 1)
	assert.Zero(t, h.backend.saved[0].Score)
	assert.True(t, h.backend.saved[0].Terminated)
	assert.Equal(t, 10*time.Second, stepAt(t, h, StateWritingMarks).Sub(stepAt(t, h, StateShowingScore)))
}

func TestController_RevealDelaySameOnBothPaths(t *testing.T) {
	reveal := func(terminate bool) time.Duration {
		h := newHarness(t, sampleQuestions(10))
		h.startExam()
		h.answerAll("A")
		if terminate {
			h.signal(SignalVisibilityHidden)
			h.signal(SignalVisibilityHidden)
			h.signal(SignalVisibilityHidden)
		} else {
			require.NoError(t, h.ctrl.submit())
			h.drain()
		}
		require.Equal(t, StateShowingScore, h.state())
		h.advance(30 * time.Second)
		return stepAt(t, h, StateWritingMarks).Sub(stepAt(t, h, StateShowingScore))
	}

	submitted, terminated := reveal(false), reveal(true)
	assert.GreaterOrEqual(t, submitted, 10*time.Second)
	assert.Equal(t, submitted, terminated)
}
