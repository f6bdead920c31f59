package proctor

import "time"

// DefaultBlurDebounce filters focus losses caused by transient native dialogs.
const DefaultBlurDebounce = 500 * time.Millisecond

// Monitor receives client signals while its listeners are installed and
// feeds counted ones to the escalator. Every signal re-evaluates the
// activation predicate; nothing is cached.
type Monitor struct {
	active    func() bool
	escalator *Escalator
	sched     *Scheduler
	listeners Listeners
	fs        *Fullscreen
	notice    func(msg string)
	nudged    func(msg string)
	debounce  time.Duration

	installed bool
	removed   bool
	blurTimer TimerID
}

// Install attaches the listeners. Only the first call has an effect.
func (m *Monitor) Install() bool {
	if m.installed {
		return false
	}
	m.installed = true
	if m.listeners != nil {
		m.listeners.Attach()
	}
	return true
}

// Remove detaches the listeners and drops a pending blur. It is safe to call
// any number of times, including before Install.
func (m *Monitor) Remove() bool {
	if m.blurTimer != 0 {
		m.sched.Cancel(m.blurTimer)
		m.blurTimer = 0
	}
	if !m.installed || m.removed {
		return false
	}
	m.removed = true
	if m.listeners != nil {
		m.listeners.Detach()
	}
	return true
}

// Listening reports whether signals are currently accepted.
func (m *Monitor) Listening() bool { return m.installed && !m.removed }

// Handle processes one signal and returns its verdict. The verdict is empty
// when the monitor is not listening or the predicate is false.
func (m *Monitor) Handle(sig Signal) Verdict {
	if !m.Listening() {
		return Verdict{}
	}

	// Fullscreen state is tracked even outside the activation window so a
	// later exit can tell whether fullscreen was ever engaged.
	switch sig.Kind {
	case SignalFullscreenEnter:
		m.fs.observe(true)
		return Verdict{}
	case SignalFullscreenExit:
		wasEntered := m.fs.EverEntered()
		m.fs.observe(false)
		if !wasEntered || !m.active() {
			return Verdict{}
		}
	}

	if !m.active() {
		return Verdict{}
	}

	switch sig.Kind {
	case SignalBlur:
		m.scheduleBlur()
		return Verdict{}
	case SignalFocus:
		m.cancelBlur()
		return Verdict{}
	}

	v := Classify(sig)
	switch {
	case v.Counted:
		m.escalator.Record(v.Reason)
	case v.Notice != "":
		m.notice(v.Notice)
		if m.nudged != nil {
			m.nudged(v.Notice)
		}
	}
	return v
}

func (m *Monitor) scheduleBlur() {
	if m.blurTimer != 0 && m.sched.Active(m.blurTimer) {
		return
	}
	m.blurTimer = m.sched.After(StateInProgress, m.debounce, func() {
		m.blurTimer = 0
		if !m.Listening() || !m.active() {
			return
		}
		m.escalator.Record(ReasonWindowBlur)
	})
}

func (m *Monitor) cancelBlur() {
	if m.blurTimer == 0 {
		return
	}
	m.sched.Cancel(m.blurTimer)
	m.blurTimer = 0
}
