package proctor

import "time"

// DefaultViolationThreshold is the counted-signal limit that terminates an attempt.
const DefaultViolationThreshold = 3

// ViolationEntry is one counted signal.
type ViolationEntry struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// ViolationLog is the ordered record of counted signals. Once sealed it
// no longer grows.
type ViolationLog struct {
	entries []ViolationEntry
	sealed  bool
}

// Count is the number of recorded violations.
func (l *ViolationLog) Count() int { return len(l.entries) }

// LastReason is the reason of the most recent violation.
func (l *ViolationLog) LastReason() string {
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1].Reason
}

// Entries returns a copy of the log.
func (l *ViolationLog) Entries() []ViolationEntry {
	out := make([]ViolationEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Sealed reports whether the log is immutable.
func (l *ViolationLog) Sealed() bool { return l.sealed }

func (l *ViolationLog) seal() { l.sealed = true }

func (l *ViolationLog) add(e ViolationEntry) bool {
	if l.sealed {
		return false
	}
	l.entries = append(l.entries, e)
	return true
}

// Escalator counts violations: below the threshold it warns, at the
// threshold it terminates.
type Escalator struct {
	log       *ViolationLog
	threshold int
	now       func() time.Time
	warn      func(w Warning)
	terminate func(reason string, count int)
}

func newEscalator(log *ViolationLog, threshold int, now func() time.Time, warn func(Warning), terminate func(string, int)) *Escalator {
	if threshold <= 0 {
		threshold = DefaultViolationThreshold
	}
	return &Escalator{log: log, threshold: threshold, now: now, warn: warn, terminate: terminate}
}

// Record counts one violation and escalates. It returns false when the log
// is already sealed.
func (e *Escalator) Record(reason string) bool {
	if !e.log.add(ViolationEntry{Reason: reason, At: e.now()}) {
		return false
	}
	count := e.log.Count()
	if count >= e.threshold {
		e.log.seal()
		e.terminate(reason, count)
		return true
	}
	e.warn(Warning{Reason: reason, Count: count, Threshold: e.threshold})
	return true
}

// Threshold is the configured termination limit.
func (e *Escalator) Threshold() int { return e.threshold }
