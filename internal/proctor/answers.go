package proctor

import "strconv"

// AnswerRecord holds one selected letter per question. Entries are
// overwritten, never appended, and the record is frozen once submission
// begins.
type AnswerRecord struct {
	known   map[int]bool
	entries map[int]string
	frozen  bool
}

// NewAnswerRecord creates an empty record accepting answers for ids.
func NewAnswerRecord(ids []int) *AnswerRecord {
	known := make(map[int]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return &AnswerRecord{known: known, entries: make(map[int]string, len(ids))}
}

// Record stores letter for question id, replacing any earlier selection.
func (r *AnswerRecord) Record(id int, letter string) error {
	if r.frozen {
		return ErrAnswersFrozen
	}
	if !r.known[id] {
		return ErrUnknownQuestion
	}
	r.entries[id] = letter
	return nil
}

// Freeze locks the record. Later Record calls fail.
func (r *AnswerRecord) Freeze() { r.frozen = true }

// Frozen reports whether the record is locked.
func (r *AnswerRecord) Frozen() bool { return r.frozen }

// Get returns the selection for id, if any.
func (r *AnswerRecord) Get(id int) (string, bool) {
	v, ok := r.entries[id]
	return v, ok
}

// Answered is the number of questions with a selection.
func (r *AnswerRecord) Answered() int { return len(r.entries) }

// Total is the number of questions the record accepts.
func (r *AnswerRecord) Total() int { return len(r.known) }

// Unanswered is Total minus Answered.
func (r *AnswerRecord) Unanswered() int { return len(r.known) - len(r.entries) }

// Snapshot copies the entries keyed by the decimal question id, the shape the
// marks endpoint expects.
func (r *AnswerRecord) Snapshot() map[string]string {
	out := make(map[string]string, len(r.entries))
	for id, letter := range r.entries {
		out[strconv.Itoa(id)] = letter
	}
	return out
}

// Progress is the answered/total view shown after each selection.
type Progress struct {
	Answered   int `json:"answered"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Progress computes the current completion.
func (r *AnswerRecord) Progress() Progress {
	p := Progress{Answered: r.Answered(), Total: r.Total()}
	if p.Total > 0 {
		p.Percentage = percent(p.Answered, p.Total)
	}
	return p
}
