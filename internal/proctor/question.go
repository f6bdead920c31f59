package proctor

import (
	"sort"

	"github.com/stemsi/exstem-viva/internal/validator"
)

// OptionLetters are the only valid choice keys, in display order.
var OptionLetters = []string{"A", "B", "C", "D"}

// Question is one generated multiple-choice item.
type Question struct {
	ID            int               `json:"id"`
	Prompt        string            `json:"question" validate:"required"`
	Options       map[string]string `json:"options" validate:"len=4,dive,keys,oneof=A B C D,endkeys,required"`
	CorrectAnswer string            `json:"correct_answer,omitempty" validate:"required,oneof=A B C D"`
	Explanation   string            `json:"explanation,omitempty"`
}

// Validate checks the MCQ invariants: four lettered options, non-empty
// texts, and a correct letter that is one of the option keys.
func (q Question) Validate() error {
	if err := validator.Struct(q); err != nil {
		return err
	}
	if _, ok := q.Options[q.CorrectAnswer]; !ok {
		return ErrInvalidChoice
	}
	return nil
}

// HasOption reports whether letter is one of the question's keys.
func (q Question) HasOption(letter string) bool {
	_, ok := q.Options[letter]
	return ok
}

// Public strips the answer key so the set can be shown to the learner.
func (q Question) Public() Question {
	opts := make(map[string]string, len(q.Options))
	for k, v := range q.Options {
		opts[k] = v
	}
	return Question{ID: q.ID, Prompt: q.Prompt, Options: opts}
}

// SanitizeQuestions drops every item failing Validate and assigns sequential
// ids to survivors that have none. The dropped count is returned for logging.
func SanitizeQuestions(raw []Question) (valid []Question, dropped int) {
	valid = make([]Question, 0, len(raw))
	used := make(map[int]bool, len(raw))
	for _, q := range raw {
		if err := q.Validate(); err != nil {
			dropped++
			continue
		}
		if q.ID > 0 && used[q.ID] {
			q.ID = 0
		}
		if q.ID > 0 {
			used[q.ID] = true
		}
		valid = append(valid, q)
	}

	next := 1
	for i := range valid {
		if valid[i].ID > 0 {
			continue
		}
		for used[next] {
			next++
		}
		valid[i].ID = next
		used[next] = true
	}
	return valid, dropped
}

// QuestionIDs returns the ids of qs in ascending order.
func QuestionIDs(qs []Question) []int {
	ids := make([]int, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.ID)
	}
	sort.Ints(ids)
	return ids
}
