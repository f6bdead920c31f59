package proctor

import "time"

// State enumerates the exam lifecycle positions. It is the single source of
// truth for where an attempt is; only the controller's transition function
// writes it.
type State string

const (
	StateLoading        State = "LOADING"
	StateGenerating     State = "GENERATING"
	StateQuestionsReady State = "QUESTIONS_READY"
	StateInProgress     State = "IN_PROGRESS"
	StateSubmitted      State = "SUBMITTED"
	StateShowingScore   State = "SHOWING_SCORE"
	StateTerminated     State = "TERMINATED"
	StateWritingMarks   State = "WRITING_MARKS"
	StateRedirecting    State = "REDIRECTING"
	StateError          State = "ERROR"
)

// AllStates lists every lifecycle state in declaration order.
var AllStates = []State{
	StateLoading,
	StateGenerating,
	StateQuestionsReady,
	StateInProgress,
	StateSubmitted,
	StateShowingScore,
	StateTerminated,
	StateWritingMarks,
	StateRedirecting,
	StateError,
}

// transitions is the complete table of allowed moves. Any pair missing here
// is rejected.
var transitions = map[State][]State{
	StateLoading:        {StateGenerating, StateError},
	StateGenerating:     {StateQuestionsReady, StateError},
	StateQuestionsReady: {StateInProgress},
	StateInProgress:     {StateSubmitted, StateTerminated},
	StateSubmitted:      {StateShowingScore},
	StateTerminated:     {StateShowingScore},
	StateShowingScore:   {StateWritingMarks},
	StateWritingMarks:   {StateRedirecting},
	StateRedirecting:    nil,
	StateError:          {StateGenerating, StateRedirecting},
}

// CanTransition reports whether the table allows moving from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Targets returns the states reachable from s in one step.
func Targets(s State) []State {
	out := make([]State, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s State) String() string { return string(s) }

// Step is one accepted transition, kept for tracing.
type Step struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}
