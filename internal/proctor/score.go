package proctor

import "math"

// ScoreResult is computed exactly once per attempt.
type ScoreResult struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Tier buckets a percentage for display colouring.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Tier returns the colour tier: >=80 high, >=50 medium, otherwise low.
func (r ScoreResult) Tier() Tier {
	switch {
	case r.Percentage >= 80:
		return TierHigh
	case r.Percentage >= 50:
		return TierMedium
	default:
		return TierLow
	}
}

// Score grades answers against each question's correct letter.
func Score(questions []Question, answers *AnswerRecord) ScoreResult {
	res := ScoreResult{Total: len(questions)}
	for _, q := range questions {
		if got, ok := answers.Get(q.ID); ok && got == q.CorrectAnswer {
			res.Correct++
		}
	}
	if res.Total > 0 {
		res.Percentage = percent(res.Correct, res.Total)
	}
	return res
}

// ZeroScore is the forced result for a terminated attempt.
func ZeroScore(total int) ScoreResult {
	return ScoreResult{Correct: 0, Total: total, Percentage: 0}
}

func percent(n, total int) int {
	return int(math.Round(100 * float64(n) / float64(total)))
}
