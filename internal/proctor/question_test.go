package proctor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionValidate(t *testing.T) {
	ok := sampleQuestions(1)[0]
	require.NoError(t, ok.Validate())

	missingOption := sampleQuestions(1)[0]
	delete(missingOption.Options, "C")
	assert.Error(t, missingOption.Validate())

	badKey := sampleQuestions(1)[0]
	delete(badKey.Options, "D")
	badKey.Options["E"] = "extra"
	assert.Error(t, badKey.Validate())

	emptyText := sampleQuestions(1)[0]
	emptyText.Options["B"] = ""
	assert.Error(t, emptyText.Validate())

	badAnswer := sampleQuestions(1)[0]
	badAnswer.CorrectAnswer = "a"
	assert.Error(t, badAnswer.Validate())
}

func TestSanitizeQuestionsAssignsIDs(t *testing.T) {
	qs := sampleQuestions(4)
	qs[0].ID = 0
	qs[1].ID = 2
	qs[2].ID = 2
	qs[3].Prompt = ""

	valid, dropped := SanitizeQuestions(qs)
	assert.Equal(t, 1, dropped)
	require.Len(t, valid, 3)
	assert.Equal(t, []int{1, 2, 3}, QuestionIDs(valid))
	assert.Equal(t, 2, valid[1].ID)
}

func TestPublicStripsAnswerKey(t *testing.T) {
	q := sampleQuestions(1)[0]
	p := q.Public()
	assert.Empty(t, p.CorrectAnswer)
	assert.Empty(t, p.Explanation)
	assert.Equal(t, q.Options, p.Options)

	p.Options["A"] = "changed"
	assert.Equal(t, "first", q.Options["A"])
}

func TestScore(t *testing.T) {
	qs := sampleQuestions(5)
	rec := NewAnswerRecord(QuestionIDs(qs))
	require.NoError(t, rec.Record(1, "A"))
	require.NoError(t, rec.Record(2, "A"))
	require.NoError(t, rec.Record(3, "A"))
	require.NoError(t, rec.Record(4, "A"))
	require.NoError(t, rec.Record(5, "C"))

	got := Score(qs, rec)
	assert.Equal(t, ScoreResult{Correct: 4, Total: 5, Percentage: 80}, got)
	assert.Equal(t, TierHigh, got.Tier())

	assert.Equal(t, TierMedium, ScoreResult{Percentage: 50}.Tier())
	assert.Equal(t, TierLow, ScoreResult{Percentage: 49}.Tier())
	assert.Equal(t, ScoreResult{Total: 5}, ZeroScore(5))
}

func TestAnswerRecord(t *testing.T) {
	rec := NewAnswerRecord([]int{1, 2})
	assert.ErrorIs(t, rec.Record(3, "A"), ErrUnknownQuestion)
	require.NoError(t, rec.Record(2, "B"))
	assert.Equal(t, 1, rec.Unanswered())
	assert.Equal(t, map[string]string{"2": "B"}, rec.Snapshot())

	rec.Freeze()
	assert.ErrorIs(t, rec.Record(1, "A"), ErrAnswersFrozen)
	assert.Equal(t, Progress{Answered: 1, Total: 2, Percentage: 50}, rec.Progress())
}
