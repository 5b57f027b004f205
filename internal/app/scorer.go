package app

import "license-exam-service/internal/domain"

// ScoreFunc computes a Result from a question set and the candidate's answers.
type ScoreFunc func(set domain.QuestionSet, answers domain.AnswerMap, passThreshold int) domain.Result

// Score grades every question of set against answers. It has no side effects and
// returns identical results for identical input. Unanswered questions count as
// incorrect. The set must be non-empty; sessions refuse to start otherwise.
func Score(set domain.QuestionSet, answers domain.AnswerMap, passThreshold int) domain.Result {
	result := domain.Result{
		TotalCount:     len(set.Questions),
		CategoryScores: make(map[domain.Category]domain.CategoryScore),
	}

	for _, q := range set.Questions {
		cs := result.CategoryScores[q.Category]
		cs.Total++
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectOptionID {
			cs.Correct++
			result.CorrectCount++
		}
		result.CategoryScores[q.Category] = cs
	}

	result.ScorePercent = roundPercent(result.CorrectCount, result.TotalCount)
	result.Passed = result.ScorePercent >= passThreshold
	return result
}

// roundPercent returns round-half-up of 100*part/whole using integer arithmetic.
func roundPercent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return (200*part + whole) / (2 * whole)
}
