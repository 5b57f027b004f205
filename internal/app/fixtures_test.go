package app_test

import (
	"fmt"

	"license-exam-service/internal/domain"
)

var categories = []domain.Category{"Firearms law", "Wildlife biology", "Safety"}

// licensingSet builds n questions with options a-d where b is always correct.
func licensingSet(n int) domain.QuestionSet {
	set := domain.QuestionSet{ID: "licence-2024", Title: "Licensing exam"}
	for i := 0; i < n; i++ {
		set.Questions = append(set.Questions, domain.Question{
			ID:     domain.QuestionID(fmt.Sprintf("q%d", i+1)),
			Prompt: fmt.Sprintf("Question %d", i+1),
			Options: []domain.Option{
				{ID: "a", Text: "first"},
				{ID: "b", Text: "second"},
				{ID: "c", Text: "third"},
				{ID: "d", Text: "fourth"},
			},
			CorrectOptionID: "b",
			Category:        categories[i%len(categories)],
		})
	}
	return set
}

// correctAnswers answers the first k questions of set correctly and the rest wrongly.
func correctAnswers(set domain.QuestionSet, k int) domain.AnswerMap {
	answers := make(domain.AnswerMap, len(set.Questions))
	for i, q := range set.Questions {
		if i < k {
			answers[q.ID] = q.CorrectOptionID
		} else {
			answers[q.ID] = "a"
		}
	}
	return answers
}

func examConfig(duration, threshold int) domain.ExamConfig {
	return domain.ExamConfig{DurationSeconds: duration, PassThreshold: threshold, MaxAttempts: 3, CooldownDays: 14}
}
