package memory

import "license-exam-service/internal/domain"

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:    "hunting-2024",
		Title: "Hunting licence",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "Which calibre is legal for deer?",
				Options: []domain.Option{
					{ID: "a", Text: ".22 LR"},
					{ID: "b", Text: ".243 Win"},
				},
				CorrectOptionID: "b",
				Category:        "Firearms  law",
			},
			{
				ID:     "q2",
				Prompt: "When does the roe buck season open?",
				Options: []domain.Option{
					{ID: "a", Text: "April"},
					{ID: "b", Text: "October"},
				},
				CorrectOptionID: "a",
				Category:        "Wildlife biology",
			},
		},
	}
}
