package redis

import (
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"license-exam-service/internal/domain"
)

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
				Category:        "Firearms law",
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
