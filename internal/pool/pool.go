// Package pool draws bounded, randomized question sets for sessions.
package pool

import (
	"math/rand/v2"

	"quizbank/internal/model"
)

// ExamMaxQuestions caps the size of an exam pool. Quiz and review pools
// are uncapped.
const ExamMaxQuestions = 25

// Filter keeps the questions whose category equals the filter. An empty
// category or the all-categories sentinel keeps everything.
func Filter(questions []model.Question, category string) []model.Question {
	if category == "" || category == model.CategoryAll {
		return questions
	}
	var out []model.Question
	for _, q := range questions {
		if q.Category == category {
			out = append(out, q)
		}
	}
	return out
}

// FilterIncorrect keeps the questions flagged incorrect, for review mode.
func FilterIncorrect(questions []model.Question) []model.Question {
	var out []model.Question
	for _, q := range questions {
		if q.IsIncorrect {
			out = append(out, q)
		}
	}
	return out
}

// Shuffle returns a uniformly shuffled copy of the questions. The input is
// left untouched. A nil rand falls back to the global source; tests pass a
// seeded one.
func Shuffle(r *rand.Rand, questions []model.Question) []model.Question {
	shuffled := make([]model.Question, len(questions))
	copy(shuffled, questions)
	swap := func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] }
	if r != nil {
		r.Shuffle(len(shuffled), swap)
	} else {
		rand.Shuffle(len(shuffled), swap)
	}
	return shuffled
}

// ForExam builds an exam pool: filter by category, shuffle, cap at
// ExamMaxQuestions.
func ForExam(r *rand.Rand, questions []model.Question, category string) []model.Question {
	selected := Shuffle(r, Filter(questions, category))
	if len(selected) > ExamMaxQuestions {
		selected = selected[:ExamMaxQuestions]
	}
	return selected
}

// ForQuiz builds a quiz pool: filter by category, shuffle, no cap.
func ForQuiz(r *rand.Rand, questions []model.Question, category string) []model.Question {
	return Shuffle(r, Filter(questions, category))
}

// ForReview builds a review pool from the questions flagged incorrect.
func ForReview(r *rand.Rand, questions []model.Question) []model.Question {
	return Shuffle(r, FilterIncorrect(questions))
}
