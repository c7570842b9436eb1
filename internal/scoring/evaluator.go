// Package scoring grades submitted responses against a quiz answer key and
// aggregates them into an attempt score. Everything here is pure.
package scoring

import (
	"fmt"
	"sort"

	"quiz-leaderboard-service/internal/domain"
)

// Evaluate grades responses against the quiz and returns exactly one evaluated
// response per question, in quiz order. Questions without a response come back
// unanswered. Unknown questions or options reject the whole submission.
func Evaluate(quiz domain.Quiz, responses []domain.Response) ([]domain.Response, error) {
	submitted, err := indexResponses(quiz, responses)
	if err != nil {
		return nil, err
	}

	evaluated := make([]domain.Response, 0, len(quiz.Questions))
	for _, question := range quiz.Questions {
		selected := submitted[question.ID]
		evaluated = append(evaluated, evaluateQuestion(question, selected, quiz.EnableNegativeMarking))
	}
	return evaluated, nil
}

func evaluateQuestion(question domain.Question, selected []string, negativeMarking bool) domain.Response {
	correct := correctSet(question)
	isCorrect := equalSorted(correct, selected)

	marks := 0
	switch {
	case isCorrect:
		marks = question.Marks
	case len(selected) > 0 && negativeMarking:
		marks = -question.NegativeMarks
	}

	return domain.Response{
		QuestionID:        question.ID,
		SelectedOptionIDs: selected,
		IsCorrect:         isCorrect,
		MarksAwarded:      marks,
	}
}

// indexResponses validates the submission and returns the sorted, de-duplicated
// selection for each answered question.
func indexResponses(quiz domain.Quiz, responses []domain.Response) (map[string][]string, error) {
	questions := make(map[string]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions[q.ID] = q
	}

	out := make(map[string][]string, len(responses))
	for _, r := range responses {
		question, ok := questions[r.QuestionID]
		if !ok {
			return nil, domain.NewValidationError("questionId", fmt.Sprintf("unknown question %q", r.QuestionID))
		}
		if _, dup := out[r.QuestionID]; dup {
			return nil, domain.NewValidationError("questionId", fmt.Sprintf("question %q answered twice", r.QuestionID))
		}
		selected, err := selection(question, r.SelectedOptionIDs)
		if err != nil {
			return nil, err
		}
		out[r.QuestionID] = selected
	}
	return out, nil
}

func selection(question domain.Question, ids []string) ([]string, error) {
	valid := make(map[string]struct{}, len(question.Options))
	for _, opt := range question.Options {
		valid[opt.ID] = struct{}{}
	}
	set := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := valid[id]; !ok {
			return nil, domain.NewValidationError("selectedOptions", fmt.Sprintf("unknown option %q for question %q", id, question.ID))
		}
		if _, dup := set[id]; dup {
			continue
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func correctSet(question domain.Question) []string {
	ids := make([]string, 0, 1)
	for _, opt := range question.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func equalSorted(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
