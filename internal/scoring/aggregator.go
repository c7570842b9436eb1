package scoring

import "quiz-leaderboard-service/internal/domain"

// Summary is the aggregate outcome of one evaluated submission.
type Summary struct {
	Score            int
	MaxScore         int
	Percentage       float64
	Passed           bool
	CorrectAnswers   int
	IncorrectAnswers int
	Unanswered       int
	TotalQuestions   int
}

// Aggregate sums evaluated responses. The score is not floored at zero, and a
// zero max score yields a zero percentage.
func Aggregate(quiz domain.Quiz, evaluated []domain.Response) Summary {
	s := Summary{
		MaxScore:       quiz.MaxScore(),
		TotalQuestions: len(quiz.Questions),
	}

	byQuestion := make(map[string]domain.Response, len(evaluated))
	for _, r := range evaluated {
		byQuestion[r.QuestionID] = r
	}

	for _, question := range quiz.Questions {
		r, ok := byQuestion[question.ID]
		switch {
		case !ok || !r.Answered():
			s.Unanswered++
		case r.IsCorrect:
			s.CorrectAnswers++
		default:
			s.IncorrectAnswers++
		}
		if ok {
			s.Score += r.MarksAwarded
		}
	}

	if s.MaxScore > 0 {
		s.Percentage = 100 * float64(s.Score) / float64(s.MaxScore)
	}
	s.Passed = s.Percentage >= quiz.PassingPercentage
	return s
}

// Grade evaluates and aggregates in one step.
func Grade(quiz domain.Quiz, responses []domain.Response) ([]domain.Response, Summary, error) {
	evaluated, err := Evaluate(quiz, responses)
	if err != nil {
		return nil, Summary{}, err
	}
	return evaluated, Aggregate(quiz, evaluated), nil
}
