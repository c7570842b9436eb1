package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// QuestionType is informational; every type is graded by exact set equality.
type QuestionType string

const (
	SingleChoice   QuestionType = "single-choice"
	MultipleChoice QuestionType = "multiple-choice"
	TrueFalse      QuestionType = "true-false"
)

// Option represents a possible answer for a question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question models an MCQ question with one or more correct options.
type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"questionText"`
	Type          QuestionType `json:"type"`
	Options       []Option     `json:"options"`
	Marks         int          `json:"marks"`
	NegativeMarks int          `json:"negativeMarks"`
	Explanation   string       `json:"explanation,omitempty"`
}

// CorrectOptionIDs returns the ids of the correct options in quiz order.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// Quiz is the immutable configuration supplied by the authoring side.
type Quiz struct {
	ID                    string         `json:"id"`
	Title                 string         `json:"title"`
	Questions             []Question     `json:"questions"`
	DurationMinutes       int            `json:"durationMinutes"`
	AttemptLimit          int            `json:"attemptLimit"` // 0 = unlimited
	PassingPercentage     float64        `json:"passingPercentage"`
	EnableNegativeMarking bool           `json:"enableNegativeMarking"`
	ShowExplanations      bool           `json:"showExplanations"`
	StartDate             time.Time      `json:"startDate"`
	EndDate               time.Time      `json:"endDate"`
	RequiresRegistration  bool           `json:"requiresRegistration"`
	RegistrationDeadline  *time.Time     `json:"registrationDeadline,omitempty"`
	Release               ReleaseSetting `json:"leaderboardSettings"`
}

// MaxScore is the sum of all question marks.
func (q Quiz) MaxScore() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Marks
	}
	return total
}

// Active reports whether now falls inside [StartDate, EndDate].
func (q Quiz) Active(now time.Time) bool {
	return !now.Before(q.StartDate) && !now.After(q.EndDate)
}

// Validate checks the structural invariants of a quiz configuration.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return NewValidationError("id", "quiz id is empty")
	}
	if q.EndDate.Before(q.StartDate) {
		return NewValidationError("endDate", "end date precedes start date")
	}
	if q.AttemptLimit < 0 {
		return NewValidationError("attemptLimit", "attempt limit is negative")
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for _, question := range q.Questions {
		if _, dup := seen[question.ID]; dup {
			return NewValidationError("questions", fmt.Sprintf("duplicate question id %q", question.ID))
		}
		seen[question.ID] = struct{}{}
		if question.Marks <= 0 {
			return NewValidationError("marks", fmt.Sprintf("question %q must award positive marks", question.ID))
		}
		if question.NegativeMarks < 0 {
			return NewValidationError("negativeMarks", fmt.Sprintf("question %q has negative penalty below zero", question.ID))
		}
		options := make(map[string]struct{}, len(question.Options))
		correct := 0
		for _, opt := range question.Options {
			if _, dup := options[opt.ID]; dup {
				return NewValidationError("options", fmt.Sprintf("question %q repeats option %q", question.ID, opt.ID))
			}
			options[opt.ID] = struct{}{}
			if opt.IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			return NewValidationError("options", fmt.Sprintf("question %q has no correct option", question.ID))
		}
	}
	return nil
}

// Response is one submitted answer. IsCorrect and MarksAwarded are written by
// the evaluator only.
type Response struct {
	QuestionID        string   `json:"questionId"`
	SelectedOptionIDs []string `json:"selectedOptions"`
	IsCorrect         bool     `json:"isCorrect"`
	MarksAwarded      int      `json:"marksAwarded"`
}

// Answered reports whether the response selects at least one option.
func (r Response) Answered() bool {
	return len(r.SelectedOptionIDs) > 0
}

// Attempt is one scored submission. Attempts are append-only.
type Attempt struct {
	ID               string     `json:"id"`
	QuizID           string     `json:"quizId"`
	UserID           string     `json:"userId"`
	DisplayName      string     `json:"userName"`
	AttemptNumber    int        `json:"attemptNumber"`
	Responses        []Response `json:"responses"`
	Score            int        `json:"score"`
	MaxScore         int        `json:"maxScore"`
	Percentage       float64    `json:"percentage"`
	Passed           bool       `json:"passed"`
	TimeSpentSeconds int        `json:"timeSpent"`
	StartedAt        time.Time  `json:"startedAt"`
	SubmittedAt      time.Time  `json:"submittedAt"`
}

// LeaderboardEntry is the best-of-all-attempts record for one user on one quiz.
type LeaderboardEntry struct {
	QuizID           string    `json:"quizId"`
	UserID           string    `json:"userId"`
	DisplayName      string    `json:"userName"`
	Score            int       `json:"score"`
	MaxScore         int       `json:"maxScore"`
	Percentage       float64   `json:"percentage"`
	TimeTakenSeconds int       `json:"timeTaken"`
	SubmittedAt      time.Time `json:"submittedAt"`
	AttemptID        string    `json:"attemptId"`
}

// EntryFromAttempt derives the leaderboard candidate produced by an attempt.
func EntryFromAttempt(a Attempt) LeaderboardEntry {
	return LeaderboardEntry{
		QuizID:           a.QuizID,
		UserID:           a.UserID,
		DisplayName:      a.DisplayName,
		Score:            a.Score,
		MaxScore:         a.MaxScore,
		Percentage:       a.Percentage,
		TimeTakenSeconds: a.TimeSpentSeconds,
		SubmittedAt:      a.SubmittedAt,
		AttemptID:        a.ID,
	}
}

// Registration records that a user signed up for a quiz.
type Registration struct {
	QuizID       string    `json:"quizId"`
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"userName"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// RankedEntry is a leaderboard entry with its live rank.
type RankedEntry struct {
	LeaderboardEntry
	Rank int `json:"rank"`
}

// SubmitResult is returned to the submitting user.
type SubmitResult struct {
	AttemptID          string    `json:"attemptId"`
	AttemptNumber      int       `json:"attemptNumber"`
	Score              int       `json:"score"`
	MaxScore           int       `json:"maxScore"`
	Percentage         float64   `json:"percentage"`
	Passed             bool      `json:"passed"`
	CorrectAnswers     int       `json:"correctAnswers"`
	IncorrectAnswers   int       `json:"incorrectAnswers"`
	Unanswered         int       `json:"unanswered"`
	TotalQuestions     int       `json:"totalQuestions"`
	TimeTaken          int       `json:"timeTaken"`
	SubmittedAt        time.Time `json:"submittedAt"`
	LeaderboardUpdated bool      `json:"leaderboardUpdated"`
	LeaderboardPending bool      `json:"leaderboardPending,omitempty"`
}

// Result statuses.
const (
	StatusPending  = "pending"
	StatusReleased = "released"
)

// ResultView is either a pending placeholder or the released result. A
// released view always carries every field, zero or not.
type ResultView struct {
	Status            string     `json:"status"`
	ReleaseAt         *time.Time `json:"releaseAt,omitempty"`
	AttemptID         string     `json:"attemptId"`
	Score             int        `json:"score"`
	MaxScore          int        `json:"maxScore"`
	Percentage        float64    `json:"percentage"`
	Passed            bool       `json:"passed"`
	Rank              int        `json:"rank"`
	TotalParticipants int        `json:"totalParticipants"`
	CorrectAnswers    int        `json:"correctAnswers"`
	IncorrectAnswers  int        `json:"incorrectAnswers"`
	Unanswered        int        `json:"unanswered"`
	TotalQuestions    int        `json:"totalQuestions"`
	TimeTaken         int        `json:"timeTaken"`
	SubmittedAt       *time.Time `json:"submittedAt,omitempty"`
}

type pendingWire struct {
	Status    string     `json:"status"`
	ReleaseAt *time.Time `json:"releaseAt,omitempty"`
}

// MarshalJSON hides everything but the status and release time while the
// result is pending.
func (v ResultView) MarshalJSON() ([]byte, error) {
	if v.Status == StatusPending {
		return json.Marshal(pendingWire{Status: v.Status, ReleaseAt: v.ReleaseAt})
	}
	type released ResultView
	return json.Marshal(released(v))
}

// ReviewStatus classifies one reviewed question.
type ReviewStatus string

const (
	ReviewCorrect   ReviewStatus = "correct"
	ReviewIncorrect ReviewStatus = "incorrect"
	ReviewSkipped   ReviewStatus = "skipped"
)

// ReviewItem is one question of an answer review.
type ReviewItem struct {
	QuestionID        string       `json:"questionId"`
	QuestionText      string       `json:"questionText"`
	Type              QuestionType `json:"type"`
	Options           []Option     `json:"options"`
	SelectedOptionIDs []string     `json:"selectedOptions"`
	CorrectOptionIDs  []string     `json:"correctOptions"`
	Status            ReviewStatus `json:"status"`
	MarksAwarded      int          `json:"marksAwarded"`
	Explanation       string       `json:"explanation,omitempty"`
}

// ReviewView is the per-question answer review of one attempt, gated like
// ResultView.
type ReviewView struct {
	Status    string       `json:"status"`
	ReleaseAt *time.Time   `json:"releaseAt,omitempty"`
	AttemptID string       `json:"attemptId,omitempty"`
	Questions []ReviewItem `json:"questions,omitempty"`
}

// LeaderboardView captures the ordered scoreboard for a quiz.
type LeaderboardView struct {
	QuizID            string        `json:"quizId"`
	Status            string        `json:"status"`
	ReleaseAt         *time.Time    `json:"releaseAt,omitempty"`
	Entries           []RankedEntry `json:"entries"`
	TotalParticipants int           `json:"totalParticipants"`
}

// RegistrationResult is returned by Register.
type RegistrationResult struct {
	AlreadyRegistered bool      `json:"alreadyRegistered"`
	RegisteredAt      time.Time `json:"registeredAt"`
	RegistrationCount int64     `json:"registrationCount"`
}
