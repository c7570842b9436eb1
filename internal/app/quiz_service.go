package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"quiz-leaderboard-service/internal/domain"
	"quiz-leaderboard-service/internal/ranking"
	"quiz-leaderboard-service/internal/release"
	"quiz-leaderboard-service/internal/scoring"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptLedger persists append-only attempts.
type AttemptLedger interface {
	CountAttempts(ctx context.Context, quizID, userID string) (int, error)
	// CreateAttempt assigns the next attempt number and persists the attempt in
	// one atomic step. It returns *domain.AttemptLimitError when limit > 0 and
	// the user already has limit attempts, and domain.ErrConflict when a
	// concurrent write was detected.
	CreateAttempt(ctx context.Context, attempt domain.Attempt, limit int) (domain.Attempt, error)
	GetAttempt(ctx context.Context, quizID, attemptID string) (domain.Attempt, error)
	ListAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error)
}

// LeaderboardStore keeps one best entry per (quiz, user).
type LeaderboardStore interface {
	// UpsertBest inserts the entry when none exists, or replaces the existing
	// one only if entry.Score is strictly greater. The comparison and write are
	// atomic. It reports whether the entry was written.
	UpsertBest(ctx context.Context, entry domain.LeaderboardEntry) (bool, error)
	GetEntry(ctx context.Context, quizID, userID string) (domain.LeaderboardEntry, bool, error)
	ListEntries(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error)
}

// RegistrationStore records quiz registrations.
type RegistrationStore interface {
	// Register stores reg unless the user is already registered, in which case
	// the existing record is returned with created=false. The quiz's
	// registration counter moves only when created is true.
	Register(ctx context.Context, reg domain.Registration) (domain.Registration, bool, error)
	GetRegistration(ctx context.Context, quizID, userID string) (domain.Registration, bool, error)
	RegistrationCount(ctx context.Context, quizID string) (int64, error)
}

// Stores bundles the persistence ports used by QuizService.
type Stores struct {
	Quizzes       QuizRepository
	Attempts      AttemptLedger
	Leaderboard   LeaderboardStore
	Registrations RegistrationStore
}

// SubmitRequest is a user's submission for one quiz.
type SubmitRequest struct {
	QuizID           string
	UserID           string
	DisplayName      string
	Responses        []domain.Response
	TimeSpentSeconds int
}

// QuizService contains the core quiz use cases. It holds no per-quiz state;
// all coordination goes through the stores.
type QuizService struct {
	quizzes       QuizRepository
	attempts      AttemptLedger
	leaderboard   LeaderboardStore
	registrations RegistrationStore

	now            func() time.Time
	logger         *slog.Logger
	maxTries       int
	retryInterval  time.Duration
	regradeWorkers int
	newID          func() string
}

// Option configures a QuizService.
type Option func(*QuizService)

// WithClock overrides time.Now, mainly for deterministic tests.
func WithClock(now func() time.Time) Option { return func(s *QuizService) { s.now = now } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(s *QuizService) { s.logger = l } }

// WithConflictRetries bounds how many times a conflicting write is tried.
func WithConflictRetries(tries int, interval time.Duration) Option {
	return func(s *QuizService) {
		if tries > 0 {
			s.maxTries = tries
		}
		if interval > 0 {
			s.retryInterval = interval
		}
	}
}

// WithRegradeWorkers bounds the fan-out used by Regrade and Reconcile.
func WithRegradeWorkers(n int) Option {
	return func(s *QuizService) {
		if n > 0 {
			s.regradeWorkers = n
		}
	}
}

func NewQuizService(stores Stores, opts ...Option) *QuizService {
	s := &QuizService{
		quizzes:        stores.Quizzes,
		attempts:       stores.Attempts,
		leaderboard:    stores.Leaderboard,
		registrations:  stores.Registrations,
		now:            time.Now,
		logger:         slog.Default(),
		maxTries:       3,
		retryInterval:  25 * time.Millisecond,
		regradeWorkers: 4,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit grades a submission, appends it to the attempt ledger and offers it to
// the leaderboard. Preconditions are checked in order: quiz exists,
// registration, active window, attempt limit.
func (s *QuizService) Submit(ctx context.Context, req SubmitRequest) (domain.SubmitResult, error) {
	if req.UserID == "" {
		return domain.SubmitResult{}, domain.NewValidationError("userId", "missing user")
	}
	if req.TimeSpentSeconds < 0 {
		return domain.SubmitResult{}, domain.NewValidationError("timeSpent", "time spent cannot be negative")
	}

	quiz, err := s.loadQuiz(ctx, req.QuizID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if err := s.checkRegistered(ctx, quiz, req.UserID); err != nil {
		return domain.SubmitResult{}, err
	}
	now := s.now()
	if err := checkActive(quiz, now); err != nil {
		return domain.SubmitResult{}, err
	}

	count, err := s.attempts.CountAttempts(ctx, quiz.ID, req.UserID)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("count attempts: %w", err)
	}
	if quiz.AttemptLimit > 0 && count >= quiz.AttemptLimit {
		return domain.SubmitResult{}, &domain.AttemptLimitError{Count: count, Limit: quiz.AttemptLimit}
	}

	evaluated, summary, err := scoring.Grade(quiz, req.Responses)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	attempt := domain.Attempt{
		ID:               s.newID(),
		QuizID:           quiz.ID,
		UserID:           req.UserID,
		DisplayName:      req.DisplayName,
		Responses:        evaluated,
		Score:            summary.Score,
		MaxScore:         summary.MaxScore,
		Percentage:       summary.Percentage,
		Passed:           summary.Passed,
		TimeSpentSeconds: req.TimeSpentSeconds,
		StartedAt:        now.Add(-time.Duration(req.TimeSpentSeconds) * time.Second),
		SubmittedAt:      now,
	}

	var stored domain.Attempt
	err = s.withConflictRetry(ctx, func() error {
		var err error
		stored, err = s.attempts.CreateAttempt(ctx, attempt, quiz.AttemptLimit)
		return err
	})
	if err != nil {
		return domain.SubmitResult{}, err
	}

	result := domain.SubmitResult{
		AttemptID:        stored.ID,
		AttemptNumber:    stored.AttemptNumber,
		Score:            stored.Score,
		MaxScore:         stored.MaxScore,
		Percentage:       stored.Percentage,
		Passed:           stored.Passed,
		CorrectAnswers:   summary.CorrectAnswers,
		IncorrectAnswers: summary.IncorrectAnswers,
		Unanswered:       summary.Unanswered,
		TotalQuestions:   summary.TotalQuestions,
		TimeTaken:        stored.TimeSpentSeconds,
		SubmittedAt:      stored.SubmittedAt,
	}

	// The attempt is already the source of truth; a failed leaderboard write
	// is reconciled later and never fails the submission.
	updated, err := s.upsertBest(ctx, domain.EntryFromAttempt(stored))
	if err != nil {
		s.logger.Error("leaderboard update failed",
			"quiz_id", quiz.ID,
			"user_id", req.UserID,
			"attempt_id", stored.ID,
			"error", err)
		result.LeaderboardPending = true
	}
	result.LeaderboardUpdated = updated

	s.logger.Info("attempt submitted",
		"quiz_id", quiz.ID,
		"user_id", req.UserID,
		"attempt_id", stored.ID,
		"attempt_number", stored.AttemptNumber,
		"score", stored.Score,
		"max_score", stored.MaxScore,
		"leaderboard_updated", updated)
	return result, nil
}

// GetResult returns the attempt's result, or a pending placeholder while the
// quiz's release policy keeps results hidden.
func (s *QuizService) GetResult(ctx context.Context, quizID, userID, attemptID string) (domain.ResultView, error) {
	_, attempt, decision, err := s.ownedAttempt(ctx, quizID, userID, attemptID)
	if err != nil {
		return domain.ResultView{}, err
	}
	if !decision.Visible() {
		at := decision.ReleaseAt
		return domain.ResultView{Status: domain.StatusPending, ReleaseAt: &at}, nil
	}

	entries, err := s.leaderboard.ListEntries(ctx, quizID)
	if err != nil {
		return domain.ResultView{}, fmt.Errorf("list leaderboard: %w", err)
	}
	rank, total, ok := ranking.RankOf(entries, userID)
	if !ok {
		// A previous leaderboard write was lost; converge from the attempt.
		if _, err := s.upsertBest(ctx, domain.EntryFromAttempt(attempt)); err != nil {
			return domain.ResultView{}, err
		}
		if entries, err = s.leaderboard.ListEntries(ctx, quizID); err != nil {
			return domain.ResultView{}, fmt.Errorf("list leaderboard: %w", err)
		}
		rank, total, _ = ranking.RankOf(entries, userID)
	}

	t := tally(attempt.Responses)
	submittedAt := attempt.SubmittedAt
	view := domain.ResultView{
		Status:            domain.StatusReleased,
		AttemptID:         attempt.ID,
		Score:             attempt.Score,
		MaxScore:          attempt.MaxScore,
		Percentage:        attempt.Percentage,
		Passed:            attempt.Passed,
		Rank:              rank,
		TotalParticipants: total,
		CorrectAnswers:    t.correct,
		IncorrectAnswers:  t.incorrect,
		Unanswered:        t.unanswered,
		TotalQuestions:    len(attempt.Responses),
		TimeTaken:         attempt.TimeSpentSeconds,
		SubmittedAt:       &submittedAt,
	}
	if !decision.ReleaseAt.IsZero() {
		at := decision.ReleaseAt
		view.ReleaseAt = &at
	}
	return view, nil
}

// GetReview returns the attempt's answers question by question, with the
// correct options and, when the quiz enables them, explanations. It is gated
// exactly like GetResult.
func (s *QuizService) GetReview(ctx context.Context, quizID, userID, attemptID string) (domain.ReviewView, error) {
	quiz, attempt, decision, err := s.ownedAttempt(ctx, quizID, userID, attemptID)
	if err != nil {
		return domain.ReviewView{}, err
	}
	if !decision.Visible() {
		at := decision.ReleaseAt
		return domain.ReviewView{Status: domain.StatusPending, ReleaseAt: &at}, nil
	}

	responses := make(map[string]domain.Response, len(attempt.Responses))
	for _, r := range attempt.Responses {
		responses[r.QuestionID] = r
	}

	items := make([]domain.ReviewItem, 0, len(quiz.Questions))
	for _, question := range quiz.Questions {
		r := responses[question.ID]
		item := domain.ReviewItem{
			QuestionID:        question.ID,
			QuestionText:      question.Text,
			Type:              question.Type,
			Options:           question.Options,
			SelectedOptionIDs: r.SelectedOptionIDs,
			CorrectOptionIDs:  question.CorrectOptionIDs(),
			MarksAwarded:      r.MarksAwarded,
		}
		if item.SelectedOptionIDs == nil {
			item.SelectedOptionIDs = []string{}
		}
		switch {
		case !r.Answered():
			item.Status = domain.ReviewSkipped
		case r.IsCorrect:
			item.Status = domain.ReviewCorrect
		default:
			item.Status = domain.ReviewIncorrect
		}
		if quiz.ShowExplanations {
			item.Explanation = question.Explanation
		}
		items = append(items, item)
	}
	return domain.ReviewView{Status: domain.StatusReleased, AttemptID: attempt.ID, Questions: items}, nil
}

// ownedAttempt loads the quiz and the attempt, hides attempts owned by someone
// else, and evaluates the release policy.
func (s *QuizService) ownedAttempt(ctx context.Context, quizID, userID, attemptID string) (domain.Quiz, domain.Attempt, release.Decision, error) {
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, domain.Attempt{}, release.Decision{}, err
	}
	attempt, err := s.attempts.GetAttempt(ctx, quizID, attemptID)
	if err != nil {
		return domain.Quiz{}, domain.Attempt{}, release.Decision{}, err
	}
	if attempt.UserID != userID {
		return domain.Quiz{}, domain.Attempt{}, release.Decision{}, domain.ErrAttemptNotFound
	}
	return quiz, attempt, release.ForQuiz(quiz, s.now()), nil
}

// Register signs a user up for a quiz. Registering twice is not an error.
func (s *QuizService) Register(ctx context.Context, quizID, userID, displayName string) (domain.RegistrationResult, error) {
	if userID == "" {
		return domain.RegistrationResult{}, domain.NewValidationError("userId", "missing user")
	}
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return domain.RegistrationResult{}, err
	}

	now := s.now()
	if registrationClosed(quiz, now) {
		existing, ok, err := s.registrations.GetRegistration(ctx, quizID, userID)
		if err != nil {
			return domain.RegistrationResult{}, fmt.Errorf("get registration: %w", err)
		}
		if !ok {
			return domain.RegistrationResult{}, domain.ErrRegistrationClosed
		}
		return s.registrationResult(ctx, existing, false)
	}

	var (
		stored  domain.Registration
		created bool
	)
	err = s.withConflictRetry(ctx, func() error {
		var err error
		stored, created, err = s.registrations.Register(ctx, domain.Registration{
			QuizID:       quizID,
			UserID:       userID,
			DisplayName:  displayName,
			RegisteredAt: now,
		})
		return err
	})
	if err != nil {
		return domain.RegistrationResult{}, err
	}
	if created {
		s.logger.Info("user registered", "quiz_id", quizID, "user_id", userID)
	}
	return s.registrationResult(ctx, stored, created)
}

func (s *QuizService) registrationResult(ctx context.Context, reg domain.Registration, created bool) (domain.RegistrationResult, error) {
	count, err := s.registrations.RegistrationCount(ctx, reg.QuizID)
	if err != nil {
		return domain.RegistrationResult{}, fmt.Errorf("registration count: %w", err)
	}
	return domain.RegistrationResult{
		AlreadyRegistered: !created,
		RegisteredAt:      reg.RegisteredAt,
		RegistrationCount: count,
	}, nil
}

// GetLeaderboard returns every entry with its live rank once the quiz's release
// policy allows it.
func (s *QuizService) GetLeaderboard(ctx context.Context, quizID, viewerID string) (domain.LeaderboardView, error) {
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return domain.LeaderboardView{}, err
	}

	view := domain.LeaderboardView{QuizID: quizID, Entries: []domain.RankedEntry{}}
	decision := release.ForQuiz(quiz, s.now())
	if !decision.ReleaseAt.IsZero() {
		at := decision.ReleaseAt
		view.ReleaseAt = &at
	}
	if !decision.Visible() {
		view.Status = domain.StatusPending
		return view, nil
	}

	entries, err := s.leaderboard.ListEntries(ctx, quizID)
	if err != nil {
		return domain.LeaderboardView{}, fmt.Errorf("list leaderboard: %w", err)
	}
	if quiz.Release.ParticipantsOnly && !hasEntry(entries, viewerID) {
		return domain.LeaderboardView{}, domain.ErrNotParticipant
	}

	view.Status = domain.StatusReleased
	view.Entries = ranking.Rank(entries)
	view.TotalParticipants = len(entries)
	return view, nil
}

func (s *QuizService) loadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quizID == "" {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := quiz.Validate(); err != nil {
		// Misconfiguration is not the caller's validation failure.
		return domain.Quiz{}, fmt.Errorf("quiz %s is misconfigured: %v", quizID, err)
	}
	return quiz, nil
}

func (s *QuizService) checkRegistered(ctx context.Context, quiz domain.Quiz, userID string) error {
	if !quiz.RequiresRegistration {
		return nil
	}
	_, ok, err := s.registrations.GetRegistration(ctx, quiz.ID, userID)
	if err != nil {
		return fmt.Errorf("get registration: %w", err)
	}
	if !ok {
		return domain.ErrNotRegistered
	}
	return nil
}

func (s *QuizService) upsertBest(ctx context.Context, entry domain.LeaderboardEntry) (bool, error) {
	var applied bool
	err := s.withConflictRetry(ctx, func() error {
		var err error
		applied, err = s.leaderboard.UpsertBest(ctx, entry)
		return err
	})
	return applied, err
}

func checkActive(quiz domain.Quiz, now time.Time) error {
	switch {
	case now.Before(quiz.StartDate):
		return &domain.NotActiveError{Reason: domain.ReasonNotStarted, StartDate: quiz.StartDate, EndDate: quiz.EndDate}
	case now.After(quiz.EndDate):
		return &domain.NotActiveError{Reason: domain.ReasonEnded, StartDate: quiz.StartDate, EndDate: quiz.EndDate}
	}
	return nil
}

func registrationClosed(quiz domain.Quiz, now time.Time) bool {
	if quiz.RegistrationDeadline != nil && now.After(*quiz.RegistrationDeadline) {
		return true
	}
	return now.After(quiz.EndDate)
}

func hasEntry(entries []domain.LeaderboardEntry, userID string) bool {
	if userID == "" {
		return false
	}
	for _, e := range entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

type responseTally struct {
	correct, incorrect, unanswered int
}

func tally(responses []domain.Response) responseTally {
	var t responseTally
	for _, r := range responses {
		switch {
		case !r.Answered():
			t.unanswered++
		case r.IsCorrect:
			t.correct++
		default:
			t.incorrect++
		}
	}
	return t
}
