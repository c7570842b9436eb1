package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"quiz-leaderboard-service/internal/domain"
	"quiz-leaderboard-service/internal/scoring"
)

// RegradeReport summarizes a Regrade run.
type RegradeReport struct {
	QuizID   string `json:"quizId"`
	Attempts int    `json:"attempts"`
	Changed  int    `json:"changed"`  // attempts whose recomputed score differs
	Updated  int    `json:"updated"`  // leaderboard entries replaced
	Skipped  int    `json:"skipped"`  // attempts that no longer match the quiz
}

// ReconcileReport summarizes a Reconcile run.
type ReconcileReport struct {
	QuizID   string `json:"quizId"`
	Attempts int    `json:"attempts"`
	Updated  int    `json:"updated"`
}

// quizInvalidator is implemented by caching quiz repositories.
type quizInvalidator interface {
	Invalidate(ctx context.Context, quizID string) error
}

// Regrade re-evaluates every stored attempt against the quiz's current answer
// key and offers the recomputed score to the leaderboard through the same
// compare-and-swap used by Submit. Stored attempts are never rewritten, and a
// lower recomputed score never lowers an entry.
func (s *QuizService) Regrade(ctx context.Context, quizID string) (RegradeReport, error) {
	if inv, ok := s.quizzes.(quizInvalidator); ok {
		if err := inv.Invalidate(ctx, quizID); err != nil {
			return RegradeReport{}, fmt.Errorf("invalidate cached quiz: %w", err)
		}
	}
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return RegradeReport{}, err
	}
	attempts, err := s.attempts.ListAttempts(ctx, quizID)
	if err != nil {
		return RegradeReport{}, fmt.Errorf("list attempts: %w", err)
	}

	report := RegradeReport{QuizID: quizID, Attempts: len(attempts)}
	var mu sync.Mutex
	err = s.replay(ctx, attempts, func(ctx context.Context, a domain.Attempt) error {
		_, summary, err := scoring.Grade(quiz, a.Responses)
		if errors.Is(err, domain.ErrValidation) {
			s.logger.Warn("attempt no longer matches quiz", "quiz_id", quizID, "attempt_id", a.ID, "error", err)
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			return nil
		}
		if err != nil {
			return err
		}

		candidate := domain.EntryFromAttempt(a)
		candidate.Score = summary.Score
		candidate.MaxScore = summary.MaxScore
		candidate.Percentage = summary.Percentage

		applied, err := s.upsertBest(ctx, candidate)
		if err != nil {
			return fmt.Errorf("attempt %s: %w", a.ID, err)
		}
		mu.Lock()
		if summary.Score != a.Score {
			report.Changed++
		}
		if applied {
			report.Updated++
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return report, err
	}
	s.logger.Info("regrade finished",
		"quiz_id", quizID,
		"attempts", report.Attempts,
		"changed", report.Changed,
		"updated", report.Updated,
		"skipped", report.Skipped)
	return report, nil
}

// Reconcile replays every stored attempt's persisted score through the
// leaderboard compare-and-swap so entries missed by failed writes converge to
// the best attempt.
func (s *QuizService) Reconcile(ctx context.Context, quizID string) (ReconcileReport, error) {
	if _, err := s.loadQuiz(ctx, quizID); err != nil {
		return ReconcileReport{}, err
	}
	attempts, err := s.attempts.ListAttempts(ctx, quizID)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list attempts: %w", err)
	}

	report := ReconcileReport{QuizID: quizID, Attempts: len(attempts)}
	var mu sync.Mutex
	err = s.replay(ctx, attempts, func(ctx context.Context, a domain.Attempt) error {
		applied, err := s.upsertBest(ctx, domain.EntryFromAttempt(a))
		if err != nil {
			return fmt.Errorf("attempt %s: %w", a.ID, err)
		}
		if applied {
			mu.Lock()
			report.Updated++
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	s.logger.Info("reconcile finished", "quiz_id", quizID, "attempts", report.Attempts, "updated", report.Updated)
	return report, nil
}

func (s *QuizService) replay(ctx context.Context, attempts []domain.Attempt, fn func(context.Context, domain.Attempt) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.regradeWorkers)
	for _, a := range attempts {
		g.Go(func() error {
			return fn(gctx, a)
		})
	}
	return g.Wait()
}
