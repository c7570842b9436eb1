package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"quiz-leaderboard-service/internal/domain"
)

// withConflictRetry runs op until it succeeds, fails with a non-conflict error,
// or maxTries conflicts have been seen. Exhausted conflicts surface as
// domain.ErrTransient.
func (s *QuizService) withConflictRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryInterval
	bo.MaxElapsedTime = 0

	tries := 0
	err := backoff.Retry(func() error {
		tries++
		err := op()
		if err == nil || errors.Is(err, domain.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxTries-1)), ctx))

	if errors.Is(err, domain.ErrConflict) {
		s.logger.Warn("giving up after write conflicts", "tries", tries, "error", err)
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}
