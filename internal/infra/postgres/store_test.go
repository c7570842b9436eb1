package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgconn"
	"quiz-leaderboard-service/internal/domain"
)

func TestMapErrorConflictCodes(t *testing.T) {
	for _, code := range []string{codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation} {
		err := mapError(fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, Message: "boom"}))
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("code %s: expected conflict, got %v", code, err)
		}
	}
}

func TestMapErrorPassesOtherErrors(t *testing.T) {
	notNull := &pgconn.PgError{Code: "23502", Message: "null value"}
	if err := mapError(notNull); errors.Is(err, domain.ErrConflict) {
		t.Fatalf("not-null violation must not be a conflict")
	}

	limit := &domain.AttemptLimitError{Count: 1, Limit: 1}
	var got *domain.AttemptLimitError
	if err := mapError(limit); !errors.As(err, &got) || got != limit {
		t.Fatalf("expected limit error to pass through, got %v", err)
	}
}
