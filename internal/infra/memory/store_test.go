package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"quiz-leaderboard-service/internal/domain"
)

func TestCreateAttemptNumbersAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for i := 1; i <= 2; i++ {
		a, err := store.CreateAttempt(ctx, domain.Attempt{ID: fmt.Sprintf("a%d", i), QuizID: "quiz-1", UserID: "u1"}, 2)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if a.AttemptNumber != i {
			t.Fatalf("expected attempt number %d, got %d", i, a.AttemptNumber)
		}
	}

	_, err := store.CreateAttempt(ctx, domain.Attempt{ID: "a3", QuizID: "quiz-1", UserID: "u1"}, 2)
	var limitErr *domain.AttemptLimitError
	if !errors.As(err, &limitErr) || limitErr.Count != 2 || limitErr.Limit != 2 {
		t.Fatalf("expected limit error with count 2, got %v", err)
	}
	if n, _ := store.CountAttempts(ctx, "quiz-1", "u1"); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestConcurrentAttemptsGetUniqueNumbers(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.CreateAttempt(ctx, domain.Attempt{ID: fmt.Sprintf("a%d", i), QuizID: "quiz-1", UserID: "u1"}, 0)
		}(i)
	}
	wg.Wait()

	attempts, _ := store.ListAttempts(ctx, "quiz-1")
	if len(attempts) != 20 {
		t.Fatalf("expected 20 attempts, got %d", len(attempts))
	}
	for i, a := range attempts {
		if a.AttemptNumber != i+1 {
			t.Fatalf("expected contiguous numbering, position %d has %d", i, a.AttemptNumber)
		}
	}
}

func TestUpsertBestIsStrict(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first := domain.LeaderboardEntry{QuizID: "quiz-1", UserID: "u1", Score: 5, TimeTakenSeconds: 50, AttemptID: "a1"}
	if ok, _ := store.UpsertBest(ctx, first); !ok {
		t.Fatalf("first entry should be inserted")
	}
	tie := first
	tie.AttemptID, tie.TimeTakenSeconds = "a2", 10
	if ok, _ := store.UpsertBest(ctx, tie); ok {
		t.Fatalf("tie must not replace entry")
	}
	better := first
	better.Score, better.AttemptID = 6, "a3"
	if ok, _ := store.UpsertBest(ctx, better); !ok {
		t.Fatalf("higher score should replace entry")
	}
	got, _, _ := store.GetEntry(ctx, "quiz-1", "u1")
	if got.AttemptID != "a3" {
		t.Fatalf("expected a3, got %+v", got)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	reg := domain.Registration{QuizID: "quiz-1", UserID: "u1"}

	if _, created, _ := store.Register(ctx, reg); !created {
		t.Fatalf("expected first registration to be created")
	}
	if _, created, _ := store.Register(ctx, reg); created {
		t.Fatalf("expected second registration to be a no-op")
	}
	if n, _ := store.RegistrationCount(ctx, "quiz-1"); n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
}
