package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-leaderboard-service/internal/domain"
)

type userKey struct {
	quizID string
	userID string
}

// Store is an in-process implementation of the attempt ledger, leaderboard and
// registration ports. Each operation holds the mutex across its whole
// read-check-write, which gives the same guarantees the database adapters get
// from transactions. It is meant for tests and single-instance deployments.
type Store struct {
	mu sync.Mutex

	attempts      map[string]map[string]domain.Attempt // quizID -> attemptID -> attempt
	attemptCounts map[userKey]int
	entries       map[userKey]domain.LeaderboardEntry
	registrations map[userKey]domain.Registration
	regCounts     map[string]int64
}

func NewStore() *Store {
	return &Store{
		attempts:      make(map[string]map[string]domain.Attempt),
		attemptCounts: make(map[userKey]int),
		entries:       make(map[userKey]domain.LeaderboardEntry),
		registrations: make(map[userKey]domain.Registration),
		regCounts:     make(map[string]int64),
	}
}

func (s *Store) CountAttempts(_ context.Context, quizID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptCounts[userKey{quizID, userID}], nil
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.Attempt, limit int) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey{attempt.QuizID, attempt.UserID}
	count := s.attemptCounts[key]
	if limit > 0 && count >= limit {
		return domain.Attempt{}, &domain.AttemptLimitError{Count: count, Limit: limit}
	}

	byID, ok := s.attempts[attempt.QuizID]
	if !ok {
		byID = make(map[string]domain.Attempt)
		s.attempts[attempt.QuizID] = byID
	}
	if _, dup := byID[attempt.ID]; dup {
		return domain.Attempt{}, domain.ErrConflict
	}

	attempt.AttemptNumber = count + 1
	attempt.Responses = append([]domain.Response(nil), attempt.Responses...)
	byID[attempt.ID] = attempt
	s.attemptCounts[key] = attempt.AttemptNumber
	return attempt, nil
}

func (s *Store) GetAttempt(_ context.Context, quizID, attemptID string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[quizID][attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Store) ListAttempts(_ context.Context, quizID string) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Attempt, 0, len(s.attempts[quizID]))
	for _, a := range s.attempts[quizID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

func (s *Store) UpsertBest(_ context.Context, entry domain.LeaderboardEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey{entry.QuizID, entry.UserID}
	if existing, ok := s.entries[key]; ok && entry.Score <= existing.Score {
		return false, nil
	}
	s.entries[key] = entry
	return true, nil
}

func (s *Store) GetEntry(_ context.Context, quizID, userID string) (domain.LeaderboardEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[userKey{quizID, userID}]
	return entry, ok, nil
}

func (s *Store) ListEntries(_ context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LeaderboardEntry, 0)
	for key, entry := range s.entries {
		if key.quizID == quizID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Store) Register(_ context.Context, reg domain.Registration) (domain.Registration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey{reg.QuizID, reg.UserID}
	if existing, ok := s.registrations[key]; ok {
		return existing, false, nil
	}
	s.registrations[key] = reg
	s.regCounts[reg.QuizID]++
	return reg, true, nil
}

func (s *Store) GetRegistration(_ context.Context, quizID, userID string) (domain.Registration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[userKey{quizID, userID}]
	return reg, ok, nil
}

func (s *Store) RegistrationCount(_ context.Context, quizID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regCounts[quizID], nil
}
