package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-leaderboard-service/internal/domain"
)

// Postgres error codes reported as domain.ErrConflict.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// Store implements the attempt ledger, leaderboard and registration ports on
// Postgres. Attempt numbering serializes on a per-user counter row locked with
// SELECT ... FOR UPDATE, and the leaderboard compare-and-swap is a single
// conditional upsert.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT attempts FROM attempt_counters WHERE quiz_id=$1 AND user_id=$2`,
		quizID, userID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", mapError(err))
	}
	return n, nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.Attempt, limit int) (domain.Attempt, error) {
	responses, err := json.Marshal(attempt.Responses)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("encode responses: %w", err)
	}

	stored := attempt
	err = s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO attempt_counters (quiz_id, user_id, attempts) VALUES ($1, $2, 0)
			ON CONFLICT (quiz_id, user_id) DO NOTHING`,
			attempt.QuizID, attempt.UserID); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `
			SELECT attempts FROM attempt_counters
			WHERE quiz_id=$1 AND user_id=$2
			FOR UPDATE`,
			attempt.QuizID, attempt.UserID).Scan(&count); err != nil {
			return err
		}
		if limit > 0 && count >= limit {
			return &domain.AttemptLimitError{Count: count, Limit: limit}
		}
		stored.AttemptNumber = count + 1

		if _, err := tx.Exec(ctx, `
			INSERT INTO attempts (
				id, quiz_id, user_id, user_name, attempt_number, responses,
				score, max_score, percentage, passed, time_spent_seconds,
				started_at, submitted_at
			) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13)`,
			stored.ID, stored.QuizID, stored.UserID, stored.DisplayName, stored.AttemptNumber, string(responses),
			stored.Score, stored.MaxScore, stored.Percentage, stored.Passed, stored.TimeSpentSeconds,
			stored.StartedAt, stored.SubmittedAt); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`UPDATE attempt_counters SET attempts=$3 WHERE quiz_id=$1 AND user_id=$2`,
			attempt.QuizID, attempt.UserID, stored.AttemptNumber)
		return err
	})
	if err != nil {
		return domain.Attempt{}, mapError(err)
	}
	return stored, nil
}

const attemptColumns = `id, quiz_id, user_id, user_name, attempt_number, responses,
	score, max_score, percentage, passed, time_spent_seconds, started_at, submitted_at`

func (s *Store) GetAttempt(ctx context.Context, quizID, attemptID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id=$1 AND id=$2`,
		quizID, attemptID)
	attempt, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", mapError(err))
	}
	return attempt, nil
}

func (s *Store) ListAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id=$1 ORDER BY user_id, attempt_number`,
		quizID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", mapError(err))
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpsertBest(ctx context.Context, e domain.LeaderboardEntry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO leaderboard_entries (
			quiz_id, user_id, user_name, score, max_score, percentage,
			time_taken_seconds, submitted_at, attempt_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (quiz_id, user_id) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			score = EXCLUDED.score,
			max_score = EXCLUDED.max_score,
			percentage = EXCLUDED.percentage,
			time_taken_seconds = EXCLUDED.time_taken_seconds,
			submitted_at = EXCLUDED.submitted_at,
			attempt_id = EXCLUDED.attempt_id
		WHERE leaderboard_entries.score < EXCLUDED.score`,
		e.QuizID, e.UserID, e.DisplayName, e.Score, e.MaxScore, e.Percentage,
		e.TimeTakenSeconds, e.SubmittedAt, e.AttemptID)
	if err != nil {
		return false, fmt.Errorf("upsert leaderboard entry: %w", mapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

const entryColumns = `quiz_id, user_id, user_name, score, max_score, percentage,
	time_taken_seconds, submitted_at, attempt_id`

func (s *Store) GetEntry(ctx context.Context, quizID, userID string) (domain.LeaderboardEntry, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM leaderboard_entries WHERE quiz_id=$1 AND user_id=$2`,
		quizID, userID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("get leaderboard entry: %w", mapError(err))
	}
	return e, true, nil
}

func (s *Store) ListEntries(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM leaderboard_entries WHERE quiz_id=$1`,
		quizID)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", mapError(err))
	}
	defer rows.Close()

	out := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Register(ctx context.Context, reg domain.Registration) (domain.Registration, bool, error) {
	var (
		stored  domain.Registration
		created bool
	)
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO registrations (quiz_id, user_id, user_name, registered_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (quiz_id, user_id) DO NOTHING`,
			reg.QuizID, reg.UserID, reg.DisplayName, reg.RegisteredAt)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		if created {
			if _, err := tx.Exec(ctx, `
				INSERT INTO registration_counts (quiz_id, registrations) VALUES ($1, 1)
				ON CONFLICT (quiz_id) DO UPDATE SET registrations = registration_counts.registrations + 1`,
				reg.QuizID); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `
			SELECT quiz_id, user_id, user_name, registered_at
			FROM registrations WHERE quiz_id=$1 AND user_id=$2`,
			reg.QuizID, reg.UserID).Scan(&stored.QuizID, &stored.UserID, &stored.DisplayName, &stored.RegisteredAt)
	})
	if err != nil {
		return domain.Registration{}, false, fmt.Errorf("register: %w", mapError(err))
	}
	return stored, created, nil
}

func (s *Store) GetRegistration(ctx context.Context, quizID, userID string) (domain.Registration, bool, error) {
	var reg domain.Registration
	err := s.pool.QueryRow(ctx, `
		SELECT quiz_id, user_id, user_name, registered_at
		FROM registrations WHERE quiz_id=$1 AND user_id=$2`,
		quizID, userID).Scan(&reg.QuizID, &reg.UserID, &reg.DisplayName, &reg.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Registration{}, false, nil
	}
	if err != nil {
		return domain.Registration{}, false, fmt.Errorf("get registration: %w", mapError(err))
	}
	return reg, true, nil
}

func (s *Store) RegistrationCount(ctx context.Context, quizID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT registrations FROM registration_counts WHERE quiz_id=$1`,
		quizID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("registration count: %w", mapError(err))
	}
	return n, nil
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		a         domain.Attempt
		responses []byte
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.DisplayName, &a.AttemptNumber, &responses,
		&a.Score, &a.MaxScore, &a.Percentage, &a.Passed, &a.TimeSpentSeconds, &a.StartedAt, &a.SubmittedAt)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := json.Unmarshal(responses, &a.Responses); err != nil {
		return domain.Attempt{}, fmt.Errorf("decode responses: %w", err)
	}
	return a, nil
}

func scanEntry(row pgx.Row) (domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	err := row.Scan(&e.QuizID, &e.UserID, &e.DisplayName, &e.Score, &e.MaxScore, &e.Percentage,
		&e.TimeTakenSeconds, &e.SubmittedAt, &e.AttemptID)
	return e, err
}

// mapError reports serialization failures, deadlocks and unique violations as
// domain.ErrConflict so callers can retry them.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return fmt.Errorf("%s: %w", pgErr.Message, domain.ErrConflict)
	}
	return err
}
