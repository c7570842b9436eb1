package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-leaderboard-service/internal/domain"
)

// Store keeps quizzes, attempts, leaderboard entries and registrations in a
// single SQLite database. It is the embedded backend for single-node
// deployments and local development.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes (id, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		quiz.ID, string(data), toUnix(time.Now()))
	if err != nil {
		return fmt.Errorf("save quiz: %w", mapError(err))
	}
	return nil
}

func (s *Store) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE quiz_id=$1 AND user_id=$2`,
		quizID, userID).Scan(&n)
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
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attempts WHERE quiz_id=$1 AND user_id=$2`,
			attempt.QuizID, attempt.UserID).Scan(&count); err != nil {
			return err
		}
		if limit > 0 && count >= limit {
			return &domain.AttemptLimitError{Count: count, Limit: limit}
		}
		stored.AttemptNumber = count + 1

		_, err := tx.ExecContext(ctx, `INSERT INTO attempts (
				id, quiz_id, user_id, user_name, attempt_number, responses_json,
				score, max_score, percentage, passed, time_spent_seconds,
				started_at, submitted_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			stored.ID, stored.QuizID, stored.UserID, stored.DisplayName, stored.AttemptNumber, string(responses),
			stored.Score, stored.MaxScore, stored.Percentage, stored.Passed, stored.TimeSpentSeconds,
			toUnix(stored.StartedAt), toUnix(stored.SubmittedAt))
		return err
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return stored, nil
}

const attemptColumns = `id, quiz_id, user_id, user_name, attempt_number, responses_json,
	score, max_score, percentage, passed, time_spent_seconds, started_at, submitted_at`

func (s *Store) GetAttempt(ctx context.Context, quizID, attemptID string) (domain.Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id=$1 AND id=$2`,
		quizID, attemptID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", mapError(err))
	}
	return a, nil
}

func (s *Store) ListAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
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
	res, err := s.db.ExecContext(ctx, `INSERT INTO leaderboard_entries (
			quiz_id, user_id, user_name, score, max_score, percentage,
			time_taken_seconds, submitted_at, attempt_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (quiz_id, user_id) DO UPDATE SET
			user_name=excluded.user_name,
			score=excluded.score,
			max_score=excluded.max_score,
			percentage=excluded.percentage,
			time_taken_seconds=excluded.time_taken_seconds,
			submitted_at=excluded.submitted_at,
			attempt_id=excluded.attempt_id
		WHERE leaderboard_entries.score < excluded.score`,
		e.QuizID, e.UserID, e.DisplayName, e.Score, e.MaxScore, e.Percentage,
		e.TimeTakenSeconds, toUnix(e.SubmittedAt), e.AttemptID)
	if err != nil {
		return false, fmt.Errorf("upsert leaderboard entry: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const entryColumns = `quiz_id, user_id, user_name, score, max_score, percentage,
	time_taken_seconds, submitted_at, attempt_id`

func (s *Store) GetEntry(ctx context.Context, quizID, userID string) (domain.LeaderboardEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM leaderboard_entries WHERE quiz_id=$1 AND user_id=$2`,
		quizID, userID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("get leaderboard entry: %w", mapError(err))
	}
	return e, true, nil
}

func (s *Store) ListEntries(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
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
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO registrations (quiz_id, user_id, user_name, registered_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (quiz_id, user_id) DO NOTHING`,
			reg.QuizID, reg.UserID, reg.DisplayName, toUnix(reg.RegisteredAt))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1
		stored, err = scanRegistration(tx.QueryRowContext(ctx,
			`SELECT quiz_id, user_id, user_name, registered_at FROM registrations WHERE quiz_id=$1 AND user_id=$2`,
			reg.QuizID, reg.UserID))
		return err
	})
	if err != nil {
		return domain.Registration{}, false, fmt.Errorf("register: %w", err)
	}
	return stored, created, nil
}

func (s *Store) GetRegistration(ctx context.Context, quizID, userID string) (domain.Registration, bool, error) {
	reg, err := scanRegistration(s.db.QueryRowContext(ctx,
		`SELECT quiz_id, user_id, user_name, registered_at FROM registrations WHERE quiz_id=$1 AND user_id=$2`,
		quizID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, false, nil
	}
	if err != nil {
		return domain.Registration{}, false, fmt.Errorf("get registration: %w", mapError(err))
	}
	return reg, true, nil
}

func (s *Store) RegistrationCount(ctx context.Context, quizID string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE quiz_id=$1`, quizID).Scan(&n); err != nil {
		return 0, fmt.Errorf("registration count: %w", mapError(err))
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (domain.Attempt, error) {
	var (
		a                      domain.Attempt
		responses              string
		startedAt, submittedAt int64
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.DisplayName, &a.AttemptNumber, &responses,
		&a.Score, &a.MaxScore, &a.Percentage, &a.Passed, &a.TimeSpentSeconds, &startedAt, &submittedAt)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := json.Unmarshal([]byte(responses), &a.Responses); err != nil {
		return domain.Attempt{}, fmt.Errorf("decode responses: %w", err)
	}
	a.StartedAt = fromUnix(startedAt)
	a.SubmittedAt = fromUnix(submittedAt)
	return a, nil
}

func scanEntry(row scanner) (domain.LeaderboardEntry, error) {
	var (
		e           domain.LeaderboardEntry
		submittedAt int64
	)
	err := row.Scan(&e.QuizID, &e.UserID, &e.DisplayName, &e.Score, &e.MaxScore, &e.Percentage,
		&e.TimeTakenSeconds, &submittedAt, &e.AttemptID)
	e.SubmittedAt = fromUnix(submittedAt)
	return e, err
}

func scanRegistration(row scanner) (domain.Registration, error) {
	var (
		reg          domain.Registration
		registeredAt int64
	)
	err := row.Scan(&reg.QuizID, &reg.UserID, &reg.DisplayName, &registeredAt)
	reg.RegisteredAt = fromUnix(registeredAt)
	return reg, err
}
