package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"quiz-leaderboard-service/internal/domain"
)

// Store implements the attempt ledger, leaderboard and registration ports on
// Redis so any number of service instances can share them.
//
// Key layout:
//
//	quiz:{quizID}:attempts                 hash attemptID -> attempt JSON
//	quiz:{quizID}:attempts:{userID}:count  attempts made by the user
//	quiz:{quizID}:leaderboard:{userID}     best entry JSON
//	quiz:{quizID}:leaderboard              set of users with an entry
//	quiz:{quizID}:registrations            hash userID -> registration JSON
//	quiz:{quizID}:registrations:count      registration counter
//
// Read-check-write sequences run under WATCH on the per-user key; a concurrent
// change aborts the transaction and is reported as domain.ErrConflict.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// registerScript adds the registration only if absent and bumps the counter in
// the same step. It returns {created, stored registration}.
var registerScript = redis.NewScript(`
local created = redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2])
if created == 1 then
	redis.call('INCR', KEYS[2])
end
return {created, redis.call('HGET', KEYS[1], ARGV[1])}
`)

func (s *Store) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	n, err := s.client.Get(ctx, attemptCountKey(quizID, userID)).Int()
	if isNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.Attempt, limit int) (domain.Attempt, error) {
	countKey := attemptCountKey(attempt.QuizID, attempt.UserID)
	hashKey := attemptsKey(attempt.QuizID)

	var stored domain.Attempt
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		count, err := tx.Get(ctx, countKey).Int()
		if err != nil && !isNil(err) {
			return err
		}
		if limit > 0 && count >= limit {
			return &domain.AttemptLimitError{Count: count, Limit: limit}
		}
		exists, err := tx.HExists(ctx, hashKey, attempt.ID).Result()
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("attempt %s already stored: %w", attempt.ID, domain.ErrConflict)
		}

		stored = attempt
		stored.AttemptNumber = count + 1
		payload, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("encode attempt: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hashKey, stored.ID, payload)
			pipe.Set(ctx, countKey, stored.AttemptNumber, 0)
			return nil
		})
		return err
	}, countKey)
	if err != nil {
		return domain.Attempt{}, mapTxError(err)
	}
	return stored, nil
}

func (s *Store) GetAttempt(ctx context.Context, quizID, attemptID string) (domain.Attempt, error) {
	payload, err := s.client.HGet(ctx, attemptsKey(quizID), attemptID).Bytes()
	if isNil(err) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	var attempt domain.Attempt
	if err := json.Unmarshal(payload, &attempt); err != nil {
		return domain.Attempt{}, fmt.Errorf("decode attempt %s: %w", attemptID, err)
	}
	return attempt, nil
}

func (s *Store) ListAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	values, err := s.client.HVals(ctx, attemptsKey(quizID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.Attempt, 0, len(values))
	for _, v := range values {
		var a domain.Attempt
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
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

func (s *Store) UpsertBest(ctx context.Context, entry domain.LeaderboardEntry) (bool, error) {
	key := entryKey(entry.QuizID, entry.UserID)

	applied := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, ok, err := readEntry(ctx, tx, key)
		if err != nil {
			return err
		}
		if ok && entry.Score <= current.Score {
			return nil
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, entryUsersKey(entry.QuizID), entry.UserID)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}, key)
	if err != nil {
		return false, mapTxError(err)
	}
	return applied, nil
}

func (s *Store) GetEntry(ctx context.Context, quizID, userID string) (domain.LeaderboardEntry, bool, error) {
	return readEntry(ctx, s.client, entryKey(quizID, userID))
}

func (s *Store) ListEntries(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	users, err := s.client.SMembers(ctx, entryUsersKey(quizID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list leaderboard users: %w", err)
	}
	out := make([]domain.LeaderboardEntry, 0, len(users))
	if len(users) == 0 {
		return out, nil
	}

	keys := make([]string, len(users))
	for i, userID := range users {
		keys[i] = entryKey(quizID, userID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Register(ctx context.Context, reg domain.Registration) (domain.Registration, bool, error) {
	payload, err := json.Marshal(reg)
	if err != nil {
		return domain.Registration{}, false, fmt.Errorf("encode registration: %w", err)
	}
	res, err := registerScript.Run(ctx, s.client,
		[]string{registrationsKey(reg.QuizID), registrationCountKey(reg.QuizID)},
		reg.UserID, payload,
	).Slice()
	if err != nil {
		return domain.Registration{}, false, fmt.Errorf("register: %w", err)
	}
	if len(res) != 2 {
		return domain.Registration{}, false, fmt.Errorf("register: unexpected reply %v", res)
	}
	created, _ := res[0].(int64)
	raw, _ := res[1].(string)

	var stored domain.Registration
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return domain.Registration{}, false, fmt.Errorf("decode registration: %w", err)
	}
	return stored, created == 1, nil
}

func (s *Store) GetRegistration(ctx context.Context, quizID, userID string) (domain.Registration, bool, error) {
	payload, err := s.client.HGet(ctx, registrationsKey(quizID), userID).Bytes()
	if isNil(err) {
		return domain.Registration{}, false, nil
	}
	if err != nil {
		return domain.Registration{}, false, fmt.Errorf("get registration: %w", err)
	}
	var reg domain.Registration
	if err := json.Unmarshal(payload, &reg); err != nil {
		return domain.Registration{}, false, fmt.Errorf("decode registration: %w", err)
	}
	return reg, true, nil
}

func (s *Store) RegistrationCount(ctx context.Context, quizID string) (int64, error) {
	n, err := s.client.Get(ctx, registrationCountKey(quizID)).Int64()
	if isNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("registration count: %w", err)
	}
	return n, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readEntry(ctx context.Context, c getter, key string) (domain.LeaderboardEntry, bool, error) {
	payload, err := c.Get(ctx, key).Bytes()
	if isNil(err) {
		return domain.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("get entry: %w", err)
	}
	var e domain.LeaderboardEntry
	if err := json.Unmarshal(payload, &e); err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("decode entry: %w", err)
	}
	return e, true, nil
}

// mapTxError turns an aborted WATCH transaction into domain.ErrConflict.
func mapTxError(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("redis transaction aborted: %w", domain.ErrConflict)
	}
	return err
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

func attemptsKey(quizID string) string {
	return "quiz:" + quizID + ":attempts"
}

func attemptCountKey(quizID, userID string) string {
	return "quiz:" + quizID + ":attempts:" + userID + ":count"
}

func entryKey(quizID, userID string) string {
	return "quiz:" + quizID + ":leaderboard:" + userID
}

func entryUsersKey(quizID string) string {
	return "quiz:" + quizID + ":leaderboard"
}

func registrationsKey(quizID string) string {
	return "quiz:" + quizID + ":registrations"
}

func registrationCountKey(quizID string) string {
	return "quiz:" + quizID + ":registrations:count"
}
