package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_create_attempts.sql
var createAttemptsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createAttemptsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				DROP TABLE IF EXISTS registration_counts;
				DROP TABLE IF EXISTS registrations;
				DROP TABLE IF EXISTS leaderboard_entries;
				DROP TABLE IF EXISTS attempt_counters;
				DROP TABLE IF EXISTS attempts;`)
			return err
		},
	)
}
