package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"quiz-leaderboard-service/internal/auth"
	"quiz-leaderboard-service/internal/config"
	"quiz-leaderboard-service/internal/domain"
)

// NewRegradeCmd re-evaluates stored attempts against the current answer key.
func NewRegradeCmd(configPath *string) *cobra.Command {
	var quizID string
	cmd := &cobra.Command{
		Use:   "regrade",
		Short: "Regrade every attempt of a quiz against its current answer key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			b, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			report, err := newService(cfg, b, logger).Regrade(cmd.Context(), quizID)
			if err != nil {
				return err
			}
			b.warnLocalCache(logger, quizID, config.TTLDuration(cfg.Quiz.TTL, defaultQuizTTL))
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

// NewReconcileCmd replays stored attempts into the leaderboard.
func NewReconcileCmd(configPath *string) *cobra.Command {
	var quizID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild missing or stale leaderboard entries from stored attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			b, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			report, err := newService(cfg, b, logger).Reconcile(cmd.Context(), quizID)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

// NewImportCmd stores a quiz document in the authoring database.
func NewImportCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import or replace a quiz from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var quiz domain.Quiz
			if err := json.Unmarshal(data, &quiz); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}

			logger := newLogger(cfg, cmd.ErrOrStderr())
			b, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.saver == nil {
				return errors.New("import needs postgres.url or the sqlite backend")
			}
			if err := b.saver.SaveQuiz(cmd.Context(), quiz); err != nil {
				return err
			}
			if inv, ok := b.stores.Quizzes.(interface {
				Invalidate(ctx context.Context, quizID string) error
			}); ok {
				if err := inv.Invalidate(cmd.Context(), quiz.ID); err != nil {
					logger.Warn("quiz cache not invalidated", "quiz_id", quiz.ID, "error", err)
				}
			}
			logger.Info("quiz imported", "quiz_id", quiz.ID, "questions", len(quiz.Questions))
			b.warnLocalCache(logger, quiz.ID, config.TTLDuration(cfg.Quiz.TTL, defaultQuizTTL))
			fmt.Fprintln(cmd.OutOrStdout(), quiz.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the quiz JSON document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// NewTokenCmd issues a signed bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		name   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with auth.jwtSecret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := auth.NewAuthenticator(cfg.Auth.JWTSecret).Issue(userID, name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
