package cli

import (
	"io"
	"log/slog"
	"strings"

	"quiz-leaderboard-service/internal/config"
)

// newLogger builds the process logger from the log section. Unknown levels
// fall back to info; format "json" selects the JSON handler, anything else text.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "quiz-leaderboard-service")
}
