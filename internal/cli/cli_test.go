package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quiz-leaderboard-service/internal/app"
	"quiz-leaderboard-service/internal/auth"
	"quiz-leaderboard-service/internal/config"
	"quiz-leaderboard-service/internal/domain"
	"quiz-leaderboard-service/internal/infra/memory"
	sqlitestore "quiz-leaderboard-service/internal/infra/sqlite"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIWithLog(t, io.Discard, args...)
}

func runCLIWithLog(t *testing.T, logs io.Writer, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(logs)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func activeQuiz(correct string) domain.Quiz {
	now := time.Now().UTC()
	return domain.Quiz{
		ID:        "cli-quiz",
		Title:     "CLI",
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(time.Hour),
		Questions: []domain.Question{{
			ID:    "q1",
			Type:  domain.SingleChoice,
			Marks: 2,
			Options: []domain.Option{
				{ID: "o1", IsCorrect: correct == "o1"},
				{ID: "o2", IsCorrect: correct == "o2"},
			},
		}},
	}
}

func quizFile(t *testing.T, dir string, quiz domain.Quiz) string {
	t.Helper()
	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	return writeFile(t, dir, "quiz.json", string(data))
}

func TestImportThenRegradeOnSQLite(t *testing.T) {
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "quiz.db") + "?_pragma=busy_timeout(5000)&_txlock=immediate"
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf("store:\n  backend: sqlite\nsqlite:\n  dsn: %q\n", dsn))

	if out, err := runCLI(t, "--config", cfgPath, "import", "--file", quizFile(t, dir, activeQuiz("o1"))); err != nil {
		t.Fatalf("import: %v", err)
	} else if strings.TrimSpace(out) != "cli-quiz" {
		t.Fatalf("unexpected import output %q", out)
	}

	ctx := context.Background()
	db, err := sqlitestore.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := sqlitestore.NewStore(db)
	service := app.NewQuizService(app.Stores{
		Quizzes:       memory.NewQuizRepository(store, time.Minute),
		Attempts:      store,
		Leaderboard:   store,
		Registrations: store,
	})
	res, err := service.Submit(ctx, app.SubmitRequest{
		QuizID:    "cli-quiz",
		UserID:    "alice",
		Responses: []domain.Response{{QuestionID: "q1", SelectedOptionIDs: []string{"o2"}}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 0 {
		t.Fatalf("expected wrong answer under the first key, got %d", res.Score)
	}
	_ = db.Close()

	if _, err := runCLI(t, "--config", cfgPath, "import", "--file", quizFile(t, dir, activeQuiz("o2"))); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	out, err := runCLI(t, "--config", cfgPath, "regrade", "--quiz", "cli-quiz")
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	var report app.RegradeReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if report.Attempts != 1 || report.Changed != 1 || report.Updated != 1 {
		t.Fatalf("unexpected regrade report %+v", report)
	}

	out, err = runCLI(t, "--config", cfgPath, "reconcile", "--quiz", "cli-quiz")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	var rec app.ReconcileReport
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if rec.Attempts != 1 || rec.Updated != 0 {
		t.Fatalf("reconcile should find nothing to do, got %+v", rec)
	}
}

func TestImportWarnsAboutInProcessCache(t *testing.T) {
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "quiz.db") + "?_pragma=busy_timeout(5000)&_txlock=immediate"
	cfgPath := writeFile(t, dir, "config.yaml",
		fmt.Sprintf("store:\n  backend: sqlite\nsqlite:\n  dsn: %q\nquiz:\n  ttl: 2m\nlog:\n  format: json\n", dsn))

	var logs bytes.Buffer
	if _, err := runCLIWithLog(t, &logs, "--config", cfgPath, "import", "--file", quizFile(t, dir, activeQuiz("o1"))); err != nil {
		t.Fatalf("import: %v", err)
	}
	var warned bool
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line %q is not JSON: %v", line, err)
		}
		if rec["level"] == "WARN" && strings.HasPrefix(rec["msg"].(string), "quiz cache is in-process") {
			warned = rec["quiz_id"] == "cli-quiz"
		}
	}
	if !warned {
		t.Fatalf("expected an in-process cache warning, got logs:\n%s", logs.String())
	}
}

func TestImportNeedsAuthoringStore(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "store:\n  backend: memory\n")
	if _, err := runCLI(t, "--config", cfgPath, "import", "--file", quizFile(t, dir, activeQuiz("o1"))); err == nil {
		t.Fatalf("expected import to fail on the memory backend")
	}
}

func TestRegradeRequiresQuizFlag(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "store:\n  backend: memory\n")
	if _, err := runCLI(t, "--config", cfgPath, "regrade"); err == nil {
		t.Fatalf("expected missing --quiz to fail")
	}
}

func TestTokenIsAcceptedByAuthenticator(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "auth:\n  jwtSecret: cli-secret\n")

	out, err := runCLI(t, "--config", cfgPath, "token", "--user", "u1", "--name", "Alice", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req := httptest.NewRequest("GET", "/quizzes/quiz-1/leaderboard", nil)
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(out))
	id, err := auth.NewAuthenticator("cli-secret").Identify(req)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if id.UserID != "u1" || id.DisplayName != "Alice" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestSampleQuizzesAreValid(t *testing.T) {
	for id, quiz := range sampleQuizzes() {
		if err := quiz.Validate(); err != nil {
			t.Fatalf("sample %s: %v", id, err)
		}
		if !quiz.Active(time.Now()) {
			t.Fatalf("sample %s should be active", id)
		}
	}
}

func TestNewLoggerHonoursLevelAndFormat(t *testing.T) {
	var cfg config.Config
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	logger := newLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "quiz_id", "quiz-1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn: %s", out)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(out), &line); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", out, err)
	}
	if line["msg"] != "shown" || line["quiz_id"] != "quiz-1" {
		t.Fatalf("unexpected log line %v", line)
	}
}
