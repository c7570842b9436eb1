package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-leaderboard-service/internal/app"
	"quiz-leaderboard-service/internal/auth"
	"quiz-leaderboard-service/internal/domain"
	"quiz-leaderboard-service/internal/infra/memory"
)

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, quizzes map[string]domain.Quiz) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	service := app.NewQuizService(app.Stores{
		Quizzes:       memory.NewQuizRepository(memory.NewStaticQuizLoader(quizzes), time.Minute),
		Attempts:      store,
		Leaderboard:   store,
		Registrations: store,
	}, app.WithClock(func() time.Time { return testNow }), app.WithLogger(logger))

	handler := NewHandler(service, logger)
	router := NewRouter(handler, NewWSHandler(handler, logger), auth.NewAuthenticator(""), RouterConfig{Logger: logger})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:                "quiz-1",
			StartDate:         testNow.Add(-24 * time.Hour),
			EndDate:           testNow.Add(24 * time.Hour),
			PassingPercentage: 50,
			AttemptLimit:      1,
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Type: domain.SingleChoice,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", IsCorrect: true},
						{ID: "o3", Text: "5"},
					},
					Marks: 1,
				},
			},
		},
		"quiz-review": {
			ID:                "quiz-review",
			StartDate:         testNow.Add(-24 * time.Hour),
			EndDate:           testNow.Add(24 * time.Hour),
			PassingPercentage: 60,
			ShowExplanations:  true,
			Questions: []domain.Question{
				{
					ID:          "q1",
					Text:        "Which are primes?",
					Type:        domain.MultipleChoice,
					Marks:       2,
					Explanation: "2 and 3 have no divisors besides 1 and themselves.",
					Options: []domain.Option{
						{ID: "a", Text: "2", IsCorrect: true},
						{ID: "b", Text: "3", IsCorrect: true},
						{ID: "c", Text: "4"},
					},
				},
				{ID: "q2", Text: "Skip me", Marks: 1, Options: []domain.Option{{ID: "x", IsCorrect: true}, {ID: "y"}}},
			},
		},
		"quiz-reg": {
			ID:                   "quiz-reg",
			StartDate:            testNow.Add(-24 * time.Hour),
			EndDate:              testNow.Add(24 * time.Hour),
			RequiresRegistration: true,
			Release:              domain.ReleaseSetting{Policy: domain.Scheduled{At: testNow.Add(48 * time.Hour)}},
			Questions: []domain.Question{
				{ID: "q1", Marks: 2, Options: []domain.Option{{ID: "a", IsCorrect: true}, {ID: "b"}}},
			},
		},
	}
}

func doJSON(t *testing.T, method, url, user string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(auth.HeaderUserID, user)
		req.Header.Set(auth.HeaderUserName, user+"-name")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func submitBody(options ...string) map[string]any {
	return map[string]any{
		"responses": []map[string]any{{"questionId": "q1", "selectedOptions": options}},
		"timeSpent": 42,
	}
}

func TestSubmitAndReadResult(t *testing.T) {
	server := newTestServer(t, sampleQuizzes())

	var submitted domain.SubmitResult
	if code := doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-1/submit", "u1", submitBody("o2"), &submitted); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if submitted.Score != 1 || !submitted.Passed || submitted.AttemptNumber != 1 || submitted.TimeTaken != 42 {
		t.Fatalf("unexpected submit result %+v", submitted)
	}

	var view domain.ResultView
	url := server.URL + "/quizzes/quiz-1/attempts/" + submitted.AttemptID + "/result"
	if code := doJSON(t, http.MethodGet, url, "u1", nil, &view); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if view.Status != domain.StatusReleased || view.Rank != 1 || view.TotalParticipants != 1 {
		t.Fatalf("unexpected result view %+v", view)
	}

	if code := doJSON(t, http.MethodGet, url, "u2", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's attempt, got %d", code)
	}

	var board domain.LeaderboardView
	if code := doJSON(t, http.MethodGet, server.URL+"/quizzes/quiz-1/leaderboard", "u2", nil, &board); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(board.Entries) != 1 || board.Entries[0].UserID != "u1" || board.Entries[0].DisplayName != "u1-name" {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
}

func TestErrorMapping(t *testing.T) {
	server := newTestServer(t, sampleQuizzes())

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
		code   string
	}{
		{"no identity", http.MethodPost, "/quizzes/quiz-1/submit", "", submitBody("o2"), http.StatusUnauthorized, "unauthorized"},
		{"unknown quiz", http.MethodPost, "/quizzes/nope/submit", "u1", submitBody("o2"), http.StatusNotFound, "quiz_not_found"},
		{"unknown option", http.MethodPost, "/quizzes/quiz-1/submit", "u1", submitBody("zz"), http.StatusBadRequest, "validation_failed"},
		{"negative time", http.MethodPost, "/quizzes/quiz-1/submit", "u1", map[string]any{"timeSpent": -1}, http.StatusBadRequest, "validation_failed"},
		{"missing question id", http.MethodPost, "/quizzes/quiz-1/submit", "u1",
			map[string]any{"responses": []map[string]any{{"selectedOptions": []string{"o1"}}}}, http.StatusBadRequest, "validation_failed"},
		{"not registered", http.MethodPost, "/quizzes/quiz-reg/submit", "u1", submitBody("a"), http.StatusForbidden, "not_registered"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body errorBody
			if code := doJSON(t, tc.method, server.URL+tc.path, tc.user, tc.body, &body); code != tc.status {
				t.Fatalf("expected %d, got %d (%+v)", tc.status, code, body)
			}
			if body.Error != tc.code {
				t.Fatalf("expected error code %s, got %+v", tc.code, body)
			}
		})
	}
}

func TestAttemptLimitPayload(t *testing.T) {
	server := newTestServer(t, sampleQuizzes())

	doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-1/submit", "u1", submitBody("o1"), nil)
	var body errorBody
	if code := doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-1/submit", "u1", submitBody("o2"), &body); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if body.Error != "attempt_limit_exceeded" || body.Count == nil || *body.Count != 1 || body.Limit == nil || *body.Limit != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRegisterThenPendingResult(t *testing.T) {
	server := newTestServer(t, sampleQuizzes())

	var reg domain.RegistrationResult
	if code := doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-reg/register", "u1", nil, &reg); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if reg.AlreadyRegistered || reg.RegistrationCount != 1 {
		t.Fatalf("unexpected registration %+v", reg)
	}
	doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-reg/register", "u1", map[string]any{"displayName": "Alice"}, &reg)
	if !reg.AlreadyRegistered {
		t.Fatalf("expected already registered")
	}

	var submitted domain.SubmitResult
	if code := doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-reg/submit", "u1", submitBody("a"), &submitted); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	var view map[string]any
	url := server.URL + "/quizzes/quiz-reg/attempts/" + submitted.AttemptID + "/result"
	doJSON(t, http.MethodGet, url, "u1", nil, &view)
	if view["status"] != domain.StatusPending || view["releaseAt"] == nil {
		t.Fatalf("expected pending view with releaseAt, got %v", view)
	}
	if _, leaked := view["score"]; leaked {
		t.Fatalf("pending view leaked score: %v", view)
	}

	var board domain.LeaderboardView
	doJSON(t, http.MethodGet, server.URL+"/quizzes/quiz-reg/leaderboard", "u1", nil, &board)
	if board.Status != domain.StatusPending || len(board.Entries) != 0 {
		t.Fatalf("expected hidden leaderboard, got %+v", board)
	}
}

func TestReleasedFailingResultKeepsZeroFields(t *testing.T) {
	server := newTestServer(t, sampleQuizzes())

	var submitted domain.SubmitResult
	body := map[string]any{"responses": []map[string]any{}, "timeSpent": 10}
	if code := doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-review/submit", "u1", body, &submitted); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	var view map[string]any
	url := server.URL + "/quizzes/quiz-review/attempts/" + submitted.AttemptID + "/result"
	if code := doJSON(t, http.MethodGet, url, "u1", nil, &view); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if view["status"] != domain.StatusReleased {
		t.Fatalf("expected released view, got %v", view)
	}
	for _, field := range []string{"score", "percentage", "passed", "correctAnswers", "incorrectAnswers"} {
		if _, ok := view[field]; !ok {
			t.Fatalf("released result is missing %q: %v", field, view)
		}
	}
	if view["score"] != float64(0) || view["percentage"] != float64(0) || view["passed"] != false {
		t.Fatalf("expected a zero, failing result, got %v", view)
	}
}

func TestReviewShowsAnswersAndExplanations(t *testing.T) {
	server := newTestServer(t, sampleQuizzes())

	var submitted domain.SubmitResult
	if code := doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-review/submit", "u1", submitBody("a", "c"), &submitted); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	var review domain.ReviewView
	url := server.URL + "/quizzes/quiz-review/attempts/" + submitted.AttemptID + "/review"
	if code := doJSON(t, http.MethodGet, url, "u1", nil, &review); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if review.Status != domain.StatusReleased || len(review.Questions) != 2 {
		t.Fatalf("unexpected review %+v", review)
	}
	q1, q2 := review.Questions[0], review.Questions[1]
	if q1.Status != domain.ReviewIncorrect || len(q1.SelectedOptionIDs) != 2 || q1.Explanation == "" {
		t.Fatalf("unexpected q1 review %+v", q1)
	}
	if len(q1.CorrectOptionIDs) != 2 || q1.CorrectOptionIDs[0] != "a" || q1.CorrectOptionIDs[1] != "b" {
		t.Fatalf("expected correct options a,b, got %v", q1.CorrectOptionIDs)
	}
	if q2.Status != domain.ReviewSkipped || len(q2.SelectedOptionIDs) != 0 {
		t.Fatalf("unexpected q2 review %+v", q2)
	}

	if code := doJSON(t, http.MethodGet, url, "u2", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 reviewing another user's attempt, got %d", code)
	}
}

func TestReviewIsPendingUntilRelease(t *testing.T) {
	server := newTestServer(t, sampleQuizzes())

	doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-reg/register", "u1", nil, nil)
	var submitted domain.SubmitResult
	doJSON(t, http.MethodPost, server.URL+"/quizzes/quiz-reg/submit", "u1", submitBody("a"), &submitted)

	var review map[string]any
	url := server.URL + "/quizzes/quiz-reg/attempts/" + submitted.AttemptID + "/review"
	if code := doJSON(t, http.MethodGet, url, "u1", nil, &review); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if review["status"] != domain.StatusPending || review["releaseAt"] == nil {
		t.Fatalf("expected pending review, got %v", review)
	}
	if _, leaked := review["questions"]; leaked {
		t.Fatalf("pending review leaked answers: %v", review)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, nil)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
