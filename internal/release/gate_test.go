package release

import (
	"testing"
	"time"

	"quiz-leaderboard-service/internal/domain"
)

func TestInstantAlwaysVisible(t *testing.T) {
	end := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, now := range []time.Time{end.Add(-time.Hour), end, end.Add(time.Hour)} {
		if d := Evaluate(domain.Instant{}, now, end); !d.Visible() {
			t.Fatalf("instant hidden at %s", now)
		}
	}
	if d := Evaluate(nil, end, end); !d.Visible() {
		t.Fatalf("nil policy should behave as instant")
	}
}

func TestScheduledBoundary(t *testing.T) {
	at := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	policy := domain.Scheduled{At: at}

	before := Evaluate(policy, at.Add(-time.Nanosecond), time.Time{})
	if before.Visible() {
		t.Fatalf("expected hidden before scheduled time")
	}
	if !before.ReleaseAt.Equal(at) {
		t.Fatalf("expected release at %s, got %s", at, before.ReleaseAt)
	}
	if d := Evaluate(policy, at, time.Time{}); !d.Visible() {
		t.Fatalf("expected visible exactly at scheduled time")
	}
}

func TestDelayedBoundary(t *testing.T) {
	end := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := domain.Delayed{HoursAfterEnd: 24}
	unlock := end.Add(24 * time.Hour)

	if d := Evaluate(policy, unlock.Add(-time.Second), end); d.Visible() || !d.ReleaseAt.Equal(unlock) {
		t.Fatalf("expected hidden until %s, got %+v", unlock, d)
	}
	if d := Evaluate(policy, unlock, end); !d.Visible() {
		t.Fatalf("expected visible exactly at end + delay")
	}
}

func TestForQuizUsesConfiguredPolicy(t *testing.T) {
	end := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	quiz := domain.Quiz{
		EndDate: end,
		Release: domain.ReleaseSetting{Policy: domain.Delayed{HoursAfterEnd: 1.5}},
	}
	d := ForQuiz(quiz, end.Add(time.Hour))
	if d.Visible() || !d.ReleaseAt.Equal(end.Add(90*time.Minute)) {
		t.Fatalf("unexpected decision %+v", d)
	}
}
