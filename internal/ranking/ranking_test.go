package ranking

import (
	"testing"

	"quiz-leaderboard-service/internal/domain"
)

func entry(user string, score, seconds int) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{UserID: user, Score: score, TimeTakenSeconds: seconds}
}

func TestRankOrdersByScoreThenTime(t *testing.T) {
	ranked := Rank([]domain.LeaderboardEntry{
		entry("slow", 8, 300),
		entry("low", 3, 10),
		entry("fast", 8, 120),
	})
	want := []string{"fast", "slow", "low"}
	for i, user := range want {
		if ranked[i].UserID != user || ranked[i].Rank != i+1 {
			t.Fatalf("position %d: expected %s rank %d, got %s rank %d", i, user, i+1, ranked[i].UserID, ranked[i].Rank)
		}
	}
}

func TestRankSharesFullTiesAndSkips(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		entry("a", 10, 60),
		entry("b", 7, 90),
		entry("c", 7, 90),
		entry("d", 7, 95),
	}
	ranked := Rank(entries)
	got := map[string]int{}
	for _, r := range ranked {
		got[r.UserID] = r.Rank
	}
	if got["a"] != 1 || got["b"] != 2 || got["c"] != 2 {
		t.Fatalf("unexpected ranks %v", got)
	}
	if got["d"] != 4 {
		t.Fatalf("entry after a tie should rank 4, got %d", got["d"])
	}

	for user, want := range got {
		rank, total, ok := RankOf(entries, user)
		if !ok || rank != want || total != 4 {
			t.Fatalf("RankOf(%s) = %d/%d ok=%v, want %d/4", user, rank, total, ok, want)
		}
	}
}

func TestRankOfMissingUser(t *testing.T) {
	_, total, ok := RankOf([]domain.LeaderboardEntry{entry("a", 1, 1)}, "ghost")
	if ok || total != 1 {
		t.Fatalf("expected missing user, got ok=%v total=%d", ok, total)
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	entries := []domain.LeaderboardEntry{entry("b", 1, 1), entry("a", 2, 1)}
	_ = Rank(entries)
	if entries[0].UserID != "b" {
		t.Fatalf("input slice reordered")
	}
}
