// Package ranking orders leaderboard entries and assigns live ranks.
package ranking

import (
	"sort"

	"quiz-leaderboard-service/internal/domain"
)

// Less is the leaderboard comparator: higher score first, then the faster
// submission.
func Less(a, b domain.LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.TimeTakenSeconds < b.TimeTakenSeconds
}

func equivalent(a, b domain.LeaderboardEntry) bool {
	return a.Score == b.Score && a.TimeTakenSeconds == b.TimeTakenSeconds
}

// Rank sorts a copy of the entries and assigns each one
// 1 + (number of entries strictly ahead of it). Entries that tie on both score
// and time share a rank; the next distinct entry skips accordingly.
func Rank(entries []domain.LeaderboardEntry) []domain.RankedEntry {
	sorted := make([]domain.LeaderboardEntry, len(entries))
	copy(sorted, entries)

	// Stores return entries in no particular order; fix the display order of
	// equivalent entries before the stable sort.
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })
	sort.SliceStable(sorted, func(i, j int) bool { return Less(sorted[i], sorted[j]) })

	ranked := make([]domain.RankedEntry, len(sorted))
	for i, entry := range sorted {
		rank := i + 1
		if i > 0 && equivalent(sorted[i-1], entry) {
			rank = ranked[i-1].Rank
		}
		ranked[i] = domain.RankedEntry{LeaderboardEntry: entry, Rank: rank}
	}
	return ranked
}

// RankOf returns the live rank of userID and the participant count.
func RankOf(entries []domain.LeaderboardEntry, userID string) (rank, total int, ok bool) {
	var target *domain.LeaderboardEntry
	for i := range entries {
		if entries[i].UserID == userID {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return 0, len(entries), false
	}
	ahead := 0
	for _, e := range entries {
		if Less(e, *target) {
			ahead++
		}
	}
	return ahead + 1, len(entries), true
}
