// Package release decides whether results and rankings may be shown yet.
package release

import (
	"fmt"
	"time"

	"quiz-leaderboard-service/internal/domain"
)

// State of the gate.
type State int

const (
	Hidden State = iota
	Visible
)

func (s State) String() string {
	if s == Visible {
		return "visible"
	}
	return "hidden"
}

// Decision is the gate outcome. ReleaseAt is zero for Instant policies.
type Decision struct {
	State     State
	ReleaseAt time.Time
}

// Visible reports whether the decision unlocks results.
func (d Decision) Visible() bool { return d.State == Visible }

// ReleaseAt computes when a policy unlocks. Instant policies return ok=false.
func ReleaseAt(policy domain.ReleasePolicy, quizEnd time.Time) (time.Time, bool) {
	switch p := policy.(type) {
	case nil, domain.Instant:
		return time.Time{}, false
	case domain.Scheduled:
		return p.At, true
	case domain.Delayed:
		return quizEnd.Add(p.Offset()), true
	default:
		panic(fmt.Sprintf("release: unhandled policy %T", p))
	}
}

// Evaluate is the gate transition function. It is evaluated on every read so
// policy changes apply retroactively.
func Evaluate(policy domain.ReleasePolicy, now, quizEnd time.Time) Decision {
	at, scheduled := ReleaseAt(policy, quizEnd)
	if !scheduled {
		return Decision{State: Visible}
	}
	if now.Before(at) {
		return Decision{State: Hidden, ReleaseAt: at}
	}
	return Decision{State: Visible, ReleaseAt: at}
}

// ForQuiz evaluates the quiz's configured release setting.
func ForQuiz(quiz domain.Quiz, now time.Time) Decision {
	return Evaluate(quiz.Release.EffectivePolicy(), now, quiz.EndDate)
}
