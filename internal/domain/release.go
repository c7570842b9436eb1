package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReleasePolicy decides when results and rankings become visible.
// Implementations are Instant, Scheduled and Delayed.
type ReleasePolicy interface {
	releasePolicy()
}

// Instant releases results as soon as they exist.
type Instant struct{}

// Scheduled releases results at a fixed moment.
type Scheduled struct {
	At time.Time
}

// Delayed releases results a number of hours after the quiz ends.
type Delayed struct {
	HoursAfterEnd float64
}

func (Instant) releasePolicy()   {}
func (Scheduled) releasePolicy() {}
func (Delayed) releasePolicy()   {}

// Offset returns the delay as a duration.
func (d Delayed) Offset() time.Duration {
	return time.Duration(d.HoursAfterEnd * float64(time.Hour))
}

const (
	releaseInstant   = "instant"
	releaseScheduled = "scheduled"
	releaseDelayed   = "delayed"
)

// ReleaseSetting wraps a policy with its leaderboard audience restriction and
// owns the wire encoding of the policy.
type ReleaseSetting struct {
	Policy           ReleasePolicy
	ParticipantsOnly bool
}

// EffectivePolicy returns the configured policy, defaulting to Instant.
func (s ReleaseSetting) EffectivePolicy() ReleasePolicy {
	if s.Policy == nil {
		return Instant{}
	}
	return s.Policy
}

type releaseWire struct {
	Type                   string     `json:"type"`
	ScheduledDate          *time.Time `json:"scheduledDate,omitempty"`
	DelayHours             *float64   `json:"delayHours,omitempty"`
	ShowToParticipantsOnly bool       `json:"showToParticipantsOnly,omitempty"`
}

func (s ReleaseSetting) MarshalJSON() ([]byte, error) {
	wire := releaseWire{ShowToParticipantsOnly: s.ParticipantsOnly}
	switch p := s.EffectivePolicy().(type) {
	case Instant:
		wire.Type = releaseInstant
	case Scheduled:
		at := p.At
		wire.Type = releaseScheduled
		wire.ScheduledDate = &at
	case Delayed:
		hours := p.HoursAfterEnd
		wire.Type = releaseDelayed
		wire.DelayHours = &hours
	default:
		return nil, fmt.Errorf("unsupported release policy %T", p)
	}
	return json.Marshal(wire)
}

func (s *ReleaseSetting) UnmarshalJSON(data []byte) error {
	var wire releaseWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.ParticipantsOnly = wire.ShowToParticipantsOnly
	switch wire.Type {
	case "", releaseInstant:
		s.Policy = Instant{}
	case releaseScheduled:
		if wire.ScheduledDate == nil {
			return NewValidationError("leaderboardSettings.scheduledDate", "scheduled release needs a date")
		}
		s.Policy = Scheduled{At: *wire.ScheduledDate}
	case releaseDelayed:
		hours := 0.0
		if wire.DelayHours != nil {
			hours = *wire.DelayHours
		}
		if hours < 0 {
			return NewValidationError("leaderboardSettings.delayHours", "delay cannot be negative")
		}
		s.Policy = Delayed{HoursAfterEnd: hours}
	default:
		return NewValidationError("leaderboardSettings.type", fmt.Sprintf("unknown release type %q", wire.Type))
	}
	return nil
}
