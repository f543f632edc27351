package domain

import (
	"fmt"
	"time"
)

// ChannelSet records which delivery channels a user has enabled.
type ChannelSet struct {
	Socket bool `json:"socket" db:"socket_enabled"`
	Email  bool `json:"email" db:"email_enabled"`
}

// QuietHours is a user-configured daily window during which non-critical
// notifications are deferred. Start and End are "HH:MM" in the given IANA
// timezone; the window may wrap midnight (e.g. 22:00-07:00).
type QuietHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) bool {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return false
	}
	local := t.In(loc)
	start, err1 := parseClock(q.Start)
	end, err2 := parseClock(q.End)
	if err1 != nil || err2 != nil {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	if start <= end {
		return minutes >= start && minutes < end
	}
	// Window wraps midnight.
	return minutes >= start || minutes < end
}

// NextEnd returns the next moment the quiet window closes, strictly after t.
func (q QuietHours) NextEnd(t time.Time) time.Time {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return t
	}
	local := t.In(loc)
	end, err := parseClock(q.End)
	if err != nil {
		return t
	}
	candidate := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// Validate checks the clock strings and timezone.
func (q QuietHours) Validate() error {
	if _, err := parseClock(q.Start); err != nil {
		return &ValidationError{Field: "quiet_hours.start", Reason: err.Error()}
	}
	if _, err := parseClock(q.End); err != nil {
		return &ValidationError{Field: "quiet_hours.end", Reason: err.Error()}
	}
	if _, err := time.LoadLocation(q.Timezone); err != nil {
		return &ValidationError{Field: "quiet_hours.timezone", Reason: "unknown timezone"}
	}
	return nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}

// NotificationPreference is per-user notification configuration. It is
// mutated only through the preference service's Update; everywhere else it
// is read-only.
type NotificationPreference struct {
	UserID         string      `json:"user_id" db:"user_id"`
	ChannelEnabled ChannelSet  `json:"channel_enabled"`
	Thresholds     []int       `json:"thresholds"`
	QuietHours     *QuietHours `json:"quiet_hours,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// DefaultPreference is what a user gets before ever touching their settings.
func DefaultPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:         userID,
		ChannelEnabled: ChannelSet{Socket: true, Email: true},
		Thresholds:     []int{80, 90, 100},
	}
}

// ValidateThresholds enforces the threshold invariant: a non-empty strictly
// ascending list of ints in (0, 100].
func ValidateThresholds(thresholds []int) error {
	if len(thresholds) == 0 {
		return &ValidationError{Field: "thresholds", Reason: "at least one threshold required"}
	}
	prev := 0
	for _, t := range thresholds {
		if t <= 0 || t > 100 {
			return &ValidationError{Field: "thresholds", Reason: fmt.Sprintf("threshold %d outside (0,100]", t)}
		}
		if t <= prev {
			return &ValidationError{Field: "thresholds", Reason: "thresholds must be strictly ascending"}
		}
		prev = t
	}
	return nil
}

// PreferenceUpdate is a partial update to a NotificationPreference. Nil
// fields are left unchanged.
type PreferenceUpdate struct {
	SocketEnabled *bool       `json:"socket_enabled,omitempty"`
	EmailEnabled  *bool       `json:"email_enabled,omitempty"`
	Thresholds    []int       `json:"thresholds,omitempty"`
	QuietHours    *QuietHours `json:"quiet_hours,omitempty"`
	ClearQuiet    bool        `json:"clear_quiet_hours,omitempty"`
}
