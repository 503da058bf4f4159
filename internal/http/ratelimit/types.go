package ratelimit

import "time"

// Config holds the outbound request ceilings
type Config struct {
	MaxRPM   int           `json:"maxRpm"`
	MaxRPH   int           `json:"maxRph"`
	Cooldown time.Duration `json:"cooldown"`

	// Window lengths; zero means one minute and one hour
	MinuteWindow time.Duration `json:"-"`
	HourWindow   time.Duration `json:"-"`
}

// DefaultConfig returns the default rate limit configuration
func DefaultConfig() Config {
	return Config{
		MaxRPM:       60,
		MaxRPH:       1000,
		Cooldown:     30 * time.Second,
		MinuteWindow: time.Minute,
		HourWindow:   time.Hour,
	}
}

// Hints are authoritative limit signals reported by the remote service.
// Nil fields leave the local bookkeeping untouched.
type Hints struct {
	RemainingRPM *int
	RemainingRPH *int
	ResetRPM     *time.Duration
	ResetRPH     *time.Duration
}

// Empty reports whether no hint was present
func (h Hints) Empty() bool {
	return h.RemainingRPM == nil && h.RemainingRPH == nil && h.ResetRPM == nil && h.ResetRPH == nil
}

// Snapshot is a point-in-time view of the limiter
type Snapshot struct {
	RequestsThisMinute int       `json:"requests_this_minute"`
	RequestsThisHour   int       `json:"requests_this_hour"`
	MaxRPM             int       `json:"max_rpm"`
	MaxRPH             int       `json:"max_rph"`
	MinuteResetAt      time.Time `json:"minute_reset_at"`
	HourResetAt        time.Time `json:"hour_reset_at"`
	CooldownSeconds    float64   `json:"cooldown_seconds"`
}
