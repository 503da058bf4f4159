package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Header names carrying remote limit hints
const (
	HeaderRemainingRPM = "X-RateLimit-Remaining-RPM"
	HeaderRemainingRPH = "X-RateLimit-Remaining-RPH"
	HeaderResetRPM     = "X-RateLimit-Reset-RPM"
	HeaderResetRPH     = "X-RateLimit-Reset-RPH"
)

type window struct {
	count   int
	resetAt time.Time
}

func (w *window) reset(now time.Time, length time.Duration) {
	w.count = 0
	w.resetAt = now.Add(length)
}

// Limiter enforces per-minute and per-hour ceilings with fixed windows.
// When either ceiling is reached, Acquire sleeps for the cooldown while holding
// the lock and then resets both windows; waiters resume together afterwards.
type Limiter struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	minute window
	hour   window
}

// NewLimiter creates a limiter with both windows starting now
func NewLimiter(cfg Config, logger zerolog.Logger) *Limiter {
	if cfg.MinuteWindow <= 0 {
		cfg.MinuteWindow = time.Minute
	}
	if cfg.HourWindow <= 0 {
		cfg.HourWindow = time.Hour
	}

	l := &Limiter{
		cfg:    cfg,
		logger: logger.With().Str("component", "rate_limiter").Logger(),
		now:    time.Now,
	}
	now := l.now()
	l.minute.reset(now, cfg.MinuteWindow)
	l.hour.reset(now, cfg.HourWindow)
	return l
}

// Acquire blocks until a permit is available. It returns ctx.Err() without
// consuming a permit if the context ends during the cooldown.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.expire(now)

	if l.minute.count >= l.cfg.MaxRPM || l.hour.count >= l.cfg.MaxRPH {
		l.logger.Warn().
			Int("minute_count", l.minute.count).
			Int("hour_count", l.hour.count).
			Dur("cooldown", l.cfg.Cooldown).
			Msg("Rate limit reached, cooling down")

		timer := time.NewTimer(l.cfg.Cooldown)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		// both windows restart, not only the exhausted one
		now = l.now()
		l.minute.reset(now, l.cfg.MinuteWindow)
		l.hour.reset(now, l.cfg.HourWindow)
	}

	l.minute.count++
	l.hour.count++
	return nil
}

// UpdateFromHints overrides local counters and deadlines with values reported
// by the remote service
func (l *Limiter) UpdateFromHints(h Hints) {
	if h.Empty() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h.RemainingRPM != nil {
		l.minute.count = clamp(l.cfg.MaxRPM-*h.RemainingRPM, 0, l.cfg.MaxRPM)
	}
	if h.RemainingRPH != nil {
		l.hour.count = clamp(l.cfg.MaxRPH-*h.RemainingRPH, 0, l.cfg.MaxRPH)
	}
	if h.ResetRPM != nil {
		l.minute.resetAt = now.Add(*h.ResetRPM)
	}
	if h.ResetRPH != nil {
		l.hour.resetAt = now.Add(*h.ResetRPH)
	}

	l.logger.Debug().
		Int("minute_count", l.minute.count).
		Int("hour_count", l.hour.count).
		Msg("Rate limits synced from remote hints")
}

// Snapshot returns current counts and deadlines
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expire(l.now())
	return Snapshot{
		RequestsThisMinute: l.minute.count,
		RequestsThisHour:   l.hour.count,
		MaxRPM:             l.cfg.MaxRPM,
		MaxRPH:             l.cfg.MaxRPH,
		MinuteResetAt:      l.minute.resetAt,
		HourResetAt:        l.hour.resetAt,
		CooldownSeconds:    l.cfg.Cooldown.Seconds(),
	}
}

func (l *Limiter) expire(now time.Time) {
	if !now.Before(l.minute.resetAt) {
		l.minute.reset(now, l.cfg.MinuteWindow)
	}
	if !now.Before(l.hour.resetAt) {
		l.hour.reset(now, l.cfg.HourWindow)
	}
}

// ParseHints reads remote limit hints from response headers.
// The second return value is false when no hint header was present.
func ParseHints(header http.Header) (Hints, bool) {
	var h Hints
	h.RemainingRPM = headerInt(header, HeaderRemainingRPM)
	h.RemainingRPH = headerInt(header, HeaderRemainingRPH)
	h.ResetRPM = headerSeconds(header, HeaderResetRPM)
	h.ResetRPH = headerSeconds(header, HeaderResetRPH)
	return h, !h.Empty()
}

func headerInt(header http.Header, key string) *int {
	v := header.Get(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func headerSeconds(header http.Header, key string) *time.Duration {
	v := header.Get(key)
	if v == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return nil
	}
	d := time.Duration(secs * float64(time.Second))
	return &d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
