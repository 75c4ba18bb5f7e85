// Package ratelimit enforces per-platform application throughput limits:
// rolling minute/hour/day counters plus a cooldown window that opens as
// soon as any ceiling is hit.
//
// One Limiter is the single authoritative counter set for the process;
// independent workflow sessions targeting the same platform share it.
// State is process-lifetime only — a restart forgets counters and the
// cooldown is re-earned on the next burst.
package ratelimit

import (
	"sync"
	"time"
)

// Limits are the per-platform ceilings. A zero ceiling disables that window.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

func (l *Limits) defaults() {
	if l.PerMinute <= 0 {
		l.PerMinute = 5
	}
	if l.PerHour <= 0 {
		l.PerHour = 30
	}
	if l.PerDay <= 0 {
		l.PerDay = 100
	}
}

type window struct {
	count   int
	resetAt time.Time
	period  time.Duration
	limit   int
}

// touch lazily resets the window if its period has elapsed, then reports
// whether one more action would stay under the ceiling.
func (w *window) touch(now time.Time) bool {
	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(w.period)
	}
	return w.count < w.limit
}

type platformState struct {
	minute        window
	hour          window
	day           window
	cooldownUntil time.Time
}

// Limiter tracks per-platform counters. Safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	limits    Limits
	platforms map[string]*platformState
	now       func() time.Time // test hook
}

// New creates a Limiter with the given ceilings applied to every platform.
func New(limits Limits) *Limiter {
	limits.defaults()
	return &Limiter{
		limits:    limits,
		platforms: make(map[string]*platformState),
		now:       time.Now,
	}
}

// CheckAndConsume records one action against platform's counters if all
// windows have headroom. When a ceiling is hit (or a cooldown is already
// open) it returns allowed=false and the remaining wait.
func (l *Limiter) CheckAndConsume(platform string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := l.platforms[platform]
	if st == nil {
		st = &platformState{
			minute: window{period: time.Minute, limit: l.limits.PerMinute, resetAt: now.Add(time.Minute)},
			hour:   window{period: time.Hour, limit: l.limits.PerHour, resetAt: now.Add(time.Hour)},
			day:    window{period: 24 * time.Hour, limit: l.limits.PerDay, resetAt: now.Add(24 * time.Hour)},
		}
		l.platforms[platform] = st
	}

	if now.Before(st.cooldownUntil) {
		return false, st.cooldownUntil.Sub(now)
	}

	// All three windows must have headroom before any of them is charged.
	okMin := st.minute.touch(now)
	okHour := st.hour.touch(now)
	okDay := st.day.touch(now)

	if !okMin || !okHour || !okDay {
		// Cooldown spans the shortest window that is full.
		switch {
		case !okMin:
			st.cooldownUntil = now.Add(st.minute.period)
		case !okHour:
			st.cooldownUntil = now.Add(st.hour.period)
		default:
			st.cooldownUntil = now.Add(st.day.period)
		}
		return false, st.cooldownUntil.Sub(now)
	}

	st.minute.count++
	st.hour.count++
	st.day.count++
	return true, 0
}

// State is a read-only snapshot of one platform's counters.
type State struct {
	MinuteCount   int
	HourCount     int
	DayCount      int
	CooldownUntil time.Time
}

// Snapshot returns the current counters for platform. Zero value if the
// platform has never been charged.
func (l *Limiter) Snapshot(platform string) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.platforms[platform]
	if st == nil {
		return State{}
	}
	return State{
		MinuteCount:   st.minute.count,
		HourCount:     st.hour.count,
		DayCount:      st.day.count,
		CooldownUntil: st.cooldownUntil,
	}
}
