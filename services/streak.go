package services

import (
	"math"
	"sort"
	"time"
)

// ActivityStreak is a consecutive-calendar-day counter.
type ActivityStreak struct {
	LastVisit *time.Time
	Streak    int
}

// CalendarDay truncates t to midnight in loc.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayKey formats the calendar day of t in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayKey(a, loc) == DayKey(b, loc)
}

// daysBetween counts calendar days from a to b in loc. Works across DST
// changes because both ends are pinned to midnight.
func daysBetween(a, b time.Time, loc *time.Location) int {
	da, db := CalendarDay(a, loc), CalendarDay(b, loc)
	ya, ma, dda := da.Date()
	yb, mb, ddb := db.Date()
	ua := time.Date(ya, ma, dda, 0, 0, 0, 0, time.UTC)
	ub := time.Date(yb, mb, ddb, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// UpdateStreak applies one activity at now to the previous streak.
//   - never visited: 1
//   - same day: unchanged
//   - previous day: +1
//   - anything else: reset to 1
func UpdateStreak(prev ActivityStreak, now time.Time, loc *time.Location) ActivityStreak {
	visit := now
	if prev.LastVisit == nil {
		return ActivityStreak{LastVisit: &visit, Streak: 1}
	}

	switch d := daysBetween(*prev.LastVisit, now, loc); {
	case d <= 0:
		// same day, or a clock that moved backwards
		streak := prev.Streak
		if streak < 1 {
			streak = 1
		}
		return ActivityStreak{LastVisit: prev.LastVisit, Streak: streak}
	case d == 1:
		return ActivityStreak{LastVisit: &visit, Streak: prev.Streak + 1}
	default:
		return ActivityStreak{LastVisit: &visit, Streak: 1}
	}
}

// MultiplierTier applies Factor from MinStreak days upward.
type MultiplierTier struct {
	MinStreak int
	Factor    float64
}

// MultiplierPolicy is a step table of streak tiers.
type MultiplierPolicy struct {
	tiers []MultiplierTier
}

// DefaultMultiplierPolicy: 1.0x below 3 days, 1.1x at 3+, 1.3x at 7+, 1.5x at 10+.
var DefaultMultiplierPolicy = MustMultiplierPolicy([]MultiplierTier{
	{MinStreak: 3, Factor: 1.1},
	{MinStreak: 7, Factor: 1.3},
	{MinStreak: 10, Factor: 1.5},
})

// NewMultiplierPolicy sorts the tiers and rejects tables that would make the
// multiplier decrease or drop below 1.0, or that start at streak 0 or 1.
func NewMultiplierPolicy(tiers []MultiplierTier) (MultiplierPolicy, bool) {
	sorted := append([]MultiplierTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinStreak < sorted[j].MinStreak })

	prev := 1.0
	for i, t := range sorted {
		if t.MinStreak < 2 || t.Factor < prev || math.IsNaN(t.Factor) {
			return MultiplierPolicy{}, false
		}
		if i > 0 && t.MinStreak == sorted[i-1].MinStreak {
			return MultiplierPolicy{}, false
		}
		prev = t.Factor
	}
	return MultiplierPolicy{tiers: sorted}, true
}

func MustMultiplierPolicy(tiers []MultiplierTier) MultiplierPolicy {
	p, ok := NewMultiplierPolicy(tiers)
	if !ok {
		panic("multiplier tiers must be monotonic and start above streak 1")
	}
	return p
}

// For returns the multiplier for a streak length.
func (p MultiplierPolicy) For(streak int) float64 {
	factor := 1.0
	for _, t := range p.tiers {
		if streak < t.MinStreak {
			break
		}
		factor = t.Factor
	}
	return factor
}

// MultiplierForStreak uses DefaultMultiplierPolicy.
func MultiplierForStreak(streak int) float64 {
	return DefaultMultiplierPolicy.For(streak)
}

// EarnedPoints is floor(base * multiplier). The epsilon absorbs binary
// rounding so that 100 * 1.1 yields 110, not 109.
func EarnedPoints(base int64, multiplier float64) int64 {
	if base <= 0 {
		return 0
	}
	return int64(math.Floor(float64(base)*multiplier + 1e-9))
}
