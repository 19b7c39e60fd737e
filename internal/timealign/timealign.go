// Package timealign provides the time zone and calendar boundary arithmetic
// the calculation core is built on. Storage and transport are UTC; business
// boundaries ("per day", "per month") are defined in a named region time
// zone; sub-day rolling windows are continuous elapsed UTC time. Keeping
// these three calendars straight is this package's whole job.
//
// All functions are pure. Callers resolve a *time.Location once via LoadZone
// and pass it down.
package timealign

import (
	"time"

	"indexcover/internal/types"
)

// LoadZone resolves an IANA zone name against the zone database. An unknown
// or empty name is a fatal input error.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, types.NewAppError(types.ErrCodeConfigMissingTimezone, "region timezone is required", nil)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInputUnknownTimezone,
			"unknown timezone", err, map[string]any{"timezone": name})
	}
	return loc, nil
}

// ToRegionTime converts a UTC instant into the region's wall clock.
func ToRegionTime(t time.Time, loc *time.Location) time.Time {
	return t.In(loc)
}

// ToUTC converts any instant back to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// AlignToNaturalDayStart returns the UTC instant of 00:00:00 on t's calendar
// day as observed in loc.
func AlignToNaturalDayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
}

// AlignToNaturalDayEnd returns the UTC instant one microsecond before the
// next day's start in loc, i.e. 23:59:59.999999 local.
func AlignToNaturalDayEnd(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	nextDay := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return nextDay.Add(-time.Microsecond).UTC()
}

// AlignToNaturalMonthStart returns the UTC instant of day 1, 00:00:00 of t's
// calendar month as observed in loc.
func AlignToNaturalMonthStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).UTC()
}

// NaturalDateKey returns the region-local calendar date as "2006-01-02".
// This is the grouping key for once-per-day frequency periods.
func NaturalDateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// NaturalMonthKey returns the region-local calendar month as "2006-01".
// This is the grouping key for once-per-month frequency periods.
func NaturalMonthKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}

// SameNaturalDay reports whether two UTC instants fall on the same calendar
// day as observed in loc.
func SameNaturalDay(a, b time.Time, loc *time.Location) bool {
	return NaturalDateKey(a, loc) == NaturalDateKey(b, loc)
}

// SameNaturalMonth reports whether two UTC instants fall in the same
// calendar month as observed in loc.
func SameNaturalMonth(a, b time.Time, loc *time.Location) bool {
	la, lb := a.In(loc), b.In(loc)
	return la.Year() == lb.Year() && la.Month() == lb.Month()
}

// NaturalDayRange returns the UTC bounds of the calendar day containing t in
// loc: [00:00:00, 23:59:59.999999] local.
func NaturalDayRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	return AlignToNaturalDayStart(t, loc), AlignToNaturalDayEnd(t, loc)
}

// NaturalMonthRange returns the UTC bounds of the calendar month containing
// t in loc. The end is one microsecond before the next month's day 1.
func NaturalMonthRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := AlignToNaturalMonthStart(t, loc)
	local := t.In(loc)
	year, month := local.Year(), local.Month()
	if month == time.December {
		year, month = year+1, time.January
	} else {
		month++
	}
	nextStart := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, nextStart.Add(-time.Microsecond).UTC()
}

// CalculationRange pairs the caller's display range with the extended
// computation range that reaches back far enough for boundary-spanning
// aggregates. The extension is a computation aid only and never leaks into
// output.
type CalculationRange struct {
	CalcStart    time.Time
	CalcEnd      time.Time
	DisplayStart time.Time
	DisplayEnd   time.Time
}

// ExtensionHours reports how far the calculation range reaches before the
// display range.
func (r CalculationRange) ExtensionHours() float64 {
	return r.DisplayStart.Sub(r.CalcStart).Hours()
}

// ExtendedRange computes the calculation range for a display range and a
// window configuration.
//
// Hourly windows subtract exact elapsed hours with no boundary snapping.
// Daily and weekly windows subtract whole days/weeks of elapsed time, then
// snap to the natural day start in loc. Monthly windows walk back whole
// calendar months in loc and snap to day 1, 00:00:00 local. The asymmetry
// is a hard design rule: sub-day rolling sums run on continuous time while
// calendar-worded rules run on calendar boundaries in the risk region.
func ExtendedRange(display types.TimeRange, windowType types.WindowType, size int, loc *time.Location) (CalculationRange, error) {
	if size < 1 {
		return CalculationRange{}, types.NewAppError(types.ErrCodeConfigWindowSize,
			"timeWindow.size must be positive", nil)
	}
	start := display.Start.UTC()
	end := display.End.UTC()

	var calcStart time.Time
	switch windowType {
	case types.WindowHourly:
		calcStart = start.Add(-time.Duration(size) * time.Hour)
	case types.WindowDaily:
		calcStart = AlignToNaturalDayStart(start.Add(-time.Duration(size)*24*time.Hour), loc)
	case types.WindowWeekly:
		calcStart = AlignToNaturalDayStart(start.Add(-time.Duration(size)*7*24*time.Hour), loc)
	case types.WindowMonthly:
		calcStart = monthsBack(start, size, loc)
	default:
		return CalculationRange{}, types.NewAppErrorWithDetails(types.ErrCodeConfigUnknownWindowType,
			"unknown window type", nil, map[string]any{"window_type": string(windowType)})
	}

	return CalculationRange{
		CalcStart:    calcStart,
		CalcEnd:      end,
		DisplayStart: start,
		DisplayEnd:   end,
	}, nil
}

// WindowStart computes the start of a single evaluation window ending at
// end, using the same per-type rules as ExtendedRange scaled to the window
// size.
func WindowStart(end time.Time, windowType types.WindowType, size int, loc *time.Location) (time.Time, error) {
	if size < 1 {
		return time.Time{}, types.NewAppError(types.ErrCodeConfigWindowSize,
			"timeWindow.size must be positive", nil)
	}
	end = end.UTC()
	switch windowType {
	case types.WindowHourly:
		return end.Add(-time.Duration(size) * time.Hour), nil
	case types.WindowDaily:
		return AlignToNaturalDayStart(end.Add(-time.Duration(size)*24*time.Hour), loc), nil
	case types.WindowWeekly:
		return AlignToNaturalDayStart(end.Add(-time.Duration(size)*7*24*time.Hour), loc), nil
	case types.WindowMonthly:
		monthStart := AlignToNaturalMonthStart(end, loc)
		if size == 1 {
			return monthStart, nil
		}
		return monthsBack(monthStart, size-1, loc), nil
	default:
		return time.Time{}, types.NewAppErrorWithDetails(types.ErrCodeConfigUnknownWindowType,
			"unknown window type", nil, map[string]any{"window_type": string(windowType)})
	}
}

// StepReached reports whether current is at least step window-type units
// past last. Used to throttle candidate window-end selection over sparse or
// irregular series. Monthly steps compare calendar month indices in loc.
func StepReached(last, current time.Time, windowType types.WindowType, step int, loc *time.Location) (bool, error) {
	if step < 1 {
		step = 1
	}
	switch windowType {
	case types.WindowHourly:
		return current.Sub(last) >= time.Duration(step)*time.Hour, nil
	case types.WindowDaily:
		return current.Sub(last) >= time.Duration(step)*24*time.Hour, nil
	case types.WindowWeekly:
		return current.Sub(last) >= time.Duration(step)*7*24*time.Hour, nil
	case types.WindowMonthly:
		return monthIndex(current.In(loc))-monthIndex(last.In(loc)) >= step, nil
	default:
		return false, types.NewAppErrorWithDetails(types.ErrCodeConfigUnknownWindowType,
			"unknown window type", nil, map[string]any{"window_type": string(windowType)})
	}
}

// monthsBack walks n whole calendar months back from t in loc and returns
// day 1, 00:00:00 local of the target month, in UTC. Month arithmetic is
// done on a flat month index so short months can never normalize oddly.
func monthsBack(t time.Time, n int, loc *time.Location) time.Time {
	local := t.In(loc)
	idx := monthIndex(local) - n
	year := idx / 12
	month := time.Month(idx%12 + 1)
	return time.Date(year, month, 1, 0, 0, 0, 0, loc).UTC()
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}
