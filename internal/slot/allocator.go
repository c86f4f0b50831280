package slot

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultDuration is the fixed length of every appointment.
const DefaultDuration = 30 * time.Minute

// Capacity errors. Callers surface these as "pick a different day", never as
// system failures.
var (
	ErrNoAvailability  = errors.New("provider has no availability on that day")
	ErrWindowExhausted = errors.New("no free slot left in the provider's window for that day")
)

// Policy selects how existing bookings count against a window.
type Policy string

const (
	// PolicyStandard ignores rejected bookings and fills the earliest gap
	// when the sequential candidate is blocked.
	PolicyStandard Policy = "standard"
	// PolicyLegacy counts every booking on the date, rejected ones included,
	// and never looks for gaps.
	PolicyLegacy Policy = "legacy"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStandard, "":
		return PolicyStandard, nil
	case PolicyLegacy:
		return PolicyLegacy, nil
	}
	return "", errors.New("unknown slot policy " + s)
}

type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Window is the allocator's view of a recurring weekly availability window.
type Window struct {
	ID        uuid.UUID
	DayOfWeek time.Weekday
	Start     ClockTime
	End       ClockTime
	Active    bool
	Location  *Location
}

// Booking is an existing appointment occupying part of a date.
type Booking struct {
	Start    time.Time
	End      time.Time
	Rejected bool
}

type Slot struct {
	Start    time.Time
	End      time.Time
	WindowID uuid.UUID
	Location *Location
}

type Request struct {
	Windows  []Window
	Bookings []Booking
	// Date is any instant on the requested calendar day, expressed in the
	// clinic location.
	Date     time.Time
	Duration time.Duration
	Policy   Policy
	// NotBefore is the earliest acceptable start, usually the current time.
	// Starts before it are skipped to the next duration boundary of the window.
	NotBefore time.Time
}

// Allocate picks the next slot for req.Date. Slots are packed sequentially:
// the candidate start is the window start plus one duration per occupying
// booking.
func Allocate(req Request) (Slot, error) {
	duration := req.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}

	win, ok := activeWindowFor(req.Windows, req.Date.Weekday())
	if !ok {
		return Slot{}, ErrNoAvailability
	}

	winStart := win.Start.On(req.Date)
	winEnd := win.End.On(req.Date)

	occupied := make([]Booking, 0, len(req.Bookings))
	for _, b := range req.Bookings {
		if b.Rejected && req.Policy != PolicyLegacy {
			continue
		}
		occupied = append(occupied, b)
	}

	floor := alignUp(winStart, req.NotBefore, duration)

	start := winStart.Add(time.Duration(len(occupied)) * duration)
	if start.Before(floor) {
		start = floor
	}
	end := start.Add(duration)

	blocked := end.After(winEnd) || overlapsAny(start, end, occupied)
	if blocked && req.Policy != PolicyLegacy {
		var found bool
		start, found = firstGap(floor, winEnd, duration, occupied)
		if !found {
			return Slot{}, ErrWindowExhausted
		}
		end = start.Add(duration)
	} else if end.After(winEnd) {
		return Slot{}, ErrWindowExhausted
	}

	return Slot{
		Start:    start,
		End:      end,
		WindowID: win.ID,
		Location: win.Location,
	}, nil
}

// Fits reports whether [start, start+duration) lies inside the active window
// for start's weekday.
func Fits(windows []Window, start time.Time, duration time.Duration) (Window, bool) {
	win, ok := activeWindowFor(windows, start.Weekday())
	if !ok {
		return Window{}, false
	}
	if start.Before(win.Start.On(start)) || start.Add(duration).After(win.End.On(start)) {
		return Window{}, false
	}
	return win, true
}

// alignUp returns the first instant winStart+k*duration (k >= 0) that is not
// before notBefore.
func alignUp(winStart, notBefore time.Time, duration time.Duration) time.Time {
	if !notBefore.After(winStart) {
		return winStart
	}
	steps := (notBefore.Sub(winStart) + duration - 1) / duration
	return winStart.Add(steps * duration)
}

func activeWindowFor(windows []Window, day time.Weekday) (Window, bool) {
	for _, w := range windows {
		if w.Active && w.DayOfWeek == day && w.Start < w.End {
			return w, true
		}
	}
	return Window{}, false
}

func overlapsAny(start, end time.Time, bookings []Booking) bool {
	for _, b := range bookings {
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

func firstGap(from, winEnd time.Time, duration time.Duration, bookings []Booking) (time.Time, bool) {
	sorted := make([]Booking, len(bookings))
	copy(sorted, bookings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	cursor := from
	for _, b := range sorted {
		if !b.End.After(cursor) {
			continue
		}
		if !b.Start.Before(cursor.Add(duration)) {
			break
		}
		cursor = b.End
	}
	if cursor.Add(duration).After(winEnd) {
		return time.Time{}, false
	}
	return cursor, true
}
