package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telecare-scheduling/internal/slot"
)

// Window is a provider's recurring weekly availability for one weekday.
// DayOfWeek follows time.Weekday: 0 is Sunday.
type Window struct {
	ID         uuid.UUID      `json:"id"`
	ProviderID uuid.UUID      `json:"provider_id"`
	DayOfWeek  int            `json:"day_of_week"`
	StartTime  slot.ClockTime `json:"start_time"`
	EndTime    slot.ClockTime `json:"end_time"`
	Active     bool           `json:"active"`
	Location   *slot.Location `json:"location,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (w Window) SlotWindow() slot.Window {
	return slot.Window{
		ID:        w.ID,
		DayOfWeek: time.Weekday(w.DayOfWeek),
		Start:     w.StartTime,
		End:       w.EndTime,
		Active:    w.Active,
		Location:  w.Location,
	}
}

func SlotWindows(ws []Window) []slot.Window {
	out := make([]slot.Window, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.SlotWindow())
	}
	return out
}
