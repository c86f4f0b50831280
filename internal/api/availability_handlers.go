package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hackgods/telecare-scheduling/internal/availability"
	"github.com/hackgods/telecare-scheduling/internal/identity"
)

func requireRole(c identity.Caller, roles ...identity.Role) error {
	for _, role := range roles {
		if c.Role == role {
			return nil
		}
	}
	return errRoleRequired
}

func (h *handlers) listProviderWindows(w http.ResponseWriter, r *http.Request) {
	providerID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	windows, err := h.availability.ListActiveWindows(r.Context(), providerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(windows))
}

func (h *handlers) myWindows(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := requireRole(caller, identity.RoleProvider); err != nil {
		writeError(w, r, err)
		return
	}

	windows, err := h.availability.ListActiveWindows(r.Context(), caller.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(windows))
}

func (h *handlers) setWindow(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := requireRole(caller, identity.RoleProvider); err != nil {
		writeError(w, r, err)
		return
	}

	var req SetWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DayOfWeek == nil {
		writeError(w, r, fmt.Errorf("%w: day_of_week is required", errBadRequest))
		return
	}

	win, err := h.availability.SetWindow(r.Context(), caller.ID, *req.DayOfWeek, req.StartTime, req.EndTime, req.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (h *handlers) updateWindow(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := requireRole(caller, identity.RoleProvider); err != nil {
		writeError(w, r, err)
		return
	}
	windowID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req UpdateWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	win, err := h.availability.UpdateWindow(r.Context(), caller.ID, windowID, availability.WindowPatch{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Location:  req.Location,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (h *handlers) deactivateWindow(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := requireRole(caller, identity.RoleProvider); err != nil {
		writeError(w, r, err)
		return
	}
	windowID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.availability.DeactivateWindow(r.Context(), caller.ID, windowID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) nextSlot(w http.ResponseWriter, r *http.Request) {
	providerID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := h.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	sl, err := h.ledger.NextSlot(r.Context(), providerID, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotResponse{
		Start:    sl.Start,
		End:      sl.End,
		WindowID: sl.WindowID,
		Location: sl.Location,
	})
}

// parseDate reads a YYYY-MM-DD calendar day in the clinic clock.
func (h *handlers) parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", errBadRequest)
	}
	d, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", errBadRequest)
	}
	return d, nil
}

// nonNil keeps empty lists rendering as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
