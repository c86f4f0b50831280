package api

import (
	"errors"
	"net/http"

	"github.com/hackgods/telecare-scheduling/internal/access"
	"github.com/hackgods/telecare-scheduling/internal/appointment"
	"github.com/hackgods/telecare-scheduling/internal/availability"
	"github.com/hackgods/telecare-scheduling/internal/logging"
	redisclient "github.com/hackgods/telecare-scheduling/internal/redis"
	"github.com/hackgods/telecare-scheduling/internal/slot"
)

// Error kinds tell clients whether to fix the request, refresh their view,
// pick another day, or retry later.
const (
	kindValidation = "validation"
	kindAuth       = "auth"
	kindDomain     = "domain"
	kindCapacity   = "capacity"
	kindInternal   = "internal"
)

var (
	errUnauthenticated = errors.New("missing or invalid bearer token")
	errRoleRequired    = errors.New("caller role may not use this endpoint")
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details string `json:"details,omitempty"`
}

type classified struct {
	status int
	code   string
	kind   string
}

var classes = []struct {
	errs []error
	classified
}{
	{[]error{errBadRequest}, classified{http.StatusBadRequest, "invalid_request", kindValidation}},
	{[]error{availability.ErrInvalidRange, slot.ErrInvalidClock}, classified{http.StatusBadRequest, "invalid_range", kindValidation}},
	{[]error{availability.ErrInvalidDay}, classified{http.StatusBadRequest, "invalid_day", kindValidation}},
	{[]error{appointment.ErrMissingReason, appointment.ErrMissingParticipant, access.ErrMissingReference}, classified{http.StatusBadRequest, "missing_field", kindValidation}},
	{[]error{appointment.ErrDateInPast}, classified{http.StatusBadRequest, "date_in_past", kindValidation}},
	{[]error{appointment.ErrOutsideAvailability}, classified{http.StatusBadRequest, "outside_availability", kindValidation}},
	{[]error{appointment.ErrUnalignedTime}, classified{http.StatusBadRequest, "unaligned_time", kindValidation}},
	{[]error{appointment.ErrNotProvider}, classified{http.StatusBadRequest, "not_a_provider", kindValidation}},

	{[]error{errUnauthenticated}, classified{http.StatusUnauthorized, "unauthorized", kindAuth}},

	{[]error{appointment.ErrForbidden, access.ErrForbidden, availability.ErrNotOwner, errRoleRequired}, classified{http.StatusForbidden, "forbidden", kindDomain}},
	{[]error{access.ErrNoSuchAppointment}, classified{http.StatusNotFound, "no_such_appointment", kindDomain}},
	{[]error{appointment.ErrAppointmentNotFound, availability.ErrWindowNotFound, access.ErrGrantNotFound, appointment.ErrPatientNotFound, appointment.ErrProviderNotFound}, classified{http.StatusNotFound, "not_found", kindDomain}},
	{[]error{appointment.ErrWrongState}, classified{http.StatusConflict, "wrong_state", kindDomain}},

	{[]error{slot.ErrNoAvailability}, classified{http.StatusConflict, "no_availability", kindCapacity}},
	{[]error{slot.ErrWindowExhausted}, classified{http.StatusConflict, "window_exhausted", kindCapacity}},
	{[]error{appointment.ErrSlotUnavailable, redisclient.ErrLockNotAcquired}, classified{http.StatusConflict, "slot_unavailable", kindCapacity}},
}

func classify(err error) classified {
	for _, c := range classes {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.classified
			}
		}
	}
	return classified{http.StatusInternalServerError, "internal_error", kindInternal}
}

// writeError maps err to its HTTP shape. Internal errors are logged and their
// details withheld.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	c := classify(err)
	resp := ErrorResponse{Error: c.code, Kind: c.kind, Details: err.Error()}

	l := logging.FromContext(r.Context())
	if c.kind == kindInternal {
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		resp.Details = ""
	} else {
		l.Debug().Err(err).Str("error_code", c.code).Msg("request refused")
	}

	writeJSON(w, c.status, resp)
}
