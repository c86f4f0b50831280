package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/telecare-scheduling/internal/appointment"
	"github.com/hackgods/telecare-scheduling/internal/identity"
)

func (h *handlers) requestAppointment(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)

	var req CreateAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	providerID, err := parseUUID(req.ProviderID, "provider_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	patientID := caller.ID
	if req.PatientID != "" {
		if patientID, err = parseUUID(req.PatientID, "patient_id"); err != nil {
			writeError(w, r, err)
			return
		}
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	appt, err := h.ledger.RequestAppointment(r.Context(), caller, appointment.BookingRequest{
		PatientID:  patientID,
		ProviderID: providerID,
		Date:       date,
		Reason:     req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// listAppointments returns the caller's own appointments. Admins see
// everything, optionally narrowed by patient_id or provider_id.
func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	limit, offset := pagination(r)

	var list []appointment.Appointment
	var err error

	switch caller.Role {
	case identity.RolePatient:
		list, err = h.ledger.ListForPatient(r.Context(), caller.ID, limit, offset)
	case identity.RoleProvider:
		list, err = h.ledger.ListForProvider(r.Context(), caller.ID, limit, offset)
	case identity.RoleAdmin:
		list, err = h.adminList(r, limit, offset)
	default:
		err = errRoleRequired
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *handlers) adminList(r *http.Request, limit, offset int) ([]appointment.Appointment, error) {
	patientID, err := optionalUUID(r, "patient_id")
	if err != nil {
		return nil, err
	}
	providerID, err := optionalUUID(r, "provider_id")
	if err != nil {
		return nil, err
	}

	switch {
	case patientID != uuid.Nil:
		return h.ledger.ListForPatient(r.Context(), patientID, limit, offset)
	case providerID != uuid.Nil:
		return h.ledger.ListForProvider(r.Context(), providerID, limit, offset)
	default:
		return h.ledger.ListAll(r.Context(), limit, offset)
	}
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	appt, err := h.ledger.Get(r.Context(), callerFrom(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) approveAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req ApproveRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	appt, err := h.ledger.Approve(r.Context(), callerFrom(r), id, appointment.Approval{
		ApprovedAt: req.ApprovedAt,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) rejectAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req RejectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	appt, err := h.ledger.Reject(r.Context(), callerFrom(r), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
