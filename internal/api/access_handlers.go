package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/telecare-scheduling/internal/access"
	"github.com/hackgods/telecare-scheduling/internal/identity"
)

func (h *handlers) grantKey(r *http.Request) (access.Key, error) {
	var req AccessRequest
	if err := decodeJSON(r, &req); err != nil {
		return access.Key{}, err
	}
	providerID, err := parseUUID(req.ProviderID, "provider_id")
	if err != nil {
		return access.Key{}, err
	}
	appointmentID, err := parseUUID(req.AppointmentID, "appointment_id")
	if err != nil {
		return access.Key{}, err
	}
	return access.Key{PatientID: callerFrom(r).ID, ProviderID: providerID, AppointmentID: appointmentID}, nil
}

func (h *handlers) grantAccess(w http.ResponseWriter, r *http.Request) {
	k, err := h.grantKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	g, err := h.access.Grant(r.Context(), callerFrom(r), k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *handlers) revokeAccess(w http.ResponseWriter, r *http.Request) {
	k, err := h.grantKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	g, err := h.access.Revoke(r.Context(), callerFrom(r), k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// checkAccess answers for the calling provider. Admins may name any
// provider; patients may only ask about their own grants.
func (h *handlers) checkAccess(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)

	patientID, err := parseUUID(r.URL.Query().Get("patient_id"), "patient_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	appointmentID, err := parseUUID(r.URL.Query().Get("appointment_id"), "appointment_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	providerID, err := optionalUUID(r, "provider_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch caller.Role {
	case identity.RoleProvider:
		if providerID != uuid.Nil && providerID != caller.ID {
			writeError(w, r, errRoleRequired)
			return
		}
		providerID = caller.ID
	case identity.RolePatient:
		if patientID != caller.ID {
			writeError(w, r, errRoleRequired)
			return
		}
	}
	if providerID == uuid.Nil {
		writeError(w, r, access.ErrMissingReference)
		return
	}

	ok, err := h.access.Check(r.Context(), access.Key{PatientID: patientID, ProviderID: providerID, AppointmentID: appointmentID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccessCheckResponse{HasAccess: ok})
}

func (h *handlers) accessStatus(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := requireRole(caller, identity.RolePatient); err != nil {
		writeError(w, r, err)
		return
	}
	appointmentID, err := urlUUID(r, "appointmentID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	g, err := h.access.Status(r.Context(), caller.ID, appointmentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
